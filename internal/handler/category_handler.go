package handler

import (
	"github.com/gofiber/fiber/v2"

	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/service"
)

type CategoryHandler struct {
	categories service.CategoryService
}

func NewCategoryHandler(categories service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// GET /api/v1/categories?search=
func (h *CategoryHandler) GetCategories(c *fiber.Ctx) error {
	list, err := h.categories.List(c.UserContext(), middleware.Principal(c), c.Query("search"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": list})
}

func (h *CategoryHandler) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	category, err := h.categories.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": category})
}

func (h *CategoryHandler) CreateCategory(c *fiber.Ctx) error {
	var req service.CreateCategoryInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.categories.Create(c.UserContext(), middleware.Principal(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Category created", "data": category})
}

func (h *CategoryHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req service.UpdateCategoryInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.categories.Update(c.UserContext(), middleware.Principal(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Category updated", "data": category})
}

func (h *CategoryHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.categories.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Category deleted"})
}
