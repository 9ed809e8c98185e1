package handler

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/service"
)

type ProductHandler struct {
	products service.ProductService
	ledger   service.LedgerService
}

func NewProductHandler(products service.ProductService, ledger service.LedgerService) *ProductHandler {
	return &ProductHandler{products: products, ledger: ledger}
}

// GetProducts lists products
// GET /api/v1/products?search=&category_id=&low_stock=true&sort=name&order=desc&page=1&limit=20
func (h *ProductHandler) GetProducts(c *fiber.Ctx) error {
	filter := repository.ProductFilter{
		Search:       c.Query("search"),
		LowStockOnly: c.QueryBool("low_stock"),
		SortBy:       c.Query("sort"),
		SortDesc:     strings.EqualFold(c.Query("order"), "desc"),
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.InvalidArgument(apperror.CodeInvalidField, "category_id", "invalid category_id format")
		}
		filter.CategoryID = &id
	}

	var err error
	if filter.Page.Page, err = queryInt(c, "page"); err != nil {
		return err
	}
	if filter.Page.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}

	page, err := h.products.List(c.UserContext(), middleware.Principal(c), filter)
	if err != nil {
		return err
	}

	items := make([]model.ProductResponse, len(page.Items))
	for i := range page.Items {
		items[i] = page.Items[i].ToResponse()
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": listMeta{Page: page.Page, Limit: page.Limit, Total: page.Total, TotalPages: page.TotalPages},
	})
}

// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.products.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": product.ToResponse()})
}

// POST /api/v1/products
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req service.CreateProductInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	product, err := h.products.Create(c.UserContext(), middleware.Principal(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Product created", "data": product.ToResponse()})
}

// UpdateProduct edits metadata. Stock is refused here; it only moves through
// POST /transactions.
// PUT /api/v1/products/:id
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := parseBody(c, &fields); err != nil {
		return err
	}
	if _, ok := fields["stock"]; ok {
		return apperror.InvalidArgument(apperror.CodeInvalidField, "stock",
			"stock cannot be edited directly; record a transaction instead")
	}

	var req service.UpdateProductInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	// an explicit null category detaches the product
	if raw, ok := fields["category_id"]; ok && string(raw) == "null" {
		none := uuid.Nil
		req.CategoryID = &none
	}
	if raw, ok := fields["minimum_stock"]; ok && string(raw) == "null" {
		req.ClearMinimumStock = true
	}

	product, err := h.products.UpdateMetadata(c.UserContext(), middleware.Principal(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Product updated", "data": product.ToResponse()})
}

// DELETE /api/v1/products/:id
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.products.Delete(c.UserContext(), middleware.Principal(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Product deleted"})
}

// VerifyLedger replays the product's ledger against its stock
// GET /api/v1/products/:id/ledger/verify
func (h *ProductHandler) VerifyLedger(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.ledger.Replay(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}
