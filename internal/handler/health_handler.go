package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/pkg/database"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx, h.db); err != nil {
		return apperror.StorageUnavailable(err)
	}
	return c.JSON(fiber.Map{"status": "ok", "database": "up"})
}
