package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/service"
)

type DashboardHandler struct {
	dashboard service.DashboardService
}

func NewDashboardHandler(dashboard service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GetSummary returns headline counts
// GET /api/v1/dashboard/summary?window=24h
func (h *DashboardHandler) GetSummary(c *fiber.Ctx) error {
	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return apperror.InvalidArgument(apperror.CodeInvalidField, "window", "window must be a positive duration such as 24h")
		}
		window = d
	}

	summary, err := h.dashboard.Summary(c.UserContext(), middleware.Principal(c), window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// GET /api/v1/dashboard/low-stock?limit=5
func (h *DashboardHandler) GetLowStock(c *fiber.Ctx) error {
	items, err := h.dashboard.LowStockItems(c.UserContext(), middleware.Principal(c), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items})
}

// GET /api/v1/dashboard/recent-products?limit=5
func (h *DashboardHandler) GetRecentProducts(c *fiber.Ctx) error {
	products, err := h.dashboard.RecentProducts(c.UserContext(), middleware.Principal(c), queryLimit(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": products})
}

// GET /api/v1/dashboard/transaction-chart?period=week
func (h *DashboardHandler) GetTransactionChart(c *fiber.Ctx) error {
	chart, err := h.dashboard.TransactionChart(c.UserContext(), middleware.Principal(c), c.Query("period", "week"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chart})
}
