package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/internal/service"
)

type TransactionHandler struct {
	ledger service.LedgerService
}

func NewTransactionHandler(ledger service.LedgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

// CreateTransaction posts one ledger entry and returns it with the new stock
// POST /api/v1/transactions
func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	var req service.PostTransactionInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := h.ledger.Post(c.UserContext(), middleware.Principal(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Transaction recorded",
		"data":      res.Transaction.ToResponse(),
		"new_stock": res.Product.Stock,
		"product":   res.Product.ToResponse(),
	})
}

// GetTransactions lists the ledger, newest first unless order=asc
// GET /api/v1/transactions?product_id=&user_id=&type=&from=&to=&order=&page=&limit=
func (h *TransactionHandler) GetTransactions(c *fiber.Ctx) error {
	filter := repository.TransactionFilter{
		Type:      model.TransactionType(c.Query("type")),
		Ascending: strings.EqualFold(c.Query("order"), "asc"),
	}

	var err error
	if filter.ProductID, err = queryUUID(c, "product_id"); err != nil {
		return err
	}
	if filter.UserID, err = queryUUID(c, "user_id"); err != nil {
		return err
	}
	if filter.From, err = queryTime(c, "from", false); err != nil {
		return err
	}
	if filter.To, err = queryTime(c, "to", true); err != nil {
		return err
	}
	if filter.Page.Page, err = queryInt(c, "page"); err != nil {
		return err
	}
	if filter.Page.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}

	page, err := h.ledger.List(c.UserContext(), middleware.Principal(c), filter)
	if err != nil {
		return err
	}

	items := make([]model.TransactionResponse, len(page.Items))
	for i := range page.Items {
		items[i] = page.Items[i].ToResponse()
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": listMeta{Page: page.Page, Limit: page.Limit, Total: page.Total, TotalPages: page.TotalPages},
	})
}

// GET /api/v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.ledger.Get(c.UserContext(), middleware.Principal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entry.ToResponse()})
}

func queryUUID(c *fiber.Ctx, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, key, "invalid "+key+" format")
	}
	return &id, nil
}

// queryTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers that whole day.
func queryTime(c *fiber.Ctx, key string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, key, key+" must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
