package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
)

type PostTransactionInput struct {
	ProductID uuid.UUID             `json:"product_id"`
	Type      model.TransactionType `json:"type"`
	Quantity  int                   `json:"quantity"`
	Notes     *string               `json:"notes"`
}

type PostResult struct {
	Transaction model.Transaction
	Product     model.Product
}

type TransactionPage struct {
	Items      []model.Transaction
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// ReplayResult compares the stock rebuilt from the ledger with the live value
type ReplayResult struct {
	ProductID     uuid.UUID `json:"product_id"`
	Entries       int       `json:"entries"`
	ReplayedStock int       `json:"replayed_stock"`
	CurrentStock  int       `json:"current_stock"`
	Consistent    bool      `json:"consistent"`
	// sequence of the first entry whose recorded stock_before/stock_after
	// disagrees with the fold
	FirstDivergence *int64 `json:"first_divergence,omitempty"`
}

type LedgerService interface {
	Post(ctx context.Context, p auth.Principal, in PostTransactionInput) (*PostResult, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Transaction, error)
	List(ctx context.Context, p auth.Principal, filter repository.TransactionFilter) (*TransactionPage, error)
	Replay(ctx context.Context, p auth.Principal, productID uuid.UUID) (*ReplayResult, error)
}

type ledgerService struct {
	Deps
	locks *keyedMutex
}

func NewLedgerService(d Deps) LedgerService {
	return &ledgerService{
		Deps:  d.withDefaults(),
		locks: newKeyedMutex(),
	}
}

func productNotFound() *apperror.Error {
	return apperror.NotFound(apperror.CodeProductNotFound, "product not found")
}

func validateMovement(typ model.TransactionType, quantity int) error {
	if !typ.Valid() {
		return apperror.InvalidArgument(apperror.CodeInvalidType, "type",
			fmt.Sprintf("type must be one of stock_in, stock_out, initial_stock, adjustment; got %q", typ))
	}
	if typ == model.TxAdjustment {
		if quantity < 0 {
			return apperror.InvalidArgument(apperror.CodeInvalidQuantity, "quantity", "adjustment quantity must be zero or more")
		}
		return nil
	}
	if quantity <= 0 {
		return apperror.InvalidArgument(apperror.CodeInvalidQuantity, "quantity", "quantity must be a positive integer")
	}
	return nil
}

// ApplyMovement returns the stock after applying one ledger entry. An
// adjustment sets the stock outright; every other type moves it by quantity.
func ApplyMovement(current int, typ model.TransactionType, quantity int) (int, error) {
	if err := validateMovement(typ, quantity); err != nil {
		return current, err
	}
	switch typ {
	case model.TxStockIn, model.TxInitialStock:
		if quantity > math.MaxInt-current {
			return current, apperror.InvalidArgument(apperror.CodeInvalidQuantity, "quantity",
				fmt.Sprintf("quantity %d would overflow stock of %d", quantity, current))
		}
		return current + quantity, nil
	case model.TxStockOut:
		if current < quantity {
			return current, apperror.InsufficientStock(current, quantity)
		}
		return current - quantity, nil
	default:
		return quantity, nil
	}
}

type movement struct {
	Type     model.TransactionType
	Quantity int
	UserID   uuid.UUID
	Notes    *string
	At       time.Time
}

// postMovement applies m to a product already read inside tx and appends the
// ledger row. The caller must hold the product's lock.
func postMovement(ctx context.Context, tx *gorm.DB, d Deps, product *model.Product, m movement) (*model.Transaction, error) {
	after, err := ApplyMovement(product.Stock, m.Type, m.Quantity)
	if err != nil {
		return nil, err
	}

	txns := d.Transactions.WithTx(tx)
	seq, err := txns.NextSequence(ctx, product.ID)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	entry := &model.Transaction{
		ProductID:   product.ID,
		UserID:      m.UserID,
		Type:        m.Type,
		Quantity:    m.Quantity,
		StockBefore: product.Stock,
		StockAfter:  after,
		Sequence:    seq,
		Notes:       cleanNotes(m.Notes),
		CreatedAt:   m.At,
	}

	if err := d.Products.WithTx(tx).UpdateStock(ctx, product.ID, after, m.UserID.String(), m.At); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if err := txns.Create(ctx, entry); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	product.Stock = after
	product.UpdatedAt = m.At
	product.UpdatedBy = m.UserID.String()
	return entry, nil
}

func cleanNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *ledgerService) Post(ctx context.Context, p auth.Principal, in PostTransactionInput) (*PostResult, error) {
	start := time.Now()
	res, err := s.post(ctx, p, in)

	kind := ""
	if err != nil {
		kind = string(apperror.KindOf(err))
	}
	s.Metrics.ObservePost(string(in.Type), kind, time.Since(start))
	return res, err
}

func (s *ledgerService) post(ctx context.Context, p auth.Principal, in PostTransactionInput) (*PostResult, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionTransactionCreate); err != nil {
		return nil, err
	}
	if in.ProductID == uuid.Nil {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "product_id", "product_id is required")
	}
	// reject malformed input before taking any lock
	if err := validateMovement(in.Type, in.Quantity); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(in.ProductID.String())
	defer unlock()

	var (
		result PostResult
		wasLow bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.Products.WithTx(tx).FindByIDForUpdate(ctx, in.ProductID)
		if err != nil {
			return apperror.FromStorage(err, productNotFound(), nil)
		}
		wasLow = product.IsLowStock()

		entry, err := postMovement(ctx, tx, s.Deps, product, movement{
			Type:     in.Type,
			Quantity: in.Quantity,
			UserID:   p.UserID,
			Notes:    in.Notes,
			At:       s.now(),
		})
		if err != nil {
			return err
		}

		result = PostResult{Transaction: *entry, Product: *product}
		return nil
	})
	if err != nil {
		return nil, apperror.FromStorage(err, nil, nil)
	}

	s.announce(ctx, p, &result, wasLow)
	return &result, nil
}

func (s *ledgerService) announce(ctx context.Context, p auth.Principal, res *PostResult, wasLow bool) {
	product := res.Product
	entry := res.Transaction

	e := event.New(event.StockMoved, product.ID.String(), entry.CreatedAt, map[string]interface{}{
		"transaction": entry.ToResponse(),
		"product": map[string]interface{}{
			"id":    product.ID,
			"sku":   product.SKU,
			"name":  product.Name,
			"stock": product.Stock,
		},
	})
	e.Message = fmt.Sprintf("%s recorded %s of %d for '%s', stock %d -> %d",
		p.Username, entry.Type, entry.Quantity, product.Name, entry.StockBefore, entry.StockAfter)
	s.publish(ctx, e, p)

	if !wasLow && product.IsLowStock() {
		s.publish(ctx, lowStockEvent(entry.CreatedAt, product), p)
	}
}

func lowStockEvent(at time.Time, products ...model.Product) event.Event {
	items := make([]model.LowStockItem, 0, len(products))
	for i := range products {
		items = append(items, products[i].ToLowStockItem())
	}
	key := ""
	if len(products) == 1 {
		key = products[0].ID.String()
	}
	e := event.New(event.LowStockAlert, key, at, map[string]interface{}{"items": items})
	e.Message = fmt.Sprintf("%d product(s) below minimum stock", len(items))
	return e
}

func (s *ledgerService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Transaction, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionTransactionView); err != nil {
		return nil, err
	}
	entry, err := s.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, apperror.NotFound(apperror.CodeTransactionNotFound, "transaction not found"), nil)
	}
	return entry, nil
}

func (s *ledgerService) List(ctx context.Context, p auth.Principal, filter repository.TransactionFilter) (*TransactionPage, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionTransactionView); err != nil {
		return nil, err
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidType, "type", fmt.Sprintf("unknown transaction type %q", filter.Type))
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "from", "from must not be after to")
	}

	items, total, err := s.Transactions.List(ctx, filter)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	return &TransactionPage{
		Items:      items,
		Total:      total,
		Page:       filter.Number(),
		Limit:      filter.Size(),
		TotalPages: repository.TotalPages(total, filter.Size()),
	}, nil
}

// Replay folds the product's ledger from zero in sequence order
func (s *ledgerService) Replay(ctx context.Context, p auth.Principal, productID uuid.UUID) (*ReplayResult, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionProductView); err != nil {
		return nil, err
	}
	product, err := s.Products.FindByID(ctx, productID)
	if err != nil {
		return nil, apperror.FromStorage(err, productNotFound(), nil)
	}
	entries, err := s.Transactions.ListByProduct(ctx, productID)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	res := &ReplayResult{
		ProductID:    productID,
		Entries:      len(entries),
		CurrentStock: product.Stock,
	}

	stock := 0
	for _, e := range entries {
		next, err := ApplyMovement(stock, e.Type, e.Quantity)
		if res.FirstDivergence == nil && (err != nil || e.StockBefore != stock || e.StockAfter != next) {
			seq := e.Sequence
			res.FirstDivergence = &seq
		}
		if err == nil {
			stock = next
		}
	}

	res.ReplayedStock = stock
	res.Consistent = res.FirstDivergence == nil && stock == product.Stock
	return res, nil
}
