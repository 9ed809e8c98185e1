package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	deps   Deps
	clock  *fakeClock
	events *recorder
	admin  auth.Principal
	staff  auth.Principal

	products   ProductService
	categories CategoryService
	ledger     LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	f := &fixture{
		db:     db,
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		events: &recorder{},
		admin:  testutil.SeedUser(t, db, "admin", auth.RoleAdmin).Principal(),
		staff:  testutil.SeedUser(t, db, "staff", auth.RoleStaff).Principal(),
	}
	f.deps = NewDeps(db)
	f.deps.Clock = f.clock.Now
	f.deps.Publisher = f.events

	f.products = NewProductService(f.deps)
	f.categories = NewCategoryService(f.deps)
	f.ledger = NewLedgerService(f.deps)
	return f
}

func intPtr(v int) *int { return &v }

func (f *fixture) product(t *testing.T, sku string, stock int, minimum *int) *model.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), f.admin, CreateProductInput{
		Name:         "Product " + sku,
		SKU:          sku,
		Price:        decimal.RequireFromString("9.99"),
		Stock:        stock,
		MinimumStock: minimum,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) post(t *testing.T, id uuid.UUID, typ model.TransactionType, qty int) *PostResult {
	t.Helper()
	res, err := f.ledger.Post(context.Background(), f.staff, PostTransactionInput{ProductID: id, Type: typ, Quantity: qty})
	require.NoError(t, err)
	return res
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p model.Product
	require.NoError(t, f.db.Unscoped().First(&p, "id = ?", id).Error)
	return p.Stock
}

func (f *fixture) ledgerRows(t *testing.T, id uuid.UUID) []model.Transaction {
	t.Helper()
	var rows []model.Transaction
	require.NoError(t, f.db.Where("product_id = ?", id).Order("sequence ASC").Find(&rows).Error)
	return rows
}
