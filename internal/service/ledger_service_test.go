package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
)

func TestApplyMovement(t *testing.T) {
	tests := []struct {
		name    string
		current int
		typ     model.TransactionType
		qty     int
		want    int
		kind    apperror.Kind
	}{
		{"stock in", 4, model.TxStockIn, 3, 7, ""},
		{"initial stock", 0, model.TxInitialStock, 10, 10, ""},
		{"stock out", 7, model.TxStockOut, 7, 0, ""},
		{"stock out too many", 2, model.TxStockOut, 3, 2, apperror.KindInsufficientStock},
		{"adjustment sets absolute", 9, model.TxAdjustment, 4, 4, ""},
		{"adjustment to zero", 9, model.TxAdjustment, 0, 0, ""},
		{"adjustment negative", 9, model.TxAdjustment, -1, 9, apperror.KindInvalidArgument},
		{"zero quantity", 1, model.TxStockIn, 0, 1, apperror.KindInvalidArgument},
		{"negative quantity", 1, model.TxStockOut, -2, 1, apperror.KindInvalidArgument},
		{"unknown type", 1, model.TransactionType("transfer"), 1, 1, apperror.KindInvalidArgument},
		{"stock in overflows", 1, model.TxStockIn, math.MaxInt, 1, apperror.KindInvalidArgument},
		{"stock in up to max", 1, model.TxStockIn, math.MaxInt - 1, math.MaxInt, ""},
		{"initial stock overflows", math.MaxInt, model.TxInitialStock, 1, math.MaxInt, apperror.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyMovement(tt.current, tt.typ, tt.qty)
			assert.Equal(t, tt.want, got)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, apperror.KindOf(err))
		})
	}
}

func TestPostOverflowIsInvalidQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "OVF-1", 5, nil)

	_, err := f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockIn, Quantity: math.MaxInt})
	require.ErrorIs(t, err, apperror.ErrInvalidArgument)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidQuantity, appErr.Code)
	assert.Equal(t, "quantity", appErr.Field)

	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Len(t, f.ledgerRows(t, p.ID), 1)
}

func TestLowStockScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "SCN-1", 10, intPtr(5))

	res := f.post(t, p.ID, model.TxStockOut, 3)
	assert.Equal(t, 7, res.Product.Stock)
	assert.False(t, res.Product.IsLowStock())

	res = f.post(t, p.ID, model.TxStockOut, 5)
	assert.Equal(t, 2, res.Product.Stock)
	assert.True(t, res.Product.IsLowStock())
	require.Len(t, f.events.ofType(event.LowStockAlert), 1)

	_, err := f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockOut, Quantity: 10})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 2, appErr.Details["available"])
	assert.Equal(t, 10, appErr.Details["requested"])

	assert.Equal(t, 2, f.stock(t, p.ID))
	rows := f.ledgerRows(t, p.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, model.TxInitialStock, rows[0].Type)
	assert.Equal(t, []int64{1, 2, 3}, []int64{rows[0].Sequence, rows[1].Sequence, rows[2].Sequence})
	assert.Equal(t, 7, rows[2].StockBefore)
	assert.Equal(t, 2, rows[2].StockAfter)

	dashboard, err := NewDashboardService(f.deps, DashboardOptions{}).LowStockItems(ctx, f.staff, 0)
	require.NoError(t, err)
	require.Len(t, dashboard, 1)
	assert.Equal(t, 3, dashboard[0].Deficit)
}

func TestRejectedPostChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "REJ-1", 4, nil)
	before := len(f.events.events)

	_, err := f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockOut, Quantity: 5})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockIn, Quantity: 0})
	require.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: "transfer", Quantity: 1})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvalidType, appErr.Code)
	assert.Equal(t, "type", appErr.Field)

	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.Len(t, f.ledgerRows(t, p.ID), 1)
	assert.Len(t, f.events.events, before)
}

func TestPostUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Post(context.Background(), f.staff, PostTransactionInput{ProductID: uuid.New(), Type: model.TxStockIn, Quantity: 1})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeProductNotFound, appErr.Code)
}

func TestPostRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "AUTH-1", 1, nil)
	_, err := f.ledger.Post(context.Background(), auth.Principal{}, PostTransactionInput{ProductID: p.ID, Type: model.TxStockIn, Quantity: 1})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestAdjustmentToZero(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "ADJ-1", 12, nil)

	res := f.post(t, p.ID, model.TxAdjustment, 0)
	assert.Equal(t, 0, res.Product.Stock)
	assert.Equal(t, 0, res.Transaction.Quantity)
	assert.Equal(t, 12, res.Transaction.StockBefore)

	rows := f.ledgerRows(t, p.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, model.TxAdjustment, rows[1].Type)
	assert.Equal(t, 0, rows[1].Quantity)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestReplayReconstructsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RPL-1", 5, nil)

	f.post(t, p.ID, model.TxStockIn, 8)
	f.post(t, p.ID, model.TxStockOut, 6)
	f.post(t, p.ID, model.TxAdjustment, 20)
	f.post(t, p.ID, model.TxStockOut, 1)
	f.post(t, p.ID, model.TxStockIn, 3)

	res, err := f.ledger.Replay(ctx, f.staff, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Consistent)
	assert.Nil(t, res.FirstDivergence)
	assert.Equal(t, 6, res.Entries)
	assert.Equal(t, 22, res.ReplayedStock)
	assert.Equal(t, f.stock(t, p.ID), res.ReplayedStock)

	// a write that bypasses the ledger is detected
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", p.ID).Update("stock", 99).Error)
	res, err = f.ledger.Replay(ctx, f.staff, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Consistent)
	assert.Equal(t, 99, res.CurrentStock)
}

func TestConcurrentStockInSerializes(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "CON-1", 0, nil)
	other := f.product(t, "CON-2", 0, nil)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Post(context.Background(), f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockIn, Quantity: 1})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.ledger.Post(context.Background(), f.admin, PostTransactionInput{ProductID: other.ID, Type: model.TxStockIn, Quantity: 2})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, n, f.stock(t, p.ID))
	assert.Equal(t, 2*n, f.stock(t, other.ID))

	rows := f.ledgerRows(t, p.ID)
	require.Len(t, rows, n)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row.Sequence)
		assert.Equal(t, i, row.StockBefore)
		assert.Equal(t, i+1, row.StockAfter)
	}
	assert.Zero(t, f.ledger.(*ledgerService).locks.size())
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "LST-A", 3, nil)
	b := f.product(t, "LST-B", 0, nil)

	f.clock.Advance(time.Second)
	f.post(t, a.ID, model.TxStockOut, 1)
	f.clock.Advance(time.Second)
	f.post(t, b.ID, model.TxStockIn, 4)

	page, err := f.ledger.List(ctx, f.staff, repository.TransactionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, b.ID, page.Items[0].ProductID)
	require.NotNil(t, page.Items[0].Product)
	assert.Equal(t, "LST-B", page.Items[0].Product.SKU)

	page, err = f.ledger.List(ctx, f.staff, repository.TransactionFilter{ProductID: &a.ID, Type: model.TxStockOut})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Items[0].Quantity)

	_, err = f.ledger.List(ctx, f.staff, repository.TransactionFilter{Type: "gift"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	got, err := f.ledger.Get(ctx, f.staff, page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStockOut, got.Type)

	_, err = f.ledger.Get(ctx, f.staff, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLedgerRowsAreImmutable(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "IMM-1", 2, nil)
	row := f.ledgerRows(t, p.ID)[0]

	row.Quantity = 50
	assert.ErrorIs(t, f.db.Save(&row).Error, model.ErrLedgerImmutable)
	assert.ErrorIs(t, f.db.Delete(&row).Error, model.ErrLedgerImmutable)
	assert.Equal(t, 2, f.ledgerRows(t, p.ID)[0].Quantity)
}
