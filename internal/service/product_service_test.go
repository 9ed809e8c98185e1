package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
)

func TestCreateProductWritesOpeningEntry(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, " pen-01 ", 15, intPtr(3))

	assert.Equal(t, "PEN-01", p.SKU)
	assert.Equal(t, 15, p.Stock)

	rows := f.ledgerRows(t, p.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, model.TxInitialStock, rows[0].Type)
	assert.Equal(t, 15, rows[0].Quantity)
	assert.Equal(t, 0, rows[0].StockBefore)
	assert.Equal(t, f.admin.UserID, rows[0].UserID)

	assert.Len(t, f.events.ofType(event.ProductCreated), 1)
	assert.Empty(t, f.events.ofType(event.LowStockAlert))
}

func TestCreateProductWithoutStockHasEmptyLedger(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "EMPTY-1", 0, intPtr(2))
	assert.Empty(t, f.ledgerRows(t, p.ID))
	// 0 < 2 so the new product is already low
	assert.Len(t, f.events.ofType(event.LowStockAlert), 1)
}

func TestSKUUniquenessIgnoresCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "abc-1", 0, nil)

	_, err := f.products.Create(ctx, f.staff, CreateProductInput{
		Name: "Other", SKU: "ABC-1", Price: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, apperror.ErrDuplicate)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeDuplicateSKU, appErr.Code)
	assert.Equal(t, "sku", appErr.Field)

	// distinct SKUs are still accepted
	_, err = f.products.Create(ctx, f.staff, CreateProductInput{
		Name: "Other", SKU: "abc-2", Price: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		name  string
		in    CreateProductInput
		field string
	}{
		{"empty name", CreateProductInput{Name: " ", SKU: "X", Price: decimal.NewFromInt(1)}, "name"},
		{"empty sku", CreateProductInput{Name: "X", SKU: "", Price: decimal.NewFromInt(1)}, "sku"},
		{"zero price", CreateProductInput{Name: "X", SKU: "X", Price: decimal.Zero}, "price"},
		{"negative stock", CreateProductInput{Name: "X", SKU: "X", Price: decimal.NewFromInt(1), Stock: -1}, "stock"},
		{"negative minimum", CreateProductInput{Name: "X", SKU: "X", Price: decimal.NewFromInt(1), MinimumStock: intPtr(-1)}, "minimum_stock"},
		{"unknown category", CreateProductInput{Name: "X", SKU: "X", Price: decimal.NewFromInt(1), CategoryID: &missing}, "category_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.products.Create(ctx, f.staff, tt.in)
			require.ErrorIs(t, err, apperror.ErrInvalidArgument)
			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateMetadataNeverTouchesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "UPD-1", 8, nil)
	f.post(t, p.ID, model.TxStockOut, 3)

	name := "Renamed"
	price := decimal.RequireFromString("12.345")
	updated, err := f.products.UpdateMetadata(ctx, f.staff, p.ID, UpdateProductInput{
		Name:         &name,
		Price:        &price,
		MinimumStock: intPtr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "12.35", updated.Price.StringFixed(2))
	assert.Equal(t, 5, updated.Stock)
	assert.Equal(t, 5, f.stock(t, p.ID))

	// raising the threshold above stock raises an alert
	assert.Len(t, f.events.ofType(event.LowStockAlert), 1)

	updated, err = f.products.UpdateMetadata(ctx, f.staff, p.ID, UpdateProductInput{ClearMinimumStock: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MinimumStock)
}

func TestUpdateMetadataSKUConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "SKU-A", 0, nil)
	f.product(t, "SKU-B", 0, nil)

	sku := "sku-b"
	_, err := f.products.UpdateMetadata(ctx, f.staff, a.ID, UpdateProductInput{SKU: &sku})
	assert.ErrorIs(t, err, apperror.ErrDuplicate)

	// keeping its own SKU is not a conflict
	own := "Sku-A"
	_, err = f.products.UpdateMetadata(ctx, f.staff, a.ID, UpdateProductInput{SKU: &own})
	assert.NoError(t, err)

	_, err = f.products.UpdateMetadata(ctx, f.staff, uuid.New(), UpdateProductInput{SKU: &own})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteProductRetiresIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "DEL-1", 4, nil)

	err := f.products.Delete(ctx, f.staff, p.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, f.products.Delete(ctx, f.admin, p.ID))
	_, err = f.products.Get(ctx, f.staff, p.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, f.products.Delete(ctx, f.admin, p.ID), apperror.ErrNotFound)

	// history survives and the SKU is free again
	assert.Len(t, f.ledgerRows(t, p.ID), 1)
	f.product(t, "del-1", 0, nil)

	_, err = f.ledger.Post(ctx, f.staff, PostTransactionInput{ProductID: p.ID, Type: model.TxStockIn, Quantity: 1})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "LP-1", 1, intPtr(5))
	f.product(t, "LP-2", 9, intPtr(5))
	f.product(t, "LP-3", 0, nil)

	page, err := f.products.List(ctx, f.staff, repository.ProductFilter{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "LP-1", page.Items[0].SKU)

	page, err = f.products.List(ctx, f.staff, repository.ProductFilter{
		SortBy: "sku",
		Page:   repository.Page{Page: 2, Limit: 2},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "LP-3", page.Items[0].SKU)
}
