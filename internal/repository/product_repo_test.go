package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/testutil"
)

func intPtr(v int) *int { return &v }

func seedProduct(t *testing.T, db *gorm.DB, name, sku string, stock int, min *int, created time.Time) *model.Product {
	t.Helper()
	p := &model.Product{
		Name:         name,
		SKU:          model.NormalizeSKU(sku),
		Price:        decimal.NewFromInt(10),
		Stock:        stock,
		MinimumStock: min,
	}
	p.CreatedAt = created
	p.UpdatedAt = created
	require.NoError(t, NewProductRepo(db).Create(context.Background(), p))
	return p
}

func TestProductRepoListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cat := &model.Category{Name: "Tools"}
	require.NoError(t, NewCategoryRepo(db).Create(ctx, cat))

	hammer := seedProduct(t, db, "Hammer", "ham-1", 2, intPtr(5), base)
	seedProduct(t, db, "Screwdriver", "scr-1", 20, intPtr(5), base.Add(time.Hour))
	seedProduct(t, db, "Nails", "nail-1", 0, nil, base.Add(2*time.Hour))
	require.NoError(t, db.Model(hammer).Update("category_id", cat.ID).Error)

	items, total, err := repo.List(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, "Nails", items[0].Name, "newest first by default")

	items, total, err = repo.List(ctx, ProductFilter{Search: "HAM"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Hammer", items[0].Name)
	require.NotNil(t, items[0].Category)
	assert.Equal(t, "Tools", items[0].Category.Name)

	items, _, err = repo.List(ctx, ProductFilter{Search: "scr-"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Screwdriver", items[0].Name)

	_, total, err = repo.List(ctx, ProductFilter{CategoryID: &cat.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	items, total, err = repo.List(ctx, ProductFilter{LowStockOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "null minimum never counts as low")
	assert.Equal(t, "Hammer", items[0].Name)

	items, total, err = repo.List(ctx, ProductFilter{SortBy: "stock", Page: Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Screwdriver", items[0].Name)
}

func TestProductRepoUpdateMetadataLeavesStock(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	p := seedProduct(t, db, "Pen", "pen-1", 7, nil, time.Now().UTC())

	p.Name = "Blue Pen"
	p.Stock = 999
	require.NoError(t, repo.UpdateMetadata(ctx, p))

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue Pen", got.Name)
	assert.Equal(t, 7, got.Stock)
}

func TestProductRepoLowStockAndRecent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedProduct(t, db, "A", "a", 4, intPtr(5), base)                   // deficit 1
	seedProduct(t, db, "B", "b", 0, intPtr(10), base.Add(time.Hour))   // deficit 10
	seedProduct(t, db, "C", "c", 5, intPtr(5), base.Add(2*time.Hour))  // not low
	seedProduct(t, db, "D", "d", 1, intPtr(4), base.Add(3*time.Hour))  // deficit 3

	count, err := repo.CountLowStock(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	low, err := repo.FindLowStock(ctx, 2)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "B", low[0].Name)
	assert.Equal(t, "D", low[1].Name)

	recent, err := repo.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "D", recent[0].Name)
	assert.Equal(t, "C", recent[1].Name)
}

func TestProductRepoRetire(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	p := seedProduct(t, db, "Pen", "pen-1", 1, nil, time.Now().UTC())
	require.NoError(t, repo.Retire(ctx, p.ID, "admin"))

	_, err := repo.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, repo.Retire(ctx, p.ID, "admin"), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.Retire(ctx, uuid.New(), "admin"), gorm.ErrRecordNotFound)

	// the sku is free again once its product is retired
	seedProduct(t, db, "Pen v2", "pen-1", 0, nil, time.Now().UTC())
}
