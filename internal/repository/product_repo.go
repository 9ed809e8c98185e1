package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-inventory-ledger/internal/model"
)

// ProductFilter drives the product list query
type ProductFilter struct {
	Search       string
	CategoryID   *uuid.UUID
	LowStockOnly bool
	SortBy       string
	SortDesc     bool
	Page
}

// sortable columns for product lists
var productSortColumns = map[string]string{
	"name":       "products.name",
	"sku":        "products.sku",
	"price":      "products.price",
	"stock":      "products.stock",
	"created_at": "products.created_at",
	"updated_at": "products.updated_at",
}

// columns UpdateMetadata may write; stock is deliberately absent
var productMetadataColumns = []string{
	"name", "sku", "description", "price", "minimum_stock", "category_id", "updated_at", "updated_by",
}

const lowStockCondition = "products.minimum_stock IS NOT NULL AND products.stock < products.minimum_stock"

type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)
	UpdateMetadata(ctx context.Context, product *model.Product) error
	UpdateStock(ctx context.Context, id uuid.UUID, newStock int, updatedBy string, at time.Time) error
	Retire(ctx context.Context, id uuid.UUID, deletedBy string) error
	CountActiveByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)
	DetachRetiredFromCategory(ctx context.Context, categoryID uuid.UUID) error
	Count(ctx context.Context) (int64, error)
	CountLowStock(ctx context.Context) (int64, error)
	FindLowStock(ctx context.Context, limit int) ([]model.Product, error)
	FindRecent(ctx context.Context, limit int) ([]model.Product, error)
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

func (r *productRepo) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepo{tx}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Preload("Category").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDForUpdate takes a row lock that is held until the surrounding
// transaction ends. SQLite has no FOR UPDATE; its writer lock serializes instead.
func (r *productRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var product model.Product
	if err := q.First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) FindBySKU(ctx context.Context, sku string) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, "sku = ?", model.NormalizeSKU(sku)).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{})

	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(products.name) LIKE ? OR LOWER(products.sku) LIKE ?", like, like)
	}
	if filter.CategoryID != nil {
		q = q.Where("products.category_id = ?", *filter.CategoryID)
	}
	if filter.LowStockOnly {
		q = q.Where(lowStockCondition)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := productSortColumns[filter.SortBy]
	if !ok {
		column = productSortColumns["created_at"]
		filter.SortDesc = true
	}

	var products []model.Product
	err := q.Session(&gorm.Session{}).Preload("Category").
		Order(clause.OrderByColumn{Column: clause.Column{Name: column, Raw: true}, Desc: filter.SortDesc}).
		Order("products.id").
		Offset(filter.Offset()).
		Limit(filter.Size()).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *productRepo) UpdateMetadata(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).
		Model(product).
		Select(productMetadataColumns).
		Omit(clause.Associations).
		Updates(product).Error
}

func (r *productRepo) UpdateStock(ctx context.Context, id uuid.UUID, newStock int, updatedBy string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock":      newStock,
			"updated_by": updatedBy,
			"updated_at": at,
		}).Error
}

func (r *productRepo) Retire(ctx context.Context, id uuid.UUID, deletedBy string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Product{}).Where("id = ?", id).Update("deleted_by", deletedBy).Error; err != nil {
		return err
	}
	res := db.Delete(&model.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *productRepo) CountActiveByCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("category_id = ?", categoryID).Count(&count).Error
	return count, err
}

// DetachRetiredFromCategory clears the category of retired products so the
// category row can be removed.
func (r *productRepo) DetachRetiredFromCategory(ctx context.Context, categoryID uuid.UUID) error {
	return r.db.WithContext(ctx).Unscoped().Model(&model.Product{}).
		Where("category_id = ? AND deleted_at IS NOT NULL", categoryID).
		Update("category_id", nil).Error
}

func (r *productRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&count).Error
	return count, err
}

func (r *productRepo) CountLowStock(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where(lowStockCondition).Count(&count).Error
	return count, err
}

// FindLowStock orders by deficit, largest first
func (r *productRepo) FindLowStock(ctx context.Context, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where(lowStockCondition).
		Order("(products.minimum_stock - products.stock) DESC").
		Order("products.name ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

func (r *productRepo) FindRecent(ctx context.Context, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Joins("Category").
		Order("products.created_at DESC").
		Order("products.id").
		Limit(limit).
		Find(&products).Error
	return products, err
}
