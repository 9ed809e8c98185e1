package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/model"
)

// TransactionFilter drives the ledger list query. Zero values mean "any".
type TransactionFilter struct {
	ProductID *uuid.UUID
	UserID    *uuid.UUID
	Type      model.TransactionType
	From      *time.Time
	To        *time.Time
	Ascending bool
	Page
}

type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Create(ctx context.Context, entry *model.Transaction) error
	NextSequence(ctx context.Context, productID uuid.UUID) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Transaction, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	FindSince(ctx context.Context, since time.Time) ([]model.Transaction, error)
}

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db}
}

func (r *transactionRepo) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepo{tx}
}

// ledger rows outlive retired products and users, so details load unscoped
func unscoped(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

func (r *transactionRepo) Create(ctx context.Context, entry *model.Transaction) error {
	return r.db.WithContext(ctx).Omit("Product", "User").Create(entry).Error
}

// NextSequence must run inside the transaction holding the product lock
func (r *transactionRepo) NextSequence(ctx context.Context, productID uuid.UUID) (int64, error) {
	var last int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("product_id = ?", productID).
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var entry model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Product", unscoped).
		Preload("User", unscoped).
		First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *transactionRepo) List(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{})

	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", filter.To.UTC())
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, sequence DESC"
	if filter.Ascending {
		order = "created_at ASC, sequence ASC"
	}

	var entries []model.Transaction
	err := q.Session(&gorm.Session{}).
		Preload("Product", unscoped).
		Preload("User", unscoped).
		Order(order).
		Offset(filter.Offset()).
		Limit(filter.Size()).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByProduct returns a product's full ledger in commit order
func (r *transactionRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Transaction, error) {
	var entries []model.Transaction
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

func (r *transactionRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("created_at >= ?", since.UTC()).
		Count(&count).Error
	return count, err
}

// FindSince loads the columns the movement chart needs
func (r *transactionRepo) FindSince(ctx context.Context, since time.Time) ([]model.Transaction, error) {
	var entries []model.Transaction
	err := r.db.WithContext(ctx).
		Select("id", "type", "quantity", "created_at").
		Where("created_at >= ?", since.UTC()).
		Where("type IN ?", []model.TransactionType{model.TxStockIn, model.TxInitialStock, model.TxStockOut}).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
