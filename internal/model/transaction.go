package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TxStockIn      TransactionType = "stock_in"
	TxStockOut     TransactionType = "stock_out"
	TxInitialStock TransactionType = "initial_stock"
	TxAdjustment   TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxStockIn, TxStockOut, TxInitialStock, TxAdjustment:
		return true
	}
	return false
}

// Inbound reports whether the type counts toward stock-in totals
func (t TransactionType) Inbound() bool {
	return t == TxStockIn || t == TxInitialStock
}

var ErrLedgerImmutable = errors.New("ledger entries are append-only")

// Transaction is one immutable ledger entry. For adjustment, Quantity is the
// new absolute stock; for every other type it is a positive delta.
type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_transactions_product_sequence,priority:1"`
	Product     *Product        `gorm:"foreignKey:ProductID"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	User        *User           `gorm:"foreignKey:UserID"`
	Type        TransactionType `gorm:"type:varchar(20);not null;index"`
	Quantity    int             `gorm:"not null"`
	StockBefore int             `gorm:"not null"`
	StockAfter  int             `gorm:"not null"`
	Sequence    int64           `gorm:"not null;uniqueIndex:idx_transactions_product_sequence,priority:2"`
	Notes       *string         `gorm:"type:text"`
	CreatedAt   time.Time       `gorm:"not null;index"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

type TransactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	ProductSKU  string          `json:"product_sku,omitempty"`
	UserID      uuid.UUID       `json:"user_id"`
	Username    string          `json:"username,omitempty"`
	Type        TransactionType `json:"type"`
	Quantity    int             `json:"quantity"`
	StockBefore int             `json:"stock_before"`
	StockAfter  int             `json:"stock_after"`
	Sequence    int64           `json:"sequence"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t *Transaction) ToResponse() TransactionResponse {
	resp := TransactionResponse{
		ID:          t.ID,
		ProductID:   t.ProductID,
		UserID:      t.UserID,
		Type:        t.Type,
		Quantity:    t.Quantity,
		StockBefore: t.StockBefore,
		StockAfter:  t.StockAfter,
		Sequence:    t.Sequence,
		Notes:       t.Notes,
		CreatedAt:   t.CreatedAt,
	}
	if t.Product != nil {
		resp.ProductName = t.Product.Name
		resp.ProductSKU = t.Product.SKU
	}
	if t.User != nil {
		resp.Username = t.User.Username
	}
	return resp
}
