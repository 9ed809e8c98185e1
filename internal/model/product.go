package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product stock is written only by the ledger. Retired products keep their
// row (soft delete) so ledger entries never dangle.
type Product struct {
	BaseModel
	Name         string          `gorm:"type:varchar(255);not null"`
	SKU          string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_products_sku_active,where:deleted_at IS NULL"`
	Description  *string         `gorm:"type:text"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock        int             `gorm:"not null;default:0;check:chk_products_stock_nonnegative,stock >= 0"`
	MinimumStock *int
	CategoryID   *uuid.UUID `gorm:"type:uuid;index"`
	Category     *Category  `gorm:"foreignKey:CategoryID"`

	DeletedAt gorm.DeletedAt `gorm:"index"`
	DeletedBy string         `gorm:"type:varchar(64)"`
}

// NormalizeSKU is the canonical form used for storage and uniqueness:
// trimmed and upper-cased, so "abc-1" and "ABC-1" collide.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// IsLowStock is true when a threshold is set and stock is strictly below it
func (p *Product) IsLowStock() bool {
	return p.MinimumStock != nil && p.Stock < *p.MinimumStock
}

type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Description  *string         `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	MinimumStock *int            `json:"minimum_stock,omitempty"`
	CategoryID   *uuid.UUID      `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	IsLowStock   bool            `json:"is_low_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CreatedBy    string          `json:"created_by"`
	UpdatedBy    string          `json:"updated_by"`
}

func (p *Product) ToResponse() ProductResponse {
	resp := ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		Description:  p.Description,
		Price:        p.Price,
		Stock:        p.Stock,
		MinimumStock: p.MinimumStock,
		CategoryID:   p.CategoryID,
		IsLowStock:   p.IsLowStock(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		CreatedBy:    p.CreatedBy,
		UpdatedBy:    p.UpdatedBy,
	}
	if p.Category != nil {
		resp.CategoryName = p.Category.Name
	}
	return resp
}
