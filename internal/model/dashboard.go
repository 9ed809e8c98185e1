package model

import (
	"time"

	"github.com/google/uuid"
)

type DashboardSummary struct {
	TotalProducts          int64     `json:"total_products"`
	TotalCategories        int64     `json:"total_categories"`
	LowStockCount          int64     `json:"low_stock_count"`
	RecentTransactionCount int64     `json:"recent_transaction_count"`
	Window                 string    `json:"window"`
	GeneratedAt            time.Time `json:"generated_at"`
}

type LowStockItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	CurrentStock int       `json:"current_stock"`
	MinStock     int       `json:"min_stock"`
	Deficit      int       `json:"deficit"`
}

// ToLowStockItem reports p against its threshold; Deficit is zero when
// no threshold is set
func (p *Product) ToLowStockItem() LowStockItem {
	item := LowStockItem{
		ProductID:    p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		CurrentStock: p.Stock,
	}
	if p.MinimumStock != nil {
		item.MinStock = *p.MinimumStock
		item.Deficit = *p.MinimumStock - p.Stock
	}
	return item
}

// TransactionChart holds one bucket per calendar day, oldest first
type TransactionChart struct {
	Period   string   `json:"period"`
	Labels   []string `json:"labels"`
	StockIn  []int    `json:"stock_in"`
	StockOut []int    `json:"stock_out"`
}
