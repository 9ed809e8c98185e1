package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/model"
)

const (
	DefaultListLimit     = 5
	DefaultRecentWindow  = 24 * time.Hour
	chartLabelDateFormat = "2006-01-02"
)

var chartPeriods = map[string]int{
	"week":  7,
	"month": 30,
}

// SummaryCache stores computed summaries per window. GetSummary reports the
// generation it looked in and SetSummary writes under that generation, so a
// summary computed across an invalidation is never served. A miss or any
// cache failure falls through to the database.
type SummaryCache interface {
	GetSummary(ctx context.Context, window time.Duration) (*model.DashboardSummary, int64, bool)
	SetSummary(ctx context.Context, window time.Duration, generation int64, summary *model.DashboardSummary)
}

type DashboardOptions struct {
	DefaultWindow time.Duration
	// Location decides where calendar days start for chart buckets
	Location *time.Location
	Cache    SummaryCache
}

type DashboardService interface {
	Summary(ctx context.Context, p auth.Principal, window time.Duration) (*model.DashboardSummary, error)
	LowStockItems(ctx context.Context, p auth.Principal, limit int) ([]model.LowStockItem, error)
	RecentProducts(ctx context.Context, p auth.Principal, limit int) ([]model.ProductResponse, error)
	TransactionChart(ctx context.Context, p auth.Principal, period string) (*model.TransactionChart, error)
	// ScanLowStock is the scheduled system check. It refreshes the low-stock
	// gauge and announces the products currently below threshold.
	ScanLowStock(ctx context.Context, limit int) ([]model.LowStockItem, error)
}

type dashboardService struct {
	Deps
	opts DashboardOptions
}

func NewDashboardService(d Deps, opts DashboardOptions) DashboardService {
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = DefaultRecentWindow
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &dashboardService{Deps: d.withDefaults(), opts: opts}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func (s *dashboardService) Summary(ctx context.Context, p auth.Principal, window time.Duration) (*model.DashboardSummary, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionDashboardView); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = s.opts.DefaultWindow
	}

	var generation int64 = -1
	if s.opts.Cache != nil {
		cached, gen, ok := s.opts.Cache.GetSummary(ctx, window)
		if ok {
			return cached, nil
		}
		generation = gen
	}

	now := s.now()
	summary := &model.DashboardSummary{Window: window.String(), GeneratedAt: now}

	var err error
	if summary.TotalProducts, err = s.Products.Count(ctx); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if summary.TotalCategories, err = s.Categories.Count(ctx); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if summary.LowStockCount, err = s.Products.CountLowStock(ctx); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if summary.RecentTransactionCount, err = s.Transactions.CountSince(ctx, now.Add(-window)); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	if s.opts.Cache != nil {
		s.opts.Cache.SetSummary(ctx, window, generation, summary)
	}
	return summary, nil
}

// LowStockItems lists products below their minimum, largest deficit first
func (s *dashboardService) LowStockItems(ctx context.Context, p auth.Principal, limit int) ([]model.LowStockItem, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionDashboardView); err != nil {
		return nil, err
	}
	products, err := s.Products.FindLowStock(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	items := make([]model.LowStockItem, len(products))
	for i := range products {
		items[i] = products[i].ToLowStockItem()
	}
	return items, nil
}

func (s *dashboardService) RecentProducts(ctx context.Context, p auth.Principal, limit int) ([]model.ProductResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionDashboardView); err != nil {
		return nil, err
	}
	products, err := s.Products.FindRecent(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	out := make([]model.ProductResponse, len(products))
	for i := range products {
		out[i] = products[i].ToResponse()
	}
	return out, nil
}

// TransactionChart buckets inbound and outbound quantities per calendar day
// over the trailing period, today included. Adjustments are not movements and
// stay off the chart.
func (s *dashboardService) TransactionChart(ctx context.Context, p auth.Principal, period string) (*model.TransactionChart, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionDashboardView); err != nil {
		return nil, err
	}
	days, ok := chartPeriods[period]
	if !ok {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "period",
			fmt.Sprintf("period must be week or month; got %q", period))
	}

	loc := s.opts.Location
	now := s.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -(days - 1))

	chart := &model.TransactionChart{
		Period:   period,
		Labels:   make([]string, days),
		StockIn:  make([]int, days),
		StockOut: make([]int, days),
	}
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		label := start.AddDate(0, 0, i).Format(chartLabelDateFormat)
		chart.Labels[i] = label
		index[label] = i
	}

	entries, err := s.Transactions.FindSince(ctx, start)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	for _, e := range entries {
		i, ok := index[e.CreatedAt.In(loc).Format(chartLabelDateFormat)]
		if !ok {
			s.Log.Debug("chart entry outside buckets", zap.String("transaction_id", e.ID.String()))
			continue
		}
		if e.Type.Inbound() {
			chart.StockIn[i] += e.Quantity
		} else if e.Type == model.TxStockOut {
			chart.StockOut[i] += e.Quantity
		}
	}
	return chart, nil
}

func (s *dashboardService) ScanLowStock(ctx context.Context, limit int) ([]model.LowStockItem, error) {
	count, err := s.Products.CountLowStock(ctx)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	s.Metrics.SetLowStock(int(count))
	if count == 0 {
		return nil, nil
	}

	products, err := s.Products.FindLowStock(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	e := lowStockEvent(s.now(), products...)
	e.Message = fmt.Sprintf("%d product(s) below minimum stock", count)
	s.publish(ctx, e, auth.Principal{})

	items := make([]model.LowStockItem, len(products))
	for i := range products {
		items[i] = products[i].ToLowStockItem()
	}
	return items, nil
}
