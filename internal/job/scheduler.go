// Package job runs the periodic background checks.
package job

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/model"
)

type LowStockScanner interface {
	ScanLowStock(ctx context.Context, limit int) ([]model.LowStockItem, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// cronLogger adapts zap to cron's logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(log *zap.Logger) *Scheduler {
	log = log.Named("job")
	cl := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// AddLowStockScan registers the scanner on spec (standard cron or @every)
func (s *Scheduler) AddLowStockScan(spec string, scanner LowStockScanner, limit int) error {
	_, err := s.cron.AddFunc(spec, LowStockScan(scanner, limit, s.log))
	if err != nil {
		return fmt.Errorf("invalid low stock schedule %q: %w", spec, err)
	}
	return nil
}

// LowStockScan returns the job body: one scan per call
func LowStockScan(scanner LowStockScanner, limit int, log *zap.Logger) func() {
	return func() {
		items, err := scanner.ScanLowStock(context.Background(), limit)
		if err != nil {
			log.Error("low stock scan failed", zap.Error(err))
			return
		}
		log.Info("low stock scan finished", zap.Int("low_stock", len(items)))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
