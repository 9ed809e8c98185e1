package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/cache"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/handler"
	"go-inventory-ledger/internal/job"
	"go-inventory-ledger/internal/metrics"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/service"
	"go-inventory-ledger/internal/telemetry"
	"go-inventory-ledger/internal/ws"
	"go-inventory-ledger/pkg/config"
	"go-inventory-ledger/pkg/database"
	"go-inventory-ledger/pkg/jwt"
	"go-inventory-ledger/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load config and logger
	cfg := config.Load()

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer shutdownWith(log, "telemetry", tel.Shutdown)

	// 3. Database
	db, err := database.Connect(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("database close failed", zap.Error(err))
		}
	}()
	if err := db.AutoMigrate(model.All()...); err != nil {
		return err
	}

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("inventory", reg)

	// 5. Event sinks
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	sinks := []event.Publisher{observed("websocket", hub, m)}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				log.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		sinks = append(sinks, observed("kafka", kafkaPub, m))
		log.Info("publishing stock movements to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var summaryCache service.SummaryCache
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// the dashboard still works uncached
			log.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		} else {
			defer func() { _ = client.Close() }()
			dc := cache.NewDashboardCache(client, cfg.Redis.CacheTTL, log)
			summaryCache = dc
			sinks = append(sinks, observed("dashboard_cache", dc, m))
		}
	}

	loc, err := time.LoadLocation(cfg.Dashboard.Location)
	if err != nil {
		return err
	}

	// 6. Services
	deps := service.NewDeps(db)
	deps.Publisher = event.Multi(sinks...)
	deps.Metrics = m
	deps.Log = log

	authService := service.NewAuthService(deps, service.AuthOptions{
		Tokens:      jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer),
		TTL:         cfg.JWT.TTL,
		IdleTimeout: cfg.JWT.IdleTimeout,
	})
	userService := service.NewUserService(deps)
	productService := service.NewProductService(deps)
	categoryService := service.NewCategoryService(deps)
	ledgerService := service.NewLedgerService(deps)
	dashboardService := service.NewDashboardService(deps, service.DashboardOptions{
		DefaultWindow: cfg.Dashboard.RecentWindow,
		Location:      loc,
		Cache:         summaryCache,
	})

	if err := userService.SeedAdmin(ctx, cfg.Admin); err != nil {
		return err
	}

	// 7. Background jobs
	scheduler := job.NewScheduler(log)
	if cfg.Jobs.LowStockSchedule != "" {
		if err := scheduler.AddLowStockScan(cfg.Jobs.LowStockSchedule, dashboardService, cfg.Jobs.LowStockLimit); err != nil {
			return err
		}
	}
	scheduler.Start()

	// 8. HTTP
	app := handler.NewApp(handler.AppConfig{
		Name:    cfg.ServiceName,
		Log:     log,
		Metrics: m,
		Tracing: tel.Enabled(),
	})
	handler.Router{
		Authenticator:  authService,
		Auth:           handler.NewAuthHandler(authService),
		Products:       handler.NewProductHandler(productService, ledgerService),
		Categories:     handler.NewCategoryHandler(categoryService),
		Transactions:   handler.NewTransactionHandler(ledgerService),
		Dashboard:      handler.NewDashboardHandler(dashboardService),
		Users:          handler.NewUserHandler(userService),
		Health:         handler.NewHealthHandler(db),
		Hub:            hub,
		MetricsHandler: adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}.Register(app)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("port", cfg.Server.Port))
		listenErr <- app.Listen(":" + cfg.Server.Port)
	}()

	// 9. Graceful shutdown
	select {
	case err := <-listenErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownWith(log, "scheduler", func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})
	shutdownWith(log, "http server", func(ctx context.Context) error {
		return app.ShutdownWithContext(ctx)
	})
	return nil
}

// observed counts publish outcomes per sink
func observed(sink string, p event.Publisher, m *metrics.Metrics) event.Publisher {
	return event.PublisherFunc(func(ctx context.Context, e event.Event) error {
		err := p.Publish(ctx, e)
		m.ObservePublish(sink, err)
		return err
	})
}

func shutdownWith(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
