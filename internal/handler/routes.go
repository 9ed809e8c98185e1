package handler

import (
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/metrics"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/ws"
)

type AppConfig struct {
	Name    string
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Tracing bool
}

// NewApp builds the fiber app with the shared middleware stack
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.Name,
		ErrorHandler: ErrorHandler(cfg.Log),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if cfg.Tracing {
		app.Use(otelfiber.Middleware())
	}
	app.Use(middleware.Metrics(cfg.Metrics))
	app.Use(middleware.Logger(cfg.Log))
	app.Use(cors.New())
	return app
}

// Router holds every handler the API exposes. Hub and MetricsHandler are
// optional.
type Router struct {
	Authenticator middleware.Authenticator

	Auth         *AuthHandler
	Products     *ProductHandler
	Categories   *CategoryHandler
	Transactions *TransactionHandler
	Dashboard    *DashboardHandler
	Users        *UserHandler
	Health       *HealthHandler

	Hub            *ws.Hub
	MetricsHandler fiber.Handler
}

func (r Router) Register(app *fiber.App) {
	if r.Health != nil {
		app.Get("/health", r.Health.Health)
	}
	if r.MetricsHandler != nil {
		app.Get("/metrics", r.MetricsHandler)
	}

	requireAuth := middleware.RequireAuth(r.Authenticator)
	can := middleware.RequirePermission

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	authGroup := api.Group("/auth")
	authGroup.Post("/login", r.Auth.Login)
	authGroup.Post("/register", r.Auth.Register)
	authGroup.Post("/validate-token", r.Auth.ValidateToken)
	authGroup.Post("/heartbeat", requireAuth, r.Auth.Heartbeat)
	authGroup.Post("/change-password", requireAuth, r.Auth.ChangePassword)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", requireAuth)

	protected.Get("/products", can(auth.ActionProductView), r.Products.GetProducts)
	protected.Post("/products", can(auth.ActionProductCreate), r.Products.CreateProduct)
	protected.Get("/products/:id", can(auth.ActionProductView), r.Products.GetProduct)
	protected.Put("/products/:id", can(auth.ActionProductUpdate), r.Products.UpdateProduct)
	protected.Delete("/products/:id", can(auth.ActionProductDelete), r.Products.DeleteProduct)
	protected.Get("/products/:id/ledger/verify", can(auth.ActionProductView), r.Products.VerifyLedger)

	protected.Get("/categories", can(auth.ActionCategoryView), r.Categories.GetCategories)
	protected.Post("/categories", can(auth.ActionCategoryCreate), r.Categories.CreateCategory)
	protected.Get("/categories/:id", can(auth.ActionCategoryView), r.Categories.GetCategory)
	protected.Put("/categories/:id", can(auth.ActionCategoryUpdate), r.Categories.UpdateCategory)
	protected.Delete("/categories/:id", can(auth.ActionCategoryDelete), r.Categories.DeleteCategory)

	protected.Get("/transactions", can(auth.ActionTransactionView), r.Transactions.GetTransactions)
	protected.Post("/transactions", can(auth.ActionTransactionCreate), r.Transactions.CreateTransaction)
	protected.Get("/transactions/:id", can(auth.ActionTransactionView), r.Transactions.GetTransaction)

	protected.Get("/dashboard/summary", can(auth.ActionDashboardView), r.Dashboard.GetSummary)
	protected.Get("/dashboard/low-stock", can(auth.ActionDashboardView), r.Dashboard.GetLowStock)
	protected.Get("/dashboard/recent-products", can(auth.ActionDashboardView), r.Dashboard.GetRecentProducts)
	protected.Get("/dashboard/transaction-chart", can(auth.ActionDashboardView), r.Dashboard.GetTransactionChart)

	// reading your own account is checked in the service
	protected.Get("/users", can(auth.ActionUserManage), r.Users.GetUsers)
	protected.Post("/users", can(auth.ActionUserManage), r.Users.CreateUser)
	protected.Get("/users/:id", r.Users.GetUser)
	protected.Put("/users/:id", can(auth.ActionUserManage), r.Users.UpdateUser)
	protected.Delete("/users/:id", can(auth.ActionUserManage), r.Users.DeleteUser)

	if r.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, requireAuth)
		app.Get("/ws", websocket.New(r.Hub.Serve))
	}
}
