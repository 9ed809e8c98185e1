package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/service"
	"go-inventory-ledger/internal/testutil"
	"go-inventory-ledger/pkg/jwt"
)

type testAPI struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, "admin", auth.RoleAdmin)
	testutil.SeedUser(t, db, "staff", auth.RoleStaff)

	deps := service.NewDeps(db)
	authService := service.NewAuthService(deps, service.AuthOptions{
		Tokens: jwt.NewManager("test-secret", time.Hour, "inventory"),
		TTL:    time.Hour,
	})
	ledger := service.NewLedgerService(deps)

	app := NewApp(AppConfig{Name: "test", Log: zap.NewNop()})
	Router{
		Authenticator: authService,
		Auth:          NewAuthHandler(authService),
		Products:      NewProductHandler(service.NewProductService(deps), ledger),
		Categories:    NewCategoryHandler(service.NewCategoryService(deps)),
		Transactions:  NewTransactionHandler(ledger),
		Dashboard:     NewDashboardHandler(service.NewDashboardService(deps, service.DashboardOptions{})),
		Users:         NewUserHandler(service.NewUserService(deps)),
		Health:        NewHealthHandler(db),
	}.Register(app)

	return &testAPI{app: app, db: db}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T, username string) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status, body)
	token, ok := body["token"].(string)
	require.True(t, ok)
	return token
}

func (a *testAPI) createProduct(t *testing.T, token, sku string, stock int) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/products", token, map[string]interface{}{
		"name":  "Widget " + sku,
		"sku":   sku,
		"price": "12.50",
		"stock": stock,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["data"].(map[string]interface{})["id"].(string)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["kind"])

	status, _ = api.do(t, http.MethodGet, "/api/v1/products", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginWrongPassword(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    "admin",
		"password": "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", body["code"])
}

func TestPostTransaction(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	staff := api.login(t, "staff")
	id := api.createProduct(t, admin, "HT-1", 10)

	status, body := api.do(t, http.MethodPost, "/api/v1/transactions", staff, map[string]interface{}{
		"product_id": id,
		"type":       "stock_out",
		"quantity":   4,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 6, body["new_stock"])

	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 10, data["stock_before"])
	assert.EqualValues(t, 6, data["stock_after"])
}

func TestInsufficientStockBody(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	id := api.createProduct(t, admin, "HT-2", 3)

	status, body := api.do(t, http.MethodPost, "/api/v1/transactions", admin, map[string]interface{}{
		"product_id": id,
		"type":       "stock_out",
		"quantity":   5,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "insufficient_stock", body["kind"])

	details := body["details"].(map[string]interface{})
	assert.EqualValues(t, 3, details["available"])
	assert.EqualValues(t, 5, details["requested"])

	_, got := api.do(t, http.MethodGet, "/api/v1/products/"+id, admin, nil)
	assert.EqualValues(t, 3, got["data"].(map[string]interface{})["stock"])
}

func TestInvalidTransactionType(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	id := api.createProduct(t, admin, "HT-3", 3)

	status, body := api.do(t, http.MethodPost, "/api/v1/transactions", admin, map[string]interface{}{
		"product_id": id,
		"type":       "teleport",
		"quantity":   1,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_argument", body["kind"])
}

func TestUpdateProductRejectsStock(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	id := api.createProduct(t, admin, "HT-4", 7)

	status, body := api.do(t, http.MethodPut, "/api/v1/products/"+id, admin, map[string]interface{}{
		"name":  "Renamed",
		"stock": 100,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "stock", body["field"])

	status, body = api.do(t, http.MethodPut, "/api/v1/products/"+id, admin, map[string]interface{}{
		"name": "Renamed",
	})
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Renamed", data["name"])
	assert.EqualValues(t, 7, data["stock"])
}

func TestStaffCannotDeleteProduct(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	staff := api.login(t, "staff")
	id := api.createProduct(t, admin, "HT-5", 1)

	status, body := api.do(t, http.MethodDelete, "/api/v1/products/"+id, staff, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["kind"])

	status, _ = api.do(t, http.MethodDelete, "/api/v1/products/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/products/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDuplicateSKUConflict(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	api.createProduct(t, admin, "HT-6", 1)

	status, body := api.do(t, http.MethodPost, "/api/v1/products", admin, map[string]interface{}{
		"name":  "Other",
		"sku":   "ht-6",
		"price": "1.00",
		"stock": 0,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate", body["kind"])
}

func TestMalformedIDAndBody(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")

	status, body := api.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "id", body["field"])

	status, body = api.do(t, http.MethodPost, "/api/v1/transactions", admin, map[string]interface{}{
		"product_id": "00000000-0000-0000-0000-000000000001",
		"type":       "stock_in",
		"quantity":   "lots",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "quantity", body["field"])
}

func TestListTransactionsFilter(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")
	a := api.createProduct(t, admin, "HT-7", 5)
	api.createProduct(t, admin, "HT-8", 5)

	status, body := api.do(t, http.MethodPost, "/api/v1/transactions", admin, map[string]interface{}{
		"product_id": a, "type": "stock_in", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = api.do(t, http.MethodGet, "/api/v1/transactions?product_id="+a, admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	// opening balance plus the receipt
	assert.Len(t, body["data"], 2)

	status, body = api.do(t, http.MethodGet, "/api/v1/transactions?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "from", body["field"])
}

func TestDashboardRoutes(t *testing.T) {
	api := newTestAPI(t)
	staff := api.login(t, "staff")

	for _, path := range []string{
		"/api/v1/dashboard/summary",
		"/api/v1/dashboard/low-stock",
		"/api/v1/dashboard/recent-products",
		"/api/v1/dashboard/transaction-chart?period=month",
	} {
		status, body := api.do(t, http.MethodGet, path, staff, nil)
		assert.Equal(t, http.StatusOK, status, path, body)
	}

	status, _ := api.do(t, http.MethodGet, "/api/v1/dashboard/transaction-chart?period=year", staff, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	staff := api.login(t, "staff")
	admin := api.login(t, "admin")

	status, _ := api.do(t, http.MethodGet, "/api/v1/users", staff, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := api.do(t, http.MethodGet, "/api/v1/users", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["data"], 2)
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(middleware.RequestIDHeader))
}

func TestBodyMustBeJSON(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", bytes.NewReader([]byte(`{"name":"Tools"}`)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+admin)
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", string(body.Kind))

	status, got := api.do(t, http.MethodPost, "/api/v1/categories", admin, map[string]interface{}{"name": 42})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "name", got["field"])
}
