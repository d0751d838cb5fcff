package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/auth"
	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store/memstore"
)

func testConfig() *Config {
	return &Config{
		AppEnv:             "test",
		AppRequestTimeout:  time.Minute,
		OperationTimeout:   45 * time.Second,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		RateLimitPerMinute: 1000,
	}
}

func newTestRouter(t *testing.T, ready func(context.Context) error) (http.Handler, *auth.Verifier) {
	t.Helper()
	db := memstore.New()
	logger := slog.Default()
	ledger := inventory.NewLedger(db, inventory.NewDatabaseProducts(db), logger)
	docs := documents.NewService(db, numbering.NewGenerator(db), ledger, shared.ContextUser{}, shared.Hooks{Logger: logger})
	verifier := auth.NewVerifier("secret", "odyssey")
	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           testConfig(),
		Verifier:         verifier,
		Metrics:          observability.NewMetrics(),
		Ready:            ready,
		DocumentsHandler: documents.NewHandler(logger, docs, nil, rbac.Middleware{}),
		InventoryHandler: inventory.NewHandler(logger, ledger, rbac.Middleware{}),
	}), verifier
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	h, _ = newTestRouter(t, func(context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h, verifier := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/x", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := verifier.Sign("u1", "c1", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/documents/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
