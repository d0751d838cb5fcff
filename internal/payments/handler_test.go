package payments

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithCompany(req.Context(), company)
			next.ServeHTTP(w, req.WithContext(shared.ContextWithUser(ctx, "u1")))
		})
	})
	NewHandler(slog.Default(), f.svc, rbac.Middleware{}).MountRoutes(r)
	return r
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Warnings shared.Warnings `json:"warnings"`
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHandlerReceiptExcessLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.invoice(t, line("1", "100", "0"))

	rec, env := do(t, h, http.MethodPost, "/receipts",
		`{"invoice_id": "`+inv.ID+`", "amount": "150", "payment_method": "cash"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt ReceiptResult
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	require.Equal(t, HandlingPending, receipt.Receipt.ExcessHandling)
	requireAmount(t, "50", receipt.Receipt.ExcessAmount)

	rec, _ = do(t, h, http.MethodPost, "/receipts/"+receipt.Receipt.ID+"/excess", `{"handling": "pending"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/receipts/"+receipt.Receipt.ID+"/excess", `{"handling": "credit_balance"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var excess ExcessResult
	require.NoError(t, json.Unmarshal(env.Data, &excess))
	require.Equal(t, HandlingCreditBalance, excess.Handling)
	requireAmount(t, "50", excess.Amount)
	require.NotEmpty(t, excess.CreditBalanceID)
	require.Len(t, f.db.Rows("customer_credit_balances"), 1)

	rec, _ = do(t, h, http.MethodPost, "/receipts/"+receipt.Receipt.ID+"/excess", `{"handling": "credit_balance"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/receipts/missing/excess", `{"handling": "change_note"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerReceiptIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.invoice(t, line("1", "100", "0"))
	body := `{"invoice_id": "` + inv.ID + `", "amount": "40", "payment_method": "cash"}`

	rec, _ := do(t, h, http.MethodPost, "/receipts", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = do(t, h, http.MethodPost, "/receipts", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, f.db.Rows("payments"), 1)
}

func TestHandlerPaymentCorrections(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.invoice(t, line("1", "1000", "0"))

	rec, env := do(t, h, http.MethodPost, "/payments",
		`{"invoice_id": "`+inv.ID+`", "amount": "600", "payment_method": "cash"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created PaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env = do(t, h, http.MethodPatch, "/payments/"+created.Payment.ID, `{"amount": "600.01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated PaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	requireAmount(t, "600.01", updated.Payment.Amount)
	requireAmount(t, "399.99", f.reload(t, inv.ID).BalanceDue)

	rec, _ = do(t, h, http.MethodPatch, "/payments/"+created.Payment.ID, `{"amount": "0"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/payments/"+created.Payment.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireAmount(t, "1000", f.reload(t, inv.ID).BalanceDue)
	require.Empty(t, f.db.Rows("payments"))

	rec, _ = do(t, h, http.MethodPost, "/payments", `{"invoice_id": "`+inv.ID+`", "amount": "10"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
