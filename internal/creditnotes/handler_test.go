package creditnotes

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

func do(t *testing.T, h http.Handler, method, path, body string, dest any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	if dest != nil && rec.Code < 300 {
		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return rec
}

func TestHandlerLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.invoice(t, line("1", "500", "0"))

	var plan Plan
	rec := do(t, h, http.MethodPost, "/invoices/"+inv.ID+"/credit-note-plan", `{"items": []}`, &plan)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireAmount(t, "500", plan.CreditNote.TotalAmount)
	require.Empty(t, f.db.Rows("credit_notes"))

	var note CreditNote
	rec = do(t, h, http.MethodPost, "/credit-notes", `{
		"invoice_id": "`+inv.ID+`",
		"reason": "Damaged",
		"affects_inventory": true,
		"items": [{"product_id": "p1", "description": "Goods", "quantity": "5", "unit_price": "20", "tax_percentage": "0"}]
	}`, &note)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requireAmount(t, "100", note.TotalAmount)
	requireAmount(t, "15", f.stock(t))

	rec = do(t, h, http.MethodPost, "/credit-notes/"+note.ID+"/apply", `{"invoice_id": "`+inv.ID+`", "amount": "100"}`, &note)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusApplied, note.Status)

	rec = do(t, h, http.MethodPut, "/credit-notes/"+note.ID, `{"status": "cancelled"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/credit-notes/"+note.ID, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	requireAmount(t, "500", f.reload(t, inv.ID).BalanceDue)

	rec = do(t, h, http.MethodGet, "/credit-notes/"+note.ID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDeleteForbidden(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.invoice(t, line("1", "500", "0"))
	note := f.returnGoods(t, inv.ID, "1")

	f.authz.allowed = false
	rec := do(t, h, http.MethodDelete, "/credit-notes/"+note.ID, "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, http.MethodPost, "/credit-notes", `{"reason": "", "items": []}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/credit-notes/x", `{"status": "applied"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
