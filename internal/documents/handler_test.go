package documents

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
	NewHandler(slog.Default(), f.svc, nil, rbac.Middleware{}).MountRoutes(r)
	return r
}

type envelope struct {
	Data     Document        `json:"data"`
	Warnings shared.Warnings `json:"warnings"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var env envelope
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHandlerCreateAndConvert(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec, created := do(t, h, http.MethodPost, "/documents", `{
		"customer_id": "cust-1",
		"document_type": "quotation",
		"items": [
			{"product_id": "p1", "description": "Widget", "quantity": "2", "unit_price": "100", "tax_percentage": "16"},
			{"product_id": "p2", "description": "Gadget", "quantity": "1", "unit_price": "50", "tax_percentage": "0"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requireAmount(t, "282", created.Data.TotalAmount)

	rec, converted := do(t, h, http.MethodPost, "/documents/"+created.Data.ID+"/convert",
		`{"source_type": "quotation", "dest_type": "invoice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, TypeInvoice, converted.Data.Type)
	require.Empty(t, converted.Warnings)

	rec, fetched := do(t, h, http.MethodGet, "/documents/"+converted.Data.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fetched.Data.Items, 2)

	rec, _ = do(t, h, http.MethodPost, "/documents/"+created.Data.ID+"/convert",
		`{"source_type": "quotation", "dest_type": "invoice"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec, _ := do(t, h, http.MethodPost, "/documents", `{"customer_id": "cust-1", "document_type": "receipt", "items": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/documents/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
