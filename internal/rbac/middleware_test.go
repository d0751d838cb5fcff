package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
	"github.com/odyssey-erp/odyssey-billing/internal/store/memstore"
)

func newService(grants map[string][]string) *Service {
	db := memstore.New()
	db.Handle("user_permissions", func(_ context.Context, _ store.Database, params store.Record) (any, error) {
		return grants[params["user_id"].(string)], nil
	})
	return NewService(db)
}

func TestHasPermission(t *testing.T) {
	svc := newService(map[string][]string{
		"clerk": {"billing.documents.view"},
		"boss":  {"admin"},
		"mgr":   {"delete_credit_note"},
	})
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, "clerk", shared.PermDeleteCreditNote)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasPermission(ctx, "boss", shared.PermDeleteCreditNote)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasPermission(ctx, "mgr", shared.PermDeleteCreditNote)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRequireAll(t *testing.T) {
	mw := Middleware{Service: newService(map[string][]string{"clerk": {"billing.documents.view"}})}
	handler := mw.RequireAll(shared.PermDocumentsEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(shared.ContextWithUser(req.Context(), "clerk"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	view := mw.RequireAny(shared.PermDocumentsView, shared.PermDocumentsEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec = httptest.NewRecorder()
	view.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
