package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "odyssey")
	token, err := v.Sign("u1", "c1", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "c1", claims.CompanyID)

	_, err = NewVerifier("other", "odyssey").Verify(token)
	require.Error(t, err)

	expired, err := v.Sign("u1", "c1", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	var gotUser, gotCompany string
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = shared.UserFromContext(r.Context())
		gotCompany, _ = shared.CompanyFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := v.Sign("u9", "c9", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "u9", gotUser)
	require.Equal(t, "c9", gotCompany)
}
