package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Validation("quantity", "bad"), http.StatusBadRequest},
		{shared.NotFound("invoice", "x"), http.StatusNotFound},
		{shared.InvalidState("already converted"), http.StatusConflict},
		{fmt.Errorf("wrap: %w", shared.ErrPermissionDenied), http.StatusForbidden},
		{shared.ErrTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestDecodeJSONValidates(t *testing.T) {
	type body struct {
		Name string `json:"name" validate:"required"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var b body
	err := DecodeJSON(req, &b)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"Name":"required"`)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &b))
	require.Equal(t, "ok", b.Name)
}
