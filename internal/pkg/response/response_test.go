package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"credits": 3})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Nil(t, resp.Error)
	require.Equal(t, map[string]interface{}{"credits": float64(3)}, resp.Data)
}

func TestErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name   string
		send   func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"payment required", func(w http.ResponseWriter) { PaymentRequired(w, "no credits") }, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "retry") }, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"validation", func(w http.ResponseWriter) { ValidationError(w, map[string]string{"amount": "required"}) }, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"internal", InternalError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.send(rec)

			require.Equal(t, tc.status, rec.Code)
			resp := decode(t, rec)
			require.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			require.Equal(t, tc.code, resp.Error.Code)
		})
	}
}
