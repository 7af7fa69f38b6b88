package subscription_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/domain/subscription"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
)

func TestHandlerPlansAndFree(t *testing.T) {
	svc, _, userID := newService(t)

	fakeAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), userID, "user")))
		})
	}
	router := chi.NewRouter()
	router.Mount("/subscriptions", subscription.NewHandler(svc).Routes(fakeAuth))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var plans struct {
		Data []subscription.PlanResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	require.Len(t, plans.Data, 3)
	require.Equal(t, "9.99", plans.Data[1].PriceMonthly)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subscriptions/free", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subscriptions/cancel", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
