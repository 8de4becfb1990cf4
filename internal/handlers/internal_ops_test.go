package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogtech/orderflow/internal/services"
)

func TestRecoverOrders(t *testing.T) {
	var gotLimit int
	svc := &stubOrderService{recoverFn: func(_ context.Context, limit int) (services.RecoveryReport, error) {
		gotLimit = limit
		return services.RecoveryReport{Scanned: 3, Recovered: 2, Failed: []string{"ord_3"}}, nil
	}}
	r := chi.NewRouter()
	r.Route("/internal", NewInternalHandlers(svc, 25).Routes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/recover", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 25, gotLimit)
	var body recoveryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Recovered)
	assert.Equal(t, []string{"ord_3"}, body.Failed)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/recover?limit=10000", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, maxRecoveryLimit, gotLimit)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/recover?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc.recoverFn = func(context.Context, int) (services.RecoveryReport, error) {
		return services.RecoveryReport{}, errors.New("firestore down")
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/recover", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
