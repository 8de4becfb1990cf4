package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogtech/orderflow/internal/services"
)

type stubReconciler struct {
	got    services.WebhookCommand
	result services.WebhookResult
	err    error
}

func (s *stubReconciler) HandleWebhook(_ context.Context, cmd services.WebhookCommand) (services.WebhookResult, error) {
	s.got = cmd
	return s.result, s.err
}

func paystackHeader(provider string) string {
	if provider == "paystack" {
		return "X-Paystack-Signature"
	}
	return ""
}

func TestWebhookPassesRawBodyAndSignature(t *testing.T) {
	reconciler := &stubReconciler{result: services.WebhookResult{
		Outcome: services.WebhookOrderCreated, Reference: "TXN-1", OrderID: "ord_1",
	}}
	webhooks := NewWebhookHandlers(reconciler, paystackHeader, "Paystack")

	r := chi.NewRouter()
	r.Route("/webhooks", webhooks.Routes)
	r.Route("/payments", NewPaymentHandlers(nil, nil, webhooks).Routes)

	raw := `{"event":"charge.success","data":{"reference":"TXN-1"}}`
	for _, path := range []string{"/webhooks/payments/paystack", "/payments/webhook"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(raw))
		req.Header.Set("X-Paystack-Signature", "abc123")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "paystack", reconciler.got.Provider)
		assert.Equal(t, raw, string(reconciler.got.Body))
		assert.Equal(t, "abc123", reconciler.got.Signature)

		var body webhookResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "order_created", body.Status)
		assert.Equal(t, "ord_1", body.OrderID)
	}
}

func TestWebhookErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: mismatch", services.ErrWebhookInvalidSignature), http.StatusBadRequest},
		{fmt.Errorf("%w: bad json", services.ErrWebhookMalformed), http.StatusBadRequest},
		{services.ErrWebhookMissingReference, http.StatusBadRequest},
		{fmt.Errorf("%w: firestore unavailable", services.ErrOrderPersistence), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		reconciler := &stubReconciler{err: tc.err}
		r := chi.NewRouter()
		r.Route("/webhooks", NewWebhookHandlers(reconciler, paystackHeader, "paystack").Routes)

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payments/paystack", strings.NewReader(`{}`)))
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestWebhookIgnoredIsAcknowledged(t *testing.T) {
	reconciler := &stubReconciler{result: services.WebhookResult{Outcome: services.WebhookIgnored, Message: "event ignored"}}
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(reconciler, paystackHeader, "paystack").Routes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payments/paystack", strings.NewReader(`{"event":"transfer.success"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ignored"`)
}

func TestWebhookRejectsEmptyBody(t *testing.T) {
	reconciler := &stubReconciler{}
	r := chi.NewRouter()
	r.Route("/webhooks", NewWebhookHandlers(reconciler, paystackHeader, "paystack").Routes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/payments/paystack", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, reconciler.got.Provider)
}
