package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hogtech/orderflow/internal/platform/httpx"
	"github.com/hogtech/orderflow/internal/platform/observability"
	"github.com/hogtech/orderflow/internal/services"
)

const maxWebhookBodySize = 512 * 1024

// SignatureHeaderFunc names the header carrying the signature for a provider.
type SignatureHeaderFunc func(provider string) string

// WebhookHandlers receives signed payment gateway callbacks.
type WebhookHandlers struct {
	reconciler      services.WebhookReconciler
	headers         SignatureHeaderFunc
	defaultProvider string
}

// NewWebhookHandlers constructs webhook endpoints.
func NewWebhookHandlers(reconciler services.WebhookReconciler, headers SignatureHeaderFunc, defaultProvider string) *WebhookHandlers {
	return &WebhookHandlers{
		reconciler:      reconciler,
		headers:         headers,
		defaultProvider: strings.ToLower(strings.TrimSpace(defaultProvider)),
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.providerWebhook)
}

type webhookResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (h *WebhookHandlers) providerWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider"))))
}

func (h *WebhookHandlers) defaultProviderWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.defaultProvider)
}

func (h *WebhookHandlers) handle(w http.ResponseWriter, r *http.Request, provider string) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}
	if provider == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment provider is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var signature string
	if h.headers != nil {
		if header := h.headers(provider); header != "" {
			signature = r.Header.Get(header)
		}
	}

	result, err := h.reconciler.HandleWebhook(ctx, services.WebhookCommand{
		Provider:  provider,
		Body:      body,
		Signature: signature,
	})
	if err != nil {
		logger := observability.FromContext(ctx)
		switch {
		case errors.Is(err, services.ErrWebhookInvalidSignature):
			logger.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrWebhookMalformed),
			errors.Is(err, services.ErrWebhookMissingReference),
			errors.Is(err, services.ErrWebhookMissingCheckoutData):
			logger.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", err.Error(), http.StatusBadRequest))
		default:
			// Anything else is retryable from the gateway's point of view.
			logger.Error("webhook processing failed", zap.String("provider", provider), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Status:    string(result.Outcome),
		Reference: result.Reference,
		OrderID:   result.OrderID,
		Message:   result.Message,
	})
}
