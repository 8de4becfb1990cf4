package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hogtech/orderflow/internal/platform/auth"
	"github.com/hogtech/orderflow/internal/platform/httpx"
	"github.com/hogtech/orderflow/internal/services"
)

const maxPaymentBodySize = 256 * 1024

// PaymentHandlers exposes hosted checkout initialisation and verification.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	webhooks *WebhookHandlers
}

// NewPaymentHandlers constructs payment endpoints. When webhooks is set, POST /payments/webhook
// accepts callbacks for the default provider.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, webhooks *WebhookHandlers) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments, webhooks: webhooks}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.webhooks != nil {
		r.Post("/webhook", h.webhooks.defaultProviderWebhook)
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.OptionalFirebaseAuth())
		}
		rt.Post("/initialize", h.initialize)
		rt.Post("/verify", h.verify)
	})
}

type initializePaymentRequest struct {
	createOrderRequest
	Provider    string `json:"provider" validate:"max=32"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

type paymentInitializationResponse struct {
	Provider         string  `json:"provider"`
	Reference        string  `json:"reference"`
	AuthorizationURL string  `json:"authorization_url"`
	AccessCode       string  `json:"access_code,omitempty"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
}

func (h *PaymentHandlers) initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req initializePaymentRequest
	if !decodeRequest(w, r, maxPaymentBodySize, &req) {
		return
	}

	actor := actorFromContext(ctx)
	checkout := req.snapshot()
	checkout.UserID = actor.UserID
	result, err := h.payments.InitializePayment(ctx, services.InitializePaymentCommand{
		Checkout:    checkout,
		Actor:       actor,
		Email:       checkout.Email,
		Provider:    strings.TrimSpace(req.Provider),
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		Reference:   checkout.PaymentReference,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentInitializationResponse{
		Provider:         result.Provider,
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Amount:           result.Amount,
		Currency:         result.Currency,
	})
}

type verifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
	Provider  string `json:"provider" validate:"max=32"`
}

type paymentVerificationResponse struct {
	Reference     string        `json:"reference"`
	Status        string        `json:"status"`
	AlreadyLinked bool          `json:"already_linked"`
	Order         *orderPayload `json:"order,omitempty"`
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req verifyPaymentRequest
	if !decodeRequest(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	result, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		Reference: strings.TrimSpace(req.Reference),
		Provider:  strings.TrimSpace(req.Provider),
		Actor:     actorFromContext(ctx),
	})
	if errors.Is(err, services.ErrPaymentNotSuccessful) {
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_successful", "payment has not succeeded", http.StatusPaymentRequired).
			WithDetails(map[string]any{"reference": result.Reference, "payment_status": string(result.Status)}))
		return
	}
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	response := paymentVerificationResponse{
		Reference:     result.Reference,
		Status:        string(result.Status),
		AlreadyLinked: result.AlreadyLinked,
	}
	if result.Order != nil {
		payload := buildOrderPayload(*result.Order)
		response.Order = &payload
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment reference not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment gateway request failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrWebhookMissingCheckoutData):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_data_missing", "payment has no checkout data to build an order from", http.StatusUnprocessableEntity))
	default:
		writeOrderError(ctx, w, err)
	}
}
