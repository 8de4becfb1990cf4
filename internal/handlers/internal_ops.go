package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hogtech/orderflow/internal/platform/httpx"
	"github.com/hogtech/orderflow/internal/platform/observability"
	"github.com/hogtech/orderflow/internal/services"
)

const maxRecoveryLimit = 500

// InternalHandlers serves scheduler-triggered maintenance endpoints. Authentication is applied by
// the router's internal middleware chain.
type InternalHandlers struct {
	orders       services.OrderService
	defaultLimit int
}

// NewInternalHandlers constructs internal endpoints.
func NewInternalHandlers(orders services.OrderService, defaultLimit int) *InternalHandlers {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &InternalHandlers{orders: orders, defaultLimit: defaultLimit}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/recover", h.recoverOrders)
}

type recoveryResponse struct {
	Scanned   int      `json:"scanned"`
	Recovered int      `json:"recovered"`
	Failed    []string `json:"failed"`
}

func (h *InternalHandlers) recoverOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := h.defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxRecoveryLimit)
	}

	report, err := h.orders.RecoverIncompleteOrders(ctx, limit)
	if err != nil {
		observability.FromContext(ctx).Error("order recovery failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("recovery_failed", "order recovery failed", http.StatusInternalServerError))
		return
	}
	failed := report.Failed
	if failed == nil {
		failed = []string{}
	}
	writeJSONResponse(w, http.StatusOK, recoveryResponse{
		Scanned:   report.Scanned,
		Recovered: report.Recovered,
		Failed:    failed,
	})
}
