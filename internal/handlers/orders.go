package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hogtech/orderflow/internal/platform/auth"
	"github.com/hogtech/orderflow/internal/platform/httpx"
	"github.com/hogtech/orderflow/internal/platform/pagination"
	"github.com/hogtech/orderflow/internal/platform/textutil"
	"github.com/hogtech/orderflow/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCreateBodySize = 256 * 1024
	maxOrderUpdateBodySize = 4 * 1024
)

var orderListOptions = pagination.Options{
	DefaultPageSize: defaultOrderPageSize,
	MaxPageSize:     maxOrderPageSize,
	FilterFields:    []string{"status", "payment_status"},
}

// OrderHandlers exposes checkout, order reads and status changes.
type OrderHandlers struct {
	authn        *auth.Authenticator
	orders       services.OrderService
	createGuards []func(http.Handler) http.Handler
	trackLimiter RateLimiter
}

// OrderOption customises order handlers.
type OrderOption func(*OrderHandlers)

// WithOrderCreateMiddlewares wraps POST /orders, typically with the idempotency middleware.
func WithOrderCreateMiddlewares(mw ...func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.createGuards = append(h.createGuards, mw...)
	}
}

// WithTrackRateLimiter limits POST /orders/track per client address.
func WithTrackRateLimiter(limiter RateLimiter) OrderOption {
	return func(h *OrderHandlers) {
		h.trackLimiter = limiter
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	create := r.With(h.createGuards...)
	if h.authn != nil {
		create = create.With(h.authn.OptionalFirebaseAuth())
	}
	create.Post("/", h.createOrder)
	r.Post("/track", h.trackOrder)

	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
		rt.Patch("/{orderID}/cancel", h.cancelOrder)
	})

	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
		}
		rt.Patch("/{orderID}/status", h.updateStatus)
		rt.Patch("/{orderID}/payment-status", h.updatePaymentStatus)
	})
}

type createOrderRequest struct {
	CustomerID       string                  `json:"customer_id"`
	Email            string                  `json:"email" validate:"omitempty,email"`
	FullName         string                  `json:"full_name" validate:"max=200"`
	Phone            string                  `json:"phone" validate:"max=40"`
	Items            []checkoutLineRequest   `json:"order_items" validate:"required,min=1,dive"`
	DeliveryAddress  *checkoutAddressRequest `json:"delivery_address" validate:"required"`
	PaymentMethod    string                  `json:"payment_method" validate:"max=40"`
	DiscountCode     string                  `json:"discount_code" validate:"max=64"`
	PaymentReference string                  `json:"payment_reference" validate:"max=128"`
	Currency         string                  `json:"currency" validate:"omitempty,len=3"`
	DeliveryFee      float64                 `json:"delivery_fee" validate:"gte=0"`
	Tax              float64                 `json:"tax" validate:"gte=0"`
	Subtotal         *float64                `json:"subtotal" validate:"omitempty,gte=0"`
	Total            *float64                `json:"total" validate:"omitempty,gte=0"`
	Notes            string                  `json:"notes"`
}

type checkoutLineRequest struct {
	ProductID   string                 `json:"product_id"`
	DealID      string                 `json:"deal_id"`
	ProductName string                 `json:"product_name" validate:"max=200"`
	Quantity    int                    `json:"quantity" validate:"gt=0"`
	UnitPrice   float64                `json:"unit_price" validate:"gte=0"`
	Subtotal    float64                `json:"subtotal" validate:"gte=0"`
	Variants    map[string]string      `json:"variants"`
	Deal        *services.CheckoutDeal `json:"deal"`
}

type checkoutAddressRequest struct {
	FullName       string                           `json:"full_name" validate:"max=200"`
	Email          string                           `json:"email" validate:"omitempty,email"`
	Phone          string                           `json:"phone" validate:"max=40"`
	Street         string                           `json:"street" validate:"max=300"`
	City           string                           `json:"city" validate:"max=120"`
	Region         string                           `json:"region" validate:"max=120"`
	PostalCode     string                           `json:"postal_code" validate:"max=20"`
	Country        string                           `json:"country" validate:"max=80"`
	Notes          string                           `json:"notes"`
	DeliveryOption *services.CheckoutDeliveryOption `json:"delivery_option"`
}

func (req createOrderRequest) snapshot() services.CheckoutSnapshot {
	lines := make([]services.CheckoutLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.CheckoutLine{
			ProductID:   strings.TrimSpace(item.ProductID),
			DealID:      strings.TrimSpace(item.DealID),
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			Variants:    textutil.NormalizeStringMap(item.Variants),
			Deal:        item.Deal,
		})
	}
	snapshot := services.CheckoutSnapshot{
		CustomerID:       strings.TrimSpace(req.CustomerID),
		Email:            strings.TrimSpace(req.Email),
		FullName:         strings.TrimSpace(req.FullName),
		Phone:            strings.TrimSpace(req.Phone),
		Items:            lines,
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		DiscountCode:     strings.TrimSpace(req.DiscountCode),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		Currency:         strings.ToUpper(strings.TrimSpace(req.Currency)),
		DeliveryFee:      req.DeliveryFee,
		Tax:              req.Tax,
		Subtotal:         req.Subtotal,
		Total:            req.Total,
		Notes:            req.Notes,
	}
	if addr := req.DeliveryAddress; addr != nil {
		snapshot.DeliveryAddress = &services.CheckoutAddress{
			FullName:       strings.TrimSpace(addr.FullName),
			Email:          strings.TrimSpace(addr.Email),
			Phone:          strings.TrimSpace(addr.Phone),
			Street:         strings.TrimSpace(addr.Street),
			City:           strings.TrimSpace(addr.City),
			Region:         strings.TrimSpace(addr.Region),
			PostalCode:     strings.TrimSpace(addr.PostalCode),
			Country:        strings.TrimSpace(addr.Country),
			Notes:          addr.Notes,
			DeliveryOption: addr.DeliveryOption,
		}
	}
	return snapshot
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if !decodeRequest(w, r, maxOrderCreateBodySize, &req) {
		return
	}

	actor := actorFromContext(ctx)
	checkout := req.snapshot()
	checkout.UserID = actor.UserID
	if checkout.Email == "" {
		checkout.Email = actor.Email
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Checkout: checkout,
		Actor:    actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor := actorFromContext(ctx)
	if actor.UserID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, orderListOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListQuery{
		Actor:         actor,
		CustomerID:    strings.TrimSpace(r.URL.Query().Get("customer_id")),
		Status:        params.Values("status"),
		PaymentStatus: params.Values("payment_status"),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actorFromContext(ctx))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type trackOrderRequest struct {
	OrderNumber string `json:"order_number" validate:"required,max=64"`
	Email       string `json:"email" validate:"required,email"`
}

func (h *OrderHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.trackLimiter != nil && !h.trackLimiter.Allow(clientIP(r)) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many tracking requests", http.StatusTooManyRequests))
		return
	}

	var req trackOrderRequest
	if !decodeRequest(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	tracking, err := h.orders.TrackOrder(ctx, services.TrackOrderQuery{
		OrderNumber: req.OrderNumber,
		Email:       req.Email,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeRequest(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  req.Status,
		Actor:   actorFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
	Reference     string `json:"reference" validate:"max=128"`
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req updatePaymentStatusRequest
	if !decodeRequest(w, r, maxOrderUpdateBodySize, &req) {
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:       orderID,
		PaymentStatus: req.PaymentStatus,
		Reference:     strings.TrimSpace(req.Reference),
		Actor:         actorFromContext(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	// The body is optional for cancellation.
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		body, err := readLimitedBody(r, maxOrderUpdateBodySize)
		switch {
		case errors.Is(err, errEmptyBody):
		case err != nil:
			writeBodyError(ctx, w, err)
			return
		default:
			if !decodeBytes(w, r, body, &req) {
				return
			}
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actorFromContext(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidDiscount):
		message := "discount code cannot be applied"
		if services.IsDiscountError(err) {
			message = services.DiscountErrorMessage(err)
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_discount", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderMissingItems),
		errors.Is(err, services.ErrOrderMissingAddress),
		errors.Is(err, services.ErrOrderInvalidTotal),
		errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "order number and email do not match", http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderAlreadyProcessed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_already_processed", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCustomerLookup):
		httpx.WriteError(ctx, w, httpx.NewError("customer_unavailable", "customer directory unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
