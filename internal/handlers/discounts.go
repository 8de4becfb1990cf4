package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hogtech/orderflow/internal/platform/httpx"
	"github.com/hogtech/orderflow/internal/services"
)

const maxDiscountBodySize = 64 * 1024

// DiscountHandlers previews discount codes against a cart without consuming them.
type DiscountHandlers struct {
	discounts services.DiscountService
}

// NewDiscountHandlers constructs discount endpoints.
func NewDiscountHandlers(discounts services.DiscountService) *DiscountHandlers {
	return &DiscountHandlers{discounts: discounts}
}

// Routes registers the /discounts endpoints.
func (h *DiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/apply", h.applyDiscount)
}

type applyDiscountRequest struct {
	Code        string                `json:"code" validate:"required,max=64"`
	Subtotal    float64               `json:"subtotal" validate:"gte=0"`
	DeliveryFee float64               `json:"delivery_fee" validate:"gte=0"`
	Items       []checkoutLineRequest `json:"items" validate:"dive"`
}

type discountResponse struct {
	DiscountID          string  `json:"discount_id"`
	Code                string  `json:"code"`
	Type                string  `json:"type"`
	AppliesTo           string  `json:"applies_to"`
	DiscountAmount      float64 `json:"discount_amount"`
	AdjustedDeliveryFee float64 `json:"adjusted_delivery_fee"`
}

func (h *DiscountHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req applyDiscountRequest
	if !decodeRequest(w, r, maxDiscountBodySize, &req) {
		return
	}
	lines := make([]services.CheckoutLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.CheckoutLine{
			ProductID:   item.ProductID,
			DealID:      item.DealID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}

	result, err := h.discounts.ApplyDiscount(ctx, services.ApplyDiscountCommand{
		Code:        req.Code,
		Subtotal:    req.Subtotal,
		DeliveryFee: req.DeliveryFee,
		Items:       lines,
	})
	if err != nil {
		if services.IsDiscountError(err) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_discount", services.DiscountErrorMessage(err), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "failed to apply discount", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, discountResponse{
		DiscountID:          result.DiscountID,
		Code:                result.Code,
		Type:                string(result.Type),
		AppliesTo:           string(result.AppliesTo),
		DiscountAmount:      result.DiscountAmount,
		AdjustedDeliveryFee: result.AdjustedDeliveryFee,
	})
}
