package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
)

var evalNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestEvaluateDiscount(t *testing.T) {
	cart := DiscountCart{Subtotal: 200, DeliveryFee: 20}

	tests := []struct {
		name       string
		discount   domain.Discount
		cart       DiscountCart
		wantAmount float64
		wantFee    float64
		wantErr    error
	}{
		{
			name:       "percentage on products",
			discount:   domain.Discount{ID: "d1", Code: "save10", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true},
			cart:       cart,
			wantAmount: 20,
			wantFee:    20,
		},
		{
			name:       "percentage capped by maximum discount",
			discount:   domain.Discount{ID: "d1", Code: "BIG", Type: domain.DiscountTypePercentage, Value: 50, MaximumDiscount: ptrFloat(30), IsActive: true},
			cart:       cart,
			wantAmount: 30,
			wantFee:    20,
		},
		{
			name:       "fixed amount clamped to base",
			discount:   domain.Discount{ID: "d1", Code: "FLAT", Type: domain.DiscountTypeFixedAmount, Value: 500, IsActive: true},
			cart:       cart,
			wantAmount: 200,
			wantFee:    20,
		},
		{
			name:       "free shipping zeroes the delivery fee",
			discount:   domain.Discount{ID: "d1", Code: "SHIPFREE", Type: domain.DiscountTypeFreeShipping, IsActive: true},
			cart:       cart,
			wantAmount: 20,
			wantFee:    0,
		},
		{
			name:       "shipping scoped fixed amount reduces the fee",
			discount:   domain.Discount{ID: "d1", Code: "SHIP5", Type: domain.DiscountTypeFixedAmount, Value: 5, AppliesTo: domain.DiscountScopeShipping, IsActive: true},
			cart:       cart,
			wantAmount: 5,
			wantFee:    15,
		},
		{
			name:       "total scope overflow spills into the fee",
			discount:   domain.Discount{ID: "d1", Code: "TOTAL", Type: domain.DiscountTypeFixedAmount, Value: 210, AppliesTo: domain.DiscountScopeTotal, IsActive: true},
			cart:       cart,
			wantAmount: 210,
			wantFee:    10,
		},
		{
			name:     "inactive",
			discount: domain.Discount{Code: "OFF", Type: domain.DiscountTypePercentage, Value: 10},
			cart:     cart,
			wantErr:  ErrDiscountInactive,
		},
		{
			name:     "not yet active",
			discount: domain.Discount{Code: "SOON", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true, ValidFrom: ptrTime(evalNow.Add(time.Hour))},
			cart:     cart,
			wantErr:  ErrDiscountNotYetActive,
		},
		{
			name:     "expired",
			discount: domain.Discount{Code: "OLD", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true, ValidUntil: ptrTime(evalNow.Add(-time.Hour))},
			cart:     cart,
			wantErr:  ErrDiscountExpired,
		},
		{
			name:     "usage limit reached",
			discount: domain.Discount{Code: "ONCE", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true, UsageLimit: ptrInt(1), UsedCount: 1},
			cart:     cart,
			wantErr:  ErrDiscountUsageLimitReached,
		},
		{
			name:     "below minimum",
			discount: domain.Discount{Code: "MIN", Type: domain.DiscountTypePercentage, Value: 10, MinimumAmount: 500, IsActive: true},
			cart:     cart,
			wantErr:  ErrDiscountBelowMinimum,
		},
		{
			name:     "shipping minimum compares against the fee",
			discount: domain.Discount{Code: "SHIPMIN", Type: domain.DiscountTypeFixedAmount, Value: 5, MinimumAmount: 50, AppliesTo: domain.DiscountScopeShipping, IsActive: true},
			cart:     cart,
			wantErr:  ErrDiscountBelowMinimum,
		},
		{
			name:     "zero base",
			discount: domain.Discount{Code: "SHIP5", Type: domain.DiscountTypeFixedAmount, Value: 5, AppliesTo: domain.DiscountScopeShipping, IsActive: true},
			cart:     DiscountCart{Subtotal: 100},
			wantErr:  ErrDiscountZeroBaseAmount,
		},
		{
			name:     "free shipping without a fee",
			discount: domain.Discount{Code: "SHIPFREE", Type: domain.DiscountTypeFreeShipping, IsActive: true},
			cart:     DiscountCart{Subtotal: 100},
			wantErr:  ErrDiscountZeroBaseAmount,
		},
		{
			name:     "unsupported type",
			discount: domain.Discount{Code: "BOGO", Type: "buy_one_get_one", IsActive: true},
			cart:     cart,
			wantErr:  ErrDiscountUnsupportedType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := EvaluateDiscount(tc.discount, tc.cart, evalNow)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.DiscountAmount != tc.wantAmount {
				t.Fatalf("expected amount %.2f, got %.2f", tc.wantAmount, result.DiscountAmount)
			}
			if result.AdjustedDeliveryFee != tc.wantFee {
				t.Fatalf("expected adjusted fee %.2f, got %.2f", tc.wantFee, result.AdjustedDeliveryFee)
			}
			if result.Code != domain.NormalizeDiscountCode(tc.discount.Code) {
				t.Fatalf("expected normalised code, got %q", result.Code)
			}
		})
	}
}

func TestEvaluateDiscountFallsBackToLineSubtotal(t *testing.T) {
	discount := domain.Discount{ID: "d1", Code: "SAVE10", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true}
	result, err := EvaluateDiscount(discount, DiscountCart{
		Items: []CheckoutLine{{ProductName: "Mug", Quantity: 2, UnitPrice: 50}},
	}, evalNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DiscountAmount != 10 {
		t.Fatalf("expected 10 off a 100 subtotal, got %.2f", result.DiscountAmount)
	}
}

func TestDiscountServiceApplyDiscount(t *testing.T) {
	repo := newMemDiscountRepo(
		domain.Discount{ID: "d1", Code: "SAVE10", Type: domain.DiscountTypePercentage, Value: 10, IsActive: true},
	)
	svc, err := NewDiscountService(DiscountServiceDeps{Discounts: repo, Clock: fixedClock(evalNow)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{Code: " save10 ", Subtotal: 200, DeliveryFee: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DiscountAmount != 20 {
		t.Fatalf("expected 20, got %.2f", result.DiscountAmount)
	}
	if repo.used("SAVE10") != 0 {
		t.Fatalf("evaluation must not commit usage")
	}

	_, err = svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{Code: "NOPE", Subtotal: 200})
	if !errors.Is(err, ErrDiscountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{Code: "   ", Subtotal: 200})
	if !errors.Is(err, ErrDiscountInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
}

func TestDiscountErrorMessage(t *testing.T) {
	if msg := DiscountErrorMessage(ErrDiscountExpired); msg != "This discount code has expired." {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := DiscountErrorMessage(errBoom); msg != "Unable to apply discount." {
		t.Fatalf("unexpected fallback %q", msg)
	}
	if !IsDiscountError(ErrDiscountBelowMinimum) || IsDiscountError(errBoom) {
		t.Fatal("IsDiscountError misclassified")
	}
}
