package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/repositories"
)

// DiscountCart is the cart snapshot a discount is evaluated against.
type DiscountCart struct {
	Subtotal    float64
	DeliveryFee float64
	Items       []CheckoutLine
}

// EvaluateDiscount applies discount to cart at now. It has no side effects and never commits usage.
func EvaluateDiscount(discount Discount, cart DiscountCart, now time.Time) (DiscountResult, error) {
	if !discount.IsActive {
		return DiscountResult{}, fmt.Errorf("%w: %s", ErrDiscountInactive, discount.Code)
	}
	if discount.ValidFrom != nil && now.Before(*discount.ValidFrom) {
		return DiscountResult{}, fmt.Errorf("%w: starts %s", ErrDiscountNotYetActive, discount.ValidFrom.Format(time.RFC3339))
	}
	if discount.ValidUntil != nil && now.After(*discount.ValidUntil) {
		return DiscountResult{}, fmt.Errorf("%w: ended %s", ErrDiscountExpired, discount.ValidUntil.Format(time.RFC3339))
	}
	if discount.UsageExhausted() {
		return DiscountResult{}, fmt.Errorf("%w: %d of %d used", ErrDiscountUsageLimitReached, discount.UsedCount, *discount.UsageLimit)
	}

	subtotal := domain.NewMoney(cart.Subtotal).NonNegative()
	if !subtotal.IsPositive() && len(cart.Items) > 0 {
		subtotal = lineSubtotal(cart.Items)
	}
	fee := domain.NewMoney(cart.DeliveryFee).NonNegative()
	scope := domain.ParseDiscountScope(string(discount.AppliesTo))

	var base, comparator domain.Money
	switch scope {
	case domain.DiscountScopeShipping:
		base, comparator = fee, fee
	case domain.DiscountScopeTotal:
		base, comparator = subtotal.Add(fee), subtotal
	default:
		base, comparator = subtotal, subtotal
	}

	if minimum := domain.NewMoney(discount.MinimumAmount); minimum.IsPositive() && comparator.LessThan(minimum) {
		return DiscountResult{}, fmt.Errorf("%w: requires %s", ErrDiscountBelowMinimum, minimum.String())
	}

	result := DiscountResult{
		DiscountID:          discount.ID,
		Code:                domain.NormalizeDiscountCode(discount.Code),
		Type:                discount.Type,
		AppliesTo:           scope,
		AdjustedDeliveryFee: fee.Float64(),
	}

	var amount domain.Money
	switch discount.Type {
	case domain.DiscountTypeFreeShipping:
		amount = fee
		result.AdjustedDeliveryFee = 0
	case domain.DiscountTypePercentage, domain.DiscountTypeFixedAmount:
		if !base.IsPositive() {
			return DiscountResult{}, ErrDiscountZeroBaseAmount
		}
		if discount.Type == domain.DiscountTypePercentage {
			amount = base.Percent(discount.Value)
		} else {
			amount = domain.NewMoney(discount.Value)
		}
		amount = amount.Clamp(domain.ZeroMoney(), base)
		if discount.MaximumDiscount != nil {
			amount = amount.Min(domain.NewMoney(*discount.MaximumDiscount).NonNegative())
		}
		amount = amount.Round()
		switch scope {
		case domain.DiscountScopeShipping:
			result.AdjustedDeliveryFee = fee.Sub(amount).NonNegative().Float64()
		case domain.DiscountScopeTotal:
			overflow := amount.Sub(subtotal).NonNegative()
			result.AdjustedDeliveryFee = fee.Sub(overflow).NonNegative().Float64()
		}
	default:
		return DiscountResult{}, fmt.Errorf("%w: %q", ErrDiscountUnsupportedType, discount.Type)
	}

	if !amount.IsPositive() {
		return DiscountResult{}, ErrDiscountZeroBaseAmount
	}
	result.DiscountAmount = amount.Float64()
	return result, nil
}

// DiscountServiceDeps bundles collaborators required to construct the discount service.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type discountService struct {
	discounts repositories.DiscountRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

var _ DiscountService = (*discountService)(nil)

// NewDiscountService constructs the stand-alone discount evaluation service.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &discountService{
		discounts: deps.Discounts,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ApplyDiscount evaluates a code. Any unusable code is an error here regardless of checkout policy.
func (s *discountService) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (DiscountResult, error) {
	_, result, err := lookupAndEvaluate(ctx, s.discounts, cmd.Code, DiscountCart{
		Subtotal:    cmd.Subtotal,
		DeliveryFee: cmd.DeliveryFee,
		Items:       cmd.Items,
	}, s.clock())
	if err != nil {
		s.logger(ctx, "discount.apply.rejected", map[string]any{
			"code":  domain.NormalizeDiscountCode(cmd.Code),
			"error": err.Error(),
		})
		return DiscountResult{}, err
	}
	return result, nil
}

func lookupAndEvaluate(ctx context.Context, repo repositories.DiscountRepository, code string, cart DiscountCart, now time.Time) (Discount, DiscountResult, error) {
	normalized := domain.NormalizeDiscountCode(code)
	if normalized == "" {
		return Discount{}, DiscountResult{}, ErrDiscountInvalidCode
	}
	discount, err := repo.FindByCode(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			return Discount{}, DiscountResult{}, fmt.Errorf("%w: %s", ErrDiscountNotFound, normalized)
		}
		return Discount{}, DiscountResult{}, fmt.Errorf("discount: lookup %s: %w", normalized, err)
	}
	result, err := EvaluateDiscount(discount, cart, now)
	if err != nil {
		return Discount{}, DiscountResult{}, err
	}
	return discount, result, nil
}

// DiscountErrorMessage renders a customer facing reason for a discount error.
func DiscountErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrDiscountInvalidCode):
		return "Please enter a discount code."
	case errors.Is(err, ErrDiscountNotFound):
		return "This discount code does not exist."
	case errors.Is(err, ErrDiscountInactive):
		return "This discount code is no longer active."
	case errors.Is(err, ErrDiscountNotYetActive):
		return "This discount code is not active yet."
	case errors.Is(err, ErrDiscountExpired):
		return "This discount code has expired."
	case errors.Is(err, ErrDiscountUsageLimitReached):
		return "This discount code has reached its usage limit."
	case errors.Is(err, ErrDiscountBelowMinimum):
		return "Your order does not meet the minimum amount for this discount."
	case errors.Is(err, ErrDiscountZeroBaseAmount):
		return "This discount does not apply to your order."
	case errors.Is(err, ErrDiscountUnsupportedType):
		return "This discount code cannot be applied."
	default:
		return "Unable to apply discount."
	}
}
