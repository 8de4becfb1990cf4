package domain

import (
	"strings"
	"time"
)

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedAmount  DiscountType = "fixed_amount"
	DiscountTypeFreeShipping DiscountType = "free_shipping"
)

// DiscountScope selects the amount a discount is computed against.
type DiscountScope string

const (
	DiscountScopeAll      DiscountScope = "all"
	DiscountScopeProducts DiscountScope = "products"
	DiscountScopeShipping DiscountScope = "shipping"
	DiscountScopeTotal    DiscountScope = "total"
)

// ParseDiscountScope normalises a stored scope, defaulting unknown values to all.
func ParseDiscountScope(raw string) DiscountScope {
	switch scope := DiscountScope(strings.ToLower(strings.TrimSpace(raw))); scope {
	case DiscountScopeProducts, DiscountScopeShipping, DiscountScopeTotal:
		return scope
	default:
		return DiscountScopeAll
	}
}

// Discount is a redeemable code. UsedCount never exceeds UsageLimit when a limit is set.
type Discount struct {
	ID              string
	Code            string
	Name            string
	Type            DiscountType
	Value           float64
	MinimumAmount   float64
	MaximumDiscount *float64
	AppliesTo       DiscountScope
	IsActive        bool
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	UsageLimit      *int
	UsedCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NormalizeDiscountCode returns the canonical lookup form of a code.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsageExhausted reports whether the usage limit has been reached.
func (d Discount) UsageExhausted() bool {
	return d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit
}

// DiscountResult is the outcome of a successful evaluation.
type DiscountResult struct {
	DiscountID          string
	Code                string
	Type                DiscountType
	AppliesTo           DiscountScope
	DiscountAmount      float64
	AdjustedDeliveryFee float64
}
