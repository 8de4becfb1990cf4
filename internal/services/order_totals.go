package services

import (
	"fmt"
	"strings"

	domain "github.com/hogtech/orderflow/internal/domain"
)

// TotalTolerance is the largest accepted gap between a client supplied total and the server total.
const TotalTolerance = 0.5

// TotalsInput feeds CalculateTotals.
type TotalsInput struct {
	Lines       []CheckoutLine
	DeliveryFee float64
	Tax         float64
	Discount    *DiscountResult
	ClientTotal *float64
	// ClientSubtotal is the item subtotal the client displayed, if it sent one.
	ClientSubtotal *float64
	Tolerance      float64
}

// OrderTotals is the server side pricing of an order.
type OrderTotals struct {
	Subtotal    float64
	Discount    float64
	Tax         float64
	ShippingFee float64
	// AdjustedShippingFee is the fee actually charged after any shipping discount.
	AdjustedShippingFee float64
	Total               float64
	// TotalMismatch is set when the client total differs by more than the tolerance.
	TotalMismatch bool
	// SubtotalMismatch is set when the client subtotal differs by more than the tolerance.
	SubtotalMismatch bool
}

// CalculateTotals derives order totals from sanitized lines. Discounts reduce the product subtotal
// first; the evaluator's adjusted delivery fee captures any part that applies to shipping.
func CalculateTotals(in TotalsInput) (OrderTotals, error) {
	subtotal := lineSubtotal(in.Lines)
	fee := domain.NewMoney(in.DeliveryFee).NonNegative()
	tax := domain.NewMoney(in.Tax).NonNegative()

	adjustedFee := fee
	productDiscount := domain.ZeroMoney()
	if in.Discount != nil {
		adjustedFee = domain.NewMoney(in.Discount.AdjustedDeliveryFee).Clamp(domain.ZeroMoney(), fee)
		shippingPart := fee.Sub(adjustedFee)
		productDiscount = domain.NewMoney(in.Discount.DiscountAmount).Sub(shippingPart).NonNegative()
	}

	discountedSubtotal := subtotal.Sub(productDiscount).NonNegative()
	total := discountedSubtotal.Add(tax).Add(adjustedFee).Round()
	if !total.IsPositive() {
		return OrderTotals{}, fmt.Errorf("%w: computed total %s", ErrOrderInvalidTotal, total.String())
	}

	effectiveDiscount := subtotal.Sub(discountedSubtotal).Add(fee.Sub(adjustedFee))
	totals := OrderTotals{
		Subtotal:            subtotal.Float64(),
		Discount:            effectiveDiscount.Float64(),
		Tax:                 tax.Float64(),
		ShippingFee:         fee.Float64(),
		AdjustedShippingFee: adjustedFee.Float64(),
		Total:               total.Float64(),
	}

	tolerance := in.Tolerance
	if tolerance <= 0 {
		tolerance = TotalTolerance
	}
	totals.TotalMismatch = exceedsTolerance(total, in.ClientTotal, tolerance)
	totals.SubtotalMismatch = exceedsTolerance(subtotal, in.ClientSubtotal, tolerance)
	return totals, nil
}

func exceedsTolerance(server domain.Money, client *float64, tolerance float64) bool {
	if client == nil {
		return false
	}
	return server.Sub(domain.NewMoney(*client)).Abs().GreaterThan(domain.NewMoney(tolerance))
}

// sanitizeLines validates client lines and recomputes each line subtotal from unit price and quantity.
func sanitizeLines(lines []CheckoutLine) ([]CheckoutLine, error) {
	out := make([]CheckoutLine, 0, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		price := line.UnitPrice
		if price == 0 && line.Deal != nil && line.Deal.Price > 0 {
			price = line.Deal.Price
		}
		if price == 0 && line.Subtotal > 0 {
			price = domain.Round2(line.Subtotal / float64(line.Quantity))
		}
		if price < 0 {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", ErrOrderInvalidInput, i)
		}

		name := strings.TrimSpace(line.ProductName)
		if name == "" && line.Deal != nil {
			name = strings.TrimSpace(line.Deal.Title)
		}
		if name == "" {
			return nil, fmt.Errorf("%w: item %d name is required", ErrOrderInvalidInput, i)
		}

		clean := line
		clean.ProductID = strings.TrimSpace(line.ProductID)
		clean.DealID = strings.TrimSpace(line.DealID)
		if clean.DealID == "" && line.Deal != nil {
			clean.DealID = strings.TrimSpace(line.Deal.DealID)
		}
		clean.ProductName = name
		clean.UnitPrice = domain.Round2(price)
		clean.Subtotal = domain.NewMoney(clean.UnitPrice).MulInt(clean.Quantity).Float64()
		out = append(out, clean)
	}
	return out, nil
}

func lineSubtotal(lines []CheckoutLine) domain.Money {
	sum := domain.ZeroMoney()
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		sum = sum.Add(domain.NewMoney(line.UnitPrice).MulInt(line.Quantity))
	}
	return sum
}
