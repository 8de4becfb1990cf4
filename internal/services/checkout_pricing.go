package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/repositories"
)

const defaultCurrency = "GHS"

// pricedCheckout is the deterministic pricing of a checkout snapshot.
type pricedCheckout struct {
	Lines          []CheckoutLine
	Discount       *Discount
	DiscountResult *DiscountResult
	// DroppedDiscount records why a supplied code was ignored under the lenient policy.
	DroppedDiscount error
	DeliveryFee     float64
	Tax             float64
	Totals          OrderTotals
	Currency        string
	Settings        StoreSettings
	ClientSubtotal  *float64
}

type checkoutPricer struct {
	discounts       repositories.DiscountRepository
	settings        SettingsProvider
	policy          DiscountPolicy
	tolerance       float64
	defaultCurrency string
	logger          func(context.Context, string, map[string]any)
}

// price runs item sanitizing, discount evaluation and total calculation. Given the same snapshot,
// settings and clock it always yields the same figures.
func (p checkoutPricer) price(ctx context.Context, checkout CheckoutSnapshot, now time.Time) (pricedCheckout, error) {
	lines, err := sanitizeLines(checkout.Items)
	if err != nil {
		return pricedCheckout{}, err
	}

	settings := p.loadSettings(ctx)
	code, err := p.resolveCurrency(checkout.Currency, settings)
	if err != nil {
		return pricedCheckout{}, err
	}

	subtotal := lineSubtotal(lines).Float64()
	priced := pricedCheckout{
		Lines:          lines,
		DeliveryFee:    resolveDeliveryFee(checkout, settings, subtotal),
		Tax:            domain.Round2(checkout.Tax),
		Currency:       code,
		Settings:       settings,
		ClientSubtotal: checkout.Subtotal,
	}

	if raw := strings.TrimSpace(checkout.DiscountCode); raw != "" {
		if p.discounts == nil {
			return pricedCheckout{}, errors.New("order: discount repository not configured")
		}
		discount, result, err := lookupAndEvaluate(ctx, p.discounts, raw, DiscountCart{
			Subtotal:    subtotal,
			DeliveryFee: priced.DeliveryFee,
			Items:       lines,
		}, now)
		switch {
		case err == nil:
			priced.Discount = &discount
			priced.DiscountResult = &result
		case p.policy == DiscountPolicyStrict || !IsDiscountError(err):
			if IsDiscountError(err) {
				return pricedCheckout{}, fmt.Errorf("%w: %w", ErrOrderInvalidDiscount, err)
			}
			return pricedCheckout{}, err
		default:
			priced.DroppedDiscount = err
			p.logger(ctx, "order.discount.dropped", map[string]any{
				"code":  domain.NormalizeDiscountCode(raw),
				"error": err.Error(),
			})
		}
	}

	return p.total(ctx, priced, checkout.Total)
}

// withoutDiscount reprices after a discount could not be committed.
func (p checkoutPricer) withoutDiscount(ctx context.Context, priced pricedCheckout, clientTotal *float64, reason error) (pricedCheckout, error) {
	priced.Discount = nil
	priced.DiscountResult = nil
	priced.DroppedDiscount = reason
	return p.total(ctx, priced, clientTotal)
}

func (p checkoutPricer) total(ctx context.Context, priced pricedCheckout, clientTotal *float64) (pricedCheckout, error) {
	totals, err := CalculateTotals(TotalsInput{
		Lines:          priced.Lines,
		DeliveryFee:    priced.DeliveryFee,
		Tax:            priced.Tax,
		Discount:       priced.DiscountResult,
		ClientTotal:    clientTotal,
		ClientSubtotal: priced.ClientSubtotal,
		Tolerance:      p.tolerance,
	})
	if err != nil {
		return pricedCheckout{}, err
	}
	if totals.TotalMismatch {
		p.logger(ctx, "order.total.mismatch", map[string]any{
			"severity":    "WARNING",
			"clientTotal": *clientTotal,
			"serverTotal": totals.Total,
		})
	}
	if totals.SubtotalMismatch {
		p.logger(ctx, "order.subtotal.mismatch", map[string]any{
			"severity":       "WARNING",
			"clientSubtotal": *priced.ClientSubtotal,
			"serverSubtotal": totals.Subtotal,
		})
	}
	priced.Totals = totals
	return priced, nil
}

func (p checkoutPricer) loadSettings(ctx context.Context) StoreSettings {
	if p.settings == nil {
		return StoreSettings{}
	}
	settings, err := p.settings.StoreSettings(ctx)
	if err != nil {
		p.logger(ctx, "order.settings.unavailable", map[string]any{"error": err.Error()})
		return StoreSettings{}
	}
	return settings
}

func (p checkoutPricer) resolveCurrency(requested string, settings StoreSettings) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(requested))
	if code == "" {
		code = strings.ToUpper(strings.TrimSpace(settings.Currency))
	}
	if code == "" {
		code = strings.ToUpper(strings.TrimSpace(p.defaultCurrency))
	}
	if code == "" {
		code = defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrOrderInvalidInput, code)
	}
	return unit.String(), nil
}

// resolveDeliveryFee prefers an explicit fee, then the chosen delivery option, and waives the fee
// once the subtotal reaches the store's free shipping threshold.
func resolveDeliveryFee(checkout CheckoutSnapshot, settings StoreSettings, subtotal float64) float64 {
	fee := checkout.DeliveryFee
	if fee <= 0 && checkout.DeliveryAddress != nil && checkout.DeliveryAddress.DeliveryOption != nil {
		fee = checkout.DeliveryAddress.DeliveryOption.Price
	}
	if fee < 0 {
		fee = 0
	}
	if threshold := settings.FreeShippingThreshold; threshold != nil && *threshold > 0 && subtotal >= *threshold {
		return 0
	}
	return domain.Round2(fee)
}
