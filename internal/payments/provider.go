package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the charge as successful.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// EventChargeSuccess is the only webhook event that results in order creation.
const EventChargeSuccess = "charge.success"

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidSignature is returned when a webhook body fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMalformedWebhook is returned when a webhook body cannot be decoded.
	ErrMalformedWebhook = errors.New("payments: malformed webhook payload")
	// ErrPaymentNotFound is returned when the gateway has no record of a reference.
	ErrPaymentNotFound = errors.New("payments: payment not found")
	// ErrGateway wraps transport and non-success responses from a gateway.
	ErrGateway = errors.New("payments: gateway error")
)

// InitializeRequest captures the payload required to start a hosted checkout.
// Amount is expressed in the currency's minor unit.
type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
	Channels    []string
	Metadata    map[string]any
}

// Checkout is the gateway response returned to the client.
type Checkout struct {
	Provider         string
	Reference        string
	AuthorizationURL string
	AccessCode       string
	Raw              map[string]any
}

// PaymentDetails normalises gateway specific fields for reconciliation.
type PaymentDetails struct {
	Provider      string
	Reference     string
	Status        Status
	Amount        int64
	Currency      string
	Channel       string
	CustomerEmail string
	PaidAt        *time.Time
	Metadata      map[string]any
	Raw           map[string]any
}

// Succeeded reports whether the gateway considers the charge complete.
func (d PaymentDetails) Succeeded() bool {
	return d.Status == StatusSucceeded
}

// WebhookEvent is a decoded gateway callback.
type WebhookEvent struct {
	Provider string
	Event    string
	Payment  PaymentDetails
}

// IsChargeSuccess reports whether the event represents a successful charge.
func (e WebhookEvent) IsChargeSuccess() bool {
	return strings.EqualFold(strings.TrimSpace(e.Event), EventChargeSuccess)
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	InitializePayment(ctx context.Context, req InitializeRequest) (Checkout, error)
	VerifyPayment(ctx context.Context, reference string) (PaymentDetails, error)
}

// WebhookProvider is implemented by gateways that deliver signed callbacks.
type WebhookProvider interface {
	Provider
	SignatureHeader() string
	VerifyWebhookSignature(ctx context.Context, body []byte, signature string) error
	ParseWebhook(body []byte) (WebhookEvent, error)
}

// ToMinorUnits converts a major unit amount (e.g. 200.50) into minor units (20050).
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts minor units back into a two decimal major amount.
func FromMinorUnits(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap[ProviderPaystack]; ok {
		m.defaultProvider = ProviderPaystack
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := normaliseKey(ctx.PreferredProvider); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := normaliseKey(providerKey)
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := normaliseKey(m.defaultProvider); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// InitializePayment delegates to the resolved provider.
func (m *Manager) InitializePayment(ctx context.Context, paymentCtx PaymentContext, req InitializeRequest) (Checkout, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Checkout{}, err
	}
	checkout, err := provider.InitializePayment(ctx, req)
	if err != nil {
		return Checkout{}, err
	}
	checkout.Provider = key
	if checkout.Reference == "" {
		checkout.Reference = req.Reference
	}
	return checkout, nil
}

// VerifyPayment delegates to the resolved provider.
func (m *Manager) VerifyPayment(ctx context.Context, paymentCtx PaymentContext, reference string) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.VerifyPayment(ctx, reference)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}

// Webhook returns the named provider when it supports signed callbacks.
func (m *Manager) Webhook(name string) (WebhookProvider, error) {
	if m == nil {
		return nil, errors.New("payments: manager is nil")
	}
	provider, ok := m.providers[normaliseKey(name)]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	webhook, ok := provider.(WebhookProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept webhooks", ErrUnsupportedProvider, name)
	}
	return webhook, nil
}

// DefaultProvider reports the provider used when no hints match.
func (m *Manager) DefaultProvider() string {
	if m == nil {
		return ""
	}
	return normaliseKey(m.defaultProvider)
}

func normaliseKey(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err == nil {
		return meta
	}
	// Some integrations send metadata as a JSON encoded string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil && strings.TrimSpace(encoded) != "" {
		if err := json.Unmarshal([]byte(encoded), &meta); err == nil {
			return meta
		}
	}
	return nil
}
