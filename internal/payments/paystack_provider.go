package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderPaystack is the registration key for the Paystack gateway.
const ProviderPaystack = "paystack"

const (
	defaultPaystackBaseURL         = "https://api.paystack.co"
	defaultPaystackSignatureHeader = "X-Paystack-Signature"
	maxPaystackResponseBytes       = 1 << 20
)

// SignatureVerifier validates webhook bodies against the gateway's shared secret.
type SignatureVerifier interface {
	Verify(ctx context.Context, body []byte, signature string) error
}

// PaystackLogger defines the logging contract for Paystack provider operations.
type PaystackLogger func(ctx context.Context, event string, fields map[string]any)

// PaystackProviderConfig configures the PaystackProvider.
type PaystackProviderConfig struct {
	SecretKey       string
	BaseURL         string
	CallbackURL     string
	SignatureHeader string
	HTTPClient      *http.Client
	Verifier        SignatureVerifier
	Logger          PaystackLogger
}

// PaystackProvider implements Provider and WebhookProvider over the Paystack REST API.
type PaystackProvider struct {
	secretKey       string
	baseURL         string
	callbackURL     string
	signatureHeader string
	client          *http.Client
	verifier        SignatureVerifier
	logger          PaystackLogger
}

// NewPaystackProvider constructs a Paystack provider.
func NewPaystackProvider(cfg PaystackProviderConfig) (*PaystackProvider, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("paystack: secret key is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("paystack: signature verifier is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultPaystackBaseURL
	}
	header := strings.TrimSpace(cfg.SignatureHeader)
	if header == "" {
		header = defaultPaystackSignatureHeader
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaystackProvider{
		secretKey:       secret,
		baseURL:         base,
		callbackURL:     strings.TrimSpace(cfg.CallbackURL),
		signatureHeader: header,
		client:          client,
		verifier:        cfg.Verifier,
		logger:          logger,
	}, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	PaidAt    string          `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

type paystackWebhook struct {
	Event string              `json:"event"`
	Data  paystackTransaction `json:"data"`
}

// InitializePayment starts a hosted checkout and returns the authorization URL.
func (p *PaystackProvider) InitializePayment(ctx context.Context, req InitializeRequest) (Checkout, error) {
	if strings.TrimSpace(req.Email) == "" {
		return Checkout{}, errors.New("paystack: email is required")
	}
	if req.Amount <= 0 {
		return Checkout{}, errors.New("paystack: amount must be positive")
	}

	payload := map[string]any{
		"email":  strings.TrimSpace(req.Email),
		"amount": req.Amount,
	}
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		payload["reference"] = ref
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" {
		payload["currency"] = currency
	}
	callback := strings.TrimSpace(req.CallbackURL)
	if callback == "" {
		callback = p.callbackURL
	}
	if callback != "" {
		payload["callback_url"] = callback
	}
	if len(req.Channels) > 0 {
		payload["channels"] = req.Channels
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data paystackInitializeData
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		p.logger(ctx, "paystack.initialize.error", map[string]any{"reference": req.Reference, "error": err.Error()})
		return Checkout{}, err
	}

	reference := data.Reference
	if reference == "" {
		reference = req.Reference
	}
	p.logger(ctx, "paystack.initialize.success", map[string]any{"reference": reference})
	return Checkout{
		Provider:         ProviderPaystack,
		Reference:        reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Raw: map[string]any{
			"authorization_url": data.AuthorizationURL,
			"access_code":       data.AccessCode,
		},
	}, nil
}

// VerifyPayment fetches the current gateway state for reference.
func (p *PaystackProvider) VerifyPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return PaymentDetails{}, errors.New("paystack: reference is required")
	}
	var txn paystackTransaction
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &txn); err != nil {
		return PaymentDetails{}, err
	}
	return txn.details(), nil
}

// SignatureHeader names the header carrying the webhook digest.
func (p *PaystackProvider) SignatureHeader() string {
	return p.signatureHeader
}

// VerifyWebhookSignature validates the HMAC-SHA512 digest of body.
func (p *PaystackProvider) VerifyWebhookSignature(ctx context.Context, body []byte, signature string) error {
	if err := p.verifier.Verify(ctx, body, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ParseWebhook decodes a Paystack event body.
func (p *PaystackProvider) ParseWebhook(body []byte) (WebhookEvent, error) {
	var hook paystackWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if strings.TrimSpace(hook.Event) == "" {
		return WebhookEvent{}, fmt.Errorf("%w: event is missing", ErrMalformedWebhook)
	}
	return WebhookEvent{
		Provider: ProviderPaystack,
		Event:    strings.TrimSpace(hook.Event),
		Payment:  hook.Data.details(),
	}, nil
}

func (t paystackTransaction) details() PaymentDetails {
	details := PaymentDetails{
		Provider:      ProviderPaystack,
		Reference:     strings.TrimSpace(t.Reference),
		Status:        paystackStatus(t.Status),
		Amount:        t.Amount,
		Currency:      strings.ToUpper(t.Currency),
		Channel:       t.Channel,
		CustomerEmail: strings.TrimSpace(t.Customer.Email),
		Metadata:      decodeMetadata(t.Metadata),
		Raw: map[string]any{
			"id":     t.ID,
			"status": t.Status,
		},
	}
	if t.PaidAt != "" {
		if ts, err := time.Parse(time.RFC3339, t.PaidAt); err == nil {
			paid := ts.UTC()
			details.PaidAt = &paid
		}
	}
	return details
}

func paystackStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return StatusSucceeded
	case "failed", "abandoned":
		return StatusFailed
	case "reversed":
		return StatusRefunded
	default:
		return StatusPending
	}
}

func (p *PaystackProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPaystackResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decode response (status %d): %v", ErrGateway, resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, envelope.Message)
	}
	if resp.StatusCode >= 300 || !envelope.Status {
		return fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrGateway, err)
	}
	return nil
}
