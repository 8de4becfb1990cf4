package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
	"sync"
	"time"
)

// ErrSignatureMismatch reports a webhook body whose signature does not match the shared secret.
var ErrSignatureMismatch = errors.New("auth: signature mismatch")

// SecretProvider resolves shared secrets used for HMAC validation.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to the SecretProvider interface.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// StaticSecret returns a provider that always yields value.
func StaticSecret(value string) SecretProvider {
	return SecretProviderFunc(func(context.Context, string) (string, error) {
		if strings.TrimSpace(value) == "" {
			return "", errors.New("auth: secret is empty")
		}
		return value, nil
	})
}

// BodySignatureVerifier checks hex encoded HMAC digests computed over raw request bodies, the
// scheme payment gateways use for webhook callbacks.
type BodySignatureVerifier struct {
	provider   SecretProvider
	secretName string
	newHash    func() hash.Hash

	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time

	mu     sync.Mutex
	secret []byte
}

// BodySignatureOption customises the verifier.
type BodySignatureOption func(*BodySignatureVerifier)

// WithSHA256 switches the digest from SHA-512 to SHA-256.
func WithSHA256() BodySignatureOption {
	return func(v *BodySignatureVerifier) {
		v.newHash = sha256.New
	}
}

// WithSignatureLogger overrides the verifier logger.
func WithSignatureLogger(logger Logger) BodySignatureOption {
	return func(v *BodySignatureVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSignatureMetrics records verification outcomes.
func WithSignatureMetrics(metrics MetricsRecorder) BodySignatureOption {
	return func(v *BodySignatureVerifier) {
		v.metrics = metrics
	}
}

// NewBodySignatureVerifier constructs a verifier that resolves secretName lazily through provider.
// The resolved secret is cached for the lifetime of the verifier.
func NewBodySignatureVerifier(provider SecretProvider, secretName string, opts ...BodySignatureOption) *BodySignatureVerifier {
	v := &BodySignatureVerifier{
		provider:   provider,
		secretName: secretName,
		newHash:    sha512.New,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Sign returns the hex digest for body.
func (v *BodySignatureVerifier) Sign(ctx context.Context, body []byte) (string, error) {
	secret, err := v.loadSecret(ctx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(computeHMAC(v.newHash, secret, body)), nil
}

// Verify compares signature against the digest of body in constant time.
func (v *BodySignatureVerifier) Verify(ctx context.Context, body []byte, signature string) error {
	start := v.now()
	signature = strings.TrimSpace(signature)
	if signature == "" {
		v.record(ctx, false, "missing_signature", start)
		return ErrSignatureMismatch
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		v.record(ctx, false, "invalid_encoding", start)
		return ErrSignatureMismatch
	}

	secret, err := v.loadSecret(ctx)
	if err != nil {
		v.record(ctx, false, "secret_unavailable", start)
		return err
	}

	expected := computeHMAC(v.newHash, secret, body)
	if !hmac.Equal(expected, provided) {
		v.record(ctx, false, "mismatch", start)
		if v.logger != nil {
			v.logger.Printf("auth: webhook signature mismatch (secret=%s)", v.secretName)
		}
		return ErrSignatureMismatch
	}

	v.record(ctx, true, "", start)
	return nil
}

func (v *BodySignatureVerifier) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "webhook_signature", success, reason, v.now().Sub(start))
}

func (v *BodySignatureVerifier) loadSecret(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.secret) > 0 {
		return v.secret, nil
	}
	if v.provider == nil {
		return nil, errors.New("auth: secret provider not configured")
	}
	value, err := v.provider.GetSecret(ctx, v.secretName)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("auth: webhook secret is empty")
	}
	v.secret = []byte(value)
	return v.secret, nil
}

func computeHMAC(newHash func() hash.Hash, secret []byte, message []byte) []byte {
	mac := hmac.New(newHash, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
