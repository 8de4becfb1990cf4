package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "shop-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "shop-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Orders.DiscountPolicy != "lenient" {
		t.Errorf("expected lenient discount policy, got %s", cfg.Orders.DiscountPolicy)
	}
	if cfg.Orders.TotalTolerance != 0.5 {
		t.Errorf("expected tolerance 0.5, got %v", cfg.Orders.TotalTolerance)
	}
	if cfg.Orders.OrderNumberPrefix != "ORD" {
		t.Errorf("expected ORD prefix, got %s", cfg.Orders.OrderNumberPrefix)
	}
	if cfg.Payments.PaystackSignatureHeader != "X-Paystack-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Payments.PaystackSignatureHeader)
	}
	if cfg.Payments.DefaultCurrency != "GHS" {
		t.Errorf("unexpected default currency %s", cfg.Payments.DefaultCurrency)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled without address")
	}
	if cfg.Redis.SettingsTTL != defaultSettingsTTL {
		t.Errorf("unexpected settings ttl %s", cfg.Redis.SettingsTTL)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                        "9090",
		"API_SERVER_IDLE_TIMEOUT":                "2m",
		"API_FIREBASE_PROJECT_ID":                "shop-prod",
		"API_FIRESTORE_PROJECT_ID":               "shop-fire",
		"API_PUBSUB_NOTIFICATIONS_TOPIC":         "notifications",
		"API_PUBSUB_ORDER_EVENTS_TOPIC":          "order-events",
		"API_REDIS_ADDR":                         "127.0.0.1:6379",
		"API_REDIS_PASSWORD":                     "secret://redis/password",
		"API_REDIS_SETTINGS_TTL":                 "1m",
		"API_STORAGE_WEBHOOK_ARCHIVE_BUCKET":     "webhook-archive",
		"API_PAYMENTS_DEFAULT_PROVIDER":          "Stripe",
		"API_PAYMENTS_DEFAULT_CURRENCY":          "ngn",
		"API_PAYMENTS_PAYSTACK_SECRET_KEY":       "secret://paystack/secret",
		"API_PAYMENTS_PAYSTACK_SIGNATURE_HEADER": "X-Custom-Signature",
		"API_PAYMENTS_STRIPE_API_KEY":            "secret://stripe/api",
		"API_ORDERS_DISCOUNT_POLICY":             "STRICT",
		"API_ORDERS_TOTAL_TOLERANCE":             "0.25",
		"API_ORDERS_ADMIN_EMAIL":                 "ops@example.com",
		"API_SENTRY_DSN":                         "secret://sentry/dsn",
		"API_SECURITY_ENVIRONMENT":               "prod",
		"API_SECURITY_OIDC_AUDIENCES":            "prod=https://service.example.com",
		"API_IDEMPOTENCY_HEADER":                 "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                    "48h",
	}

	secrets := map[string]string{
		"secret://paystack/secret": "sk_live_123",
		"secret://stripe/api":      "stripe-key",
		"secret://redis/password":  "redis-pass",
		"secret://sentry/dsn":      "https://key@sentry.example.com/1",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PubSub.ProjectID != "shop-fire" {
		t.Errorf("expected pubsub project from firestore, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Payments.PaystackSecretKey != "sk_live_123" {
		t.Errorf("expected resolved paystack key, got %s", cfg.Payments.PaystackSecretKey)
	}
	if cfg.Payments.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe key, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Payments.DefaultProvider != "stripe" {
		t.Errorf("expected lowercased provider, got %s", cfg.Payments.DefaultProvider)
	}
	if cfg.Payments.DefaultCurrency != "NGN" {
		t.Errorf("expected uppercased currency, got %s", cfg.Payments.DefaultCurrency)
	}
	if cfg.Payments.PaystackSignatureHeader != "X-Custom-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Payments.PaystackSignatureHeader)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Password != "redis-pass" {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Redis.SettingsTTL != time.Minute {
		t.Errorf("unexpected settings ttl %s", cfg.Redis.SettingsTTL)
	}
	if cfg.Orders.DiscountPolicy != "strict" {
		t.Errorf("expected strict policy, got %s", cfg.Orders.DiscountPolicy)
	}
	if cfg.Orders.TotalTolerance != 0.25 {
		t.Errorf("unexpected tolerance %v", cfg.Orders.TotalTolerance)
	}
	if cfg.Observability.SentryDSN != "https://key@sentry.example.com/1" {
		t.Errorf("expected resolved sentry dsn, got %s", cfg.Observability.SentryDSN)
	}
	if cfg.Security.OIDC.Audience != "https://service.example.com" {
		t.Errorf("expected audience resolved from environment map, got %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Storage.WebhookArchiveBucket != "webhook-archive" {
		t.Errorf("unexpected archive bucket %s", cfg.Storage.WebhookArchiveBucket)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadRejectsUnknownDiscountPolicy(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":    "shop-dev",
		"API_ORDERS_DISCOUNT_POLICY": "sometimes",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) != 1 || fields[0] != "Orders.DiscountPolicy" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=shop-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "shop-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":          "shop-dev",
		"API_PAYMENTS_PAYSTACK_SECRET_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "shop-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.PaystackSecretKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Payments.PaystackSecretKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":          "shop-dev",
		"API_PAYMENTS_PAYSTACK_SECRET_KEY": "sm://paystack/secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://paystack/secret" {
			return "legacy-secret", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.PaystackSecretKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.PaystackSecretKey)
	}
}
