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
		"API_FIREBASE_PROJECT_ID": "oakmart-dev",
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
	if cfg.Firestore.ProjectID != "oakmart-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Jobs.ProjectID != "oakmart-dev" {
		t.Errorf("expected jobs project to default to firebase project, got %s", cfg.Jobs.ProjectID)
	}
	if cfg.Checkout.Currency != defaultCurrency {
		t.Errorf("expected default currency %s, got %s", defaultCurrency, cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFee != defaultShippingFee {
		t.Errorf("unexpected default shipping fee: %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Checkout.TransferTolerance != defaultTransferTolerance {
		t.Errorf("unexpected default transfer tolerance: %d", cfg.Checkout.TransferTolerance)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if !cfg.Features.EnableAutoCampaigns {
		t.Error("expected auto campaigns enabled by default")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                     "9090",
		"API_SERVER_READ_TIMEOUT":             "20s",
		"API_SERVER_IDLE_TIMEOUT":             "2m",
		"API_FIREBASE_PROJECT_ID":             "oakmart-prod",
		"API_FIRESTORE_PROJECT_ID":            "oakmart-fire",
		"API_PSP_PAYLINK_MERCHANT_CODE":       "OAK0001",
		"API_PSP_PAYLINK_SECRET":              "secret://paylink/secret",
		"API_PSP_PAYLINK_HOSTED_PAGE_URL":     "https://pay.example.com/session",
		"API_PSP_STRIPE_API_KEY":              "secret://stripe/api",
		"API_CHECKOUT_CURRENCY":               "usd",
		"API_CHECKOUT_SHIPPING_FEE":           "1200",
		"API_CHECKOUT_FREE_SHIPPING_OVER":     "20000",
		"API_CHECKOUT_TRANSFER_TOLERANCE":     "5",
		"API_CHECKOUT_BANK_TRANSFER_DEADLINE": "72h",
		"API_CHECKOUT_BANK_ACCOUNTS":          "eur=DE89 3704 0044 0532 0130 00,usd=US12 3456",
		"API_JOBS_ORDER_EVENTS_TOPIC":         "oakmart-order-events",
		"API_RATELIMIT_DEFAULT_PER_MIN":       "150",
		"API_FEATURE_AUTO_CAMPAIGNS":          "false",
		"API_IDEMPOTENCY_HEADER":              "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                 "48h",
		"API_ENVIRONMENT":                     "PROD",
	}

	secrets := map[string]string{
		"secret://paylink/secret": "paylink-secret",
		"secret://stripe/api":     "stripe-key",
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
	if cfg.Firestore.ProjectID != "oakmart-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.PayLink.Secret != "paylink-secret" {
		t.Errorf("expected resolved paylink secret, got %s", cfg.PSP.PayLink.Secret)
	}
	if cfg.PSP.Stripe.APIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.Stripe.APIKey)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected uppercased currency USD, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFee != 1200 {
		t.Errorf("unexpected shipping fee %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Checkout.FreeShippingOver != 20000 {
		t.Errorf("unexpected free shipping threshold %d", cfg.Checkout.FreeShippingOver)
	}
	if cfg.Checkout.TransferTolerance != 5 {
		t.Errorf("unexpected transfer tolerance %d", cfg.Checkout.TransferTolerance)
	}
	if cfg.Checkout.BankTransferDeadline != 72*time.Hour {
		t.Errorf("unexpected bank transfer deadline %s", cfg.Checkout.BankTransferDeadline)
	}
	if got := cfg.Checkout.BankAccounts["EUR"]; got != "DE89 3704 0044 0532 0130 00" {
		t.Errorf("unexpected EUR bank account %q", got)
	}
	if cfg.Jobs.OrderEventsTopic != "oakmart-order-events" {
		t.Errorf("unexpected order events topic %s", cfg.Jobs.OrderEventsTopic)
	}
	if cfg.Features.EnableAutoCampaigns {
		t.Error("expected auto campaigns disabled")
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Environment != "prod" {
		t.Errorf("expected lowercased environment prod, got %s", cfg.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=oakmart-dot\n"
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
	if cfg.Firebase.ProjectID != "oakmart-dot" {
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
		"API_FIREBASE_PROJECT_ID": "oakmart-dev",
		"API_PSP_PAYLINK_SECRET":  "secret://missing",
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
		"API_SECRET_VERSION_PINS": "secret://paylink/secret=5",
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
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://paylink/secret=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "oakmart-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.PayLink.Secret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.PayLink.Secret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "oakmart-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.PayLink.Secret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.PayLink.Secret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "oakmart-dev",
		"API_PSP_PAYLINK_SECRET":  "sm://paylink/secret",
	}

	secrets := map[string]string{
		"secret://paylink/secret": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
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
	if cfg.PSP.PayLink.Secret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.PayLink.Secret)
	}
}
