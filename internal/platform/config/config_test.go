package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func minimalEnv(extra map[string]string) map[string]string {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":       "bb-dev",
		"API_STORAGE_STATEMENTS_BUCKET": "boibabu-statements-dev",
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, minimalEnv(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(ServerConfig{Port: "8080", ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 2 * time.Minute}, cfg.Server); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if cfg.Firestore.ProjectID != "bb-dev" {
		t.Fatalf("expected %v, got %v", "bb-dev", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "bb-dev" {
		t.Fatalf("expected %v, got %v", "bb-dev", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventsTopic {
		t.Fatalf("expected %v, got %v", defaultOrderEventsTopic, cfg.PubSub.OrderEventsTopic)
	}

	want := CommerceConfig{Currency: "INR", DefaultCommissionRate: 2.5, CODEnabled: true, EstimatedDeliveryDays: 5, MaxQuantity: 100}
	if diff := cmp.Diff(want, cfg.Commerce); diff != "" {
		t.Fatalf("commerce defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Shipping.FreeShippingAbove != 200000 {
		t.Fatalf("expected %v, got %v", 200000, cfg.Shipping.FreeShippingAbove)
	}
	if len(cfg.Shipping.MetroPrefixes) != 0 {
		t.Fatalf("expected no metro prefixes, got %v", cfg.Shipping.MetroPrefixes)
	}
	if cfg.Notifications.Mode != "local" {
		t.Fatalf("expected %v, got %v", "local", cfg.Notifications.Mode)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected empty, got %q", cfg.Redis.Addr)
	}
	if cfg.Security.Environment != "local" {
		t.Fatalf("expected %v, got %v", "local", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Fatalf("expected %v, got %v", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if diff := cmp.Diff([]string{defaultSecurityIssuer, defaultSecurityIAPIssuer}, cfg.Security.OIDC.Issuers); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	wantIdempotency := IdempotencyConfig{
		Backend:          "firestore",
		Header:           defaultIdempotencyHeader,
		TTL:              defaultIdempotencyTTL,
		CleanupInterval:  defaultIdempotencyInterval,
		CleanupBatchSize: defaultIdempotencyBatchSize,
	}
	if diff := cmp.Diff(wantIdempotency, cfg.Idempotency); diff != "" {
		t.Fatalf("idempotency defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesAndSecrets(t *testing.T) {
	env := minimalEnv(map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_FIREBASE_PROJECT_ID":            "bb-prod",
		"API_FIRESTORE_PROJECT_ID":           "bb-fire",
		"API_STORAGE_SIGNER_KEY":             "secret://storage/signer",
		"API_STORAGE_SIGNED_URL_TTL":         "30m",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":      "sm://stripe/webhook",
		"API_REDIS_ADDR":                     "redis:6379",
		"API_REDIS_PASSWORD":                 "secret://redis/password",
		"API_REDIS_DB":                       "2",
		"API_COMMERCE_COMMISSION_RATE":       "4.75",
		"API_COMMERCE_COD_ENABLED":           "off",
		"API_SHIPPING_METRO_RATE":            "3000",
		"API_SHIPPING_METRO_PREFIXES":        "11, 40,,56",
		"API_NOTIFICATIONS_MODE":             "PubSub",
		"API_NOTIFICATIONS_ADMIN_RECIPIENTS": "admin-1,admin-2",
		"API_SECURITY_ENVIRONMENT":           "prod",
		"API_SECURITY_OIDC_AUDIENCE":         "https://orders.boibabu.in",
		"API_SECURITY_OIDC_SERVICE_ACCOUNTS": "push@bb-prod.iam.gserviceaccount.com",
		"API_IDEMPOTENCY_BACKEND":            "Redis",
		"API_IDEMPOTENCY_TTL":                "48h",
	})
	secrets := map[string]string{
		"secret://stripe/api":     "sk_live_x",
		"secret://stripe/webhook": "whsec_x",
		"secret://storage/signer": "pem",
		"secret://redis/password": "redis-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := load(t, env, WithSecretResolver(resolver), WithRequiredSecrets("PSP.StripeAPIKey", "PSP.StripeWebhookSecret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected %v, got %v", "9090", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "bb-fire" {
		t.Fatalf("expected %v, got %v", "bb-fire", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "bb-prod" {
		t.Fatalf("expected %v, got %v", "bb-prod", cfg.PubSub.ProjectID)
	}
	if diff := cmp.Diff(PSPConfig{StripeAPIKey: "sk_live_x", StripeWebhookSecret: "whsec_x"}, cfg.PSP); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if cfg.Storage.SignerKey != "pem" {
		t.Fatalf("expected %v, got %v", "pem", cfg.Storage.SignerKey)
	}
	if cfg.Storage.SignedURLTTL != 30*time.Minute {
		t.Fatalf("expected %v, got %v", 30*time.Minute, cfg.Storage.SignedURLTTL)
	}
	if cfg.Redis.Password != "redis-pass" {
		t.Fatalf("expected %v, got %v", "redis-pass", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 2 {
		t.Fatalf("expected %v, got %v", 2, cfg.Redis.DB)
	}
	if cfg.Commerce.DefaultCommissionRate != 4.75 {
		t.Fatalf("expected %v, got %v", 4.75, cfg.Commerce.DefaultCommissionRate)
	}
	if cfg.Commerce.CODEnabled {
		t.Fatalf("unexpected %s", `cfg.Commerce.CODEnabled`)
	}
	if cfg.Shipping.MetroRate != 3000 {
		t.Fatalf("expected %v, got %v", 3000, cfg.Shipping.MetroRate)
	}
	if cfg.Shipping.StandardRate != defaultShippingStandardRate {
		t.Fatalf("expected %v, got %v", defaultShippingStandardRate, cfg.Shipping.StandardRate)
	}
	if diff := cmp.Diff([]string{"11", "40", "56"}, cfg.Shipping.MetroPrefixes); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if cfg.Notifications.Mode != "pubsub" {
		t.Fatalf("expected %v, got %v", "pubsub", cfg.Notifications.Mode)
	}
	if len(cfg.Notifications.AdminRecipients) != 2 {
		t.Fatalf("expected length %d, got %d", 2, len(cfg.Notifications.AdminRecipients))
	}
	if cfg.Security.OIDC.Audience != "https://orders.boibabu.in" {
		t.Fatalf("expected %v, got %v", "https://orders.boibabu.in", cfg.Security.OIDC.Audience)
	}
	if diff := cmp.Diff([]string{"push@bb-prod.iam.gserviceaccount.com"}, cfg.Security.OIDC.ServiceAccounts); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if cfg.Idempotency.Backend != "redis" {
		t.Fatalf("expected %v, got %v", "redis", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Fatalf("expected %v, got %v", 48*time.Hour, cfg.Idempotency.TTL)
	}
}

func TestLoadAudienceFromEnvironmentMap(t *testing.T) {
	cfg, err := load(t, minimalEnv(map[string]string{
		"API_SECURITY_ENVIRONMENT":    "Staging",
		"API_SECURITY_OIDC_AUDIENCES": "staging=https://stg.boibabu.in, prod=https://orders.boibabu.in",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Security.OIDC.Audience != "https://stg.boibabu.in" {
		t.Fatalf("expected %v, got %v", "https://stg.boibabu.in", cfg.Security.OIDC.Audience)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	content := "# local\nAPI_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=bb-dot\nexport API_STORAGE_STATEMENTS_BUCKET=\"statements-dot\"\nnot a pair\n"
	if os.WriteFile(path, []byte(content), 0o600) != nil {
		t.Fatalf("unexpected error: %v", os.WriteFile(path, []byte(content), 0o600))
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected %v, got %v", "7070", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "bb-dot" {
		t.Fatalf("expected %v, got %v", "bb-dot", cfg.Firebase.ProjectID)
	}
	if cfg.Storage.StatementsBucket != "statements-dot" {
		t.Fatalf("expected %v, got %v", "statements-dot", cfg.Storage.StatementsBucket)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := load(t, map[string]string{})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected %T in chain, got %v", &validation, err)
	}
	for _, field := range []string{"Firebase.ProjectID", "Firestore.ProjectID", "Storage.StatementsBucket"} {
		if !slices.Contains(validation.Fields(), field) {
			t.Fatalf("expected %s in %v", field, validation.Fields())
		}
	}

	tests := []struct {
		key, value, field string
	}{
		{"API_COMMERCE_COMMISSION_RATE", "120", "Commerce.DefaultCommissionRate"},
		{"API_COMMERCE_COMMISSION_RATE", "-1", "Commerce.DefaultCommissionRate"},
		{"API_COMMERCE_CURRENCY", "rupee", "Commerce.Currency"},
		{"API_NOTIFICATIONS_MODE", "smtp", "Notifications.Mode"},
		{"API_IDEMPOTENCY_BACKEND", "redis", "Redis.Addr"},
		{"API_IDEMPOTENCY_BACKEND", "etcd", "Idempotency.Backend"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			_, err := load(t, minimalEnv(map[string]string{tc.key: tc.value}))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected %T in chain, got %v", &validation, err)
			}
			if !slices.Contains(validation.Fields(), tc.field) {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretErrors(t *testing.T) {
	_, err := load(t, minimalEnv(map[string]string{"API_PSP_STRIPE_API_KEY": "secret://missing"}))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected %T in chain, got %v", &secretErr, err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Fatalf("expected %v, got %v", "secret://missing", secretErr.Ref)
	}
	if !errors.Is(err, errNoSecretResolver) {
		t.Fatalf("expected %v, got %v", errNoSecretResolver, err)
	}

	_, err = load(t, minimalEnv(nil), WithRequiredSecrets("PSP.StripeWebhookSecret", "PSP.StripeWebhookSecret"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected %T in chain, got %v", &missing, err)
	}
	if diff := cmp.Diff([]string{"PSP.StripeWebhookSecret"}, missing.Names()); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{redactSecretName("PSP.StripeWebhookSecret")}, missing.RedactedNames()); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}
	if strings.Contains(missing.Error(), "StripeWebhookSecret") {
		t.Fatalf("expected %q not to contain %q", missing.Error(), "StripeWebhookSecret")
	}
}

func TestEnvironmentValuesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	if os.WriteFile(path, []byte("API_FIREBASE_PROJECT_ID=dot\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"), 0o600) != nil {
		t.Fatalf("unexpected error: %v", os.WriteFile(path, []byte("API_FIREBASE_PROJECT_ID=dot\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"), 0o600))
	}
	t.Setenv("API_FIREBASE_PROJECT_ID", "os")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=bb-prod")

	values, err := EnvironmentValues(WithEnvFile(path), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "explicit",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["API_FIREBASE_PROJECT_ID"] != "explicit" {
		t.Fatalf("expected %v, got %v", "explicit", values["API_FIREBASE_PROJECT_ID"])
	}
	if values["API_SECRET_FALLBACK_FILE"] != ".dot.local" {
		t.Fatalf("expected %v, got %v", ".dot.local", values["API_SECRET_FALLBACK_FILE"])
	}
	if values["API_SECRET_PROJECT_IDS"] != "prod=bb-prod" {
		t.Fatalf("expected %v, got %v", "prod=bb-prod", values["API_SECRET_PROJECT_IDS"])
	}
	if values["API_SECRET_VERSION_PINS"] != "secret://stripe/api=5" {
		t.Fatalf("expected %v, got %v", "secret://stripe/api=5", values["API_SECRET_VERSION_PINS"])
	}
}
