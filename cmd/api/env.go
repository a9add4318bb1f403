package main

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/boibabu/api/internal/platform/config"
	"github.com/boibabu/api/internal/platform/secrets"
	"github.com/boibabu/api/internal/services"
)

// Variables whose presence makes the matching secret mandatory at startup.
var optionalSecrets = map[string]string{
	"API_PSP_STRIPE_API_KEY":        "PSP.StripeAPIKey",
	"API_PSP_STRIPE_WEBHOOK_SECRET": "PSP.StripeWebhookSecret",
	"API_STORAGE_SIGNER_KEY":        "Storage.SignerKey",
	"API_REDIS_PASSWORD":            "Redis.Password",
}

func envValue(env map[string]string, key string) string {
	return strings.TrimSpace(env[key])
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     lo.CoalesceOrEmpty(envValue(env, "API_BUILD_VERSION"), "dev"),
		CommitSHA:   lo.CoalesceOrEmpty(envValue(env, "API_BUILD_COMMIT_SHA"), "unknown"),
		Environment: lo.CoalesceOrEmpty(strings.TrimSpace(cfg.Security.Environment), "local"),
		StartedAt:   started,
	}
}

// newSecretFetcher is built from raw environment values because config.Load needs it to
// resolve secret:// references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(strings.ToLower(lo.CoalesceOrEmpty(envValue(env, "API_SECURITY_ENVIRONMENT"), "local"))),
		secrets.WithFallbackFile(lo.CoalesceOrEmpty(envValue(env, "API_SECRET_FALLBACK_FILE"), ".secrets.local")),
	}
	if project := lo.CoalesceOrEmpty(envValue(env, "API_SECRET_DEFAULT_PROJECT_ID"), envValue(env, "API_FIREBASE_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if projects := secretProjectMapFromEnv(env); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if file := envValue(env, "API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve. Configuring a Stripe key also
// demands the webhook secret, since unsigned callbacks are rejected.
func requiredSecretNames(env map[string]string) []string {
	var names []string
	for key, name := range optionalSecrets {
		if envValue(env, key) != "" {
			names = append(names, name)
		}
	}
	if envValue(env, "API_PSP_STRIPE_API_KEY") != "" {
		names = append(names, "PSP.StripeWebhookSecret")
	}
	names = lo.Uniq(names)
	slices.Sort(names)
	return names
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	return lo.MapKeys(pairs(env["API_SECRET_PROJECT_IDS"]), func(_ string, label string) string {
		return strings.ToLower(label)
	})
}

// secretVersionPinsFromEnv reads "[env:]ref=version" pairs. Refs are normalised to secret://.
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range pairs(env["API_SECRET_VERSION_PINS"]) {
		scope := ""
		if label, rest, ok := strings.Cut(ref, ":"); ok && !strings.HasPrefix(rest, "//") {
			scope = strings.ToLower(strings.TrimSpace(label)) + ":"
			ref = strings.TrimSpace(rest)
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[scope+ref] = version
	}
	return pins
}

// pairs parses "k=v,k2=v2", dropping malformed or empty entries.
func pairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if ok && key != "" && value != "" {
			out[key] = value
		}
	}
	return out
}
