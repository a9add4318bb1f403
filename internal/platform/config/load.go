package config

import (
	"context"
	"fmt"
	"strings"
)

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func defaultLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEnvFile points at a dotenv file; "" disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets names secret fields, e.g. "PSP.StripeAPIKey", that must be non-empty.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged key/value view Load reads from, so the secret fetcher
// can be configured before Load resolves references through it.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(defaultLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.values(), nil
}

// Load builds the Config, resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := defaultLoaderOptions(opts)
	src, err := newSource(o)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  src.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: src.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  src.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.raw("API_FIREBASE_PROJECT_ID"),
			CredentialsFile: src.raw("API_FIREBASE_CREDENTIALS_FILE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.raw("API_FIRESTORE_PROJECT_ID"),
			EmulatorHost: src.raw("API_FIRESTORE_EMULATOR_HOST"),
		},
		Storage: StorageConfig{
			StatementsBucket: src.raw("API_STORAGE_STATEMENTS_BUCKET"),
			SignerEmail:      src.raw("API_STORAGE_SIGNER_EMAIL"),
			SignerKey:        src.raw("API_STORAGE_SIGNER_KEY"),
			SignedURLTTL:     src.duration("API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey:        src.raw("API_PSP_STRIPE_API_KEY"),
			StripeWebhookSecret: src.raw("API_PSP_STRIPE_WEBHOOK_SECRET"),
			StripeAccountID:     src.raw("API_PSP_STRIPE_ACCOUNT_ID"),
		},
		PubSub: PubSubConfig{
			ProjectID:          src.raw("API_PUBSUB_PROJECT_ID"),
			OrderEventsTopic:   src.str("API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
			NotificationsTopic: src.str("API_PUBSUB_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
		},
		Redis: RedisConfig{
			Addr:     src.raw("API_REDIS_ADDR"),
			Password: src.raw("API_REDIS_PASSWORD"),
			DB:       src.integer("API_REDIS_DB", 0),
			LockTTL:  src.duration("API_REDIS_LOCK_TTL", defaultRedisLockTTL),
		},
		Commerce: CommerceConfig{
			Currency:              strings.ToUpper(src.str("API_COMMERCE_CURRENCY", defaultCurrency)),
			DefaultCommissionRate: src.percent("API_COMMERCE_COMMISSION_RATE", defaultCommissionRate),
			CODEnabled:            src.flag("API_COMMERCE_COD_ENABLED", true),
			EstimatedDeliveryDays: src.integer("API_COMMERCE_DELIVERY_DAYS", defaultDeliveryDays),
			MaxQuantity:           src.integer("API_COMMERCE_MAX_QUANTITY", defaultMaxQuantity),
		},
		Shipping: ShippingConfig{
			MetroRate:         src.paise("API_SHIPPING_METRO_RATE", defaultShippingMetroRate),
			StandardRate:      src.paise("API_SHIPPING_STANDARD_RATE", defaultShippingStandardRate),
			RemoteRate:        src.paise("API_SHIPPING_REMOTE_RATE", defaultShippingRemoteRate),
			FreeShippingAbove: src.paise("API_SHIPPING_FREE_ABOVE", defaultFreeShippingAbove),
			MetroPrefixes:     src.list("API_SHIPPING_METRO_PREFIXES"),
			RemotePrefixes:    src.list("API_SHIPPING_REMOTE_PREFIXES"),
		},
		Notifications: NotificationConfig{
			Mode:            src.lower("API_NOTIFICATIONS_MODE", defaultNotificationMode),
			Workers:         src.integer("API_NOTIFICATIONS_WORKERS", defaultNotificationWorkers),
			QueueSize:       src.integer("API_NOTIFICATIONS_QUEUE_SIZE", defaultNotificationQueue),
			AdminRecipients: src.list("API_NOTIFICATIONS_ADMIN_RECIPIENTS"),
		},
		Security: SecurityConfig{
			Environment: src.lower("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment),
			OIDC: OIDCConfig{
				JWKSURL:         src.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        src.raw("API_SECURITY_OIDC_AUDIENCE"),
				Audiences:       src.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:         src.list("API_SECURITY_OIDC_ISSUERS"),
				ServiceAccounts: src.list("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Backend:          src.lower("API_IDEMPOTENCY_BACKEND", defaultIdempotencyBackend),
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}
	applyDerivedDefaults(&cfg)

	resolved, err := resolveSecrets(ctx, o.secret, map[string]*string{
		"PSP.StripeAPIKey":        &cfg.PSP.StripeAPIKey,
		"PSP.StripeWebhookSecret": &cfg.PSP.StripeWebhookSecret,
		"Storage.SignerKey":       &cfg.Storage.SignerKey,
		"Redis.Password":          &cfg.Redis.Password,
	})
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if err := missingSecrets(o.requiredSecrets, resolved); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDerivedDefaults fills project IDs from the Firebase project and picks the OIDC audience
// for the current environment.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	oidc := &cfg.Security.OIDC
	if len(oidc.Issuers) == 0 {
		oidc.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if oidc.Audience == "" {
		oidc.Audience = oidc.Audiences[cfg.Security.Environment]
	}
}

// ValidationError lists config fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

func (c Config) validate() error {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	check(c.Server.Port != "", "Server.Port")
	check(c.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(c.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(c.Storage.StatementsBucket != "", "Storage.StatementsBucket")
	check(len(c.Commerce.Currency) == 3, "Commerce.Currency")
	check(c.Commerce.DefaultCommissionRate >= 0 && c.Commerce.DefaultCommissionRate <= 100, "Commerce.DefaultCommissionRate")
	check(c.Commerce.MaxQuantity > 0, "Commerce.MaxQuantity")
	check(c.Shipping.MetroRate >= 0 && c.Shipping.StandardRate >= 0 && c.Shipping.RemoteRate >= 0, "Shipping.Rates")
	check(c.Notifications.Mode == "local" || c.Notifications.Mode == "pubsub", "Notifications.Mode")
	check(c.Notifications.Workers > 0, "Notifications.Workers")

	switch c.Idempotency.Backend {
	case "firestore", "memory":
	case "redis":
		check(c.Redis.Addr != "", "Redis.Addr")
	default:
		check(false, "Idempotency.Backend")
	}
	check(c.Idempotency.Header != "", "Idempotency.Header")
	check(c.Idempotency.TTL > 0, "Idempotency.TTL")
	check(c.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(c.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}
