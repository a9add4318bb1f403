// Package config loads the API configuration from the environment, an optional .env file and
// Secret Manager references.
package config

import "time"

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultSecurityIAPIssuer    = "https://cloud.google.com/iap"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencyBackend   = "firestore"
	defaultSignedURLTTL         = 15 * time.Minute
	defaultOrderEventsTopic     = "order-events"
	defaultNotificationsTopic   = "notifications"
	defaultRedisLockTTL         = 10 * time.Second
	defaultCurrency             = "INR"
	defaultCommissionRate       = 2.5
	defaultDeliveryDays         = 5
	defaultMaxQuantity          = 100
	defaultShippingMetroRate    = 4000
	defaultShippingStandardRate = 7000
	defaultShippingRemoteRate   = 12000
	defaultFreeShippingAbove    = 200000
	defaultNotificationMode     = "local"
	defaultNotificationWorkers  = 4
	defaultNotificationQueue    = 256
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PSP           PSPConfig
	PubSub        PubSubConfig
	Redis         RedisConfig
	Commerce      CommerceConfig
	Shipping      ShippingConfig
	Notifications NotificationConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig describes where seller statements are exported and how download links are signed.
type StorageConfig struct {
	StatementsBucket string
	SignerEmail      string
	SignerKey        string
	SignedURLTTL     time.Duration
}

// PSPConfig collects secrets for the payment gateway.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeAccountID     string
}

// PubSubConfig names the topics order events and notifications are published to.
type PubSubConfig struct {
	ProjectID          string
	OrderEventsTopic   string
	NotificationsTopic string
}

// RedisConfig enables the distributed order lock and the Redis idempotency store.
// Redis is optional; an empty Addr keeps everything in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// CommerceConfig carries marketplace-wide order rules.
type CommerceConfig struct {
	Currency              string
	DefaultCommissionRate float64
	CODEnabled            bool
	EstimatedDeliveryDays int
	MaxQuantity           int
}

// ShippingConfig holds zone rates in minor units keyed by postal-code prefix.
type ShippingConfig struct {
	MetroRate         int64
	StandardRate      int64
	RemoteRate        int64
	FreeShippingAbove int64
	MetroPrefixes     []string
	RemotePrefixes    []string
}

// NotificationConfig selects how notifications leave the process.
type NotificationConfig struct {
	Mode            string
	Workers         int
	QueueSize       int
	AdminRecipients []string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
	// ServiceAccounts restricts internal callers to these push or scheduler identities.
	ServiceAccounts []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}
