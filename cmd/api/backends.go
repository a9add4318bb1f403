package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/boibabu/api/internal/di"
	"github.com/boibabu/api/internal/payments"
	"github.com/boibabu/api/internal/platform/config"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
	"github.com/boibabu/api/internal/platform/idempotency"
	"github.com/boibabu/api/internal/platform/jobs"
	"github.com/boibabu/api/internal/platform/locks"
	"github.com/boibabu/api/internal/platform/observability"
	"github.com/boibabu/api/internal/platform/secrets"
	pstorage "github.com/boibabu/api/internal/platform/storage"
	"github.com/boibabu/api/internal/repositories"
)

// backends holds the cloud clients. Redis, Pub/Sub and Cloud Storage are optional; the
// Firestore provider is owned by the repository registry once handed over.
type backends struct {
	logger    *zap.Logger
	firestore *pfirestore.Provider
	db        *firestore.Client
	redis     *redis.Client
	pubsub    *pubsub.Client
	storage   *gcs.Client
	closers   []func()
}

func openBackends(ctx context.Context, logger *zap.Logger, cfg config.Config) (*backends, error) {
	be := &backends{logger: logger, firestore: pfirestore.NewProvider(cfg.Firestore)}
	db, err := be.firestore.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: %w", err)
	}
	be.db = db

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		be.redis = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		be.onClose("redis", be.redis.Close)
	}
	if project := strings.TrimSpace(cfg.PubSub.ProjectID); project != "" {
		if be.pubsub, err = pubsub.NewClient(ctx, project); err != nil {
			be.Close()
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		be.onClose("pubsub", be.pubsub.Close)
	}
	if strings.TrimSpace(cfg.Storage.SignerKey) != "" {
		if be.storage, err = gcs.NewClient(ctx); err != nil {
			be.Close()
			return nil, fmt.Errorf("cloud storage: %w", err)
		}
		be.onClose("cloud storage", be.storage.Close)
	}
	return be, nil
}

func (be *backends) onClose(what string, fn func() error) {
	be.closers = append(be.closers, func() { closeLogged(be.logger, what, fn) })
}

// Close releases clients in reverse order of opening.
func (be *backends) Close() {
	for i := len(be.closers) - 1; i >= 0; i-- {
		be.closers[i]()
	}
	be.closers = nil
}

// externals builds the optional collaborators handed to the service container.
func (be *backends) externals(logger *zap.Logger, cfg config.Config) (di.Externals, error) {
	var ext di.Externals
	var err error

	if be.redis != nil {
		ext.Locker, err = locks.NewRedisLocker(be.redis, locks.WithLockTTL(cfg.Redis.LockTTL), locks.WithKeyPrefix("boibabu:orders:"))
		if err != nil {
			return ext, fmt.Errorf("order locker: %w", err)
		}
	} else {
		ext.Locker = locks.NewKeyedMutex()
	}

	if be.pubsub != nil {
		events := be.pubsub.Topic(cfg.PubSub.OrderEventsTopic)
		be.closers = append(be.closers, events.Stop)
		if ext.Events, err = jobs.NewPubSubOrderEventPublisher(events); err != nil {
			return ext, fmt.Errorf("order event publisher: %w", err)
		}
		if cfg.Notifications.Mode == "pubsub" {
			notifications := be.pubsub.Topic(cfg.PubSub.NotificationsTopic)
			be.closers = append(be.closers, notifications.Stop)
			if ext.NotificationSink, err = jobs.NewPubSubNotificationPublisher(notifications); err != nil {
				return ext, fmt.Errorf("notification publisher: %w", err)
			}
		}
	} else {
		logger.Warn("pubsub not configured; order events are only counted locally")
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Warn("stripe not configured; only cash on delivery orders can be placed")
	} else if ext.Payments, err = newPaymentGateway(logger.Named("payments"), cfg); err != nil {
		return ext, err
	}

	if be.storage == nil {
		logger.Warn("storage signer key not configured; statement export disabled")
	} else if ext.Statements, err = newStatementStore(be.storage, cfg); err != nil {
		return ext, fmt.Errorf("statement storage: %w", err)
	}
	return ext, nil
}

func newPaymentGateway(logger *zap.Logger, cfg config.Config) (*payments.Gateway, error) {
	stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		AccountID:     cfg.PSP.StripeAccountID,
		Logger:        observability.EventLogger(logger),
		Clock:         time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe provider: %w", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripe})
	if err != nil {
		return nil, fmt.Errorf("payment manager: %w", err)
	}
	return payments.NewGateway(manager)
}

func newStatementStore(client *gcs.Client, cfg config.Config) (*pstorage.StatementStore, error) {
	signer, err := pstorage.NewServiceAccountSignerFromJSON([]byte(strings.TrimSpace(cfg.Storage.SignerKey)))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	writer, err := pstorage.NewGCSWriter(client)
	if err != nil {
		return nil, err
	}
	return pstorage.NewStatementStore(cfg.Storage.StatementsBucket, writer, signer)
}

func (be *backends) idempotencyStore(cfg config.Config) (idempotency.Store, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		if be.redis == nil {
			return nil, errors.New("idempotency: redis backend selected without a redis address")
		}
		return idempotency.NewRedisStore(be.redis)
	case "memory":
		return idempotency.NewMemoryStore(), nil
	default:
		return idempotency.NewFirestoreStore(be.db), nil
	}
}

// healthChecks backs /readyz. Redis and Pub/Sub are optional: the engine falls back to
// in-process locks and direct notification delivery without them.
func (be *backends) healthChecks(fetcher *secrets.Fetcher, cfg config.Config, logger *zap.Logger) repositories.HealthRepository {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			_, err := be.db.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, "secret://system/healthz")
				if errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}
	if be.redis != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  500 * time.Millisecond,
			Optional: true,
			Check:    func(ctx context.Context) error { return be.redis.Ping(ctx).Err() },
		})
	}
	if be.pubsub != nil {
		topic := be.pubsub.Topic(cfg.PubSub.OrderEventsTopic)
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err == nil && !ok {
					err = fmt.Errorf("topic %s not found", topic.ID())
				}
				return err
			},
		})
	}
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Warn("readiness checks disabled", zap.Error(err))
		return nil
	}
	return health
}
