package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boibabu/api/internal/platform/config"
	"github.com/boibabu/api/internal/platform/jobs"
	"github.com/boibabu/api/internal/platform/locks"
	"github.com/boibabu/api/internal/platform/observability"
	"github.com/boibabu/api/internal/repositories"
	"github.com/boibabu/api/internal/services"
)

const notificationModePubSub = "pubsub"

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Settings      services.SettingsService
	Statements    services.StatementService
	Notifications services.NotificationService
	Counters      services.CounterService
	Coupons       services.CouponService
	Catalog       services.CatalogReader
	Shipping      services.ShippingCalculator
	System        services.SystemService
}

// Externals carries the clients built outside the container. Every field is optional:
// a missing gateway disables online payments, a missing event publisher only records metrics,
// a missing notification sink delivers straight into the in-app inbox and a missing statement
// store disables statement export.
type Externals struct {
	Locker           locks.Locker
	Payments         services.PaymentGateway
	Events           services.OrderEventPublisher
	NotificationSink jobs.NotificationSink
	Statements       services.StatementStorage
	Build            services.BuildInfo
	Logger           *zap.Logger
	Clock            func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Notifier     *jobs.NotificationWorker
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore and
// the cloud clients, while tests can supply the in-memory registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, ext Externals) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if ext.Logger == nil {
		ext.Logger = zap.NewNop()
	}
	if ext.Clock == nil {
		ext.Clock = time.Now
	}

	c := &Container{Config: cfg, Repositories: reg}
	if err := c.buildServices(ctx, ext); err != nil {
		if c.Notifier != nil {
			_ = c.Notifier.Close(context.Background())
		}
		return nil, err
	}
	return c, nil
}

// Close drains queued notifications, then releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Notifier != nil {
		if err := c.Notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notification worker: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildServices(_ context.Context, ext Externals) error {
	reg := c.Repositories
	cfg := c.Config
	logger := ext.Logger
	svc := &c.Services

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      ext.Clock,
	})
	if err != nil {
		return fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	settings, err := services.NewSettingsService(services.SettingsServiceDeps{
		Settings:    reg.Settings(),
		DefaultRate: cfg.Commerce.DefaultCommissionRate,
		Clock:       ext.Clock,
		Logger:      observability.EventLogger(logger.Named("settings")),
	})
	if err != nil {
		return fmt.Errorf("build settings service: %w", err)
	}
	svc.Settings = settings

	catalog, err := services.NewCatalogReader(reg.Books())
	if err != nil {
		return fmt.Errorf("build catalog reader: %w", err)
	}
	svc.Catalog = catalog

	coupons, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Clock:   ext.Clock,
	})
	if err != nil {
		return fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = coupons

	svc.Shipping = services.NewShippingCalculator(services.ShippingRates{
		Metro:                 cfg.Shipping.MetroRate,
		Standard:              cfg.Shipping.StandardRate,
		Remote:                cfg.Shipping.RemoteRate,
		FreeShippingThreshold: cfg.Shipping.FreeShippingAbove,
		MetroPrefixes:         cfg.Shipping.MetroPrefixes,
		RemotePrefixes:        cfg.Shipping.RemotePrefixes,
	})

	notifications, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Clock:         ext.Clock,
	})
	if err != nil {
		return fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notifications

	sink := ext.NotificationSink
	if sink == nil {
		if cfg.Notifications.Mode == notificationModePubSub {
			return errors.New("build notification worker: pubsub mode requires a notification sink")
		}
		sink = jobs.NotificationSinkFunc(notifications.Deliver)
	}
	notifier, err := jobs.NewNotificationWorker(jobs.NotificationWorkerConfig{
		Sink:      sink,
		Workers:   cfg.Notifications.Workers,
		QueueSize: cfg.Notifications.QueueSize,
		Clock:     ext.Clock,
		Logger:    observability.EventLogger(logger.Named("notifications")),
	})
	if err != nil {
		return fmt.Errorf("build notification worker: %w", err)
	}
	c.Notifier = notifier

	events, err := jobs.NewInstrumentedOrderEventPublisher(ext.Events, nil)
	if err != nil {
		return fmt.Errorf("build order event publisher: %w", err)
	}

	var deliveryWindow time.Duration
	if cfg.Commerce.EstimatedDeliveryDays > 0 {
		deliveryWindow = time.Duration(cfg.Commerce.EstimatedDeliveryDays) * 24 * time.Hour
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:                reg.Orders(),
		Stock:                 reg.Stock(),
		UnitOfWork:            reg,
		Counters:              counters,
		Catalog:               catalog,
		Coupons:               coupons,
		Shipping:              svc.Shipping,
		Payments:              ext.Payments,
		Rates:                 settings,
		Notifier:              notifier,
		Events:                events,
		Locker:                ext.Locker,
		Currency:              cfg.Commerce.Currency,
		MaxQuantity:           cfg.Commerce.MaxQuantity,
		DisableCashOnDelivery: !cfg.Commerce.CODEnabled,
		DeliveryWindow:        deliveryWindow,
		AdminRecipients:       cfg.Notifications.AdminRecipients,
		Clock:                 ext.Clock,
		Logger:                observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	if ext.Statements != nil {
		statements, err := services.NewStatementService(services.StatementServiceDeps{
			Orders:  reg.Orders(),
			Storage: ext.Statements,
			LinkTTL: cfg.Storage.SignedURLTTL,
			Clock:   ext.Clock,
			Logger:  observability.EventLogger(logger.Named("statements")),
		})
		if err != nil {
			return fmt.Errorf("build statement service: %w", err)
		}
		svc.Statements = statements
	}

	if health := reg.Health(); health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            ext.Clock,
			Build:            ext.Build,
		})
		if err != nil {
			return fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return nil
}
