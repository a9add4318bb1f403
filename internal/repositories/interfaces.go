package repositories

import (
	"context"
	"time"

	domain "github.com/boibabu/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Books() BookRepository
	Stock() StockRepository
	Coupons() CouponRepository
	Notifications() NotificationRepository
	Settings() SettingsRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repositories called with the ctx passed to fn join the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates, one document per order keyed by order number.
type OrderRepository interface {
	// Insert fails with a conflict error when the order number already exists.
	Insert(ctx context.Context, order domain.Order) error
	// Update writes the order only when the stored version equals expectedVersion; otherwise
	// it returns a conflict error and nothing is written.
	Update(ctx context.Context, order domain.Order, expectedVersion int64) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// BookRepository reads catalog entries.
type BookRepository interface {
	FindByID(ctx context.Context, bookID string) (domain.Book, error)
}

// StockRepository moves book stock. Both operations are all-or-nothing across lines.
type StockRepository interface {
	// Decrement subtracts every line or none; it fails with *StockError (StockErrorInsufficient)
	// when any line exceeds the available stock.
	Decrement(ctx context.Context, lines []StockLine) error
	Increment(ctx context.Context, lines []StockLine) error
}

// CouponRepository reads coupons and records redemptions.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// Redeem counts one use, failing with ErrCouponUsageLimit once UsageLimit uses are recorded.
	Redeem(ctx context.Context, code string, at time.Time) error
	// Release takes back one use. The count never drops below zero.
	Release(ctx context.Context, code string, at time.Time) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
}

// SettingsRepository persists platform settings. GetPlatform returns a not-found error until
// an administrator saves settings for the first time.
type SettingsRepository interface {
	GetPlatform(ctx context.Context) (domain.PlatformSettings, error)
	SavePlatform(ctx context.Context, settings domain.PlatformSettings) error
}

// CounterRepository hands out gap-free sequence numbers starting at 1.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// StockLine is a single book quantity movement.
type StockLine struct {
	BookID   string
	Quantity int
}

// OrderListFilter narrows order listings. UserID and SellerID may be combined with Status.
// Results are ordered by creation time, newest first.
type OrderListFilter struct {
	UserID     string
	SellerID   string
	Status     []domain.OrderStatus
	DateRange  domain.TimeRange
	Pagination domain.Pagination
}
