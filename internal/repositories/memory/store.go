// Package memory provides in-process repositories used by tests and local development.
//
// Store implements repositories.Registry. RunInTx serialises writers and restores a snapshot
// when fn fails, so multi-repository mutations are all-or-nothing like their Firestore counterparts.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

type txKey struct{}

// Store holds every collection in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	orders        map[string]domain.Order
	books         map[string]domain.Book
	coupons       map[string]domain.Coupon
	notifications []domain.Notification
	settings      *domain.PlatformSettings
	counters      map[string]int64

	health repositories.HealthRepository
	now    func() time.Time
}

var _ repositories.Registry = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for updatedAt stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithHealth attaches a health repository.
func WithHealth(health repositories.HealthRepository) Option {
	return func(s *Store) {
		s.health = health
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		orders:   make(map[string]domain.Order),
		books:    make(map[string]domain.Book),
		coupons:  make(map[string]domain.Coupon),
		counters: make(map[string]int64),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Orders() repositories.OrderRepository               { return orderRepository{s} }
func (s *Store) Books() repositories.BookRepository                 { return bookRepository{s} }
func (s *Store) Stock() repositories.StockRepository                { return stockRepository{s} }
func (s *Store) Coupons() repositories.CouponRepository             { return couponRepository{s} }
func (s *Store) Notifications() repositories.NotificationRepository { return notificationRepository{s} }
func (s *Store) Settings() repositories.SettingsRepository          { return settingsRepository{s} }
func (s *Store) Counters() repositories.CounterRepository           { return counterRepository{s} }

func (s *Store) Health() repositories.HealthRepository {
	if s.health == nil {
		return nil
	}
	return s.health
}

func (s *Store) Close(context.Context) error { return nil }

// RunInTx runs fn with exclusive write access. Changes made through the store are rolled back
// when fn returns an error. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is required")
	}
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// write runs fn under the writer lock unless ctx already holds it through RunInTx.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type snapshot struct {
	orders        map[string]domain.Order
	books         map[string]domain.Book
	coupons       map[string]domain.Coupon
	notifications []domain.Notification
	settings      *domain.PlatformSettings
	counters      map[string]int64
}

// Stored orders are never mutated in place, so shallow map copies are enough.
func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		orders:        maps.Clone(s.orders),
		books:         maps.Clone(s.books),
		coupons:       maps.Clone(s.coupons),
		notifications: append([]domain.Notification(nil), s.notifications...),
		counters:      maps.Clone(s.counters),
	}
	if s.settings != nil {
		settings := *s.settings
		snap.settings = &settings
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.books = snap.books
	s.coupons = snap.coupons
	s.notifications = snap.notifications
	s.settings = snap.settings
	s.counters = snap.counters
}

// SeedBooks inserts or replaces catalog entries.
func (s *Store) SeedBooks(books ...domain.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, book := range books {
		s.books[book.ID] = book
	}
}

// SeedCoupons inserts or replaces coupons. Codes are stored upper-cased.
func (s *Store) SeedCoupons(coupons ...domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coupon := range coupons {
		coupon.Code = normalizeCode(coupon.Code)
		s.coupons[coupon.Code] = coupon
	}
}

// DeleteCoupon removes a coupon, as an administrator would from the coupon console.
func (s *Store) DeleteCoupon(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coupons, normalizeCode(code))
}

// BookStock returns the current stock of a book and whether it exists.
func (s *Store) BookStock(bookID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[bookID]
	return book.Stock, ok
}

// StoredNotifications returns a copy of every inserted notification in insertion order.
func (s *Store) StoredNotifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		n.Data = maps.Clone(n.Data)
		out = append(out, n)
	}
	return out
}
