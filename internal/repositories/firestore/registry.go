package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/boibabu/api/internal/platform/firestore"
	"github.com/boibabu/api/internal/repositories"
)

// Registry wires every Firestore repository against a shared provider.
type Registry struct {
	provider      *pfirestore.Provider
	orders        *OrderRepository
	books         *BookRepository
	stock         *StockRepository
	coupons       *CouponRepository
	notifications *NotificationRepository
	settings      *SettingsRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. health may be nil when health reporting is not wired.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.books, err = NewBookRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.stock, err = NewStockRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.settings, err = NewSettingsRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return reg, nil
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Books() repositories.BookRepository                 { return r.books }
func (r *Registry) Stock() repositories.StockRepository                { return r.stock }
func (r *Registry) Coupons() repositories.CouponRepository             { return r.coupons }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Settings() repositories.SettingsRepository          { return r.settings }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }

func (r *Registry) Health() repositories.HealthRepository {
	if r.health == nil {
		return nil
	}
	return r.health
}

// RunInTx runs fn inside a Firestore transaction. Repositories called with the ctx handed to fn
// read and write through that transaction; nested calls join the outer one.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
