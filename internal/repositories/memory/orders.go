package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/pagination"
	"github.com/boibabu/api/internal/repositories"
)

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("memory orders: order id is required")
	}
	return r.s.write(ctx, func() error {
		if _, exists := r.s.orders[id]; exists {
			return conflict("orders.insert", "order %s already exists", id)
		}
		r.s.orders[id] = cloneOrder(order)
		return nil
	})
}

func (r orderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	id := strings.TrimSpace(order.ID)
	return r.s.write(ctx, func() error {
		stored, ok := r.s.orders[id]
		if !ok {
			return notFound("orders.update", "order %s", id)
		}
		if stored.Version != expectedVersion {
			return conflict("orders.update", "order %s at version %d, expected %d", id, stored.Version, expectedVersion)
		}
		r.s.orders[id] = cloneOrder(order)
		return nil
	})
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s", orderID)
	}
	return cloneOrder(order), nil
}

// List pages with the same keyset cursor and ordering as the Firestore query.
func (r orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.RLock()
	all := lo.Values(r.s.orders)
	r.s.mu.RUnlock()

	matched := lo.Filter(all, func(o domain.Order, _ int) bool {
		if filter.UserID != "" && o.UserID != filter.UserID {
			return false
		}
		if filter.SellerID != "" && !lo.Contains(o.SellerIDs, filter.SellerID) {
			return false
		}
		if len(filter.Status) > 0 && !lo.Contains(filter.Status, o.Status) {
			return false
		}
		return filter.DateRange.Contains(o.CreatedAt)
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("memory orders: %w", err)
	}
	if !cursor.IsZero() {
		matched = lo.Filter(matched, func(o domain.Order, _ int) bool { return cursor.Precedes(o.CreatedAt, o.ID) })
	}
	next := ""
	if size := filter.Pagination.PageSize; size > 0 && size < len(matched) {
		matched = matched[:size]
		last := matched[size-1]
		next = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	items := make([]domain.Order, 0, len(matched))
	for _, o := range matched {
		items = append(items, cloneOrder(o))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: next}, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.SellerPayments = slices.Clone(o.SellerPayments)
	o.SellerIDs = slices.Clone(o.SellerIDs)
	o.StatusHistory = slices.Clone(o.StatusHistory)
	o.AuditTrail = slices.Clone(o.AuditTrail)
	for i := range o.AuditTrail {
		o.AuditTrail[i].Data = maps.Clone(o.AuditTrail[i].Data)
	}
	if o.Coupon != nil {
		coupon := *o.Coupon
		o.Coupon = &coupon
	}
	return o
}
