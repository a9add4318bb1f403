package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/boibabu/api/internal/domain"
)

const defaultDeliveryWindow = 5 * 24 * time.Hour

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: {domain.OrderStatusReturned},
}

var cancellableStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusShipped,
}

// OrderStateMachineDeps bundles collaborators of the state machine.
type OrderStateMachineDeps struct {
	Ledger         *StockLedger
	Rates          CommissionRateSource
	Clock          func() time.Time
	DeliveryWindow time.Duration
}

// OrderStateMachine validates status transitions and applies the side effects of entering a state.
type OrderStateMachine struct {
	ledger         *StockLedger
	rates          CommissionRateSource
	settlement     SettlementCalculator
	clock          func() time.Time
	deliveryWindow time.Duration
}

// NewOrderStateMachine wires the ledger and the commission rate source.
func NewOrderStateMachine(deps OrderStateMachineDeps) (*OrderStateMachine, error) {
	if deps.Ledger == nil {
		return nil, errors.New("order state machine: stock ledger is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("order state machine: commission rate source is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	window := deps.DeliveryWindow
	if window <= 0 {
		window = defaultDeliveryWindow
	}
	return &OrderStateMachine{
		ledger: deps.Ledger,
		rates:  deps.Rates,
		clock: func() time.Time {
			return clock().UTC()
		},
		deliveryWindow: window,
	}, nil
}

// CanTransition reports whether target is an allowed successor of current.
func CanTransition(current, target OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

// CanBeCancelled reports whether the order may still be cancelled.
func CanBeCancelled(order Order) bool {
	return slices.Contains(cancellableStatuses, order.Status)
}

// Advance moves the order to target. The order is modified in place; on error it may carry
// partial side effects and must be discarded by the caller.
func (m *OrderStateMachine) Advance(ctx context.Context, order *Order, target OrderStatus, actor, note string) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if !CanTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, target)
	}

	now := m.clock()
	switch target {
	case domain.OrderStatusConfirmed:
		rate, err := m.rates.CurrentCommissionRate(ctx)
		if err != nil {
			return fmt.Errorf("order state machine: resolve commission rate: %w", err)
		}
		if err := validateCommissionRate(rate); err != nil {
			return err
		}
		if err := m.ledger.Reserve(ctx, order); err != nil {
			return err
		}
		if err := m.settlement.Compute(order, rate); err != nil {
			return err
		}
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
		if order.EstimatedDelivery == nil {
			eta := now.Add(m.deliveryWindow)
			order.EstimatedDelivery = &eta
		}
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if err := m.ledger.Restore(ctx, order); err != nil {
			return err
		}
		markRefundEligible(order)
		order.CancelledAt = &now
	case domain.OrderStatusReturned:
		if err := m.ledger.Restore(ctx, order); err != nil {
			return err
		}
		markRefundEligible(order)
		order.ReturnedAt = &now
	}

	order.Status = target
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
		Status:    target,
		ChangedBy: actor,
		ChangedAt: now,
		Note:      note,
	})
	order.UpdatedAt = now
	return nil
}

func markRefundEligible(order *Order) {
	if paymentCaptured(order) {
		order.RefundEligible = true
	}
}

func paymentCaptured(order *Order) bool {
	switch order.PaymentStatus {
	case domain.PaymentStatusPaid, domain.PaymentStatusPartiallyRefunded, domain.PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
