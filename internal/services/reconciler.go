package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/boibabu/api/internal/domain"
)

const (
	auditActionRefund             = "refund"
	auditActionShippingCorrection = "shipping_correction"
	auditActionCommissionOverride = "commission_override"
	auditActionSellerPaid         = "seller_paid"
)

// Reconciler reverses stock and money effects on cancellation and refund.
type Reconciler struct {
	machine *OrderStateMachine
}

// NewReconciler builds a reconciler on top of the state machine.
func NewReconciler(machine *OrderStateMachine) (*Reconciler, error) {
	if machine == nil {
		return nil, errors.New("reconciler: state machine is required")
	}
	return &Reconciler{machine: machine}, nil
}

// Cancel moves a cancellable order to cancelled. Paid seller settlements are kept as they are.
func (r *Reconciler) Cancel(ctx context.Context, order *Order, reason, actor string) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if !CanBeCancelled(*order) {
		return fmt.Errorf("%w: status %s", ErrOrderNotCancellable, order.Status)
	}
	if err := r.machine.Advance(ctx, order, domain.OrderStatusCancelled, actor, reason); err != nil {
		return err
	}
	order.CancelReason = reason
	return nil
}

// ProcessRefund records a refund against the captured payment. It never changes the order status.
func (r *Reconciler) ProcessRefund(order *Order, amount int64, reason, actor string, now time.Time) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRefundAmount)
	}
	if order.RefundAmount+amount > order.Total {
		return fmt.Errorf("%w: %d exceeds refundable balance %d", ErrInvalidRefundAmount, amount, order.Total-order.RefundAmount)
	}
	if !paymentCaptured(order) {
		return fmt.Errorf("%w: payment status %s", ErrRefundNotAllowed, order.PaymentStatus)
	}

	order.RefundAmount += amount
	if order.RefundAmount == order.Total {
		order.PaymentStatus = domain.PaymentStatusRefunded
	} else {
		order.PaymentStatus = domain.PaymentStatusPartiallyRefunded
	}
	order.RefundedAt = &now
	order.UpdatedAt = now
	appendAudit(order, auditActionRefund, actor, reason, now, map[string]any{
		"amount":       amount,
		"refundAmount": order.RefundAmount,
	})
	return nil
}

func appendAudit(order *Order, action, actor, note string, at time.Time, data map[string]any) {
	order.AuditTrail = append(order.AuditTrail, domain.AuditNote{
		Action: action,
		Actor:  actor,
		At:     at,
		Note:   note,
		Data:   data,
	})
}
