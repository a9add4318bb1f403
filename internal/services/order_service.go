package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/locks"
	"github.com/boibabu/api/internal/platform/textutil"
	"github.com/boibabu/api/internal/repositories"
)

const (
	orderEventCreated           = "order.created"
	orderEventStatusChanged     = "order.status.changed"
	orderEventPaymentConfirmed  = "order.payment.confirmed"
	orderEventRefunded          = "order.refunded"
	orderEventSettlementChanged = "order.settlement.changed"
	orderEventShippingCorrected = "order.shipping.corrected"

	orderLockPrefix          = "order:"
	maxOrderMutationAttempts = 3
	defaultMaxQuantity       = 100
	defaultOrderCurrency     = "INR"
	defaultOrderPageSize     = 20
	maxOrderPageSize         = 100
	maxNoteLength            = 500
)

// errOrderUnchanged lets a mutation end without writing, used for duplicate callbacks.
var errOrderUnchanged = errors.New("order: unchanged")

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Stock      repositories.StockRepository
	UnitOfWork repositories.UnitOfWork
	Counters   CounterService
	Catalog    CatalogReader
	Coupons    CouponService
	Shipping   ShippingCalculator
	Payments   PaymentGateway
	Rates      CommissionRateSource
	Notifier   NotificationDispatcher
	Events     OrderEventPublisher
	Locker     locks.Locker

	Currency              string
	MaxQuantity           int
	DisableCashOnDelivery bool
	DeliveryWindow        time.Duration
	AdminRecipients       []string

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	counters   CounterService
	shipping   ShippingCalculator
	payments   PaymentGateway
	notifier   NotificationDispatcher
	events     OrderEventPublisher
	locker     locks.Locker

	pricing    *PricingResolver
	machine    *OrderStateMachine
	reconciler *Reconciler
	settlement SettlementCalculator

	currency        string
	maxQuantity     int
	codEnabled      bool
	adminRecipients []string

	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("order service: commission rate source is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utcClock := func() time.Time {
		return clock().UTC()
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	locker := deps.Locker
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}

	ledger, err := NewStockLedger(deps.Stock, utcClock)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	machine, err := NewOrderStateMachine(OrderStateMachineDeps{
		Ledger:         ledger,
		Rates:          deps.Rates,
		Clock:          utcClock,
		DeliveryWindow: deps.DeliveryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	reconciler, err := NewReconciler(machine)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	pricing, err := NewPricingResolver(PricingResolverDeps{
		Catalog:  deps.Catalog,
		Coupons:  deps.Coupons,
		Shipping: deps.Shipping,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	maxQuantity := deps.MaxQuantity
	if maxQuantity <= 0 {
		maxQuantity = defaultMaxQuantity
	}

	return &orderService{
		orders:          deps.Orders,
		unitOfWork:      unit,
		counters:        deps.Counters,
		shipping:        deps.Shipping,
		payments:        deps.Payments,
		notifier:        deps.Notifier,
		events:          deps.Events,
		locker:          locker,
		pricing:         pricing,
		machine:         machine,
		reconciler:      reconciler,
		currency:        currency,
		maxQuantity:     maxQuantity,
		codEnabled:      !deps.DisableCashOnDelivery,
		adminRecipients: append([]string(nil), deps.AdminRecipients...),
		clock:           utcClock,
		logger:          logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	items, err := s.normalizeItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	address, err := s.normalizeAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCashOnDelivery:
		if !s.codEnabled {
			return Order{}, fmt.Errorf("%w: cash on delivery is not available", ErrOrderInvalidInput)
		}
	case domain.PaymentMethodStripe:
		if s.payments == nil {
			return Order{}, fmt.Errorf("%w: online payment is not available", ErrOrderInvalidInput)
		}
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	priced, err := s.pricing.Quote(ctx, items, address.PostalCode, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order service: allocate order number: %w", err)
	}

	actor := firstNonEmpty(strings.TrimSpace(cmd.ActorID), userID)
	now := s.now()
	order := Order{
		ID:              orderNumber,
		OrderNumber:     orderNumber,
		UserID:          userID,
		Items:           priced.Items,
		Subtotal:        priced.Subtotal,
		CouponDiscount:  priced.CouponDiscount,
		ShippingCost:    priced.ShippingCost,
		Total:           priced.Total,
		Currency:        s.currency,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		SellerIDs:       orderSellers(priced.Items),
		Coupon:          priced.Coupon,
		ShippingAddress: address,
		StatusHistory: []domain.StatusChange{{
			Status:    domain.OrderStatusPending,
			ChangedBy: actor,
			ChangedAt: now,
			Note:      "Order placed",
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	redeemed := false
	if order.Coupon != nil {
		if err := s.redeemCoupon(ctx, order.Coupon.Code); err != nil {
			return Order{}, err
		}
		redeemed = true
		defer func() {
			if redeemed {
				s.releaseCoupon(ctx, order.ID, order.Coupon.Code)
			}
		}()
	}

	var clientSecret string
	if order.PaymentMethod == domain.PaymentMethodStripe {
		intent, err := s.payments.CreateIntent(ctx, PaymentIntentRequest{
			Provider:       string(domain.PaymentMethodStripe),
			OrderID:        order.ID,
			Amount:         order.Total,
			Currency:       order.Currency,
			CustomerID:     userID,
			IdempotencyKey: firstNonEmpty(strings.TrimSpace(cmd.IdempotencyKey), order.ID),
			Metadata:       map[string]string{"orderNumber": order.OrderNumber, "userId": userID},
		})
		if err != nil {
			s.logger(ctx, "order.payment.intent.failed", map[string]any{"order": order.ID, "error": err.Error()})
			if errors.Is(err, ErrExternalService) {
				return Order{}, err
			}
			return Order{}, fmt.Errorf("%w: create payment intent: %v", ErrExternalService, err)
		}
		order.Payment = domain.OrderPayment{Provider: intent.Provider, IntentID: intent.IntentID}
		clientSecret = intent.ClientSecret
	}

	// A retried transaction must start from the pending order, not from the previous attempt.
	draft := order
	var created Order
	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		working := draft
		working.StatusHistory = slices.Clone(draft.StatusHistory)
		if working.PaymentMethod == domain.PaymentMethodCashOnDelivery {
			if err := s.machine.Advance(txCtx, &working, domain.OrderStatusConfirmed, actor, "Cash on delivery order confirmed"); err != nil {
				return err
			}
		}
		if err := s.orders.Insert(txCtx, working); err != nil {
			return s.mapRepositoryError(err)
		}
		created = working
		return nil
	}); err != nil {
		return Order{}, err
	}
	order = created
	redeemed = false

	s.logger(ctx, "order.created", map[string]any{
		"order":         order.ID,
		"user":          order.UserID,
		"status":        string(order.Status),
		"total":         order.Total,
		"paymentMethod": string(order.PaymentMethod),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":         order.Total,
			"currency":      order.Currency,
			"paymentMethod": string(order.PaymentMethod),
			"sellerIds":     order.SellerIDs,
		},
	})
	if order.Status == domain.OrderStatusConfirmed {
		s.notifyOrderPlaced(ctx, order)
	}

	order.Payment.ClientSecret = clientSecret
	return order, nil
}

func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	if s.payments == nil {
		return Order{}, fmt.Errorf("%w: payment gateway is not configured", ErrOrderInvalidInput)
	}
	verified, err := s.payments.VerifyCallback(ctx, cmd.Provider, cmd.Payload, cmd.Signature)
	if err != nil {
		return Order{}, err
	}
	orderID := strings.TrimSpace(verified.OrderID)
	if !verified.Succeeded {
		s.logger(ctx, "order.payment.ignored", map[string]any{
			"order":  orderID,
			"event":  verified.EventType,
			"intent": verified.IntentID,
		})
		if orderID == "" {
			return Order{}, nil
		}
		return s.GetOrder(ctx, orderID)
	}
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: payment callback carries no order id", ErrOrderInvalidInput)
	}

	actor := "payment:" + firstNonEmpty(verified.Provider, strings.TrimSpace(cmd.Provider))
	var (
		previous  OrderStatus
		stockErr  error
		confirmed bool
	)
	order, err := s.mutateOrder(ctx, orderID, func(txCtx context.Context, order *Order) error {
		previous, stockErr, confirmed = order.Status, nil, false
		if order.PaymentStatus != domain.PaymentStatusPending {
			return errOrderUnchanged
		}
		if order.Payment.IntentID != "" && verified.IntentID != "" && order.Payment.IntentID != verified.IntentID {
			return fmt.Errorf("%w: payment intent does not belong to order", ErrOrderInvalidInput)
		}
		if verified.Amount != order.Total || (verified.Currency != "" && !strings.EqualFold(verified.Currency, order.Currency)) {
			return fmt.Errorf("%w: paid %d %s, order total %d %s", ErrOrderInvalidInput,
				verified.Amount, verified.Currency, order.Total, order.Currency)
		}

		paidAt := verified.OccurredAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		order.Payment.Reference = verified.Reference
		order.Payment.PaidAt = &paidAt
		if order.Payment.Provider == "" {
			order.Payment.Provider = verified.Provider
		}

		if order.Status != domain.OrderStatusPending {
			// Paid after the buyer cancelled; the money has to go back.
			order.RefundEligible = true
			order.UpdatedAt = s.now()
			return nil
		}

		err := s.machine.Advance(txCtx, order, domain.OrderStatusConfirmed, actor, "Payment received")
		switch {
		case err == nil:
			confirmed = true
			return nil
		case errors.Is(err, ErrInsufficientStock):
			stockErr = err
			order.CancelReason = "Stock unavailable when payment completed"
			return s.machine.Advance(txCtx, order, domain.OrderStatusCancelled, actor, order.CancelReason)
		default:
			return err
		}
	})
	if errors.Is(err, errOrderUnchanged) {
		return order, nil
	}
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentConfirmed,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     s.now(),
		Metadata: map[string]any{
			"amount":    verified.Amount,
			"reference": verified.Reference,
			"eventId":   verified.EventID,
		},
	})
	switch {
	case confirmed:
		s.notifyOrderPlaced(ctx, order)
	case previous != order.Status:
		s.notify(ctx, customerStatusChanged(order))
	}
	if stockErr != nil {
		s.logger(ctx, "order.payment.stock_unavailable", map[string]any{"order": order.ID, "error": stockErr.Error()})
		return order, stockErr
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	filter.SellerID = strings.TrimSpace(filter.SellerID)
	filter.Pagination = normalizeOrderPagination(filter.Pagination)
	for _, status := range filter.Status {
		if !isKnownOrderStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// ListSellerPayments pages through the seller's orders; a page can hold fewer settlements than
// the page size when a status filter is applied.
func (s *orderService) ListSellerPayments(ctx context.Context, filter SellerPaymentFilter) (domain.CursorPage[SellerSettlement], error) {
	sellerID := strings.TrimSpace(filter.SellerID)
	if sellerID == "" {
		return domain.CursorPage[SellerSettlement]{}, fmt.Errorf("%w: seller id is required", ErrOrderInvalidInput)
	}
	for _, status := range filter.Status {
		if status != domain.SellerPaymentDue && status != domain.SellerPaymentPaid {
			return domain.CursorPage[SellerSettlement]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		SellerID:   sellerID,
		Pagination: normalizeOrderPagination(filter.Pagination),
	})
	if err != nil {
		return domain.CursorPage[SellerSettlement]{}, s.mapRepositoryError(err)
	}
	return domain.CursorPage[SellerSettlement]{
		Items:         sellerSettlements(page.Items, sellerID, filter.Status),
		NextPageToken: page.NextPageToken,
	}, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !isKnownOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	note := textutil.PlainText(cmd.Note, maxNoteLength)
	tracking := textutil.PlainText(cmd.TrackingNumber, 64)

	var previous OrderStatus
	order, err := s.mutateOrder(ctx, cmd.OrderID, func(txCtx context.Context, order *Order) error {
		previous = order.Status
		if cmd.Status == domain.OrderStatusCancelled {
			return s.reconciler.Cancel(txCtx, order, note, actor)
		}
		if cmd.Status == domain.OrderStatusShipped && tracking != "" {
			order.TrackingNumber = tracking
		}
		return s.machine.Advance(txCtx, order, cmd.Status, actor, note)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order": order.ID,
		"from":  string(previous),
		"to":    string(order.Status),
		"actor": actor,
	})
	s.publishStatusChange(ctx, order, previous, actor, note)
	s.notify(ctx, customerStatusChanged(order))
	return order, nil
}

func (s *orderService) CorrectShipping(ctx context.Context, cmd CorrectShippingCommand) (Order, error) {
	if cmd.ShippingCost < 0 {
		return Order{}, fmt.Errorf("%w: shipping cost must not be negative", ErrOrderInvalidInput)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	note := textutil.PlainText(cmd.Note, maxNoteLength)

	var previousShipping int64
	order, err := s.mutateOrder(ctx, cmd.OrderID, func(_ context.Context, order *Order) error {
		total := orderTotal(order.Subtotal, order.CouponDiscount, cmd.ShippingCost)
		if total < order.RefundAmount {
			return fmt.Errorf("%w: new total %d is below the refunded amount %d", ErrOrderInvalidInput, total, order.RefundAmount)
		}
		previousShipping = order.ShippingCost
		now := s.now()
		order.ShippingCost = cmd.ShippingCost
		order.Total = total
		s.settlement.Recompute(order)
		order.UpdatedAt = now
		appendAudit(order, auditActionShippingCorrection, actor, note, now, map[string]any{
			"previousShippingCost": previousShipping,
			"shippingCost":         cmd.ShippingCost,
			"total":                total,
		})
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventShippingCorrected,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"previousShippingCost": previousShipping,
			"shippingCost":         order.ShippingCost,
			"total":                order.Total,
		},
	})
	return order, nil
}

func (s *orderService) OverrideCommission(ctx context.Context, cmd OverrideCommissionCommand) (Order, error) {
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	if err := validateCommissionRate(cmd.Rate); err != nil {
		return Order{}, err
	}

	var payment SellerPayment
	order, err := s.mutateOrder(ctx, cmd.OrderID, func(_ context.Context, order *Order) error {
		var previousRate float64
		for _, p := range order.SellerPayments {
			if p.SellerID == strings.TrimSpace(cmd.SellerID) {
				previousRate = p.CommissionRate
			}
		}
		updated, err := s.settlement.OverrideCommission(order, cmd.SellerID, cmd.Rate)
		if err != nil {
			return err
		}
		payment = updated
		now := s.now()
		order.UpdatedAt = now
		appendAudit(order, auditActionCommissionOverride, actor, "", now, map[string]any{
			"sellerId":     payment.SellerID,
			"previousRate": previousRate,
			"rate":         payment.CommissionRate,
		})
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishSettlementChange(ctx, order, payment, actor, "commission_override")
	s.notify(ctx, sellerCommissionChanged(order, payment))
	return order, nil
}

func (s *orderService) MarkSellerPaid(ctx context.Context, cmd MarkSellerPaidCommand) (Order, error) {
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	notes := textutil.PlainText(cmd.Notes, maxNoteLength)

	var payment SellerPayment
	order, err := s.mutateOrder(ctx, cmd.OrderID, func(_ context.Context, order *Order) error {
		now := s.now()
		updated, err := s.settlement.MarkPaid(order, cmd.SellerID, actor, notes, now)
		if err != nil {
			return err
		}
		payment = updated
		order.UpdatedAt = now
		appendAudit(order, auditActionSellerPaid, actor, notes, now, map[string]any{
			"sellerId":  payment.SellerID,
			"netAmount": payment.NetAmount,
		})
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishSettlementChange(ctx, order, payment, actor, "seller_paid")
	s.notify(ctx, sellerPaid(order, payment))
	return order, nil
}

func (s *orderService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error) {
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	reason := textutil.PlainText(cmd.Reason, maxNoteLength)
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var order Order
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		// Validate before money moves at the gateway.
		trial := current
		if err := s.reconciler.ProcessRefund(&trial, cmd.Amount, reason, actor, s.now()); err != nil {
			return err
		}

		if s.refundsAtGateway(current) {
			key := strings.TrimSpace(cmd.IdempotencyKey)
			if key == "" {
				key = current.ID + ":refund:" + strconv.FormatInt(current.RefundAmount+cmd.Amount, 10)
			}
			if err := s.payments.Refund(ctx, PaymentRefundRequest{
				Provider:       current.Payment.Provider,
				OrderID:        current.ID,
				IntentID:       current.Payment.IntentID,
				Amount:         cmd.Amount,
				Currency:       current.Currency,
				Reason:         reason,
				IdempotencyKey: key,
			}); err != nil {
				if errors.Is(err, ErrExternalService) {
					return err
				}
				return fmt.Errorf("%w: refund: %v", ErrExternalService, err)
			}
		}

		order, err = s.mutateLocked(ctx, orderID, func(_ context.Context, o *Order) error {
			return s.reconciler.ProcessRefund(o, cmd.Amount, reason, actor, s.now())
		})
		if err != nil {
			s.logger(ctx, "order.refund.record.failed", map[string]any{
				"order":  orderID,
				"amount": cmd.Amount,
				"error":  err.Error(),
			})
		}
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.refunded", map[string]any{
		"order":        order.ID,
		"amount":       cmd.Amount,
		"refundAmount": order.RefundAmount,
		"actor":        actor,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventRefunded,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"amount":        cmd.Amount,
			"refundAmount":  order.RefundAmount,
			"paymentStatus": string(order.PaymentStatus),
		},
	})
	s.notify(ctx, customerRefundProcessed(order, cmd.Amount))
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	actor := firstNonEmpty(strings.TrimSpace(cmd.ActorID), strings.TrimSpace(cmd.OwnerID))
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	reason := textutil.PlainText(cmd.Reason, maxNoteLength)
	owner := strings.TrimSpace(cmd.OwnerID)

	var previous OrderStatus
	order, err := s.mutateOrder(ctx, cmd.OrderID, func(txCtx context.Context, order *Order) error {
		if owner != "" && order.UserID != owner {
			return ErrOrderForbidden
		}
		previous = order.Status
		return s.reconciler.Cancel(txCtx, order, reason, actor)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order":          order.ID,
		"from":           string(previous),
		"refundEligible": order.RefundEligible,
		"actor":          actor,
	})
	s.publishStatusChange(ctx, order, previous, actor, reason)
	s.notify(ctx, customerStatusChanged(order))
	return order, nil
}

func (s *orderService) QuoteShipping(ctx context.Context, postalCode string, subtotal int64) (ShippingQuote, error) {
	if s.shipping == nil {
		return ShippingQuote{}, fmt.Errorf("%w: shipping calculator is not configured", ErrOrderInvalidInput)
	}
	return s.shipping.Quote(ctx, postalCode, subtotal)
}

// mutateOrder serialises a change to one order: per-order lock, then a transactional
// read-modify-write guarded by the order version, retried on conflicts.
func (s *orderService) mutateOrder(ctx context.Context, orderID string, mutate func(context.Context, *Order) error) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	var order Order
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		var err error
		order, err = s.mutateLocked(ctx, orderID, mutate)
		return err
	})
	return order, err
}

func (s *orderService) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	release, err := s.locker.Acquire(ctx, orderLockPrefix+orderID)
	if err != nil {
		return fmt.Errorf("order service: acquire lock for %s: %w", orderID, err)
	}
	defer release()
	return fn(ctx)
}

// mutateLocked returns the stored order together with errOrderUnchanged when mutate skips the write.
func (s *orderService) mutateLocked(ctx context.Context, orderID string, mutate func(context.Context, *Order) error) (Order, error) {
	var lastErr error
	for attempt := 1; attempt <= maxOrderMutationAttempts; attempt++ {
		var result Order
		err := s.runInTx(ctx, func(txCtx context.Context) error {
			current, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			expected := current.Version
			working := current
			if err := mutate(txCtx, &working); err != nil {
				if errors.Is(err, errOrderUnchanged) {
					result = current
				}
				return err
			}
			working.Version = expected + 1
			if err := s.orders.Update(txCtx, working, expected); err != nil {
				return s.mapRepositoryError(err)
			}
			result = working
			return nil
		})
		if err == nil || errors.Is(err, errOrderUnchanged) {
			return result, err
		}
		if !errors.Is(err, ErrOrderConflict) {
			return Order{}, err
		}
		lastErr = err
		s.logger(ctx, "order.mutation.conflict", map[string]any{"order": orderID, "attempt": attempt})
	}
	return Order{}, lastErr
}

func (s *orderService) normalizeItems(items []CreateOrderItem) ([]CreateOrderItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	merged := make([]CreateOrderItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		bookID := strings.TrimSpace(item.BookID)
		if bookID == "" {
			return nil, fmt.Errorf("%w: book id is required", ErrOrderInvalidInput)
		}
		if item.Quantity < 1 || item.Quantity > s.maxQuantity {
			return nil, fmt.Errorf("%w: quantity for %s must be between 1 and %d", ErrOrderInvalidInput, bookID, s.maxQuantity)
		}
		if i, ok := index[bookID]; ok {
			merged[i].Quantity += item.Quantity
			if merged[i].Quantity > s.maxQuantity {
				return nil, fmt.Errorf("%w: quantity for %s must be between 1 and %d", ErrOrderInvalidInput, bookID, s.maxQuantity)
			}
			continue
		}
		index[bookID] = len(merged)
		merged = append(merged, CreateOrderItem{BookID: bookID, Quantity: item.Quantity})
	}
	return merged, nil
}

func (s *orderService) normalizeAddress(addr ShippingAddress) (ShippingAddress, error) {
	clean := func(v string) string { return textutil.PlainText(v, 200) }
	addr = ShippingAddress{
		Name:       clean(addr.Name),
		Phone:      clean(addr.Phone),
		Line1:      clean(addr.Line1),
		Line2:      clean(addr.Line2),
		Landmark:   clean(addr.Landmark),
		City:       clean(addr.City),
		State:      clean(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    firstNonEmpty(clean(addr.Country), "IN"),
	}
	switch {
	case addr.Name == "":
		return ShippingAddress{}, fmt.Errorf("%w: shipping name is required", ErrOrderInvalidInput)
	case addr.Phone == "":
		return ShippingAddress{}, fmt.Errorf("%w: shipping phone is required", ErrOrderInvalidInput)
	case addr.Line1 == "":
		return ShippingAddress{}, fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	case addr.City == "":
		return ShippingAddress{}, fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	}
	if s.shipping != nil {
		if v := s.shipping.ValidatePostalCode(addr.PostalCode); !v.IsValid {
			return ShippingAddress{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, v.Message)
		}
	}
	return addr, nil
}

func (s *orderService) refundsAtGateway(order Order) bool {
	return s.payments != nil && order.PaymentMethod == domain.PaymentMethodStripe && order.Payment.IntentID != ""
}

func (s *orderService) redeemCoupon(ctx context.Context, code string) error {
	if s.pricing.coupons == nil {
		return nil
	}
	return s.pricing.coupons.Redeem(ctx, code)
}

// releaseCoupon gives back a redemption whose order was never stored.
func (s *orderService) releaseCoupon(ctx context.Context, orderID, code string) {
	if s.pricing.coupons == nil {
		return
	}
	if err := s.pricing.coupons.Release(context.WithoutCancel(ctx), code); err != nil {
		s.logger(ctx, "order.coupon.release.failed", map[string]any{
			"order":  orderID,
			"coupon": code,
			"error":  err.Error(),
		})
	}
}

func (s *orderService) notifyOrderPlaced(ctx context.Context, order Order) {
	s.notify(ctx, customerOrderPlaced(order))
	for _, payment := range order.SellerPayments {
		s.notify(ctx, sellerNewOrder(order, payment))
	}
	admin := adminNewOrder(order)
	if len(s.adminRecipients) == 0 {
		s.notify(ctx, admin)
		return
	}
	for _, recipient := range s.adminRecipients {
		n := admin
		n.RecipientID = recipient
		n.Data = maps.Clone(admin.Data)
		s.notify(ctx, n)
	}
}

func (s *orderService) notify(ctx context.Context, notification Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notification)
}

func (s *orderService) publishStatusChange(ctx context.Context, order Order, previous OrderStatus, actor, note string) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     order.UpdatedAt,
		Metadata: map[string]any{
			"note":           note,
			"trackingNumber": order.TrackingNumber,
			"refundEligible": order.RefundEligible,
		},
	})
}

func (s *orderService) publishSettlementChange(ctx context.Context, order Order, payment SellerPayment, actor, reason string) {
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventSettlementChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"reason":          reason,
			"sellerId":        payment.SellerID,
			"commissionRate":  payment.CommissionRate,
			"adminCommission": payment.AdminCommission,
			"netAmount":       payment.NetAmount,
			"paymentStatus":   string(payment.PaymentStatus),
		},
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func normalizeOrderPagination(p Pagination) Pagination {
	p.PageToken = strings.TrimSpace(p.PageToken)
	switch {
	case p.PageSize <= 0:
		p.PageSize = defaultOrderPageSize
	case p.PageSize > maxOrderPageSize:
		p.PageSize = maxOrderPageSize
	}
	return p
}

func isKnownOrderStatus(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusReturned:
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
