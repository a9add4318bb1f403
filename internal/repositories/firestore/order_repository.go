package firestore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/boibabu/api/internal/domain"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
	"github.com/boibabu/api/internal/platform/pagination"
	"github.com/boibabu/api/internal/repositories"
)

const ordersCollection = "orders"

// errVersionMismatch is wrapped into a conflict error by pfirestore.WrapError.
var errVersionMismatch = status.Error(codes.Aborted, "order version mismatch")

// OrderRepository persists orders as single documents embedding items, settlements and history.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document. It joins the caller's transaction when ctx carries one.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order when the stored version matches expectedVersion.
//
// Inside a caller transaction the order was already read through the same transaction, so
// Firestore aborts the commit if another writer touched it; the write is buffered without a
// second read to keep all reads ahead of writes.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		return nil
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if stored.Version != expectedVersion {
			return errVersionMismatch
		}
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("orders.update", err)
}

// FindByID loads an order, reading through the caller's transaction when present.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
		}
		return decodeOrderDocument(orderID, doc), nil
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// List returns orders newest first, filtered by buyer, seller and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		if trimmed := strings.TrimSpace(string(s)); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
			q = q.Where("sellerIds", "array-contains", sellerID)
		}
		switch {
		case len(statuses) == 1:
			q = q.Where("status", "==", statuses[0])
		case len(statuses) > 1:
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		if from := filter.DateRange.From; from != nil {
			q = q.Where("createdAt", ">=", from.UTC())
		}
		if to := filter.DateRange.To; to != nil {
			q = q.Where("createdAt", "<=", to.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

type orderDocument struct {
	OrderNumber       string                  `firestore:"orderNumber"`
	UserID            string                  `firestore:"userId"`
	Items             []orderItemDocument     `firestore:"items"`
	Subtotal          int64                   `firestore:"subtotal"`
	CouponDiscount    int64                   `firestore:"couponDiscount"`
	ShippingCost      int64                   `firestore:"shippingCost"`
	Total             int64                   `firestore:"total"`
	Currency          string                  `firestore:"currency"`
	Status            string                  `firestore:"status"`
	PaymentStatus     string                  `firestore:"paymentStatus"`
	PaymentMethod     string                  `firestore:"paymentMethod"`
	Payment           orderPaymentDocument    `firestore:"payment"`
	RefundAmount      int64                   `firestore:"refundAmount"`
	RefundEligible    bool                    `firestore:"refundEligible"`
	RefundedAt        *time.Time              `firestore:"refundedAt,omitempty"`
	SellerPayments    []sellerPaymentDocument `firestore:"sellerPayments"`
	SellerIDs         []string                `firestore:"sellerIds"`
	StatusHistory     []statusChangeDocument  `firestore:"statusHistory"`
	AuditTrail        []auditNoteDocument     `firestore:"auditTrail"`
	Coupon            *couponSnapshotDocument `firestore:"coupon,omitempty"`
	ShippingAddress   shippingAddressDocument `firestore:"shippingAddress"`
	Stock             stockFlagsDocument      `firestore:"stock"`
	TrackingNumber    string                  `firestore:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time              `firestore:"estimatedDelivery,omitempty"`
	CancelReason      string                  `firestore:"cancelReason,omitempty"`
	ConfirmedAt       *time.Time              `firestore:"confirmedAt,omitempty"`
	ShippedAt         *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt       *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time              `firestore:"cancelledAt,omitempty"`
	ReturnedAt        *time.Time              `firestore:"returnedAt,omitempty"`
	CreatedAt         time.Time               `firestore:"createdAt"`
	UpdatedAt         time.Time               `firestore:"updatedAt"`
	Version           int64                   `firestore:"version"`
}

type orderItemDocument struct {
	BookID    string `firestore:"bookId"`
	Title     string `firestore:"title"`
	SellerID  string `firestore:"sellerId"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	LineTotal int64  `firestore:"lineTotal"`
}

// ClientSecret is deliberately absent.
type orderPaymentDocument struct {
	Provider  string     `firestore:"provider,omitempty"`
	IntentID  string     `firestore:"intentId,omitempty"`
	Reference string     `firestore:"reference,omitempty"`
	PaidAt    *time.Time `firestore:"paidAt,omitempty"`
}

type sellerPaymentDocument struct {
	SellerID        string     `firestore:"sellerId"`
	ItemsTotal      int64      `firestore:"itemsTotal"`
	ShippingCharges int64      `firestore:"shippingCharges"`
	CommissionRate  float64    `firestore:"commissionRate"`
	AdminCommission int64      `firestore:"adminCommission"`
	NetAmount       int64      `firestore:"netAmount"`
	PaymentStatus   string     `firestore:"paymentStatus"`
	PaidBy          string     `firestore:"paidBy,omitempty"`
	PaidAt          *time.Time `firestore:"paidAt,omitempty"`
	Notes           string     `firestore:"notes,omitempty"`
}

type statusChangeDocument struct {
	Status    string    `firestore:"status"`
	ChangedBy string    `firestore:"changedBy"`
	ChangedAt time.Time `firestore:"changedAt"`
	Note      string    `firestore:"note,omitempty"`
}

type auditNoteDocument struct {
	Action string         `firestore:"action"`
	Actor  string         `firestore:"actor"`
	At     time.Time      `firestore:"at"`
	Note   string         `firestore:"note,omitempty"`
	Data   map[string]any `firestore:"data,omitempty"`
}

type couponSnapshotDocument struct {
	Code        string  `firestore:"code"`
	Description string  `firestore:"description"`
	Type        string  `firestore:"type"`
	Value       float64 `firestore:"value"`
}

type shippingAddressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	Landmark   string `firestore:"landmark,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type stockFlagsDocument struct {
	Deducted   bool       `firestore:"deducted"`
	DeductedAt *time.Time `firestore:"deductedAt,omitempty"`
	Restored   bool       `firestore:"restored"`
	RestoredAt *time.Time `firestore:"restoredAt,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:       strings.TrimSpace(order.OrderNumber),
		UserID:            strings.TrimSpace(order.UserID),
		Subtotal:          order.Subtotal,
		CouponDiscount:    order.CouponDiscount,
		ShippingCost:      order.ShippingCost,
		Total:             order.Total,
		Currency:          order.Currency,
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		PaymentMethod:     string(order.PaymentMethod),
		RefundAmount:      order.RefundAmount,
		RefundEligible:    order.RefundEligible,
		RefundedAt:        normalizeTimePointer(order.RefundedAt),
		SellerIDs:         append([]string(nil), order.SellerIDs...),
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: normalizeTimePointer(order.EstimatedDelivery),
		CancelReason:      order.CancelReason,
		ConfirmedAt:       normalizeTimePointer(order.ConfirmedAt),
		ShippedAt:         normalizeTimePointer(order.ShippedAt),
		DeliveredAt:       normalizeTimePointer(order.DeliveredAt),
		CancelledAt:       normalizeTimePointer(order.CancelledAt),
		ReturnedAt:        normalizeTimePointer(order.ReturnedAt),
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		Version:           order.Version,
		Payment: orderPaymentDocument{
			Provider:  order.Payment.Provider,
			IntentID:  order.Payment.IntentID,
			Reference: order.Payment.Reference,
			PaidAt:    normalizeTimePointer(order.Payment.PaidAt),
		},
		ShippingAddress: shippingAddressDocument(order.ShippingAddress),
		Stock: stockFlagsDocument{
			Deducted:   order.Stock.Deducted,
			DeductedAt: normalizeTimePointer(order.Stock.DeductedAt),
			Restored:   order.Stock.Restored,
			RestoredAt: normalizeTimePointer(order.Stock.RestoredAt),
		},
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	doc.SellerPayments = make([]sellerPaymentDocument, 0, len(order.SellerPayments))
	for _, sp := range order.SellerPayments {
		doc.SellerPayments = append(doc.SellerPayments, sellerPaymentDocument{
			SellerID:        sp.SellerID,
			ItemsTotal:      sp.ItemsTotal,
			ShippingCharges: sp.ShippingCharges,
			CommissionRate:  sp.CommissionRate,
			AdminCommission: sp.AdminCommission,
			NetAmount:       sp.NetAmount,
			PaymentStatus:   string(sp.PaymentStatus),
			PaidBy:          sp.PaidBy,
			PaidAt:          normalizeTimePointer(sp.PaidAt),
			Notes:           sp.Notes,
		})
	}
	doc.StatusHistory = make([]statusChangeDocument, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{
			Status:    string(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt.UTC(),
			Note:      change.Note,
		})
	}
	doc.AuditTrail = make([]auditNoteDocument, 0, len(order.AuditTrail))
	for _, note := range order.AuditTrail {
		doc.AuditTrail = append(doc.AuditTrail, auditNoteDocument{
			Action: note.Action,
			Actor:  note.Actor,
			At:     note.At.UTC(),
			Note:   note.Note,
			Data:   cloneMap(note.Data),
		})
	}
	if order.Coupon != nil {
		doc.Coupon = &couponSnapshotDocument{
			Code:        order.Coupon.Code,
			Description: order.Coupon.Description,
			Type:        string(order.Coupon.Type),
			Value:       order.Coupon.Value,
		}
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                strings.TrimSpace(id),
		OrderNumber:       doc.OrderNumber,
		UserID:            doc.UserID,
		Subtotal:          doc.Subtotal,
		CouponDiscount:    doc.CouponDiscount,
		ShippingCost:      doc.ShippingCost,
		Total:             doc.Total,
		Currency:          doc.Currency,
		Status:            domain.OrderStatus(doc.Status),
		PaymentStatus:     domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:     domain.PaymentMethod(doc.PaymentMethod),
		RefundAmount:      doc.RefundAmount,
		RefundEligible:    doc.RefundEligible,
		RefundedAt:        normalizeTimePointer(doc.RefundedAt),
		SellerIDs:         append([]string(nil), doc.SellerIDs...),
		TrackingNumber:    doc.TrackingNumber,
		EstimatedDelivery: normalizeTimePointer(doc.EstimatedDelivery),
		CancelReason:      doc.CancelReason,
		ConfirmedAt:       normalizeTimePointer(doc.ConfirmedAt),
		ShippedAt:         normalizeTimePointer(doc.ShippedAt),
		DeliveredAt:       normalizeTimePointer(doc.DeliveredAt),
		CancelledAt:       normalizeTimePointer(doc.CancelledAt),
		ReturnedAt:        normalizeTimePointer(doc.ReturnedAt),
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
		Version:           doc.Version,
		Payment: domain.OrderPayment{
			Provider:  doc.Payment.Provider,
			IntentID:  doc.Payment.IntentID,
			Reference: doc.Payment.Reference,
			PaidAt:    normalizeTimePointer(doc.Payment.PaidAt),
		},
		ShippingAddress: domain.ShippingAddress(doc.ShippingAddress),
		Stock: domain.StockFlags{
			Deducted:   doc.Stock.Deducted,
			DeductedAt: normalizeTimePointer(doc.Stock.DeductedAt),
			Restored:   doc.Stock.Restored,
			RestoredAt: normalizeTimePointer(doc.Stock.RestoredAt),
		},
	}
	if order.OrderNumber == "" {
		order.OrderNumber = order.ID
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	order.SellerPayments = make([]domain.SellerPayment, 0, len(doc.SellerPayments))
	for _, sp := range doc.SellerPayments {
		order.SellerPayments = append(order.SellerPayments, domain.SellerPayment{
			SellerID:        sp.SellerID,
			ItemsTotal:      sp.ItemsTotal,
			ShippingCharges: sp.ShippingCharges,
			CommissionRate:  sp.CommissionRate,
			AdminCommission: sp.AdminCommission,
			NetAmount:       sp.NetAmount,
			PaymentStatus:   domain.SellerPaymentStatus(sp.PaymentStatus),
			PaidBy:          sp.PaidBy,
			PaidAt:          normalizeTimePointer(sp.PaidAt),
			Notes:           sp.Notes,
		})
	}
	order.StatusHistory = make([]domain.StatusChange, 0, len(doc.StatusHistory))
	for _, change := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			Status:    domain.OrderStatus(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt.UTC(),
			Note:      change.Note,
		})
	}
	order.AuditTrail = make([]domain.AuditNote, 0, len(doc.AuditTrail))
	for _, note := range doc.AuditTrail {
		order.AuditTrail = append(order.AuditTrail, domain.AuditNote{
			Action: note.Action,
			Actor:  note.Actor,
			At:     note.At.UTC(),
			Note:   note.Note,
			Data:   cloneMap(note.Data),
		})
	}
	if doc.Coupon != nil {
		order.Coupon = &domain.CouponSnapshot{
			Code:        doc.Coupon.Code,
			Description: doc.Coupon.Description,
			Type:        domain.CouponType(doc.Coupon.Type),
			Value:       doc.Coupon.Value,
		}
	}
	return order
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}
