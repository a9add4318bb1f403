package services

import (
	"context"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	SellerPayment      = domain.SellerPayment
	SellerSettlement   = domain.SellerSettlement
	ShippingAddress    = domain.ShippingAddress
	ShippingQuote      = domain.ShippingQuote
	Coupon             = domain.Coupon
	Notification       = domain.Notification
	PlatformSettings   = domain.PlatformSettings
	SignedDownload     = domain.SignedDownload
	SystemHealthReport = domain.SystemHealthReport
	StatusChange       = domain.StatusChange
	OrderPage          = domain.CursorPage[domain.Order]
	SettlementPage     = domain.CursorPage[domain.SellerSettlement]
)

// OrderService drives an order from checkout to settlement. Every mutation is serialised per order.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListSellerPayments(ctx context.Context, filter SellerPaymentFilter) (domain.CursorPage[SellerSettlement], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	CorrectShipping(ctx context.Context, cmd CorrectShippingCommand) (Order, error)
	OverrideCommission(ctx context.Context, cmd OverrideCommissionCommand) (Order, error)
	MarkSellerPaid(ctx context.Context, cmd MarkSellerPaidCommand) (Order, error)
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	QuoteShipping(ctx context.Context, postalCode string, subtotal int64) (ShippingQuote, error)
}

// SettingsService exposes platform-wide settings. It is the CommissionRateSource for settlements.
type SettingsService interface {
	CommissionRateSource
	GetPlatformSettings(ctx context.Context) (PlatformSettings, error)
	UpdateCommissionRate(ctx context.Context, cmd UpdateCommissionRateCommand) (PlatformSettings, error)
}

// StatementService exports seller settlement statements.
type StatementService interface {
	ExportSellerStatement(ctx context.Context, cmd ExportStatementCommand) (SignedDownload, error)
}

// NotificationService persists in-app notifications handed over by the dispatcher.
type NotificationService interface {
	Deliver(ctx context.Context, notification Notification) error
}

// CounterService issues order numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// SystemService aggregates health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogReader returns live pricing for a book. Implementations return ErrBookNotFound for unknown ids.
type CatalogReader interface {
	GetBookPricingInfo(ctx context.Context, bookID string) (BookPricing, error)
}

// CouponService validates and redeems coupon codes.
type CouponService interface {
	Validate(ctx context.Context, code string, orderAmount int64) (CouponQuote, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// ShippingCalculator prices delivery to a postal code.
type ShippingCalculator interface {
	Calculate(ctx context.Context, postalCode string, discountedSubtotal int64) (int64, error)
	ValidatePostalCode(postalCode string) PostalCodeValidation
	Quote(ctx context.Context, postalCode string, subtotal int64) (ShippingQuote, error)
}

// PaymentGateway talks to an external payment service provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	VerifyCallback(ctx context.Context, provider string, payload []byte, signature string) (VerifiedPayment, error)
	Refund(ctx context.Context, req PaymentRefundRequest) error
}

// NotificationDispatcher hands notifications to an asynchronous delivery channel. It never blocks
// the caller on delivery and never reports delivery failures.
type NotificationDispatcher interface {
	Notify(ctx context.Context, notification Notification)
}

// CommissionRateSource resolves the platform commission percentage at the time it is needed.
type CommissionRateSource interface {
	CurrentCommissionRate(ctx context.Context) (float64, error)
}

// StatementStorage writes a statement object and returns a time-limited download link.
type StatementStorage interface {
	Upload(ctx context.Context, object string, contentType string, data []byte) error
	SignedURL(ctx context.Context, object string, ttl time.Duration) (SignedDownload, error)
}

// BookPricing is the catalog view used for pricing and stock checks.
type BookPricing struct {
	BookID   string
	Title    string
	SellerID string
	Price    int64
	Stock    int
}

// CouponQuote is the discount a coupon grants for a given order amount.
type CouponQuote struct {
	Code        string
	Description string
	Type        domain.CouponType
	Value       float64
	Discount    int64
}

// PostalCodeValidation reports whether a postal code can be served.
type PostalCodeValidation struct {
	IsValid bool
	Message string
}

// PaymentIntentRequest asks the gateway to prepare a payment for an order.
type PaymentIntentRequest struct {
	Provider       string
	OrderID        string
	Amount         int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntent is returned to the buyer so the client can complete payment.
type PaymentIntent struct {
	Provider     string
	IntentID     string
	ClientSecret string
	Status       string
}

// VerifiedPayment is a gateway callback whose signature has been checked.
type VerifiedPayment struct {
	Provider   string
	EventID    string
	EventType  string
	IntentID   string
	OrderID    string
	Reference  string
	Amount     int64
	Currency   string
	Succeeded  bool
	OccurredAt time.Time
}

// PaymentRefundRequest asks the gateway to return money for a captured payment.
type PaymentRefundRequest struct {
	Provider       string
	OrderID        string
	IntentID       string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// OrderListFilter narrows order listings.
type OrderListFilter = repositories.OrderListFilter

// SellerPaymentFilter narrows a seller's settlement history.
type SellerPaymentFilter struct {
	SellerID   string
	Status     []domain.SellerPaymentStatus
	Pagination Pagination
}

// CreateOrderItem is a requested book and quantity. Prices are always resolved from the catalog.
type CreateOrderItem struct {
	BookID   string
	Quantity int
}

type CreateOrderCommand struct {
	UserID          string
	Items           []CreateOrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   domain.PaymentMethod
	CouponCode      string
	ActorID         string
	IdempotencyKey  string
}

// ConfirmPaymentCommand carries a raw gateway callback.
type ConfirmPaymentCommand struct {
	Provider  string
	Payload   []byte
	Signature string
}

type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         OrderStatus
	ActorID        string
	Note           string
	TrackingNumber string
}

type CorrectShippingCommand struct {
	OrderID      string
	ShippingCost int64
	ActorID      string
	Note         string
}

type OverrideCommissionCommand struct {
	OrderID  string
	SellerID string
	Rate     float64
	ActorID  string
}

type MarkSellerPaidCommand struct {
	OrderID  string
	SellerID string
	ActorID  string
	Notes    string
}

type ProcessRefundCommand struct {
	OrderID        string
	Amount         int64
	Reason         string
	ActorID        string
	IdempotencyKey string
}

// CancelOrderCommand cancels an order. When OwnerID is set only that buyer may cancel.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
	OwnerID string
}

type UpdateCommissionRateCommand struct {
	Rate    float64
	ActorID string
}

type ExportStatementCommand struct {
	SellerID string
	From     *time.Time
	To       *time.Time
	ActorID  string
}
