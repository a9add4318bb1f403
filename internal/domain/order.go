package domain

import "time"

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits payment or confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates stock is reserved and settlements are computed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the parcel left the seller.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the buyer received the parcel.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal; stock has been restored.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned is terminal; the delivered parcel came back and stock has been restored.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentStatus tracks money captured from the buyer.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// PaymentMethod identifies how the buyer pays.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodStripe         PaymentMethod = "stripe"
)

// SellerPaymentStatus tracks whether the platform has paid a seller out.
type SellerPaymentStatus string

const (
	SellerPaymentDue  SellerPaymentStatus = "due"
	SellerPaymentPaid SellerPaymentStatus = "paid"
)

// Order is the aggregate root for a multi-seller purchase. Money is held in minor units.
// ID equals OrderNumber; the number doubles as the document key.
type Order struct {
	ID                string
	OrderNumber       string
	UserID            string
	Items             []OrderItem
	Subtotal          int64
	CouponDiscount    int64
	ShippingCost      int64
	Total             int64
	Currency          string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	PaymentMethod     PaymentMethod
	Payment           OrderPayment
	RefundAmount      int64
	RefundEligible    bool
	RefundedAt        *time.Time
	SellerPayments    []SellerPayment
	SellerIDs         []string
	StatusHistory     []StatusChange
	AuditTrail        []AuditNote
	Coupon            *CouponSnapshot
	ShippingAddress   ShippingAddress
	Stock             StockFlags
	TrackingNumber    string
	EstimatedDelivery *time.Time
	CancelReason      string
	ConfirmedAt       *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	ReturnedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

// OrderItem freezes catalog data at purchase time.
type OrderItem struct {
	BookID    string
	Title     string
	SellerID  string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// OrderPayment stores gateway references. ClientSecret is returned once to the buyer and never persisted.
type OrderPayment struct {
	Provider     string
	IntentID     string
	Reference    string
	ClientSecret string
	PaidAt       *time.Time
}

// SellerPayment is the settlement owed to one seller for one order.
type SellerPayment struct {
	SellerID        string
	ItemsTotal      int64
	ShippingCharges int64
	CommissionRate  float64
	AdminCommission int64
	NetAmount       int64
	PaymentStatus   SellerPaymentStatus
	PaidBy          string
	PaidAt          *time.Time
	Notes           string
}

// StatusChange is one append-only entry of the order's status history.
type StatusChange struct {
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
	Note      string
}

// AuditNote records money-affecting admin actions that do not change status.
type AuditNote struct {
	Action string
	Actor  string
	At     time.Time
	Note   string
	Data   map[string]any
}

// CouponSnapshot denormalizes the coupon so later edits or deletion do not alter the order.
type CouponSnapshot struct {
	Code        string
	Description string
	Type        CouponType
	Value       float64
}

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	Landmark   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// StockFlags guard stock movements so each happens at most once per order.
type StockFlags struct {
	Deducted   bool
	DeductedAt *time.Time
	Restored   bool
	RestoredAt *time.Time
}

// SellerSettlement pairs a seller payment with the order it belongs to for seller-facing listings.
type SellerSettlement struct {
	OrderID     string
	OrderNumber string
	OrderStatus OrderStatus
	OrderedAt   time.Time
	Payment     SellerPayment
}

// ShippingQuote previews shipping for a destination and basket value.
type ShippingQuote struct {
	PostalCode            string
	Zone                  string
	Subtotal              int64
	ShippingCost          int64
	FreeShippingThreshold int64
	AmountForFreeShipping int64
}
