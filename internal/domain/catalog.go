package domain

import "time"

// Book is the catalog entry this service reads for pricing and writes only for stock.
type Book struct {
	ID        string
	Title     string
	Price     int64
	Stock     int
	SellerID  string
	UpdatedAt time.Time
}

// CouponType selects how a coupon's Value is interpreted.
type CouponType string

const (
	// CouponTypePercentage interprets Value as percentage points of the order amount.
	CouponTypePercentage CouponType = "percentage"
	// CouponTypeFixed interprets Value as an amount in minor units.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon is a discount code managed by administrators.
type Coupon struct {
	Code           string
	Description    string
	Type           CouponType
	Value          float64
	MinOrderAmount int64
	MaxDiscount    int64
	UsageLimit     int
	UsedCount      int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
