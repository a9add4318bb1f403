package repositories

import "errors"

// ErrCouponUsageLimit is returned by CouponRepository.Redeem when the coupon has no uses left.
var ErrCouponUsageLimit = errors.New("coupon usage limit reached")
