package services

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status is not a successor of the current one.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable is an ErrOrderInvalidTransition raised by cancellation requests.
	ErrOrderNotCancellable = fmt.Errorf("%w: order cannot be cancelled", ErrOrderInvalidTransition)
	// ErrOrderConflict indicates a concurrent write won; the caller may retry.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")

	// ErrBookNotFound indicates an ordered book is missing from the catalog.
	ErrBookNotFound = errors.New("order: book not found")
	// ErrInsufficientStock indicates a book cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrCouponInvalid indicates the coupon is unknown, inactive, expired, exhausted or below its minimum.
	ErrCouponInvalid = errors.New("order: coupon invalid")

	// ErrInvalidCommissionRate indicates a rate outside 0..100.
	ErrInvalidCommissionRate = errors.New("settlement: invalid commission rate")
	// ErrSellerPaymentNotFound indicates the order has no settlement for the seller.
	ErrSellerPaymentNotFound = errors.New("settlement: seller payment not found")
	// ErrSellerPaymentAlreadyPaid indicates a paid settlement was asked to change.
	ErrSellerPaymentAlreadyPaid = errors.New("settlement: seller payment already paid")

	// ErrInvalidRefundAmount indicates a non-positive refund or one exceeding the refundable balance.
	ErrInvalidRefundAmount = errors.New("refund: invalid amount")
	// ErrRefundNotAllowed indicates money was never captured for the order.
	ErrRefundNotAllowed = errors.New("refund: payment not captured")

	// ErrExternalService indicates a gateway or other remote dependency failed.
	ErrExternalService = errors.New("external service failure")
)
