package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

// CouponServiceDeps bundles collaborators required by the coupon service.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
}

type couponService struct {
	coupons repositories.CouponRepository
	clock   func() time.Time
}

// NewCouponService validates codes against the coupon repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &couponService{
		coupons: deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *couponService) Validate(ctx context.Context, code string, orderAmount int64) (CouponQuote, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return CouponQuote{}, fmt.Errorf("%w: code is required", ErrCouponInvalid)
	}
	if orderAmount <= 0 {
		return CouponQuote{}, fmt.Errorf("%w: order amount must be positive", ErrCouponInvalid)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return CouponQuote{}, s.mapRepositoryError(code, err)
	}
	if err := checkCouponUsable(coupon, s.clock()); err != nil {
		return CouponQuote{}, err
	}
	if orderAmount < coupon.MinOrderAmount {
		return CouponQuote{}, fmt.Errorf("%w: minimum order amount %d required", ErrCouponInvalid, coupon.MinOrderAmount)
	}

	return CouponQuote{
		Code:        coupon.Code,
		Description: coupon.Description,
		Type:        coupon.Type,
		Value:       coupon.Value,
		Discount:    couponDiscount(coupon, orderAmount),
	}, nil
}

func (s *couponService) Redeem(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrCouponInvalid)
	}
	err := s.coupons.Redeem(ctx, code, s.clock())
	switch {
	case errors.Is(err, repositories.ErrCouponUsageLimit):
		return fmt.Errorf("%w: %s usage limit reached", ErrCouponInvalid, code)
	case err != nil:
		return s.mapRepositoryError(code, err)
	}
	return nil
}

func (s *couponService) Release(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrCouponInvalid)
	}
	if err := s.coupons.Release(ctx, code, s.clock()); err != nil {
		return s.mapRepositoryError(code, err)
	}
	return nil
}

func (s *couponService) mapRepositoryError(code string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: unknown code %s", ErrCouponInvalid, code)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: coupons: %v", ErrExternalService, err)
		}
	}
	return fmt.Errorf("coupon service: %w", err)
}

func checkCouponUsable(coupon domain.Coupon, now time.Time) error {
	switch {
	case !coupon.Active:
		return fmt.Errorf("%w: %s is inactive", ErrCouponInvalid, coupon.Code)
	case coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom):
		return fmt.Errorf("%w: %s is not yet valid", ErrCouponInvalid, coupon.Code)
	case coupon.ValidUntil != nil && now.After(*coupon.ValidUntil):
		return fmt.Errorf("%w: %s has expired", ErrCouponInvalid, coupon.Code)
	case coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit:
		return fmt.Errorf("%w: %s usage limit reached", ErrCouponInvalid, coupon.Code)
	}
	return nil
}

// couponDiscount never exceeds the order amount. Percentage discounts honour MaxDiscount.
func couponDiscount(coupon domain.Coupon, orderAmount int64) int64 {
	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = decimal.NewFromInt(orderAmount).
			Mul(decimal.NewFromFloat(coupon.Value)).
			Div(hundred).
			Round(0).
			IntPart()
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
	case domain.CouponTypeFixed:
		discount = decimal.NewFromFloat(coupon.Value).Round(0).IntPart()
	}
	return max(0, min(discount, orderAmount))
}
