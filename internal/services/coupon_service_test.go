package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories/memory"
)

func TestCouponServiceValidate(t *testing.T) {
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	store := memory.NewStore()
	store.SeedCoupons(
		domain.Coupon{Code: "PUJO20", Type: domain.CouponTypePercentage, Value: 20, MaxDiscount: 15000, Active: true},
		domain.Coupon{Code: "FLAT500", Type: domain.CouponTypeFixed, Value: 50000, MinOrderAmount: 30000, Active: true},
		domain.Coupon{Code: "OFF", Type: domain.CouponTypeFixed, Value: 100, Active: false},
		domain.Coupon{Code: "OLD", Type: domain.CouponTypeFixed, Value: 100, Active: true, ValidUntil: &past},
		domain.Coupon{Code: "SOON", Type: domain.CouponTypeFixed, Value: 100, Active: true, ValidFrom: &future},
		domain.Coupon{Code: "USED", Type: domain.CouponTypeFixed, Value: 100, Active: true, UsageLimit: 2, UsedCount: 2},
	)
	svc, err := NewCouponService(CouponServiceDeps{Coupons: store.Coupons(), Clock: func() time.Time { return now }})
	require.NoError(t, err)

	cases := []struct {
		name     string
		code     string
		amount   int64
		discount int64
		wantErr  bool
	}{
		{name: "percentage", code: "pujo20", amount: 50000, discount: 10000},
		{name: "percentage capped", code: "PUJO20", amount: 100000, discount: 15000},
		{name: "fixed clamped to amount", code: "FLAT500", amount: 40000, discount: 40000},
		{name: "below minimum", code: "FLAT500", amount: 20000, wantErr: true},
		{name: "inactive", code: "OFF", amount: 1000, wantErr: true},
		{name: "expired", code: "OLD", amount: 1000, wantErr: true},
		{name: "not yet valid", code: "SOON", amount: 1000, wantErr: true},
		{name: "usage limit reached", code: "USED", amount: 1000, wantErr: true},
		{name: "unknown", code: "MISSING", amount: 1000, wantErr: true},
		{name: "blank", code: " ", amount: 1000, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := svc.Validate(context.Background(), tc.code, tc.amount)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrCouponInvalid)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.discount, quote.Discount)
		})
	}
}

func TestCouponServiceRedeem(t *testing.T) {
	store := memory.NewStore()
	store.SeedCoupons(domain.Coupon{Code: "BOI10", Type: domain.CouponTypePercentage, Value: 10, Active: true})
	svc, err := NewCouponService(CouponServiceDeps{Coupons: store.Coupons()})
	require.NoError(t, err)

	require.NoError(t, svc.Redeem(context.Background(), "boi10"))
	coupon, err := store.Coupons().FindByCode(context.Background(), "BOI10")
	require.NoError(t, err)
	require.Equal(t, 1, coupon.UsedCount)

	require.ErrorIs(t, svc.Redeem(context.Background(), "GONE"), ErrCouponInvalid)
}

func TestCouponServiceRedeemStopsAtUsageLimit(t *testing.T) {
	store := memory.NewStore()
	store.SeedCoupons(domain.Coupon{Code: "EKBAR", Type: domain.CouponTypeFixed, Value: 500, UsageLimit: 1, Active: true})
	svc, err := NewCouponService(CouponServiceDeps{Coupons: store.Coupons()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Redeem(ctx, "ekbar"))
	require.ErrorIs(t, svc.Redeem(ctx, "ekbar"), ErrCouponInvalid)

	require.NoError(t, svc.Release(ctx, " ekbar "))
	coupon, err := store.Coupons().FindByCode(ctx, "EKBAR")
	require.NoError(t, err)
	require.Equal(t, 0, coupon.UsedCount)

	require.NoError(t, svc.Redeem(ctx, "ekbar"))
	require.ErrorIs(t, svc.Release(ctx, "  "), ErrCouponInvalid)
}
