package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/boibabu/api/internal/domain"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
	"github.com/boibabu/api/internal/repositories"
)

const couponsCollection = "coupons"

type couponDocument struct {
	Description    string     `firestore:"description"`
	Type           string     `firestore:"type"`
	Value          float64    `firestore:"value"`
	MinOrderAmount int64      `firestore:"minOrderAmount"`
	MaxDiscount    int64      `firestore:"maxDiscount"`
	UsageLimit     int        `firestore:"usageLimit"`
	UsedCount      int        `firestore:"usedCount"`
	ValidFrom      *time.Time `firestore:"validFrom,omitempty"`
	ValidUntil     *time.Time `firestore:"validUntil,omitempty"`
	Active         bool       `firestore:"active"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// CouponRepository reads coupons keyed by their upper-cased code.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository: firestore provider is required")
	}
	return &CouponRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection),
	}, nil
}

// FindByCode looks up a coupon. Codes are case-insensitive.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = normalizeCouponCode(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}
	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	return domain.Coupon{
		Code:           doc.ID,
		Description:    doc.Data.Description,
		Type:           domain.CouponType(doc.Data.Type),
		Value:          doc.Data.Value,
		MinOrderAmount: doc.Data.MinOrderAmount,
		MaxDiscount:    doc.Data.MaxDiscount,
		UsageLimit:     doc.Data.UsageLimit,
		UsedCount:      doc.Data.UsedCount,
		ValidFrom:      normalizeTimePointer(doc.Data.ValidFrom),
		ValidUntil:     normalizeTimePointer(doc.Data.ValidUntil),
		Active:         doc.Data.Active,
		CreatedAt:      doc.Data.CreatedAt.UTC(),
		UpdatedAt:      doc.Data.UpdatedAt.UTC(),
	}, nil
}

// Redeem checks the usage limit and counts the use in one transaction, so concurrent checkouts
// cannot overshoot the limit.
func (r *CouponRepository) Redeem(ctx context.Context, code string, at time.Time) error {
	return r.adjustUsage(ctx, "coupons.redeem", code, at, func(doc couponDocument) (int, error) {
		if doc.UsageLimit > 0 && doc.UsedCount >= doc.UsageLimit {
			return 0, repositories.ErrCouponUsageLimit
		}
		return doc.UsedCount + 1, nil
	})
}

func (r *CouponRepository) Release(ctx context.Context, code string, at time.Time) error {
	return r.adjustUsage(ctx, "coupons.release", code, at, func(doc couponDocument) (int, error) {
		return max(0, doc.UsedCount-1), nil
	})
}

func (r *CouponRepository) adjustUsage(ctx context.Context, op, code string, at time.Time, next func(couponDocument) (int, error)) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	code = normalizeCouponCode(code)
	if code == "" {
		return errors.New("coupon repository: code is required")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		used, err := next(doc)
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "usedCount", Value: used},
			{Path: "updatedAt", Value: at.UTC()},
		})
	})
	if errors.Is(err, repositories.ErrCouponUsageLimit) {
		return err
	}
	return pfirestore.WrapError(op, err)
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
