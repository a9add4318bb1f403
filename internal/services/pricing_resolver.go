package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

// PricingResolverDeps bundles the external collaborators used for pricing.
type PricingResolverDeps struct {
	Catalog  CatalogReader
	Coupons  CouponService
	Shipping ShippingCalculator
}

// PricingResolver turns requested items into priced order lines and totals.
type PricingResolver struct {
	catalog  CatalogReader
	coupons  CouponService
	shipping ShippingCalculator
}

// PricedOrder is the outcome of pricing a basket.
type PricedOrder struct {
	Items          []OrderItem
	Subtotal       int64
	CouponDiscount int64
	ShippingCost   int64
	Total          int64
	Coupon         *domain.CouponSnapshot
}

// NewPricingResolver wires catalog, coupon and shipping collaborators. Coupons are optional.
func NewPricingResolver(deps PricingResolverDeps) (*PricingResolver, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing resolver: catalog reader is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("pricing resolver: shipping calculator is required")
	}
	return &PricingResolver{
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		shipping: deps.Shipping,
	}, nil
}

// Quote prices items at current catalog prices. Items must already be merged by book.
func (r *PricingResolver) Quote(ctx context.Context, items []CreateOrderItem, postalCode, couponCode string) (PricedOrder, error) {
	if len(items) == 0 {
		return PricedOrder{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	priced := PricedOrder{Items: make([]OrderItem, 0, len(items))}
	for _, item := range items {
		info, err := r.catalog.GetBookPricingInfo(ctx, item.BookID)
		if err != nil {
			return PricedOrder{}, err
		}
		if info.Price < 0 {
			return PricedOrder{}, fmt.Errorf("%w: book %s has an invalid price", ErrOrderInvalidInput, item.BookID)
		}
		if strings.TrimSpace(info.SellerID) == "" {
			return PricedOrder{}, fmt.Errorf("%w: book %s has no seller", ErrOrderInvalidInput, item.BookID)
		}
		if item.Quantity > info.Stock {
			return PricedOrder{}, fmt.Errorf("%w: %w", ErrInsufficientStock,
				repositories.NewInsufficientStockError("pricing.quote", item.BookID, item.Quantity, info.Stock))
		}
		line := OrderItem{
			BookID:    item.BookID,
			Title:     info.Title,
			SellerID:  info.SellerID,
			Quantity:  item.Quantity,
			UnitPrice: info.Price,
			LineTotal: info.Price * int64(item.Quantity),
		}
		priced.Items = append(priced.Items, line)
		priced.Subtotal += line.LineTotal
	}

	if code := strings.TrimSpace(couponCode); code != "" {
		if r.coupons == nil {
			return PricedOrder{}, fmt.Errorf("%w: coupons are not enabled", ErrCouponInvalid)
		}
		quote, err := r.coupons.Validate(ctx, code, priced.Subtotal)
		if err != nil {
			return PricedOrder{}, err
		}
		priced.CouponDiscount = min(quote.Discount, priced.Subtotal)
		priced.Coupon = &domain.CouponSnapshot{
			Code:        quote.Code,
			Description: quote.Description,
			Type:        quote.Type,
			Value:       quote.Value,
		}
	}

	shipping, err := r.shipping.Calculate(ctx, postalCode, priced.Subtotal-priced.CouponDiscount)
	if err != nil {
		if errors.Is(err, ErrOrderInvalidInput) {
			return PricedOrder{}, err
		}
		return PricedOrder{}, fmt.Errorf("%w: shipping: %v", ErrExternalService, err)
	}
	priced.ShippingCost = shipping
	priced.Total = orderTotal(priced.Subtotal, priced.CouponDiscount, priced.ShippingCost)
	return priced, nil
}

func orderTotal(subtotal, discount, shipping int64) int64 {
	return subtotal - discount + shipping
}
