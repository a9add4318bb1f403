package services

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/boibabu/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SettlementCalculator derives one SellerPayment per seller of an order. It never touches a
// payment that is already paid, apart from appending notes when it is marked paid.
type SettlementCalculator struct{}

// Compute replaces the order's settlements using platformRate for every seller. Sellers appear in
// the order their first item appears.
func (SettlementCalculator) Compute(order *Order, platformRate float64) error {
	if err := validateCommissionRate(platformRate); err != nil {
		return err
	}
	sellers := orderSellers(order.Items)
	totals := sellerItemTotals(order.Items, sellers)
	shipping := allocateShipping(order.ShippingCost, totals)

	payments := make([]SellerPayment, 0, len(sellers))
	for i, sellerID := range sellers {
		payment := SellerPayment{
			SellerID:        sellerID,
			ItemsTotal:      totals[i],
			ShippingCharges: shipping[i],
			CommissionRate:  platformRate,
			PaymentStatus:   domain.SellerPaymentDue,
		}
		applyCommission(&payment)
		payments = append(payments, payment)
	}
	order.SellerPayments = payments
	order.SellerIDs = sellers
	return nil
}

// Recompute reallocates shipping and refreshes commission and net amount for due payments,
// keeping each payment's own rate.
func (SettlementCalculator) Recompute(order *Order) {
	if len(order.SellerPayments) == 0 {
		return
	}
	totals := lo.Map(order.SellerPayments, func(p SellerPayment, _ int) int64 { return p.ItemsTotal })
	shipping := allocateShipping(order.ShippingCost, totals)
	for i := range order.SellerPayments {
		payment := &order.SellerPayments[i]
		if payment.PaymentStatus == domain.SellerPaymentPaid {
			continue
		}
		payment.ShippingCharges = shipping[i]
		applyCommission(payment)
	}
}

// OverrideCommission sets a seller-specific rate and refreshes commission and net amount only.
func (SettlementCalculator) OverrideCommission(order *Order, sellerID string, rate float64) (SellerPayment, error) {
	if err := validateCommissionRate(rate); err != nil {
		return SellerPayment{}, err
	}
	payment, err := findDuePayment(order, sellerID)
	if err != nil {
		return SellerPayment{}, err
	}
	payment.CommissionRate = rate
	applyCommission(payment)
	return *payment, nil
}

// MarkPaid records a payout. Amounts are not recomputed.
func (SettlementCalculator) MarkPaid(order *Order, sellerID, actor, notes string, now time.Time) (SellerPayment, error) {
	payment, err := findDuePayment(order, sellerID)
	if err != nil {
		return SellerPayment{}, err
	}
	payment.PaymentStatus = domain.SellerPaymentPaid
	payment.PaidBy = actor
	payment.PaidAt = &now
	payment.Notes = appendNote(payment.Notes, notes)
	return *payment, nil
}

func findDuePayment(order *Order, sellerID string) (*SellerPayment, error) {
	sellerID = strings.TrimSpace(sellerID)
	for i := range order.SellerPayments {
		if order.SellerPayments[i].SellerID != sellerID {
			continue
		}
		if order.SellerPayments[i].PaymentStatus == domain.SellerPaymentPaid {
			return nil, fmt.Errorf("%w: seller %s", ErrSellerPaymentAlreadyPaid, sellerID)
		}
		return &order.SellerPayments[i], nil
	}
	return nil, fmt.Errorf("%w: seller %s", ErrSellerPaymentNotFound, sellerID)
}

func applyCommission(payment *SellerPayment) {
	payment.AdminCommission = commissionFor(payment.ItemsTotal, payment.CommissionRate)
	payment.NetAmount = payment.ItemsTotal - payment.AdminCommission - payment.ShippingCharges
}

// commissionFor rounds half away from zero to the minor unit.
func commissionFor(itemsTotal int64, rate float64) int64 {
	return decimal.NewFromInt(itemsTotal).
		Mul(decimal.NewFromFloat(rate)).
		Div(hundred).
		Round(0).
		IntPart()
}

func validateCommissionRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 100 {
		return fmt.Errorf("%w: %v must be between 0 and 100", ErrInvalidCommissionRate, rate)
	}
	return nil
}

func orderSellers(items []OrderItem) []string {
	return lo.Uniq(lo.Map(items, func(item OrderItem, _ int) string { return item.SellerID }))
}

func sellerItemTotals(items []OrderItem, sellers []string) []int64 {
	return lo.Map(sellers, func(sellerID string, _ int) int64 {
		return lo.SumBy(items, func(item OrderItem) int64 {
			if item.SellerID != sellerID {
				return 0
			}
			return item.LineTotal
		})
	})
}

// allocateShipping splits shipping proportionally to weights using the largest remainder method,
// so the shares always add up to shipping. Ties go to the earlier seller. When every weight is
// zero the cost is split equally.
func allocateShipping(shipping int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if len(weights) == 0 || shipping <= 0 {
		return shares
	}

	total := lo.Sum(weights)
	if total <= 0 {
		n := int64(len(weights))
		for i := range shares {
			shares[i] = shipping / n
			if int64(i) < shipping%n {
				shares[i]++
			}
		}
		return shares
	}

	denominator := decimal.NewFromInt(total)
	remainders := make([]decimal.Decimal, len(weights))
	var allocated int64
	for i, weight := range weights {
		quotient, remainder := decimal.NewFromInt(shipping).Mul(decimal.NewFromInt(weight)).QuoRem(denominator, 0)
		shares[i] = quotient.IntPart()
		remainders[i] = remainder
		allocated += shares[i]
	}

	order := lo.Range(len(weights))
	slices.SortStableFunc(order, func(a, b int) int { return remainders[b].Cmp(remainders[a]) })
	for _, idx := range order[:shipping-allocated] {
		shares[idx]++
	}
	return shares
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}
