package handlers

import (
	"github.com/samber/lo"

	"github.com/boibabu/api/internal/services"
)

type orderResponse struct {
	Order   orderPayload          `json:"order"`
	Payment *paymentIntentPayload `json:"payment,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type paymentIntentPayload struct {
	Provider     string `json:"provider"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

type orderPayload struct {
	ID                string                 `json:"id"`
	OrderNumber       string                 `json:"order_number"`
	UserID            string                 `json:"user_id"`
	Status            string                 `json:"status"`
	PaymentStatus     string                 `json:"payment_status"`
	PaymentMethod     string                 `json:"payment_method"`
	Currency          string                 `json:"currency"`
	Totals            orderTotalsPayload     `json:"totals"`
	Coupon            *couponPayload         `json:"coupon,omitempty"`
	Items             []orderItemPayload     `json:"items"`
	SellerPayments    []sellerPaymentPayload `json:"seller_payments,omitempty"`
	ShippingAddress   addressPayload         `json:"shipping_address"`
	TrackingNumber    string                 `json:"tracking_number,omitempty"`
	EstimatedDelivery string                 `json:"estimated_delivery,omitempty"`
	RefundAmount      int64                  `json:"refund_amount,omitempty"`
	RefundEligible    bool                   `json:"refund_eligible,omitempty"`
	CancelReason      string                 `json:"cancel_reason,omitempty"`
	StatusHistory     []statusChangePayload  `json:"status_history"`
	CreatedAt         string                 `json:"created_at"`
	UpdatedAt         string                 `json:"updated_at,omitempty"`
	ConfirmedAt       string                 `json:"confirmed_at,omitempty"`
	ShippedAt         string                 `json:"shipped_at,omitempty"`
	DeliveredAt       string                 `json:"delivered_at,omitempty"`
	CancelledAt       string                 `json:"cancelled_at,omitempty"`
	ReturnedAt        string                 `json:"returned_at,omitempty"`
	RefundedAt        string                 `json:"refunded_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type couponPayload struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
}

type orderItemPayload struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	SellerID  string `json:"seller_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type sellerPaymentPayload struct {
	SellerID        string  `json:"seller_id"`
	ItemsTotal      int64   `json:"items_total"`
	ShippingCharges int64   `json:"shipping_charges"`
	CommissionRate  float64 `json:"commission_rate"`
	AdminCommission int64   `json:"admin_commission"`
	NetAmount       int64   `json:"net_amount"`
	PaymentStatus   string  `json:"payment_status"`
	PaidBy          string  `json:"paid_by,omitempty"`
	PaidAt          string  `json:"paid_at,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Landmark   string `json:"landmark,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

type statusChangePayload struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
	Note      string `json:"note,omitempty"`
}

type settlementListResponse struct {
	Items         []settlementPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type settlementPayload struct {
	OrderID     string               `json:"order_id"`
	OrderNumber string               `json:"order_number"`
	OrderStatus string               `json:"order_status"`
	OrderedAt   string               `json:"ordered_at"`
	Payment     sellerPaymentPayload `json:"payment"`
}

type shippingQuotePayload struct {
	PostalCode            string `json:"postal_code"`
	Zone                  string `json:"zone"`
	Subtotal              int64  `json:"subtotal"`
	ShippingCost          int64  `json:"shipping_cost"`
	FreeShipping          bool   `json:"free_shipping"`
	FreeShippingThreshold int64  `json:"free_shipping_threshold"`
	AmountForFreeShipping int64  `json:"amount_for_free_shipping"`
}

func buildOrderList(page services.OrderPage) orderListResponse {
	return orderListResponse{
		Items: lo.Map(page.Items, func(order services.Order, _ int) orderSummaryPayload {
			return orderSummaryPayload{
				ID:            order.ID,
				OrderNumber:   order.OrderNumber,
				Status:        string(order.Status),
				PaymentStatus: string(order.PaymentStatus),
				Currency:      order.Currency,
				Total:         order.Total,
				ItemCount:     lo.SumBy(order.Items, func(item services.OrderItem) int { return item.Quantity }),
				CreatedAt:     formatTime(order.CreatedAt),
			}
		}),
		NextPageToken: page.NextPageToken,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Subtotal,
			Discount: order.CouponDiscount,
			Shipping: order.ShippingCost,
			Total:    order.Total,
		},
		Items: lo.Map(order.Items, func(item services.OrderItem, _ int) orderItemPayload {
			return orderItemPayload{
				BookID:    item.BookID,
				Title:     item.Title,
				SellerID:  item.SellerID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				LineTotal: item.LineTotal,
			}
		}),
		SellerPayments:    lo.Map(order.SellerPayments, func(p services.SellerPayment, _ int) sellerPaymentPayload { return buildSellerPaymentPayload(p) }),
		ShippingAddress:   buildAddressPayload(order.ShippingAddress),
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: formatTime(pointerTime(order.EstimatedDelivery)),
		RefundAmount:      order.RefundAmount,
		RefundEligible:    order.RefundEligible,
		CancelReason:      order.CancelReason,
		StatusHistory: lo.Map(order.StatusHistory, func(change services.StatusChange, _ int) statusChangePayload {
			return statusChangePayload{
				Status:    string(change.Status),
				ChangedBy: change.ChangedBy,
				ChangedAt: formatTime(change.ChangedAt),
				Note:      change.Note,
			}
		}),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		ConfirmedAt: formatTime(pointerTime(order.ConfirmedAt)),
		ShippedAt:   formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt: formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt: formatTime(pointerTime(order.CancelledAt)),
		ReturnedAt:  formatTime(pointerTime(order.ReturnedAt)),
		RefundedAt:  formatTime(pointerTime(order.RefundedAt)),
	}
	if order.Coupon != nil {
		payload.Coupon = &couponPayload{
			Code:        order.Coupon.Code,
			Description: order.Coupon.Description,
			Type:        string(order.Coupon.Type),
			Value:       order.Coupon.Value,
		}
	}
	return payload
}

// buildSellerOrderPayload narrows an order to one seller: their items and their settlement only.
// Buyer contact details stay because the seller ships the parcel.
func buildSellerOrderPayload(order services.Order, sellerID string) orderPayload {
	order.Items = lo.Filter(order.Items, func(item services.OrderItem, _ int) bool {
		return item.SellerID == sellerID
	})
	order.SellerPayments = lo.Filter(order.SellerPayments, func(p services.SellerPayment, _ int) bool {
		return p.SellerID == sellerID
	})
	payload := buildOrderPayload(order)
	payload.Coupon = nil
	payload.RefundAmount = 0
	return payload
}

func buildSellerPaymentPayload(p services.SellerPayment) sellerPaymentPayload {
	return sellerPaymentPayload{
		SellerID:        p.SellerID,
		ItemsTotal:      p.ItemsTotal,
		ShippingCharges: p.ShippingCharges,
		CommissionRate:  p.CommissionRate,
		AdminCommission: p.AdminCommission,
		NetAmount:       p.NetAmount,
		PaymentStatus:   string(p.PaymentStatus),
		PaidBy:          p.PaidBy,
		PaidAt:          formatTime(pointerTime(p.PaidAt)),
		Notes:           p.Notes,
	}
}

func buildSettlementList(page services.SettlementPage) settlementListResponse {
	return settlementListResponse{
		Items: lo.Map(page.Items, func(s services.SellerSettlement, _ int) settlementPayload {
			return settlementPayload{
				OrderID:     s.OrderID,
				OrderNumber: s.OrderNumber,
				OrderStatus: string(s.OrderStatus),
				OrderedAt:   formatTime(s.OrderedAt),
				Payment:     buildSellerPaymentPayload(s.Payment),
			}
		}),
		NextPageToken: page.NextPageToken,
	}
}

func buildAddressPayload(addr services.ShippingAddress) addressPayload {
	return addressPayload{
		Name:       addr.Name,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		Landmark:   addr.Landmark,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}
