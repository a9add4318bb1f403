package services

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/boibabu/api/internal/domain"
)

var amountPrinter = message.NewPrinter(language.MustParse("en-IN"))

// formatAmount renders minor units with the currency symbol, for example "₹ 1,070.00".
func formatAmount(code string, minor int64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %d", code, minor)
	}
	scale, _ := currency.Standard.Rounding(unit)
	divisor := 1.0
	for i := 0; i < scale; i++ {
		divisor *= 10
	}
	return amountPrinter.Sprint(currency.Symbol(unit.Amount(float64(minor) / divisor)))
}

func orderData(order Order, extra ...string) map[string]string {
	data := map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"status":      string(order.Status),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		data[extra[i]] = extra[i+1]
	}
	return data
}

func customerOrderPlaced(order Order) Notification {
	return Notification{
		RecipientID:   order.UserID,
		RecipientRole: RecipientRoleCustomer,
		Kind:          domain.NotificationKindOrder,
		Title:         "Order placed",
		Body: fmt.Sprintf("Your order %s for %s has been placed.",
			order.OrderNumber, formatAmount(order.Currency, order.Total)),
		Data:     orderData(order),
		Priority: domain.NotificationPriorityHigh,
	}
}

func sellerNewOrder(order Order, payment SellerPayment) Notification {
	items := 0
	for _, item := range order.Items {
		if item.SellerID == payment.SellerID {
			items += item.Quantity
		}
	}
	return Notification{
		RecipientID:   payment.SellerID,
		RecipientRole: RecipientRoleSeller,
		Kind:          domain.NotificationKindOrder,
		Title:         "New order received",
		Body: fmt.Sprintf("Order %s includes %d of your books worth %s.",
			order.OrderNumber, items, formatAmount(order.Currency, payment.ItemsTotal)),
		Data:     orderData(order, "itemsTotal", strconv.FormatInt(payment.ItemsTotal, 10)),
		Priority: domain.NotificationPriorityHigh,
	}
}

func adminNewOrder(order Order) Notification {
	destination := order.ShippingAddress.City
	if landmark := strings.TrimSpace(order.ShippingAddress.Landmark); landmark != "" {
		destination = landmark + ", " + destination
	}
	return Notification{
		RecipientRole: RecipientRoleAdmin,
		Kind:          domain.NotificationKindOrder,
		Title:         "New order",
		Body: fmt.Sprintf("Order %s placed. Total %s. Shipping to %s.",
			order.OrderNumber, formatAmount(order.Currency, order.Total), destination),
		Data:     orderData(order, "userId", order.UserID),
		Priority: domain.NotificationPriorityMedium,
	}
}

var statusMessages = map[OrderStatus]string{
	domain.OrderStatusConfirmed: "Your order %s has been confirmed.",
	domain.OrderStatusShipped:   "Your order %s has been shipped.",
	domain.OrderStatusDelivered: "Your order %s has been delivered.",
	domain.OrderStatusCancelled: "Your order %s has been cancelled.",
	domain.OrderStatusReturned:  "Your return for order %s has been recorded.",
}

func customerStatusChanged(order Order) Notification {
	body := fmt.Sprintf(statusMessages[order.Status], order.OrderNumber)
	if order.Status == domain.OrderStatusShipped && order.TrackingNumber != "" {
		body += " Tracking number: " + order.TrackingNumber + "."
	}
	kind := domain.NotificationKindOrder
	if order.Status == domain.OrderStatusShipped || order.Status == domain.OrderStatusDelivered {
		kind = domain.NotificationKindDelivery
	}
	return Notification{
		RecipientID:   order.UserID,
		RecipientRole: RecipientRoleCustomer,
		Kind:          kind,
		Title:         "Order " + string(order.Status),
		Body:          body,
		Data:          orderData(order, "trackingNumber", order.TrackingNumber),
		Priority:      domain.NotificationPriorityMedium,
	}
}

func customerRefundProcessed(order Order, amount int64) Notification {
	return Notification{
		RecipientID:   order.UserID,
		RecipientRole: RecipientRoleCustomer,
		Kind:          domain.NotificationKindOrder,
		Title:         "Refund processed",
		Body: fmt.Sprintf("A refund of %s for order %s has been processed.",
			formatAmount(order.Currency, amount), order.OrderNumber),
		Data:     orderData(order, "refundAmount", strconv.FormatInt(amount, 10)),
		Priority: domain.NotificationPriorityHigh,
	}
}

func sellerCommissionChanged(order Order, payment SellerPayment) Notification {
	return Notification{
		RecipientID:   payment.SellerID,
		RecipientRole: RecipientRoleSeller,
		Kind:          domain.NotificationKindGeneral,
		Title:         "Commission updated",
		Body: fmt.Sprintf("Commission for order %s is now %s%%. Net payable %s.",
			order.OrderNumber, strconv.FormatFloat(payment.CommissionRate, 'f', -1, 64),
			formatAmount(order.Currency, payment.NetAmount)),
		Data:     orderData(order, "commissionRate", strconv.FormatFloat(payment.CommissionRate, 'f', -1, 64)),
		Priority: domain.NotificationPriorityMedium,
	}
}

func sellerPaid(order Order, payment SellerPayment) Notification {
	return Notification{
		RecipientID:   payment.SellerID,
		RecipientRole: RecipientRoleSeller,
		Kind:          domain.NotificationKindGeneral,
		Title:         "Payment sent",
		Body: fmt.Sprintf("%s for order %s has been paid out.",
			formatAmount(order.Currency, payment.NetAmount), order.OrderNumber),
		Data:     orderData(order, "netAmount", strconv.FormatInt(payment.NetAmount, 10)),
		Priority: domain.NotificationPriorityHigh,
	}
}
