package domain

import "time"

// NotificationKind groups notifications for inbox filtering.
type NotificationKind string

const (
	NotificationKindOrder    NotificationKind = "order"
	NotificationKindDelivery NotificationKind = "delivery"
	NotificationKindOffer    NotificationKind = "offer"
	NotificationKindStock    NotificationKind = "stock"
	NotificationKindGeneral  NotificationKind = "general"
)

// NotificationPriority hints how prominently clients surface a notification.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is an in-app message for a buyer, seller, or the admin inbox.
// An empty RecipientID with RecipientRole "admin" addresses every administrator.
type Notification struct {
	ID            string
	RecipientID   string
	RecipientRole string
	Kind          NotificationKind
	Title         string
	Body          string
	Data          map[string]string
	Priority      NotificationPriority
	Read          bool
	CreatedAt     time.Time
}
