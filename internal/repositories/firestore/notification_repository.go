package firestore

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
)

const notificationsCollection = "notifications"

type notificationDocument struct {
	RecipientID   string            `firestore:"recipientId,omitempty"`
	RecipientRole string            `firestore:"recipientRole"`
	Kind          string            `firestore:"kind"`
	Title         string            `firestore:"title"`
	Body          string            `firestore:"body"`
	Data          map[string]string `firestore:"data,omitempty"`
	Priority      string            `firestore:"priority"`
	Read          bool              `firestore:"read"`
	CreatedAt     time.Time         `firestore:"createdAt"`
}

// NotificationRepository writes in-app notifications read by the client apps.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification store.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository: firestore provider is required")
	}
	return &NotificationRepository{
		base: pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection),
	}, nil
}

// Insert creates the notification document.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	id := strings.TrimSpace(notification.ID)
	if id == "" {
		return errors.New("notification repository: id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	var data map[string]string
	if len(notification.Data) > 0 {
		data = maps.Clone(notification.Data)
	}
	doc := notificationDocument{
		RecipientID:   strings.TrimSpace(notification.RecipientID),
		RecipientRole: notification.RecipientRole,
		Kind:          string(notification.Kind),
		Title:         notification.Title,
		Body:          notification.Body,
		Data:          data,
		Priority:      string(notification.Priority),
		Read:          notification.Read,
		CreatedAt:     notification.CreatedAt.UTC(),
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}
