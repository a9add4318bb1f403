package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/platform/textutil"
	"github.com/boibabu/api/internal/repositories"
)

const (
	// RecipientRoleCustomer addresses the buyer of an order.
	RecipientRoleCustomer = "customer"
	// RecipientRoleSeller addresses a seller.
	RecipientRoleSeller = "seller"
	// RecipientRoleAdmin addresses administrators. An empty recipient id means every administrator.
	RecipientRoleAdmin = "admin"

	notificationIDPrefix = "ntf_"
	notificationTitleMax = 120
	notificationBodyMax  = 1000
)

// NotificationServiceDeps bundles collaborators required by the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	IDGenerator   func() string
}

type notificationService struct {
	repo  repositories.NotificationRepository
	clock func() time.Time
	newID func() string
}

// NewNotificationService persists notifications into the in-app inbox.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &notificationService{
		repo: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// Deliver is idempotent on notification ID: a redelivered message with the same ID is accepted
// without writing twice.
func (s *notificationService) Deliver(ctx context.Context, notification Notification) error {
	notification.RecipientRole = strings.TrimSpace(notification.RecipientRole)
	notification.RecipientID = strings.TrimSpace(notification.RecipientID)
	switch notification.RecipientRole {
	case RecipientRoleCustomer, RecipientRoleSeller:
		if notification.RecipientID == "" {
			return fmt.Errorf("%w: recipient id is required", ErrOrderInvalidInput)
		}
	case RecipientRoleAdmin:
	default:
		return fmt.Errorf("%w: unknown recipient role %q", ErrOrderInvalidInput, notification.RecipientRole)
	}

	notification.Title = textutil.PlainText(notification.Title, notificationTitleMax)
	notification.Body = textutil.PlainText(notification.Body, notificationBodyMax)
	if notification.Title == "" {
		return fmt.Errorf("%w: title is required", ErrOrderInvalidInput)
	}
	if notification.Kind == "" {
		notification.Kind = domain.NotificationKindGeneral
	}
	if notification.Priority == "" {
		notification.Priority = domain.NotificationPriorityMedium
	}
	if strings.TrimSpace(notification.ID) == "" {
		notification.ID = notificationIDPrefix + s.newID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.clock()
	}
	notification.Data = textutil.PlainMetadata(notification.Data, notificationTitleMax)
	notification.Read = false

	if err := s.repo.Insert(ctx, notification); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return nil
		}
		return fmt.Errorf("notification service: insert: %w", err)
	}
	return nil
}
