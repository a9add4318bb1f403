package memory

import (
	"context"
	"fmt"
	"maps"
	"strings"

	domain "github.com/boibabu/api/internal/domain"
)

type notificationRepository struct{ s *Store }

func (r notificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if strings.TrimSpace(notification.ID) == "" {
		return fmt.Errorf("memory notifications: id is required")
	}
	notification.Data = maps.Clone(notification.Data)
	return r.s.write(ctx, func() error {
		for _, existing := range r.s.notifications {
			if existing.ID == notification.ID {
				return conflict("notifications.insert", "notification %s already exists", notification.ID)
			}
		}
		r.s.notifications = append(r.s.notifications, notification)
		return nil
	})
}

type settingsRepository struct{ s *Store }

func (r settingsRepository) GetPlatform(context.Context) (domain.PlatformSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.settings == nil {
		return domain.PlatformSettings{}, notFound("settings.get", "platform settings")
	}
	return *r.s.settings, nil
}

func (r settingsRepository) SavePlatform(ctx context.Context, settings domain.PlatformSettings) error {
	return r.s.write(ctx, func() error {
		r.s.settings = &settings
		return nil
	})
}

type counterRepository struct{ s *Store }

func (r counterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, fmt.Errorf("memory counters: id is required")
	}
	var value int64
	err := r.s.write(ctx, func() error {
		r.s.counters[id]++
		value = r.s.counters[id]
		return nil
	})
	return value, err
}
