package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boibabu/api/internal/repositories"
)

// DefaultCommissionRate applies until an administrator saves a platform rate.
const DefaultCommissionRate = 2.5

// SettingsServiceDeps bundles collaborators required by the settings service.
type SettingsServiceDeps struct {
	Settings    repositories.SettingsRepository
	DefaultRate float64
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type settingsService struct {
	settings    repositories.SettingsRepository
	defaultRate float64
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewSettingsService constructs the settings service. A zero DefaultRate uses DefaultCommissionRate.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings service: settings repository is required")
	}
	rate := deps.DefaultRate
	if rate == 0 {
		rate = DefaultCommissionRate
	}
	if err := validateCommissionRate(rate); err != nil {
		return nil, fmt.Errorf("settings service: default rate: %w", err)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &settingsService{
		settings:    deps.Settings,
		defaultRate: rate,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *settingsService) CurrentCommissionRate(ctx context.Context) (float64, error) {
	settings, err := s.GetPlatformSettings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.CommissionRate, nil
}

func (s *settingsService) GetPlatformSettings(ctx context.Context) (PlatformSettings, error) {
	settings, err := s.settings.GetPlatform(ctx)
	if err == nil {
		return settings, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return PlatformSettings{CommissionRate: s.defaultRate}, nil
	}
	return PlatformSettings{}, fmt.Errorf("settings service: load platform settings: %w", err)
}

func (s *settingsService) UpdateCommissionRate(ctx context.Context, cmd UpdateCommissionRateCommand) (PlatformSettings, error) {
	if err := validateCommissionRate(cmd.Rate); err != nil {
		return PlatformSettings{}, err
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return PlatformSettings{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	previous, err := s.GetPlatformSettings(ctx)
	if err != nil {
		return PlatformSettings{}, err
	}
	settings := PlatformSettings{
		CommissionRate: cmd.Rate,
		UpdatedBy:      actor,
		UpdatedAt:      s.clock(),
	}
	if err := s.settings.SavePlatform(ctx, settings); err != nil {
		return PlatformSettings{}, fmt.Errorf("settings service: save platform settings: %w", err)
	}
	s.logger(ctx, "settings.commission.updated", map[string]any{
		"previousRate": previous.CommissionRate,
		"rate":         cmd.Rate,
		"actor":        actor,
	})
	return settings, nil
}
