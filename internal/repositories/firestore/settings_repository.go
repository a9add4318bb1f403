package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
)

const (
	settingsCollection    = "settings"
	platformSettingsDocID = "platform"
)

type platformSettingsDocument struct {
	CommissionRate float64   `firestore:"commissionRate"`
	UpdatedBy      string    `firestore:"updatedBy"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// SettingsRepository stores the single platform settings document.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[platformSettingsDocument]
}

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository: firestore provider is required")
	}
	return &SettingsRepository{
		base: pfirestore.NewBaseRepository[platformSettingsDocument](provider, settingsCollection),
	}, nil
}

func (r *SettingsRepository) GetPlatform(ctx context.Context) (domain.PlatformSettings, error) {
	if r == nil || r.base == nil {
		return domain.PlatformSettings{}, errors.New("settings repository not initialised")
	}
	doc, err := r.base.Get(ctx, platformSettingsDocID)
	if err != nil {
		return domain.PlatformSettings{}, err
	}
	return domain.PlatformSettings{
		CommissionRate: doc.Data.CommissionRate,
		UpdatedBy:      doc.Data.UpdatedBy,
		UpdatedAt:      doc.Data.UpdatedAt.UTC(),
	}, nil
}

func (r *SettingsRepository) SavePlatform(ctx context.Context, settings domain.PlatformSettings) error {
	if r == nil || r.base == nil {
		return errors.New("settings repository not initialised")
	}
	return r.base.Set(ctx, platformSettingsDocID, platformSettingsDocument{
		CommissionRate: settings.CommissionRate,
		UpdatedBy:      settings.UpdatedBy,
		UpdatedAt:      settings.UpdatedAt.UTC(),
	})
}
