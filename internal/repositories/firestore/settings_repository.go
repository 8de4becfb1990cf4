package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
)

const (
	settingsCollection = "settings"
	storeSettingsDocID = "store"
)

type storeSettingsDocument struct {
	Currency              string    `firestore:"currency"`
	AdminEmail            string    `firestore:"adminEmail,omitempty"`
	FreeShippingThreshold *float64  `firestore:"freeShippingThreshold"`
	UpdatedAt             time.Time `firestore:"updatedAt"`
}

// SettingsRepository reads the settings/store document.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[storeSettingsDocument]
}

func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[storeSettingsDocument](provider, settingsCollection, nil, nil)
	return &SettingsRepository{base: base}, nil
}

// GetStoreSettings returns a not found error when the document has not been created yet.
func (r *SettingsRepository) GetStoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	if r == nil || r.base == nil {
		return domain.StoreSettings{}, errors.New("settings repository not initialised")
	}
	doc, err := r.base.Get(ctx, storeSettingsDocID)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	updatedAt := doc.Data.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = doc.UpdateTime.UTC()
	}
	return domain.StoreSettings{
		Currency:              strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		AdminEmail:            strings.TrimSpace(doc.Data.AdminEmail),
		FreeShippingThreshold: doc.Data.FreeShippingThreshold,
		UpdatedAt:             updatedAt,
	}, nil
}
