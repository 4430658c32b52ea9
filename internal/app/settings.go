package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const settingsKey = "settings"

type SettingsService struct {
	store ports.KeyValueStore
}

func NewSettingsService(store ports.KeyValueStore) *SettingsService {
	return &SettingsService{store: store}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	if s == nil || s.store == nil {
		return domain.DefaultSettings(), nil
	}
	raw, err := s.store.Get(ctx, settingsKey)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// Pas encore initialisé → valeurs par défaut.
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, PersistenceError("load settings", err)
	}
	settings := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		// Si corrompu : fallback safe.
		return domain.DefaultSettings(), nil
	}
	if !settings.NotificationPermission.Valid() {
		settings.NotificationPermission = domain.PermissionDefault
	}
	return settings, nil
}

func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.NotificationPermission == "" {
		settings.NotificationPermission = domain.PermissionDefault
	}
	if !settings.NotificationPermission.Valid() {
		return domain.Settings{}, fmt.Errorf("%w: notification permission %q", ErrInvalidInput, settings.NotificationPermission)
	}
	if s == nil || s.store == nil {
		return settings, nil
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := s.store.Put(ctx, settingsKey, string(b)); err != nil {
		return domain.Settings{}, PersistenceError("save settings", err)
	}
	return s.Get(ctx)
}
