package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

// NotificationService est la seule porte de sortie vers le Notifier: permission et préférences y sont appliquées.
type NotificationService struct {
	logger   zerolog.Logger
	notifier ports.Notifier
	settings *SettingsService

	// Sérialise request/set pour que deux demandes concurrentes ne se contredisent pas.
	mu sync.Mutex
}

func NewNotificationService(logger zerolog.Logger, notifier ports.Notifier, settings *SettingsService) *NotificationService {
	return &NotificationService{logger: logger, notifier: notifier, settings: settings}
}

func (s *NotificationService) available() bool {
	return s.notifier != nil && s.notifier.Available()
}

func (s *NotificationService) Permission(ctx context.Context) domain.Permission {
	if !s.available() {
		return domain.PermissionDenied
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read notification permission")
		return domain.PermissionDefault
	}
	return st.NotificationPermission
}

// RequestPermission renvoie la décision enregistrée; depuis "default", l'accord est donné dès qu'un canal existe.
func (s *NotificationService) RequestPermission(ctx context.Context) (domain.Permission, error) {
	if !s.available() {
		return domain.PermissionDenied, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.settings.Get(ctx)
	if err != nil {
		return domain.PermissionDefault, err
	}
	if st.NotificationPermission != domain.PermissionDefault {
		return st.NotificationPermission, nil
	}
	st.NotificationPermission = domain.PermissionGranted
	if _, err := s.settings.Put(ctx, st); err != nil {
		return domain.PermissionDefault, err
	}
	s.logger.Info().Msg("notification permission granted")
	return domain.PermissionGranted, nil
}

func (s *NotificationService) SetPermission(ctx context.Context, p domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.settings.Get(ctx)
	if err != nil {
		return err
	}
	st.NotificationPermission = p
	_, err = s.settings.Put(ctx, st)
	return err
}

// Dispatch présente la notification si autorisé. Jamais d'erreur: la détection ne dépend pas de l'affichage.
func (s *NotificationService) Dispatch(ctx context.Context, n domain.Notification) {
	log := s.logger.With().Str("item_id", n.ItemID).Str("kind", string(n.Kind)).Logger()
	if !s.available() {
		log.Debug().Msg("notification suppressed: no notifier available")
		return
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("notification suppressed: settings unavailable")
		return
	}
	if st.NotificationPermission != domain.PermissionGranted {
		log.Debug().Str("permission", string(st.NotificationPermission)).Msg("notification suppressed: permission not granted")
		return
	}
	switch n.Kind {
	case domain.NotificationNewEpisode:
		if !st.NotifyNewEpisodes {
			return
		}
	case domain.NotificationUpcoming:
		if !st.NotifyUpcoming {
			return
		}
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		log.Warn().Err(err).Msg("notification delivery failed")
	}
}
