package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

// WatchlistService gère la liste d'abonnements côté page et la pousse vers le contexte de détection.
type WatchlistService struct {
	logger        zerolog.Logger
	list          *TrackedStore
	notifications *NotificationService
	controller    ports.DetectionController
	source        ports.EpisodeSource // optionnel, pour compléter titre et affiche
	clock         clockwork.Clock

	mu sync.Mutex
}

func NewWatchlistService(logger zerolog.Logger, list *TrackedStore, notifications *NotificationService, controller ports.DetectionController, source ports.EpisodeSource, clock clockwork.Clock) *WatchlistService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WatchlistService{
		logger:        logger,
		list:          list,
		notifications: notifications,
		controller:    controller,
		source:        source,
		clock:         clock,
	}
}

// Subscribe demande d'abord la permission; refusée, rien n'est enregistré et ErrPermissionDenied est renvoyé.
// Un item déjà suivi est un no-op.
func (s *WatchlistService) Subscribe(ctx context.Context, item domain.TrackedItem) (domain.TrackedItem, error) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return domain.TrackedItem{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}

	perm, err := s.notifications.RequestPermission(ctx)
	if err != nil {
		return domain.TrackedItem{}, err
	}
	if perm != domain.PermissionGranted {
		return domain.TrackedItem{}, ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.list.Load(ctx)
	if idx := domain.IndexOf(items, item.ID); idx >= 0 {
		return items[idx], nil
	}

	s.enrich(ctx, &item)
	if item.AddedAt.IsZero() {
		item.AddedAt = s.clock.Now().UTC()
	}
	items = append(items, item)
	if err := s.list.Save(ctx, items); err != nil {
		return domain.TrackedItem{}, err
	}
	s.logger.Info().Str("item_id", item.ID).Msg("subscribed")

	s.notifications.Dispatch(ctx, domain.SubscribedNotification(item))

	if err := s.sync(ctx, items); err != nil {
		return item, err
	}
	return item, nil
}

func (s *WatchlistService) Unsubscribe(ctx context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.list.Load(ctx)
	idx := domain.IndexOf(items, itemID)
	if idx < 0 {
		return false, nil
	}
	items = append(items[:idx], items[idx+1:]...)
	if err := s.list.Save(ctx, items); err != nil {
		return false, err
	}
	s.logger.Info().Str("item_id", itemID).Msg("unsubscribed")
	return true, s.sync(ctx, items)
}

func (s *WatchlistService) List(ctx context.Context) []domain.TrackedItem {
	return s.list.Load(ctx)
}

func (s *WatchlistService) IsSubscribed(ctx context.Context, itemID string) bool {
	return domain.IndexOf(s.list.Load(ctx), itemID) >= 0
}

// Boot démarre la détection si des abonnements existent.
func (s *WatchlistService) Boot(ctx context.Context) error {
	items := s.list.Load(ctx)
	if len(items) == 0 {
		return nil
	}
	if err := s.controller.Start(ctx, items); err != nil {
		return fmt.Errorf("start detection: %w", err)
	}
	return nil
}

func (s *WatchlistService) Refresh(ctx context.Context) error {
	return s.controller.ForceCheck(ctx)
}

func (s *WatchlistService) Status(ctx context.Context) (domain.ServiceState, error) {
	return s.controller.Status(ctx)
}

// sync pousse la liste vers le moteur: démarrage s'il est arrêté, mise à jour sinon, arrêt si la liste est vide.
func (s *WatchlistService) sync(ctx context.Context, items []domain.TrackedItem) error {
	st, err := s.controller.Status(ctx)
	if err != nil {
		return fmt.Errorf("detection status: %w", err)
	}
	switch {
	case len(items) == 0:
		if st.IsRunning {
			return s.controller.Stop(ctx)
		}
		return s.controller.UpdateTrackedItems(ctx, items)
	case !st.IsRunning:
		return s.controller.Start(ctx, items)
	default:
		return s.controller.UpdateTrackedItems(ctx, items)
	}
}

func (s *WatchlistService) enrich(ctx context.Context, item *domain.TrackedItem) {
	if s.source == nil || (item.Title != "" && item.Poster != "") {
		return
	}
	info, err := s.source.FetchInfo(ctx, item.ID)
	if err != nil {
		s.logger.Debug().Err(err).Str("item_id", item.ID).Msg("item info unavailable")
		return
	}
	if item.Title == "" {
		item.Title = info.Title
	}
	if item.Poster == "" {
		item.Poster = info.Poster
	}
}
