package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

// Clés des listes suivies: côté worker (moteur) et côté page (watchlist).
const (
	TrackedItemsKey = "tracked-items"
	WatchlistKey    = "animeNotifications"
)

// TrackedStore persiste une liste ordonnée de TrackedItem sous une clé.
type TrackedStore struct {
	logger zerolog.Logger
	store  ports.KeyValueStore
	key    string
}

func NewTrackedStore(logger zerolog.Logger, store ports.KeyValueStore, key string) *TrackedStore {
	return &TrackedStore{logger: logger, store: store, key: key}
}

// Load renvoie une liste vide si la clé est absente ou illisible.
func (s *TrackedStore) Load(ctx context.Context) []domain.TrackedItem {
	if s == nil || s.store == nil {
		return nil
	}
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", s.key).Msg("failed to load tracked items")
		}
		return nil
	}
	var items []domain.TrackedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("tracked items corrupted, ignoring")
		return nil
	}
	return domain.DedupeTrackedItems(items)
}

func (s *TrackedStore) Save(ctx context.Context, items []domain.TrackedItem) error {
	if s == nil || s.store == nil {
		return nil
	}
	if items == nil {
		items = []domain.TrackedItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return PersistenceError("encode tracked items", err)
	}
	if err := s.store.Put(ctx, s.key, string(b)); err != nil {
		return PersistenceError("save tracked items", err)
	}
	return nil
}
