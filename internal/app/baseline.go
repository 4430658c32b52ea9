package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const baselineKey = "episodeDetectionCache"

// BaselineStore garde le dernier numéro d'épisode vu par item.
// Une valeur enregistrée ne fait que monter: une baisse venant de la source n'est jamais réécrite.
type BaselineStore struct {
	logger zerolog.Logger
	store  ports.KeyValueStore

	mu     sync.Mutex
	latest map[string]int
	loaded bool
	saveMu sync.Mutex

	// version compte les changements en mémoire; saved est la dernière version persistée.
	version uint64
	saved   uint64
}

func NewBaselineStore(logger zerolog.Logger, store ports.KeyValueStore) *BaselineStore {
	return &BaselineStore{logger: logger, store: store, latest: make(map[string]int)}
}

func (b *BaselineStore) Latest(itemID string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.latest[itemID]
	return n, ok
}

// SetLatest crée l'entrée si besoin; sinon ne fait rien quand n <= valeur courante.
func (b *BaselineStore) SetLatest(itemID string, n int) {
	b.Advance(itemID, n)
}

// Advance est le compare-and-raise atomique utilisé par le moteur.
// existed indique si une baseline existait avant l'appel, advanced si la valeur a été écrite.
func (b *BaselineStore) Advance(itemID string, n int) (prev int, existed bool, advanced bool) {
	if n < 0 {
		return 0, false, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, existed = b.latest[itemID]
	if existed && n <= prev {
		return prev, true, false
	}
	b.latest[itemID] = n
	b.version++
	return prev, existed, true
}

func (b *BaselineStore) Remove(itemID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.latest[itemID]; ok {
		delete(b.latest, itemID)
		b.version++
	}
}

// Forget retire les baselines des items donnés puis persiste.
// Le contenu du store est chargé d'abord, pour qu'une entrée jamais lue ne revienne au prochain Load.
func (b *BaselineStore) Forget(ctx context.Context, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if !loaded {
		b.Load(ctx)
	}
	for _, id := range itemIDs {
		b.Remove(id)
	}
	return b.Save(ctx)
}

// Dirty indique des changements pas encore persistés.
func (b *BaselineStore) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version != b.saved
}

func (b *BaselineStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.latest)
}

// Snapshot copie la map courante.
func (b *BaselineStore) Snapshot() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.latest))
	for k, v := range b.latest {
		out[k] = v
	}
	return out
}

// Load remplace le contenu par celui du store. Best-effort: un contenu illisible donne une map vide.
// Tant qu'un changement n'a pas été persisté, la mémoire fait foi et Load ne touche à rien.
func (b *BaselineStore) Load(ctx context.Context) {
	if b.store == nil {
		b.mu.Lock()
		b.loaded = true
		b.mu.Unlock()
		return
	}
	loaded := map[string]int{}
	raw, err := b.store.Get(ctx, baselineKey)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			b.logger.Warn().Err(err).Msg("episode baseline cache corrupted, starting empty")
			loaded = map[string]int{}
		}
	case errors.Is(err, ports.ErrNotFound):
	default:
		b.logger.Warn().Err(PersistenceError("load baselines", err)).Msg("episode baseline cache unavailable")
		b.mu.Lock()
		if !b.loaded {
			b.latest = map[string]int{}
			b.loaded = true
		}
		b.mu.Unlock()
		return
	}
	for id, n := range loaded {
		if n < 0 {
			delete(loaded, id)
		}
	}

	b.mu.Lock()
	if b.version != b.saved {
		b.mu.Unlock()
		b.logger.Debug().Msg("unsaved episode baselines in memory, reload skipped")
		return
	}
	b.latest = loaded
	b.loaded = true
	b.mu.Unlock()
	b.logger.Debug().Int("count", len(loaded)).Msg("episode baselines loaded")
}

// Save persiste la map si elle a changé. L'erreur est loggée et renvoyée; l'état mémoire reste la référence.
func (b *BaselineStore) Save(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	b.mu.Lock()
	if b.version == b.saved {
		b.mu.Unlock()
		return nil
	}
	version := b.version
	snapshot := make(map[string]int, len(b.latest))
	for k, v := range b.latest {
		snapshot[k] = v
	}
	b.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return PersistenceError("encode baselines", err)
	}
	if err := b.store.Put(ctx, baselineKey, string(data)); err != nil {
		perr := PersistenceError("save baselines", err)
		b.logger.Error().Err(perr).Msg("failed to save episode baselines")
		return perr
	}
	b.mu.Lock()
	if version > b.saved {
		b.saved = version
	}
	b.mu.Unlock()
	return nil
}
