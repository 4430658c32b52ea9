package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

const (
	cacheKeyPrefix         = "cache:"
	defaultCacheMaxEntries = 100
)

// CacheEntry est la forme persistée d'une réponse.
type CacheEntry struct {
	Payload   json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"timestamp"`
}

// Fetcher produit un payload JSON frais.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// ResponseCache est un cache read-through borné dans le temps.
// La fraîcheur est toujours vérifiée d'abord; une entrée périmée ne sert que de repli quand le fetch échoue.
type ResponseCache struct {
	logger zerolog.Logger
	clock  clockwork.Clock
	store  ports.KeyValueStore // optionnel

	MaxEntries int

	mu      sync.Mutex
	entries map[string]CacheEntry
	group   singleflight.Group
}

func NewResponseCache(logger zerolog.Logger, clock clockwork.Clock, store ports.KeyValueStore) *ResponseCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ResponseCache{
		logger:     logger,
		clock:      clock,
		store:      store,
		MaxEntries: defaultCacheMaxEntries,
		entries:    make(map[string]CacheEntry),
	}
}

func (c *ResponseCache) ReadThrough(ctx context.Context, key string, maxAge time.Duration, fetch Fetcher) (json.RawMessage, error) {
	if entry, ok := c.lookup(ctx, key); ok && c.clock.Now().Sub(entry.FetchedAt) < maxAge {
		return entry.Payload, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, CacheEntry{Payload: payload, FetchedAt: c.clock.Now()})
		return payload, nil
	})
	if err != nil {
		if entry, ok := c.lookup(ctx, key); ok {
			c.logger.Warn().Err(err).Str("key", key).Time("fetched_at", entry.FetchedAt).Msg("fetch failed, serving cached response")
			return entry.Payload, nil
		}
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Get renvoie l'entrée en cache, fraîche ou non.
func (c *ResponseCache) Get(ctx context.Context, key string) (CacheEntry, bool) {
	return c.lookup(ctx, key)
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Prune supprime les entrées dont l'âge atteint retention, en mémoire et dans le store.
func (c *ResponseCache) Prune(ctx context.Context, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	now := c.clock.Now()
	removed := map[string]struct{}{}

	c.mu.Lock()
	for key, e := range c.entries {
		if now.Sub(e.FetchedAt) >= retention {
			delete(c.entries, key)
			removed[key] = struct{}{}
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return len(removed)
	}
	keys, err := c.store.Keys(ctx, cacheKeyPrefix)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache prune: list keys failed")
		return len(removed)
	}
	for _, k := range keys {
		key := strings.TrimPrefix(k, cacheKeyPrefix)
		e, ok := c.load(ctx, key)
		if ok && now.Sub(e.FetchedAt) < retention {
			continue
		}
		if err := c.store.Delete(ctx, k); err != nil && !errors.Is(err, ports.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", k).Msg("cache prune: delete failed")
			continue
		}
		removed[key] = struct{}{}
	}
	return len(removed)
}

func (c *ResponseCache) lookup(ctx context.Context, key string) (CacheEntry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return e, true
	}

	e, ok = c.load(ctx, key)
	if !ok {
		return CacheEntry{}, false
	}
	c.mu.Lock()
	if cur, exists := c.entries[key]; !exists || cur.FetchedAt.Before(e.FetchedAt) {
		c.entries[key] = e
		c.evictLocked()
	}
	c.mu.Unlock()
	return e, true
}

func (c *ResponseCache) load(ctx context.Context, key string) (CacheEntry, bool) {
	if c.store == nil {
		return CacheEntry{}, false
	}
	raw, err := c.store.Get(ctx, cacheKeyPrefix+key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache load failed")
		}
		return CacheEntry{}, false
	}
	var e CacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || len(e.Payload) == 0 {
		// Entrée corrompue: ignorée.
		return CacheEntry{}, false
	}
	return e, true
}

func (c *ResponseCache) put(ctx context.Context, key string, e CacheEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.evictLocked()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, cacheKeyPrefix+key, string(b)); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache persist failed")
	}
}

// evictLocked retire les entrées les plus anciennes au-delà de MaxEntries.
func (c *ResponseCache) evictLocked() {
	max := c.MaxEntries
	if max <= 0 || len(c.entries) <= max {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].FetchedAt.Before(c.entries[keys[j]].FetchedAt)
	})
	for _, k := range keys[:len(keys)-max] {
		delete(c.entries, k)
	}
}
