package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetcher(payload string, calls *int) Fetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		*calls++
		return json.RawMessage(payload), nil
	}
}

func failingFetcher(calls *int) Fetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		*calls++
		return nil, NetworkError("fetch", errors.New("connection refused"))
	}
}

func TestResponseCache_FreshEntryIsNotRefetched(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewResponseCache(zerolog.Nop(), clock, nil)

	calls := 0
	got, err := c.ReadThrough(ctx, "episodes-a", 5*time.Minute, countingFetcher(`{"n":1}`, &calls))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got))

	clock.Advance(4 * time.Minute)
	got, err = c.ReadThrough(ctx, "episodes-a", 5*time.Minute, countingFetcher(`{"n":2}`, &calls))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got))
	assert.Equal(t, 1, calls)

	clock.Advance(time.Minute)
	got, err = c.ReadThrough(ctx, "episodes-a", 5*time.Minute, countingFetcher(`{"n":2}`, &calls))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(got))
	assert.Equal(t, 2, calls)
}

func TestResponseCache_StaleEntryServedWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewResponseCache(zerolog.Nop(), clock, nil)

	calls := 0
	_, err := c.ReadThrough(ctx, "schedule-a", time.Hour, countingFetcher(`{"v":"old"}`, &calls))
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	got, err := c.ReadThrough(ctx, "schedule-a", time.Hour, failingFetcher(&calls))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"old"}`, string(got))
	assert.Equal(t, 2, calls)
}

func TestResponseCache_ErrorPropagatesWithoutEntry(t *testing.T) {
	c := NewResponseCache(zerolog.Nop(), clockwork.NewFakeClock(), nil)

	calls := 0
	_, err := c.ReadThrough(context.Background(), "episodes-x", time.Minute, failingFetcher(&calls))
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeNetwork))
	assert.Equal(t, 0, c.Len())
}

func TestResponseCache_EntriesSurviveRestartThroughStore(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	first := NewResponseCache(zerolog.Nop(), clock, kv)
	calls := 0
	_, err := first.ReadThrough(ctx, "episodes-a", 5*time.Minute, countingFetcher(`[1,2,3]`, &calls))
	require.NoError(t, err)

	raw, err := kv.Get(ctx, "cache:episodes-a")
	require.NoError(t, err)
	assert.Contains(t, raw, `"timestamp"`)

	second := NewResponseCache(zerolog.Nop(), clock, kv)
	got, err := second.ReadThrough(ctx, "episodes-a", 5*time.Minute, countingFetcher(`[9]`, &calls))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(got))
	assert.Equal(t, 1, calls)

	// Périmé et fetch en échec: le repli persistant est servi.
	clock.Advance(time.Hour)
	third := NewResponseCache(zerolog.Nop(), clock, kv)
	got, err = third.ReadThrough(ctx, "episodes-a", 5*time.Minute, failingFetcher(&calls))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(got))
}

func TestResponseCache_PersistFailureIsNotReturned(t *testing.T) {
	kv := newMemKV()
	kv.setFailPut(true)
	c := NewResponseCache(zerolog.Nop(), clockwork.NewFakeClock(), kv)

	calls := 0
	got, err := c.ReadThrough(context.Background(), "k", time.Minute, countingFetcher(`1`, &calls))
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))
}

func TestResponseCache_PruneDropsOldEntries(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewResponseCache(zerolog.Nop(), clock, nil)

	calls := 0
	_, _ = c.ReadThrough(ctx, "old", time.Minute, countingFetcher(`1`, &calls))
	clock.Advance(2 * time.Hour)
	_, _ = c.ReadThrough(ctx, "new", time.Minute, countingFetcher(`2`, &calls))

	removed := c.Prune(ctx, time.Hour)
	assert.Equal(t, 1, removed)
	_, ok := c.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "new")
	assert.True(t, ok)
}

func TestResponseCache_PruneRemovesStoredEntries(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewResponseCache(zerolog.Nop(), clock, kv)

	calls := 0
	_, _ = c.ReadThrough(ctx, "old", time.Minute, countingFetcher(`1`, &calls))
	clock.Advance(2 * time.Hour)
	c.Prune(ctx, time.Hour)

	_, err := kv.Get(ctx, "cache:old")
	assert.Error(t, err)
}

func TestResponseCache_MaxEntriesEvictsOldest(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewResponseCache(zerolog.Nop(), clock, nil)
	c.MaxEntries = 2

	calls := 0
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.ReadThrough(ctx, k, time.Hour, countingFetcher(`1`, &calls))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}
