package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/episode-watch/internal/config"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

type emptySource struct{}

func (emptySource) FetchEpisodes(ctx context.Context, itemID string) (domain.EpisodeList, error) {
	return domain.EpisodeList{Episodes: []domain.Episode{{ID: itemID + "?ep=1"}}}, nil
}

func (emptySource) FetchSchedule(ctx context.Context, itemID string) (domain.Schedule, error) {
	return domain.Schedule{}, nil
}

func (emptySource) FetchInfo(ctx context.Context, itemID string) (domain.ItemInfo, error) {
	return domain.ItemInfo{}, ports.ErrNotFound
}

func testConfig(t *testing.T, storage string) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage = storage
	cfg.DBPath = filepath.Join(dir, "data", "epw.db")
	cfg.BadgerDir = filepath.Join(dir, "data", "badger")
	return cfg
}

func TestNew_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageSQLite)

	d, err := New(ctx, cfg, zerolog.Nop(), Options{Source: emptySource{}})
	require.NoError(t, err)

	_, err = New(ctx, cfg, zerolog.Nop(), Options{Source: emptySource{}})
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, d.Close())
	d2, err := New(ctx, cfg, zerolog.Nop(), Options{Source: emptySource{}})
	require.NoError(t, err)
	require.NoError(t, d2.Close())
}

func TestBoot_RestartsPersistedDetection(t *testing.T) {
	ctx := context.Background()
	for _, storage := range []string{config.StorageSQLite, config.StorageBadger} {
		t.Run(storage, func(t *testing.T) {
			cfg := testConfig(t, storage)

			d, err := New(ctx, cfg, zerolog.Nop(), Options{Source: emptySource{}})
			require.NoError(t, err)
			d.Boot(ctx)
			assert.False(t, d.Engine.Running(), "nothing tracked yet")
			require.True(t, d.Engine.AddItem(ctx, domain.TrackedItem{ID: "frieren-18542"}))
			require.NoError(t, d.Close())

			d, err = New(ctx, cfg, zerolog.Nop(), Options{Source: emptySource{}})
			require.NoError(t, err)
			t.Cleanup(func() { _ = d.Close() })

			d.Boot(ctx)
			assert.True(t, d.Engine.Running())
			assert.Equal(t, 1, d.Engine.Status().TrackedCount)
		})
	}
}

func TestHandler_ServesBridgeAndHealth(t *testing.T) {
	d, err := New(context.Background(), testConfig(t, config.StorageSQLite), zerolog.Nop(), Options{Source: emptySource{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	h := d.Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"isRunning":false`)
}

func TestNewNotifier(t *testing.T) {
	cfg := config.Default()
	assert.True(t, NewNotifier(cfg, zerolog.Nop()).Available())

	cfg.Notifications.NtfyURL = "https://ntfy.example/epw"
	assert.True(t, NewNotifier(cfg, zerolog.Nop()).Available())
}
