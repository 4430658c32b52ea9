package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestKVRepository_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepository(openTestDB(t).SQL)

	if _, err := repo.Get(ctx, "settings"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get(missing): expected ErrNotFound, got %v", err)
	}

	if err := repo.Put(ctx, "settings", `{"a":1}`); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, "settings", `{"a":2}`); err != nil {
		t.Fatalf("Put(overwrite): %v", err)
	}
	got, err := repo.Get(ctx, "settings")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"a":2}` {
		t.Fatalf("expected overwritten value, got %q", got)
	}

	if err := repo.Delete(ctx, "settings"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "settings"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Delete(again): expected ErrNotFound, got %v", err)
	}
}

func TestKVRepository_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepository(openTestDB(t).SQL)

	for _, k := range []string{"cache:episodes-b", "cache:episodes-a", "cache_x", "tracked-items"} {
		if err := repo.Put(ctx, k, "1"); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	keys, err := repo.Keys(ctx, "cache:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "cache:episodes-a" || keys[1] != "cache:episodes-b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestOpen_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "episode-watch.db")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := NewKVRepository(db.SQL).Put(ctx, "episodeDetectionCache", `{"a":3}`); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	got, err := NewKVRepository(db.SQL).Get(ctx, "episodeDetectionCache")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got != `{"a":3}` {
		t.Fatalf("unexpected value %q", got)
	}
}
