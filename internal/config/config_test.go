package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_DefaultsWhenNothingConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg, used, err := Load(LoadOptions{
		DotEnv:    filepath.Join(dir, "missing.env"),
		LookupEnv: envMap(nil),
	})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "EPW_ADDR=127.0.0.1:1111\nEPW_LOG_LEVEL=debug\nEPW_CHECK_INTERVAL=1m\n")
	file := writeFile(t, dir, "episode-watch.toml", `
addr = "127.0.0.1:2222"
storage = "badger"
badger_dir = "/var/lib/epw"

[detection]
check_interval = "10m"
advance_window = "2m"

[source]
base_url = "https://api.example/api"
requests_per_second = 0.5

[notifications]
ntfy_url = "https://ntfy.sh/epw"
`)

	cfg, used, err := Load(LoadOptions{
		Path:   file,
		DotEnv: dotenv,
		LookupEnv: envMap(map[string]string{
			"EPW_ADDR":  "127.0.0.1:3333",
			"EPW_BURST": "9",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, file, used)

	// env > toml > .env
	assert.Equal(t, "127.0.0.1:3333", cfg.Addr)
	// toml > .env
	assert.Equal(t, 10*time.Minute, cfg.Detection.CheckInterval.Std())
	// .env > défaut
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Equal(t, StorageBadger, cfg.Storage)
	assert.Equal(t, 2*time.Minute, cfg.Detection.AdvanceWindow.Std())
	assert.Equal(t, "https://api.example/api", cfg.Source.BaseURL)
	assert.InDelta(t, 0.5, cfg.Source.RequestsPerSecond, 1e-9)
	assert.Equal(t, 9, cfg.Source.Burst)
	assert.Equal(t, "https://ntfy.sh/epw", cfg.Notifications.NtfyURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "custom.toml", `log_level = "warn"`)

	cfg, used, err := Load(LoadOptions{
		DotEnv:    filepath.Join(dir, "none.env"),
		LookupEnv: envMap(map[string]string{"EPW_CONFIG": file}),
	})
	require.NoError(t, err)
	assert.Equal(t, file, used)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "none.env")

	_, _, err := Load(LoadOptions{Path: filepath.Join(dir, "absent.toml"), DotEnv: noEnv, LookupEnv: envMap(nil)})
	assert.Error(t, err, "an explicit config path must exist")

	bad := writeFile(t, dir, "bad.toml", `unknown_key = 1`)
	_, _, err = Load(LoadOptions{Path: bad, DotEnv: noEnv, LookupEnv: envMap(nil)})
	assert.Error(t, err)

	_, _, err = Load(LoadOptions{DotEnv: noEnv, LookupEnv: envMap(map[string]string{"EPW_CHECK_INTERVAL": "often"})})
	assert.Error(t, err)

	_, _, err = Load(LoadOptions{DotEnv: noEnv, LookupEnv: envMap(map[string]string{"EPW_RPS": "fast"})})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage = StorageBadger
	cfg.BadgerDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Detection.CheckInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Source.BaseURL = "not a url"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL")

	cfg = Default()
	cfg.WorkerURL = ""
	cfg.Notifications.NtfyURL = ""
	assert.NoError(t, cfg.Validate())
}
