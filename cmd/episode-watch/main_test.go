package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

func contentAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /info/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"results":{"data":{"id":%q,"title":"Frieren"}}}`, r.PathValue("id"))
	})
	mux.HandleFunc("GET /episodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"results":{"episodes":[{"id":"%s?ep=1"}]}}`, r.PathValue("id"))
	})
	mux.HandleFunc("GET /schedule/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":{"nextEpisodeSchedule":null}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "episode-watch.toml")
	content := fmt.Sprintf(`
db_path = %q
client_db_path = %q
worker_url = ""

[source]
base_url = %q
`, filepath.Join(dir, "worker.db"), filepath.Join(dir, "client.db"), apiURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_SubscribeListUnsubscribe(t *testing.T) {
	cfg := writeTestConfig(t, contentAPI(t).URL)

	out, err := runCLI(t, cfg, "subscribe", "frieren-18542")
	require.NoError(t, err)
	assert.Contains(t, out, "Subscribed to Frieren")

	out, err = runCLI(t, cfg, "subscribe", "frieren-18542")
	require.NoError(t, err, "duplicate subscribe is a no-op")
	assert.Contains(t, out, "Subscribed to Frieren")

	out, err = runCLI(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "frieren-18542")
	assert.Equal(t, 1, strings.Count(out, "frieren-18542"))

	out, err = runCLI(t, cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "in-process")

	out, err = runCLI(t, cfg, "unsubscribe", "frieren-18542")
	require.NoError(t, err)
	assert.Contains(t, out, "Unsubscribed from frieren-18542")

	out, err = runCLI(t, cfg, "unsubscribe", "frieren-18542")
	require.NoError(t, err)
	assert.Contains(t, out, "is not subscribed")

	out, err = runCLI(t, cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No subscriptions")
}

func TestCLI_StartWithoutSubscriptions(t *testing.T) {
	cfg := writeTestConfig(t, contentAPI(t).URL)

	out, err := runCLI(t, cfg, "start")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to start")

	_, err = runCLI(t, cfg, "subscribe")
	assert.Error(t, err)
}

func TestRenderStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	out := renderStatus(domain.ServiceState{IsRunning: true, LastSweepAt: &at, TrackedCount: 3, PendingAlertCount: 1}, true)
	assert.Contains(t, out, "background worker")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "Tracked items")

	out = renderStatus(domain.ServiceState{}, false)
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "stopped")
}
