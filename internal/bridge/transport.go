package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport achemine une requête vers le Dispatcher et renvoie sa réponse.
type Transport interface {
	Send(ctx context.Context, env Envelope) (Envelope, error)
	// Background vaut true quand le Dispatcher vit dans un autre processus.
	Background() bool
}

// Local appelle un Dispatcher du même processus.
type Local struct {
	d *Dispatcher
}

func NewLocal(d *Dispatcher) *Local {
	return &Local{d: d}
}

func (l *Local) Send(ctx context.Context, env Envelope) (Envelope, error) {
	return l.d.Handle(ctx, env), nil
}

func (l *Local) Background() bool { return false }

// HTTP poste les enveloppes vers le daemon.
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (h *HTTP) Background() bool { return true }

func (h *HTTP) Send(ctx context.Context, env Envelope) (Envelope, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/v1/bridge", bytes.NewReader(body))
	if err != nil {
		return Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("bridge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Envelope{}, fmt.Errorf("bridge request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out Envelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Envelope{}, fmt.Errorf("bridge reply: %w", err)
	}
	return out, nil
}

// Ping vérifie que le daemon répond sur /api/v1/health.
func (h *HTTP) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}
	return nil
}
