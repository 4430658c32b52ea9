// Package notify présente les notifications: push ntfy, journal, ou plusieurs à la fois.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

type NtfyOptions struct {
	// Endpoint est l'URL complète du topic, ex: https://ntfy.sh/episode-watch.
	Endpoint string
	Timeout  time.Duration
	// ClickBaseURL préfixe les URLs relatives des notifications (lien ouvert au clic).
	ClickBaseURL string
}

type Ntfy struct {
	endpoint  string
	clickBase string
	client    *http.Client
}

// NewNtfy renvoie nil si aucun endpoint n'est configuré.
func NewNtfy(opts NtfyOptions) *Ntfy {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint:  endpoint,
		clickBase: strings.TrimRight(strings.TrimSpace(opts.ClickBaseURL), "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

func (n *Ntfy) Available() bool { return n != nil && n.client != nil }

func (n *Ntfy) Send(ctx context.Context, notif domain.Notification) error {
	if !n.Available() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(notif.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if notif.Title != "" {
		req.Header.Set("Title", notif.Title)
	}
	if tags := tagsFor(notif.Kind); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if notif.RequireInteraction {
		req.Header.Set("Priority", "high")
	}
	if click := n.absolute(notif.URL); click != "" {
		req.Header.Set("Click", click)
	}
	if icon := n.absolute(notif.Icon); strings.HasPrefix(icon, "http") {
		req.Header.Set("Icon", icon)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (n *Ntfy) absolute(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if n.clickBase == "" {
		return ""
	}
	return n.clickBase + "/" + strings.TrimLeft(u, "/")
}

func tagsFor(kind domain.NotificationKind) []string {
	switch kind {
	case domain.NotificationNewEpisode:
		return []string{"tv", "new"}
	case domain.NotificationUpcoming:
		return []string{"alarm_clock"}
	case domain.NotificationSubscribed:
		return []string{"bell"}
	default:
		return nil
	}
}
