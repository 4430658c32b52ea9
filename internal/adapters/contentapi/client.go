// Package contentapi lit les épisodes, horaires et métadonnées depuis l'API de contenu (JSON).
package contentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
)

const maxBodyBytes = 4 << 20

// Formats acceptés pour nextEpisodeSchedule.
var scheduleLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client implémente ports.EpisodeSource. Aucun retry: le cache de réponses sert de repli.
type Client struct {
	logger  zerolog.Logger
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	ua      string
}

func New(logger zerolog.Logger, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		ua:      buildinfo.UserAgent(),
	}
}

type envelope[T any] struct {
	Results T `json:"results"`
}

type episodesResult struct {
	Episodes []domain.Episode `json:"episodes"`
}

type scheduleResult struct {
	NextEpisodeSchedule *string `json:"nextEpisodeSchedule"`
}

type infoResult struct {
	Data domain.ItemInfo `json:"data"`
}

func (c *Client) FetchEpisodes(ctx context.Context, itemID string) (domain.EpisodeList, error) {
	var out envelope[episodesResult]
	if err := c.get(ctx, "episodes", itemID, &out); err != nil {
		return domain.EpisodeList{}, err
	}
	eps := out.Results.Episodes
	if eps == nil {
		eps = []domain.Episode{}
	}
	return domain.EpisodeList{Episodes: eps}, nil
}

func (c *Client) FetchSchedule(ctx context.Context, itemID string) (domain.Schedule, error) {
	var out envelope[scheduleResult]
	if err := c.get(ctx, "schedule", itemID, &out); err != nil {
		return domain.Schedule{}, err
	}
	raw := out.Results.NextEpisodeSchedule
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return domain.Schedule{}, nil
	}
	at, err := ParseScheduleTime(*raw)
	if err != nil {
		return domain.Schedule{}, app.ParseError("schedule "+itemID, err)
	}
	return domain.Schedule{NextEpisodeAt: &at}, nil
}

func (c *Client) FetchInfo(ctx context.Context, itemID string) (domain.ItemInfo, error) {
	var out envelope[infoResult]
	if err := c.get(ctx, "info", itemID, &out); err != nil {
		return domain.ItemInfo{}, err
	}
	info := out.Results.Data
	if info.ID == "" {
		info.ID = itemID
	}
	return info, nil
}

// ParseScheduleTime lit un horodatage ISO 8601; sans fuseau, l'heure est prise en UTC.
func ParseScheduleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (c *Client) get(ctx context.Context, resource, itemID string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return app.NetworkError("rate limiter", err)
	}

	u := c.baseURL + "/" + resource + "/" + url.PathEscape(itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return app.NetworkError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return app.NetworkError("GET "+resource, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("resource", resource).
		Str("item_id", itemID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("content api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return app.NetworkError(fmt.Sprintf("GET %s: status %d", resource, resp.StatusCode), nil)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return app.ParseError("decode "+resource, err)
	}
	return nil
}
