// Package daemon assemble le contexte d'exécution de la détection: stockage, moteur, bridge et API HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/badgerkv"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/contentapi"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/notify"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/bridge"
	"github.com/Guilhem-Bonnet/episode-watch/internal/config"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

// ErrLocked signale qu'un autre processus possède déjà le stockage.
var ErrLocked = errors.New("detection store is locked by another process")

const shutdownTimeout = 10 * time.Second

// Options remplace des dépendances externes (tests).
type Options struct {
	Clock    clockwork.Clock
	Source   ports.EpisodeSource
	Notifier ports.Notifier
}

type Daemon struct {
	logger   zerolog.Logger
	cfg      config.Config
	lockPath string
	lock     *flock.Flock
	closers  []func() error

	Store         ports.KeyValueStore
	Bus           *memorybus.Bus
	Settings      *app.SettingsService
	Notifications *app.NotificationService
	Engine        *app.Engine
	Dispatcher    *bridge.Dispatcher
}

// New prend le verrou du stockage puis construit toute la pile. Close libère l'ensemble.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Daemon, error) {
	d := &Daemon{logger: logger, cfg: cfg}

	d.lockPath = lockPath(cfg)
	if dir := filepath.Dir(d.lockPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	d.lock = flock.New(d.lockPath)
	ok, err := d.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, d.lockPath)
	}
	d.closers = append(d.closers, d.lock.Unlock)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Store = store
	d.closers = append(d.closers, closeStore)

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	source := opts.Source
	if source == nil {
		source = contentapi.New(logger.With().Str("component", "contentapi").Logger(), contentapi.Options{
			BaseURL:           cfg.Source.BaseURL,
			Timeout:           cfg.Source.Timeout.Std(),
			RequestsPerSecond: cfg.Source.RequestsPerSecond,
			Burst:             cfg.Source.Burst,
		})
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewNotifier(cfg, logger)
	}

	d.Bus = memorybus.New()
	d.closers = append(d.closers, func() error { d.Bus.Close(); return nil })

	engineLog := logger.With().Str("component", "engine").Logger()
	d.Settings = app.NewSettingsService(store)
	d.Notifications = app.NewNotificationService(logger.With().Str("component", "notifications").Logger(), notifier, d.Settings)
	d.Engine = app.NewEngine(engineLog, app.EngineDeps{
		Source:        source,
		Cache:         app.NewResponseCache(engineLog, clock, store),
		Baselines:     app.NewBaselineStore(engineLog, store),
		Scheduler:     app.NewScheduler(clock),
		Notifications: d.Notifications,
		Tracked:       app.NewTrackedStore(engineLog, store, app.TrackedItemsKey),
		Bus:           d.Bus,
	}, app.EngineOptions{
		CheckInterval:  cfg.Detection.CheckInterval.Std(),
		AdvanceWindow:  cfg.Detection.AdvanceWindow.Std(),
		EpisodesMaxAge: cfg.Detection.EpisodesMaxAge.Std(),
		ScheduleMaxAge: cfg.Detection.ScheduleMaxAge.Std(),
		CacheRetention: cfg.Detection.CacheRetention.Std(),
		Clock:          clock,
	})
	// Arrêté, tâches de fond comprises, avant la fermeture du stockage (les closers sont appelés en ordre inverse).
	d.closers = append(d.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.Engine.Shutdown(ctx); err != nil {
			return fmt.Errorf("engine shutdown: %w", err)
		}
		return nil
	})

	d.Dispatcher = bridge.NewDispatcher(logger.With().Str("component", "bridge").Logger(), d.Engine, d.Notifications, clock)
	d.Dispatcher.UpdateDebounce = cfg.Detection.UpdateDebounce.Std()

	logger.Info().Str("storage", cfg.Storage).Str("lock", d.lockPath).Msg("detection context ready")
	return d, nil
}

// NewNotifier combine le journal et, si configuré, le push ntfy.
func NewNotifier(cfg config.Config, logger zerolog.Logger) ports.Notifier {
	return notify.NewMulti(
		notify.NewLog(logger.With().Str("component", "notify").Logger()),
		notify.NewNtfy(notify.NtfyOptions{
			Endpoint:     cfg.Notifications.NtfyURL,
			Timeout:      cfg.Notifications.Timeout.Std(),
			ClickBaseURL: cfg.Notifications.ClickBaseURL,
		}),
	)
}

func lockPath(cfg config.Config) string {
	if cfg.Storage == config.StorageBadger {
		return strings.TrimRight(cfg.BadgerDir, string(filepath.Separator)) + ".lock"
	}
	return cfg.DBPath + ".lock"
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ports.KeyValueStore, func() error, error) {
	switch cfg.Storage {
	case config.StorageBadger:
		s, err := badgerkv.Open(cfg.BadgerDir, false, logger.With().Str("component", "badger").Logger())
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		return s, s.Close, nil
	case config.StorageSQLite, "":
		db, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.NewKVRepository(db.SQL), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// Boot recharge la liste persistée et relance la détection si elle n'est pas vide.
func (d *Daemon) Boot(ctx context.Context) {
	items := d.Engine.LoadTrackedItems(ctx)
	if len(items) == 0 {
		d.logger.Info().Msg("no tracked items, detection idle")
		return
	}
	d.Engine.Start(ctx, items)
}

// Handler renvoie l'API HTTP du daemon, bridge inclus.
func (d *Daemon) Handler() http.Handler {
	return httpapi.NewServer(d.logger, d.Engine, d.Dispatcher, d.Settings, d.Notifications, d.Bus).Router()
}

// Watch journalise les événements du moteur jusqu'à l'annulation de ctx.
func (d *Daemon) Watch(ctx context.Context) {
	log := d.logger.With().Str("component", "events").Logger()
	app.EventHandlers{
		Logger: log,
		OnNotify: func(e app.NewEpisodeEvent) {
			log.Info().Str("item_id", e.Item.ID).Int("episode", e.EpisodeNumber).Msg("new episode")
		},
		OnScheduledNotify: func(e app.UpcomingEpisodeEvent) {
			log.Info().Str("item_id", e.Item.ID).Int("episode", e.PredictedEpisodeNumber).Msg("episode coming soon")
		},
		OnSweepCompleted: func(e app.SweepCompletedEvent) {
			log.Debug().Int("count", e.Count).Time("at", e.Timestamp).Msg("sweep completed")
		},
	}.Run(ctx, d.Bus)
}

func (d *Daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
