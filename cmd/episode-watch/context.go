package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/contentapi"
	"github.com/Guilhem-Bonnet/episode-watch/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/bridge"
	"github.com/Guilhem-Bonnet/episode-watch/internal/config"
	"github.com/Guilhem-Bonnet/episode-watch/internal/daemon"
)

// commandContext porte l'état partagé des sous-commandes: config, base client et contexte de détection.
type commandContext struct {
	configFlag *string
	workerFlag *string
	verbose    *bool

	configOnce sync.Once
	config     config.Config
	configErr  error
	logger     zerolog.Logger

	clientDB *sqlite.DB
	local    *daemon.Daemon
}

func newCommandContext(configFlag, workerFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, workerFlag: workerFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(*c.configFlag)})
		if err != nil {
			c.configErr = err
			return
		}
		if w := strings.TrimSpace(*c.workerFlag); w != "" {
			cfg.WorkerURL = w
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg

		level := zerolog.WarnLevel
		if *c.verbose {
			level = zerolog.DebugLevel
		}
		c.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	})
	return c.config, c.configErr
}

type session struct {
	watchlist  *app.WatchlistService
	controller *bridge.Controller
}

// openSession relie la liste du client au daemon s'il répond, sinon à un moteur dans ce processus.
func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.clientDB == nil {
		db, err := sqlite.Open(ctx, cfg.ClientDBPath)
		if err != nil {
			return nil, fmt.Errorf("open client store: %w", err)
		}
		c.clientDB = db
	}
	kv := sqlite.NewKVRepository(c.clientDB.SQL)

	controller, err := bridge.Connect(ctx, c.logger, cfg.WorkerURL, func() (bridge.Transport, error) {
		d, err := c.localDaemon(ctx)
		if err != nil {
			return nil, err
		}
		return bridge.NewLocal(d.Dispatcher), nil
	})
	if err != nil {
		return nil, err
	}

	settings := app.NewSettingsService(kv)
	notifications := app.NewNotificationService(c.logger, daemon.NewNotifier(cfg, c.logger), settings)
	source := contentapi.New(c.logger, contentapi.Options{
		BaseURL: cfg.Source.BaseURL,
		Timeout: cfg.Source.Timeout.Std(),
	})
	watchlist := app.NewWatchlistService(c.logger, app.NewTrackedStore(c.logger, kv, app.WatchlistKey), notifications, controller, source, nil)
	return &session{watchlist: watchlist, controller: controller}, nil
}

// withSession ouvre une session pour fn et libère base client et moteur local ensuite.
func (c *commandContext) withSession(ctx context.Context, fn func(*session) error) (err error) {
	s, err := c.openSession(ctx)
	if err != nil {
		return errors.Join(err, c.close())
	}
	defer func() {
		err = errors.Join(err, c.close())
	}()
	return fn(s)
}

func (c *commandContext) localDaemon(ctx context.Context) (*daemon.Daemon, error) {
	if c.local != nil {
		return c.local, nil
	}
	d, err := daemon.New(ctx, c.config, c.logger, daemon.Options{})
	if err != nil {
		if errors.Is(err, daemon.ErrLocked) {
			return nil, fmt.Errorf("%w: the daemon owns the store but does not answer at %q", err, c.config.WorkerURL)
		}
		return nil, err
	}
	c.local = d
	return d, nil
}

func (c *commandContext) close() error {
	var errs []error
	if c.local != nil {
		errs = append(errs, c.local.Close())
		c.local = nil
	}
	if c.clientDB != nil {
		errs = append(errs, c.clientDB.Close())
		c.clientDB = nil
	}
	return errors.Join(errs...)
}
