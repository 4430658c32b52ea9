package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/episode-watch/internal/config"
	"github.com/Guilhem-Bonnet/episode-watch/internal/daemon"
)

func main() {
	configPath := flag.String("config", "", "Fichier TOML (défaut: $EPW_CONFIG ou ./episode-watch.toml)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:8787)")
	storage := flag.String("storage", "", "Stockage: sqlite ou badger")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: episode-watch.db)")
	badgerDir := flag.String("badger-dir", "", "Répertoire Badger")
	logLevel := flag.String("log-level", "", "Niveau de log (trace, debug, info, warn, error)")
	flag.Parse()

	cfg, used, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	// Seuls les flags passés explicitement écrasent la configuration.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "storage":
			cfg.Storage = *storage
		case "db":
			cfg.DBPath = *dbPath
		case "badger-dir":
			cfg.BadgerDir = *badgerDir
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("app", "episode-watchd").Logger()
	log.Logger = logger

	logger.Info().Interface("build", buildinfo.Current()).Str("config", used).Str("storage", cfg.Storage).Msg("starting")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(shutdownCtx, cfg, logger, daemon.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start detection context")
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	}()

	go d.Watch(shutdownCtx)
	d.Boot(shutdownCtx)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}
