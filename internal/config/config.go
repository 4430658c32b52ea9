// Package config assemble la configuration en couches:
// flags > variables EPW_* > fichier TOML > fichier .env > valeurs par défaut.
// Les flags sont appliqués par le binaire après Load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const envPrefix = "EPW_"

const (
	StorageSQLite = "sqlite"
	StorageBadger = "badger"
)

// Duration accepte "90s", "5m" ou "1h30m" dans le TOML et l'environnement.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Detection struct {
	CheckInterval  Duration `toml:"check_interval" validate:"gt=0"`
	AdvanceWindow  Duration `toml:"advance_window" validate:"gte=0"`
	EpisodesMaxAge Duration `toml:"episodes_max_age" validate:"gt=0"`
	ScheduleMaxAge Duration `toml:"schedule_max_age" validate:"gt=0"`
	CacheRetention Duration `toml:"cache_retention" validate:"gte=0"`
	UpdateDebounce Duration `toml:"update_debounce" validate:"gt=0"`
}

type Source struct {
	BaseURL           string   `toml:"base_url" validate:"required,url"`
	Timeout           Duration `toml:"timeout" validate:"gte=0"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gte=0"`
	Burst             int      `toml:"burst" validate:"gte=0"`
}

// Notifications configure le push ntfy; sans URL, seules les notifications journalisées restent.
type Notifications struct {
	NtfyURL      string   `toml:"ntfy_url" validate:"omitempty,url"`
	Timeout      Duration `toml:"timeout" validate:"gte=0"`
	ClickBaseURL string   `toml:"click_base_url" validate:"omitempty,url"`
}

type Config struct {
	Addr      string `toml:"addr" validate:"required,hostname_port"`
	Storage   string `toml:"storage" validate:"oneof=sqlite badger"`
	DBPath    string `toml:"db_path" validate:"required_if=Storage sqlite"`
	BadgerDir string `toml:"badger_dir" validate:"required_if=Storage badger"`
	LogLevel  string `toml:"log_level" validate:"oneof=trace debug info warn error"`

	// WorkerURL est l'adresse du daemon vue par le client; vide = détection dans le processus.
	WorkerURL    string `toml:"worker_url" validate:"omitempty,url"`
	// ClientDBPath garde la liste d'abonnements et les réglages du client, séparés de ceux du daemon.
	ClientDBPath string `toml:"client_db_path" validate:"required"`

	Detection     Detection     `toml:"detection"`
	Source        Source        `toml:"source"`
	Notifications Notifications `toml:"notifications"`
}

func Default() Config {
	return Config{
		Addr:      "127.0.0.1:8787",
		Storage:   StorageSQLite,
		DBPath:    "episode-watch.db",
		BadgerDir: "episode-watch.badger",
		LogLevel:  "info",

		WorkerURL:    "http://127.0.0.1:8787",
		ClientDBPath: "episode-watch-client.db",
		Detection: Detection{
			CheckInterval:  Duration(30 * time.Minute),
			AdvanceWindow:  Duration(5 * time.Minute),
			EpisodesMaxAge: Duration(5 * time.Minute),
			ScheduleMaxAge: Duration(60 * time.Minute),
			CacheRetention: Duration(7 * 24 * time.Hour),
			UpdateDebounce: Duration(time.Second),
		},
		Source: Source{
			BaseURL:           "http://127.0.0.1:4444/api",
			Timeout:           Duration(15 * time.Second),
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Notifications: Notifications{
			Timeout: Duration(10 * time.Second),
		},
	}
}

type LoadOptions struct {
	// Path du fichier TOML; vide = EPW_CONFIG puis episode-watch.toml s'il existe.
	Path string
	// DotEnv vaut ".env" par défaut. Un fichier absent est ignoré.
	DotEnv string
	// LookupEnv remplace os.LookupEnv (tests).
	LookupEnv func(string) (string, bool)
}

// Load construit la configuration sans les flags et renvoie le chemin TOML effectivement lu ("" si aucun).
func Load(opts LoadOptions) (Config, string, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	values, err := godotenv.Read(dotenv)
	switch {
	case err == nil:
		if err := cfg.applyEnv(mapLookup(values)); err != nil {
			return Config{}, "", fmt.Errorf("%s: %w", dotenv, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, "", fmt.Errorf("read %s: %w", dotenv, err)
	}

	path := opts.Path
	if path == "" {
		if v, ok := lookup(envPrefix + "CONFIG"); ok {
			path = v
		}
	}
	explicit := path != ""
	if path == "" {
		path = "episode-watch.toml"
	}
	used, err := cfg.applyFile(path, explicit)
	if err != nil {
		return Config{}, "", err
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, "", err
	}
	return cfg, used, nil
}

func (c *Config) applyFile(path string, required bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return "", nil
		}
		return "", fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	return path, nil
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("parse %s%s: %w", envPrefix, name, err))
			}
		}
	}

	str("ADDR", &c.Addr)
	str("STORAGE", &c.Storage)
	str("DB_PATH", &c.DBPath)
	str("BADGER_DIR", &c.BadgerDir)
	str("WORKER_URL", &c.WorkerURL)
	str("CLIENT_DB_PATH", &c.ClientDBPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("API_BASE_URL", &c.Source.BaseURL)
	str("NTFY_URL", &c.Notifications.NtfyURL)
	str("CLICK_BASE_URL", &c.Notifications.ClickBaseURL)

	dur("CHECK_INTERVAL", &c.Detection.CheckInterval)
	dur("ADVANCE_WINDOW", &c.Detection.AdvanceWindow)
	dur("EPISODES_MAX_AGE", &c.Detection.EpisodesMaxAge)
	dur("SCHEDULE_MAX_AGE", &c.Detection.ScheduleMaxAge)
	dur("CACHE_RETENTION", &c.Detection.CacheRetention)
	dur("UPDATE_DEBOUNCE", &c.Detection.UpdateDebounce)
	dur("API_TIMEOUT", &c.Source.Timeout)
	dur("NTFY_TIMEOUT", &c.Notifications.Timeout)

	if v, ok := lookup(envPrefix + "RPS"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %sRPS: %w", envPrefix, err))
		} else {
			c.Source.RequestsPerSecond = f
		}
	}
	if v, ok := lookup(envPrefix + "BURST"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %sBURST: %w", envPrefix, err))
		} else {
			c.Source.Burst = n
		}
	}
	return errors.Join(errs...)
}

// Validate vérifie les contraintes déclarées par tags, après application des flags.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}
