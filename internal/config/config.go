// Package config holds the clinicpipe settings read through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLINICPIPE_STORE_BACKEND.
const EnvPrefix = "CLINICPIPE"

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Board   BoardConfig   `mapstructure:"board"`
	Logging LoggingConfig `mapstructure:"logging"`
	Session SessionConfig `mapstructure:"session"`
	Draw    DrawConfig    `mapstructure:"draw"`
}

type StoreConfig struct {
	// Backend is one of sqlite, rest, postgres or memory.
	Backend     string `mapstructure:"backend"`
	URL         string `mapstructure:"url"`
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
	ClinicID    string `mapstructure:"clinic_id"`
	DSN         string `mapstructure:"dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

type BoardConfig struct {
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RefreshOnSettle bool          `mapstructure:"refresh_on_settle"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SessionConfig struct {
	Role            string `mapstructure:"role"`
	UserID          string `mapstructure:"user_id"`
	ViewAllPatients bool   `mapstructure:"view_all_patients"`
}

type DrawConfig struct {
	Output string `mapstructure:"output"`
}

// Dir is where clinicpipe keeps its files, ~/.clinicpipe.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clinicpipe"
	}

	return filepath.Join(home, ".clinicpipe")
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: filepath.Join(Dir(), "board.db"),
		},
		Board: BoardConfig{
			ConfirmTimeout:  15 * time.Second,
			RefreshInterval: 30 * time.Second,
			RefreshOnSettle: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Session: SessionConfig{
			Role: "receptionist",
		},
		Draw: DrawConfig{
			Output: "board.dot",
		},
	}
}

// SetDefaults registers default values and environment overrides with v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("store.url", defaults.Store.URL)
	v.SetDefault("store.api_key", defaults.Store.APIKey)
	v.SetDefault("store.access_token", defaults.Store.AccessToken)
	v.SetDefault("store.clinic_id", defaults.Store.ClinicID)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)

	v.SetDefault("board.confirm_timeout", defaults.Board.ConfirmTimeout)
	v.SetDefault("board.refresh_interval", defaults.Board.RefreshInterval)
	v.SetDefault("board.refresh_on_settle", defaults.Board.RefreshOnSettle)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.development", defaults.Logging.Development)

	v.SetDefault("session.role", defaults.Session.Role)
	v.SetDefault("session.user_id", defaults.Session.UserID)
	v.SetDefault("session.view_all_patients", defaults.Session.ViewAllPatients)
	v.SetDefault("draw.output", defaults.Draw.Output)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads path into v. Without a path, config.yaml is searched in the working directory and
// in Dir; a missing file is not an error then.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)

		return errors.Wrapf(v.ReadInConfig(), "unable to read config %s", path)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}

	return errors.Wrap(err, "unable to read config")
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
