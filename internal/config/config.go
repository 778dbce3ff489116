package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Remote    RemoteConfig
	Assistant AssistantConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings for the offline cache.
type DatabaseConfig struct {
	Path string
}

// RemoteConfig selects and addresses the collection store.
type RemoteConfig struct {
	Driver   string
	URL      string
	TokenEnv string `mapstructure:"token_env"`
	Token    string
	Timeout  time.Duration
}

// AssistantConfig tunes the finance tools.
type AssistantConfig struct {
	LivingCategory   string `mapstructure:"living_category"`
	BillsCategory    string `mapstructure:"bills_category"`
	DefaultCycleDays int    `mapstructure:"default_cycle_days"`
	Timezone         string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

const (
	DriverPocketBase = "pocketbase"
	DriverMemory     = "memory"
)

// Location resolves the configured timezone, falling back to local time.
func (c AssistantConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Path is the config file location: NAVI_CONFIG or ~/.config/navi/config.toml.
func Path() string {
	if p := os.Getenv("NAVI_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "navi", "config.toml")
}

// Load reads configuration from file and env. A .env file in the working
// directory is loaded first; env var overrides use prefix NAVI_.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "navi", "navi.db"))
	v.SetDefault("remote.driver", DriverPocketBase)
	v.SetDefault("remote.url", "http://127.0.0.1:8090")
	v.SetDefault("remote.token_env", "NAVI_REMOTE_TOKEN")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("assistant.living_category", "living")
	v.SetDefault("assistant.bills_category", "bills")
	v.SetDefault("assistant.default_cycle_days", 14)
	v.SetDefault("assistant.timezone", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("NAVI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// the file is optional; a present but broken one is an error
	if _, err := os.Stat(Path()); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	switch c.Remote.Driver {
	case DriverPocketBase, DriverMemory:
	default:
		return Config{}, fmt.Errorf("remote.driver %q: want %s or %s", c.Remote.Driver, DriverPocketBase, DriverMemory)
	}
	return c, nil
}

// Save writes the non-secret settings to Path, creating the directory if needed.
// The remote token is never written; keep it in the env or the secrets store.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("remote.driver", cfg.Remote.Driver)
	v.Set("remote.url", cfg.Remote.URL)
	v.Set("remote.token_env", cfg.Remote.TokenEnv)
	v.Set("remote.timeout", cfg.Remote.Timeout.String())
	v.Set("assistant.living_category", cfg.Assistant.LivingCategory)
	v.Set("assistant.bills_category", cfg.Assistant.BillsCategory)
	v.Set("assistant.default_cycle_days", cfg.Assistant.DefaultCycleDays)
	v.Set("assistant.timezone", cfg.Assistant.Timezone)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
