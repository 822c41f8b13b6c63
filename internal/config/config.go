// Package config handles application configuration from an optional YAML
// file, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"community_bot/internal/model"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	DiscordToken      string        `yaml:"discord_token"`
	CommandPrefix     string        `yaml:"command_prefix"`
	Database          Database      `yaml:"database"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	OTLPEndpoint      string        `yaml:"otlp_endpoint"`
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	VerifyTimeout     time.Duration `yaml:"verify_timeout"`
	Links             Links         `yaml:"links"`
	Minecraft         Minecraft     `yaml:"minecraft"`
	News              News          `yaml:"news"`
}

// Database selects the storage backend.
type Database struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// Links are the community URLs the info commands post.
type Links struct {
	// Name prefixes the link titles, e.g. "<Name> Official Website".
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
	Invite  string `yaml:"invite"`
	Vote    string `yaml:"vote"`
}

// Minecraft locates the community game server.
type Minecraft struct {
	Address   string `yaml:"address"`
	StatusAPI string `yaml:"status_api"`
}

// News configures the news command.
type News struct {
	FeedURL string         `yaml:"feed_url"`
	Limit   int            `yaml:"limit"`
	Filters []model.Filter `yaml:"filters"`
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE
// (default config.yaml, optional), then environment variables, which win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := &Config{}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	overrideString(&cfg.DiscordToken, "DISCORD_TOKEN")
	overrideString(&cfg.CommandPrefix, "COMMAND_PREFIX")
	overrideString(&cfg.Database.Driver, "DATABASE_DRIVER")
	overrideString(&cfg.Database.Path, "DATABASE_PATH")
	overrideString(&cfg.Database.URL, "DATABASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.LogFormat, "LOG_FORMAT")
	overrideString(&cfg.MetricsAddr, "METRICS_ADDR")
	overrideString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideString(&cfg.Links.Website, "WEBSITE_URL")
	overrideString(&cfg.Links.Invite, "INVITE_URL")
	overrideString(&cfg.Links.Vote, "VOTE_URL")
	overrideString(&cfg.Minecraft.Address, "MINECRAFT_ADDRESS")
	overrideString(&cfg.News.FeedURL, "NEWS_FEED_URL")
	if err := overrideDuration(&cfg.CountdownInterval, "COUNTDOWN_INTERVAL"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.VerifyTimeout, "VERIFY_TIMEOUT"); err != nil {
		return nil, err
	}
	if raw := os.Getenv("NEWS_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid NEWS_LIMIT %q: %w", raw, err)
		}
		cfg.News.Limit = n
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.CommandPrefix, "/")
	setDefault(&c.Database.Driver, DriverSQLite)
	setDefault(&c.Database.Path, "./data/bot.db")
	setDefault(&c.LogLevel, "info")
	setDefault(&c.LogFormat, "text")
	setDefault(&c.Minecraft.StatusAPI, "https://api.mcsrvstat.us/2/")
	if c.CountdownInterval == 0 {
		c.CountdownInterval = 5 * time.Second
	}
	if c.VerifyTimeout == 0 {
		c.VerifyTimeout = 30 * time.Second
	}
	if c.News.Limit == 0 {
		c.News.Limit = 5
	}
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.CountdownInterval < 0 || c.VerifyTimeout < 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.News.Limit < 0 {
		return fmt.Errorf("news limit must be positive")
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == DriverPostgres {
		return c.Database.URL
	}
	return c.Database.Path
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, key string) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
