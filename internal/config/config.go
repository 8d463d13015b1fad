// Package config loads npmdash configuration from defaults, an optional
// TOML file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backends accepted for the history store.
const (
	BackendAuto  = ""
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendFile  = "file"
	BackendNone  = "none"
)

// Config holds application configuration.
type Config struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Server is the base URL of a running npmdash server. When set, CLI
	// commands talk to it instead of calling npm and GitHub directly.
	Server string `toml:"server"`

	// Plan and UserID describe the person using the CLI.
	Plan   string `toml:"plan"`
	UserID string `toml:"user_id"`

	GitHub  GitHub  `toml:"github"`
	NPM     NPM     `toml:"npm"`
	History History `toml:"history"`
}

// GitHub configures the repository API client.
type GitHub struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// NPM configures the registry clients and their response cache.
type NPM struct {
	RegistryURL  string   `toml:"registry_url"`
	DownloadsURL string   `toml:"downloads_url"`
	CacheDir     string   `toml:"cache_dir"`
	CacheTTL     Duration `toml:"cache_ttl"`
}

// History configures the snapshot store.
type History struct {
	Backend         string   `toml:"backend"`
	RedisURL        string   `toml:"redis_url"`
	MongoURI        string   `toml:"mongo_uri"`
	MongoDatabase   string   `toml:"mongo_database"`
	MongoCollection string   `toml:"mongo_collection"`
	Dir             string   `toml:"dir"`
	Namespace       string   `toml:"namespace"`
	Retention       Duration `toml:"retention"`
}

// Duration is a time.Duration that decodes from strings like "90m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:     "3001",
		LogLevel: "info",
		Plan:     "anonymous",
		NPM: NPM{
			CacheTTL: Duration{time.Hour},
		},
		History: History{
			MongoDatabase:   "npmdash",
			MongoCollection: "history",
			Namespace:       "npmdash",
			Retention:       Duration{90 * 24 * time.Hour},
		},
	}
}

// Load builds the configuration. path names a TOML file; when empty,
// NPMDASH_CONFIG is consulted. A .env file in the working directory is
// read if present and never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("NPMDASH_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString(&c.Port, getenv("PORT"))
	setString(&c.LogLevel, getenv("NPMDASH_LOG_LEVEL"))
	setString(&c.Server, getenv("NPMDASH_SERVER"))
	setString(&c.Plan, getenv("NPMDASH_PLAN"))
	setString(&c.UserID, getenv("NPMDASH_USER_ID"))

	setString(&c.GitHub.Token, firstNonEmpty(getenv("GITHUB_TOKEN"), getenv("GITHUB_PAT"), getenv("GH_TOKEN")))
	setString(&c.GitHub.BaseURL, getenv("NPMDASH_GITHUB_URL"))

	setString(&c.NPM.RegistryURL, getenv("NPMDASH_REGISTRY_URL"))
	setString(&c.NPM.DownloadsURL, getenv("NPMDASH_DOWNLOADS_URL"))
	setString(&c.NPM.CacheDir, getenv("NPMDASH_CACHE_DIR"))

	setString(&c.History.Backend, getenv("NPMDASH_HISTORY_BACKEND"))
	setString(&c.History.RedisURL, firstNonEmpty(getenv("NPMDASH_REDIS_URL"), getenv("REDIS_URL")))
	setString(&c.History.MongoURI, firstNonEmpty(getenv("NPMDASH_MONGO_URI"), getenv("MONGO_URI")))
	setString(&c.History.MongoDatabase, getenv("NPMDASH_MONGO_DATABASE"))
	setString(&c.History.MongoCollection, getenv("NPMDASH_MONGO_COLLECTION"))
	setString(&c.History.Dir, getenv("NPMDASH_HISTORY_DIR"))
	setString(&c.History.Namespace, getenv("NPMDASH_HISTORY_NAMESPACE"))

	for key, dst := range map[string]*Duration{
		"NPMDASH_CACHE_TTL":         &c.NPM.CacheTTL,
		"NPMDASH_HISTORY_RETENTION": &c.History.Retention,
	} {
		if v := getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			dst.Duration = d
		}
	}
	return nil
}

// Validate checks values that cannot be fixed up silently.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case BackendAuto, BackendRedis, BackendMongo, BackendFile, BackendNone:
	default:
		return fmt.Errorf("history backend %q: want redis, mongo, file or none", c.History.Backend)
	}
	if c.History.Backend == BackendRedis && c.History.RedisURL == "" {
		return errors.New("history backend redis needs a redis URL (NPMDASH_REDIS_URL)")
	}
	if c.History.Backend == BackendMongo && c.History.MongoURI == "" {
		return errors.New("history backend mongo needs a mongo URI (NPMDASH_MONGO_URI)")
	}
	if c.History.Retention.Duration <= 0 {
		return errors.New("history retention must be positive")
	}
	if c.NPM.CacheTTL.Duration < 0 {
		return errors.New("npm cache ttl must not be negative")
	}
	return nil
}

// HistoryBackend resolves the auto backend: redis when a URL is set, then
// mongo, otherwise none.
func (c *Config) HistoryBackend() string {
	if c.History.Backend != BackendAuto {
		return c.History.Backend
	}
	switch {
	case c.History.RedisURL != "":
		return BackendRedis
	case c.History.MongoURI != "":
		return BackendMongo
	default:
		return BackendNone
	}
}

// Addr is the listen address for the server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		d, err := time.ParseDuration(days + "h")
		return d * 24, err
	}
	return time.ParseDuration(s)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
