package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tagwatch/internal/settings"
)

const (
	AppName            = "tagwatch"
	DefaultConfigFile  = "config.yaml"
	DefaultEnvFile     = ".env"
	DefaultBaseURL     = "https://api.instagram.com"
	DefaultTokenEnv    = "INSTAGRAM_ACCESS_TOKEN"
	DefaultFeedTimeout = 30 * time.Second
	DefaultUserAgent   = "tagwatch/1.0"
	DefaultInterval    = 10 * time.Minute
	DefaultThrottle    = 62500 * time.Microsecond
	DefaultLockTTL     = 15 * time.Minute
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "10m".
type Duration struct {
	time.Duration
	set bool
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	d.set = true
	return nil
}

// IsSet reports whether the value came from the file, so an explicit "0s"
// can be told apart from an omitted key.
func (d Duration) IsSet() bool {
	return d.set
}

type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Import  ImportConfig  `yaml:"import"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Log     LogConfig     `yaml:"log"`
}

type FeedConfig struct {
	BaseURL        string   `yaml:"base_url"`
	AccessTokenEnv string   `yaml:"access_token_env"`
	Hashtag        string   `yaml:"hashtag"`
	BatchSize      int      `yaml:"batch_size"`
	AutoPublish    bool     `yaml:"auto_publish"`
	Timeout        Duration `yaml:"timeout"`
	UserAgent      string   `yaml:"user_agent"`

	// Resolved from env var at load time.
	AccessToken string `yaml:"-"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type ImportConfig struct {
	Interval Duration `yaml:"interval"`
	Throttle Duration `yaml:"throttle"`
	LockTTL  Duration `yaml:"lock_ttl"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultDir is the config directory used when --config is not given.
func DefaultDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultStoragePath is the database location used when storage.path is empty.
func DefaultStoragePath() string {
	return filepath.Join(xdg.DataHome, AppName, AppName+".db")
}

// Load reads config.yaml from dir, loads dir/.env into the environment,
// applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := loadEnvFile(filepath.Join(dir, DefaultEnvFile)); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads KEY=value pairs without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = DefaultBaseURL
	}
	cfg.Feed.BaseURL = strings.TrimRight(cfg.Feed.BaseURL, "/")
	if cfg.Feed.AccessTokenEnv == "" {
		cfg.Feed.AccessTokenEnv = DefaultTokenEnv
	}
	if cfg.Feed.Timeout.Duration == 0 {
		cfg.Feed.Timeout.Duration = DefaultFeedTimeout
	}
	if cfg.Feed.UserAgent == "" {
		cfg.Feed.UserAgent = DefaultUserAgent
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath()
	}
	if cfg.Import.Interval.Duration == 0 {
		cfg.Import.Interval.Duration = DefaultInterval
	}
	if !cfg.Import.Throttle.IsSet() {
		cfg.Import.Throttle.Duration = DefaultThrottle
	}
	if cfg.Import.LockTTL.Duration == 0 {
		cfg.Import.LockTTL.Duration = DefaultLockTTL
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Feed.AccessTokenEnv != "" {
		cfg.Feed.AccessToken = strings.TrimSpace(os.Getenv(cfg.Feed.AccessTokenEnv))
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Feed.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("feed.base_url: %q is not an absolute URL", cfg.Feed.BaseURL)
	}
	if cfg.Feed.BatchSize < 0 {
		return fmt.Errorf("feed.batch_size: must not be negative (got %d)", cfg.Feed.BatchSize)
	}
	if cfg.Feed.Timeout.Duration < 0 {
		return errors.New("feed.timeout: must be positive")
	}
	if cfg.Import.Interval.Duration < time.Minute {
		return fmt.Errorf("import.interval: must be at least 1m (got %s)", cfg.Import.Interval.Duration)
	}
	if cfg.Import.Throttle.Duration < 0 {
		return errors.New("import.throttle: must not be negative")
	}
	if cfg.Import.LockTTL.Duration < 0 {
		return errors.New("import.lock_ttl: must be positive")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}
	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown level %q (want debug, info, warn or error)", s)
	}
	return lvl, nil
}

// Settings exposes the feed section as a settings source. Unset or zero
// values are omitted so that defaults apply downstream.
func (c *Config) Settings() settings.Map {
	m := settings.Map{}
	if c.Feed.AccessToken != "" {
		m[settings.KeyAccessToken] = c.Feed.AccessToken
	}
	if c.Feed.Hashtag != "" {
		m[settings.KeyHashtag] = c.Feed.Hashtag
	}
	if c.Feed.BatchSize > 0 {
		m[settings.KeyBatchSize] = strconv.Itoa(c.Feed.BatchSize)
	}
	if c.Feed.AutoPublish {
		m[settings.KeyAutoPublish] = "1"
	}
	return m
}
