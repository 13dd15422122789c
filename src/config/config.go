// Package config loads tile cache settings from a YAML (or JSON with
// comments) file and converts them into a cache.CacheConfig.
//
// The file is named by the --config flag or the TILECACHE_CONFIG
// environment variable. Values not present in the file keep the
// defaults from Default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"tilecache/src/cache"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "TILECACHE_CONFIG"

type Config struct {
	// Base is the cache root. ${VAR} and ${VAR:-default} are expanded.
	Base string `yaml:"base"`

	// Umask is an octal file-creation mask, e.g. "002" or "0027".
	Umask string `yaml:"umask"`

	// Limit is the disk budget, e.g. "512MB" or "2GiB". Empty or "0"
	// disables eviction.
	Limit string `yaml:"limit"`

	ReadOnly bool `yaml:"readonly"`
	SendFile bool `yaml:"sendfile"`

	// Stale is the age after which a lock is reclaimed, as a Go duration.
	Stale string `yaml:"stale"`

	// LockRetry is the WaitLock poll interval, as a Go duration.
	LockRetry string `yaml:"lock_retry"`

	// Driver selects the SQLite driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	return &Config{
		Base:      "${HOME}/.cache/tilecache",
		Umask:     "002",
		Limit:     "",
		Stale:     cache.DefaultStaleLock.String(),
		LockRetry: cache.DefaultLockRetry.String(),
		Driver:    cache.DefaultDriver,
		LogLevel:  "info",
	}
}

// Load loads the file named by TILECACHE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it to the path of a config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, expands variables in Base and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Expand resolves ${VAR} and ${VAR:-default} in Base.
func (c *Config) Expand() {
	c.Base = expandVars(c.Base)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Base == "" {
		errs = append(errs, errors.New("base is required"))
	}
	if _, err := c.umask(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.limit(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("stale", c.Stale); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("lock_retry", c.LockRetry); err != nil {
		errs = append(errs, err)
	}
	if c.Driver != "sqlite3" && c.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("invalid driver %q (want sqlite3 or sqlite)", c.Driver))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// CacheConfig converts the file settings into a cache.CacheConfig that
// logs to logger.
func (c *Config) CacheConfig(logger *slog.Logger) (cache.CacheConfig, error) {
	if err := c.Validate(); err != nil {
		return cache.CacheConfig{}, err
	}
	umask, _ := c.umask()
	limit, _ := c.limit()
	stale, _ := parseDuration("stale", c.Stale)
	retry, _ := parseDuration("lock_retry", c.LockRetry)

	return cache.CacheConfig{
		BaseDir:   c.Base,
		Umask:     umask,
		Limit:     limit,
		ReadOnly:  c.ReadOnly,
		SendFile:  c.SendFile,
		StaleLock: stale,
		LockRetry: retry,
		Driver:    c.Driver,
		Logger:    logger,
	}, nil
}

func (c *Config) umask() (int, error) {
	mask, err := strconv.ParseUint(c.Umask, 8, 32)
	if err != nil || mask > 0o777 {
		return 0, fmt.Errorf("invalid umask %q: want an octal value up to 777", c.Umask)
	}
	if mask == 0 {
		return cache.UmaskNone, nil
	}
	return int(mask), nil
}

func (c *Config) limit() (int64, error) {
	if c.Limit == "" || c.Limit == "0" {
		return 0, nil
	}
	bytes, err := humanize.ParseBytes(c.Limit)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q: %w", c.Limit, err)
	}
	if bytes > 1<<62 {
		return 0, fmt.Errorf("limit %q is too large", c.Limit)
	}
	return int64(bytes), nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, value)
	}
	return d, nil
}
