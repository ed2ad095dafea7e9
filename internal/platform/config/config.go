package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

const (
	DefaultAddr        = ":8090"
	DefaultBaseURL     = "https://api.repairdesk.co/api"
	DefaultTimeout     = 15 * time.Second
	DefaultPageSize    = 50
	DefaultLogLevel    = "info"
	DefaultEnvironment = "dev"
	cacheFileName      = "ticket_cache.json"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
}

// RepairDesk holds vendor API settings.
type RepairDesk struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Cache holds ticket cache settings.
type Cache struct {
	Path     string
	PageSize int
}

type Config struct {
	Server     Server
	RepairDesk RepairDesk
	Cache      Cache
}

// fileConfig mirrors the JSONC config file layout.
type fileConfig struct {
	Server struct {
		Addr     string `json:"addr"`
		LogLevel string `json:"log_level"`
	} `json:"server"`
	RepairDesk struct {
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url"`
		Timeout string `json:"timeout"`
	} `json:"repairdesk"`
	Cache struct {
		Path     string `json:"path"`
		PageSize int    `json:"page_size"`
	} `json:"cache"`
}

// Load builds the configuration from defaults, an optional JSONC file named by
// NESTDESK_CONFIG, and environment variables, in increasing precedence.
// A .env file in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("NESTDESK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:        DefaultAddr,
			Environment: DefaultEnvironment,
			LogLevel:    DefaultLogLevel,
		},
		RepairDesk: RepairDesk{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Cache: Cache{
			Path:     DefaultCachePath(),
			PageSize: DefaultPageSize,
		},
	}
}

// DefaultCachePath places the cache under the user cache directory, falling
// back to the temp directory when none is available.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "nestdesk", cacheFileName)
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	setString(&c.Server.Addr, fc.Server.Addr)
	setString(&c.Server.LogLevel, fc.Server.LogLevel)
	setString(&c.RepairDesk.APIKey, fc.RepairDesk.APIKey)
	setString(&c.RepairDesk.BaseURL, fc.RepairDesk.BaseURL)
	setString(&c.Cache.Path, fc.Cache.Path)
	if fc.RepairDesk.Timeout != "" {
		d, err := time.ParseDuration(fc.RepairDesk.Timeout)
		if err != nil {
			return fmt.Errorf("parsing config %s: repairdesk.timeout: %w", path, err)
		}
		c.RepairDesk.Timeout = d
	}
	if fc.Cache.PageSize != 0 {
		c.Cache.PageSize = fc.Cache.PageSize
	}
	return nil
}

func (c *Config) mergeEnv() error {
	setString(&c.Server.Addr, os.Getenv("NESTDESK_ADDR"))
	setString(&c.Server.Environment, os.Getenv("NESTDESK_ENV"))
	setString(&c.Server.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&c.RepairDesk.BaseURL, os.Getenv("REPAIRDESK_BASE_URL"))
	setString(&c.RepairDesk.APIKey, os.Getenv("REPAIRDESK_API_KEY"))
	setString(&c.Cache.Path, os.Getenv("TICKET_CACHE_PATH"))

	if v := os.Getenv("REPAIRDESK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REPAIRDESK_TIMEOUT: %w", err)
		}
		c.RepairDesk.Timeout = d
	}
	if v := os.Getenv("TICKET_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TICKET_PAGE_SIZE: %w", err)
		}
		c.Cache.PageSize = n
	}
	return nil
}

// Validate reports the first setting that would prevent the resolver from working.
func (c Config) Validate() error {
	switch {
	case c.RepairDesk.APIKey == "":
		return errors.New("repairdesk api key is required (REPAIRDESK_API_KEY or repairdesk.api_key)")
	case c.RepairDesk.BaseURL == "":
		return errors.New("repairdesk base url is required")
	case c.Cache.PageSize <= 0:
		return fmt.Errorf("page size must be positive, got %d", c.Cache.PageSize)
	case c.Cache.Path == "":
		return errors.New("cache path is required")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
