// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all countries configuration.
type Config struct {
	API     API     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Cache   Cache   `yaml:"cache"`
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
}

// API holds remote lookup settings.
type API struct {
	BaseURL string        `yaml:"base_url"`
	Delay   time.Duration `yaml:"delay"`   // Artificial latency per search; 0 disables
	Timeout time.Duration `yaml:"timeout"` // Per-request HTTP timeout
}

// Storage holds cache persistence settings.
type Storage struct {
	Backend string `yaml:"backend"` // "file" | "sqlite" | "memory"
	Path    string `yaml:"path"`    // Directory for file and sqlite backends
	Key     string `yaml:"key"`
}

// Cache holds cache update settings.
type Cache struct {
	FailurePolicy string `yaml:"failure_policy"` // "collapse" | "keep"
}

// Server holds HTTP server settings.
type Server struct {
	Addr string `yaml:"addr"`
}

// Log holds diagnostic logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API: API{
			BaseURL: "https://restcountries.com/v3.1",
			Delay:   time.Second,
			Timeout: 10 * time.Second,
		},
		Storage: Storage{
			Backend: "file",
			Path:    ".countries",
			Key:     "cacheStore",
		},
		Cache: Cache{
			FailurePolicy: "collapse",
		},
		Server: Server{
			Addr: ":8080",
		},
		Log: Log{
			Level: "warn",
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files and empty paths are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Backends lists the storage backends Validate accepts.
var Backends = []string{"file", "sqlite", "memory"}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url cannot be empty")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Delay < 0 {
		return fmt.Errorf("config: api.delay must be non-negative, got %v", c.API.Delay)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive, got %v", c.API.Timeout)
	}

	known := false
	for _, b := range Backends {
		if c.Storage.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("config: storage.backend must be one of %v, got %q", Backends, c.Storage.Backend)
	}
	if c.Storage.Path == "" && c.Storage.Backend != "memory" {
		return errors.New("config: storage.path cannot be empty")
	}
	if c.Storage.Key == "" {
		return errors.New("config: storage.key cannot be empty")
	}

	switch c.Cache.FailurePolicy {
	case "", "collapse", "keep":
		// valid
	default:
		return fmt.Errorf("config: cache.failure_policy must be \"collapse\" or \"keep\", got %q", c.Cache.FailurePolicy)
	}

	if c.Server.Addr == "" {
		return errors.New("config: server.addr cannot be empty")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// envOverrides lists the supported environment variables. Unset variables
// leave their pointer nil.
type envOverrides struct {
	BaseURL  *string        `env:"COUNTRIES_API_BASE_URL"`
	Delay    *time.Duration `env:"COUNTRIES_DELAY"`
	Timeout  *time.Duration `env:"COUNTRIES_TIMEOUT"`
	Backend  *string        `env:"COUNTRIES_STORAGE_BACKEND"`
	Path     *string        `env:"COUNTRIES_STORAGE_PATH"`
	LogLevel *string        `env:"COUNTRIES_LOG_LEVEL"`
}

// ApplyEnv applies environment variable overrides to the config.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: parsing environment: %w", err)
	}
	if o.BaseURL != nil && *o.BaseURL != "" {
		c.API.BaseURL = *o.BaseURL
	}
	if o.Delay != nil {
		c.API.Delay = *o.Delay
	}
	if o.Timeout != nil {
		c.API.Timeout = *o.Timeout
	}
	if o.Backend != nil && *o.Backend != "" {
		c.Storage.Backend = *o.Backend
	}
	if o.Path != nil && *o.Path != "" {
		c.Storage.Path = *o.Path
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		c.Log.Level = *o.LogLevel
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	API     *rawAPI     `yaml:"api"`
	Storage *rawStorage `yaml:"storage"`
	Cache   *rawCache   `yaml:"cache"`
	Server  *rawServer  `yaml:"server"`
	Log     *rawLog     `yaml:"log"`
}

type rawAPI struct {
	BaseURL *string        `yaml:"base_url"`
	Delay   *time.Duration `yaml:"delay"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawStorage struct {
	Backend *string `yaml:"backend"`
	Path    *string `yaml:"path"`
	Key     *string `yaml:"key"`
}

type rawCache struct {
	FailurePolicy *string `yaml:"failure_policy"`
}

type rawServer struct {
	Addr *string `yaml:"addr"`
}

type rawLog struct {
	Level *string `yaml:"level"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.API != nil {
		setIf(&c.API.BaseURL, layer.API.BaseURL)
		setIf(&c.API.Delay, layer.API.Delay)
		setIf(&c.API.Timeout, layer.API.Timeout)
	}
	if layer.Storage != nil {
		setIf(&c.Storage.Backend, layer.Storage.Backend)
		setIf(&c.Storage.Path, layer.Storage.Path)
		setIf(&c.Storage.Key, layer.Storage.Key)
	}
	if layer.Cache != nil {
		setIf(&c.Cache.FailurePolicy, layer.Cache.FailurePolicy)
	}
	if layer.Server != nil {
		setIf(&c.Server.Addr, layer.Server.Addr)
	}
	if layer.Log != nil {
		setIf(&c.Log.Level, layer.Log.Level)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
