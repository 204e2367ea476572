package settlementd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Store backends.
const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
	StoreBolt    = "bolt"
)

// Indexer drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the runtime configuration for settlementd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	GenesisPath   string          `yaml:"genesis"`
	Store         StoreConfig     `yaml:"store"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateConfig      `yaml:"rate_limit"`
	Indexer       IndexerConfig   `yaml:"indexer"`
	Outbox        OutboxConfig    `yaml:"outbox"`
	Log           LogConfig       `yaml:"log"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	ShutdownGrace Duration        `yaml:"shutdown_grace"`
}

// StoreConfig selects the state backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig configures bearer token validation. The token subject is the
// caller address.
type AuthConfig struct {
	HMACSecret     string   `yaml:"hmac_secret"`
	HMACSecretFile string   `yaml:"hmac_secret_file"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	ClockSkew      Duration `yaml:"clock_skew"`
}

// RateConfig limits requests per caller.
type RateConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// IndexerConfig selects the SQL event index.
type IndexerConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// OutboxConfig locates the bbolt transfer outbox.
type OutboxConfig struct {
	Path string `yaml:"path"`
}

// LogConfig adds rotated file output to stdout logging.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig toggles OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Metrics     bool    `yaml:"metrics"`
	Traces      bool    `yaml:"traces"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = "services/settlementd/genesis.toml"
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = DriverSQLite
	}
	if cfg.Indexer.Driver == DriverSQLite && strings.TrimSpace(cfg.Indexer.DSN) == "" {
		cfg.Indexer.DSN = "file:settlementd-events?mode=memory&cache=shared"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 60
	}
	if cfg.Auth.ClockSkew.Duration <= 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.ShutdownGrace.Duration <= 0 {
		cfg.ShutdownGrace.Duration = 10 * time.Second
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Store.Backend {
	case StoreMemory:
	case StoreLevelDB, StoreBolt:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return fmt.Errorf("store.path must be configured for %s", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
	switch cfg.Indexer.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Indexer.DSN) == "" {
			return fmt.Errorf("indexer.dsn must be configured for postgres")
		}
	default:
		return fmt.Errorf("unsupported indexer driver %q", cfg.Indexer.Driver)
	}
	if strings.TrimSpace(cfg.Outbox.Path) == "" {
		return fmt.Errorf("outbox.path must be configured")
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret must be configured")
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	secret := strings.TrimSpace(a.HMACSecret)
	if path := strings.TrimSpace(a.HMACSecretFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		secret = strings.TrimSpace(string(contents))
	}
	a.HMACSecret = secret
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	return nil
}
