package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load loads the genesis configuration from the given path. A missing file is
// replaced by a default template that still needs its addresses filled in.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Configurators == nil {
		cfg.Configurators = []string{}
	}
	if cfg.Arbitrators == nil {
		cfg.Arbitrators = []string{}
	}
	return cfg, nil
}

// Default returns the default genesis parameters with no accounts set.
func Default() *Config {
	return &Config{
		PlatformFeeBps:    DefaultPlatformFeeBps,
		DefaultRoyaltyBps: DefaultRoyaltyBps,
		LedgerPenaltyBps:  DefaultLedgerPenaltyBps,
		PenaltyRateBps:    DefaultPenaltyRateBps,
		Configurators:     []string{},
		Arbitrators:       []string{},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
