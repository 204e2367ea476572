package config

import (
	"os"
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin    = "0x00000000000000000000000000000000000000aa"
	testTreasury = "0x00000000000000000000000000000000000000bb"
	testConfig   = "0x00000000000000000000000000000000000000cc"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "genesis.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultPlatformFeeBps), cfg.PlatformFeeBps)
	require.Equal(t, uint32(DefaultPenaltyRateBps), cfg.PenaltyRateBps)
	_, err = os.Stat(path)
	require.NoError(t, err, "default file must be written")

	require.ErrorContains(t, cfg.Validate(), "Admin is required")
}

func TestLoadParsesGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	contents := `Admin = "` + testAdmin + `"
Treasury = "` + testTreasury + `"
PlatformFeeBps = 300
DefaultRoyaltyBps = 750
LedgerPenaltyBps = 400
PenaltyRateBps = 900
Configurators = ["` + testConfig + `"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, cfg.Arbitrators)

	genesis, err := cfg.Genesis()
	require.NoError(t, err)
	require.Equal(t, ethcommon.HexToAddress(testAdmin), genesis.Admin)
	require.Equal(t, ethcommon.HexToAddress(testTreasury), genesis.Treasury)
	require.Equal(t, ethcommon.Address{}, genesis.Distributor)
	require.Equal(t, uint32(300), genesis.PlatformFeeBps)
	require.Equal(t, uint32(750), genesis.DefaultRoyaltyBps)
	require.Equal(t, uint32(400), genesis.LedgerPenaltyBps)
	require.Equal(t, uint32(900), genesis.PenaltyRateBps)
	require.Equal(t, []ethcommon.Address{ethcommon.HexToAddress(testConfig)}, genesis.Configurators)
}

func TestValidateBounds(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Admin = testAdmin
		cfg.Treasury = testTreasury
		return cfg
	}
	require.NoError(t, base().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fee", func(c *Config) { c.PlatformFeeBps = 10_001 }, "PlatformFeeBps"},
		{"royalty", func(c *Config) { c.DefaultRoyaltyBps = 10_001 }, "DefaultRoyaltyBps"},
		{"ledger penalty", func(c *Config) { c.LedgerPenaltyBps = 10_001 }, "LedgerPenaltyBps"},
		{"penalty rate", func(c *Config) { c.PenaltyRateBps = 1_001 }, "PenaltyRateBps"},
		{"bad treasury", func(c *Config) { c.Treasury = "treasury" }, "not a hex address"},
		{"zero admin", func(c *Config) { c.Admin = "0x0000000000000000000000000000000000000000" }, "zero address"},
		{"bad configurator", func(c *Config) { c.Configurators = []string{"0x12"} }, "Configurators[0]"},
		{"bad distributor", func(c *Config) { c.Distributor = "nope" }, "Distributor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
