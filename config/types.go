package config

// Config is the marketplace genesis configuration. Addresses are 0x-prefixed
// hex strings and rates are basis points.
type Config struct {
	Admin             string   `toml:"Admin"`
	Treasury          string   `toml:"Treasury"`
	Distributor       string   `toml:"Distributor"`
	PlatformFeeBps    uint32   `toml:"PlatformFeeBps"`
	DefaultRoyaltyBps uint32   `toml:"DefaultRoyaltyBps"`
	LedgerPenaltyBps  uint32   `toml:"LedgerPenaltyBps"`
	PenaltyRateBps    uint32   `toml:"PenaltyRateBps"`
	Configurators     []string `toml:"Configurators"`
	Arbitrators       []string `toml:"Arbitrators"`
}

const (
	DefaultPlatformFeeBps    = 250
	DefaultRoyaltyBps        = 1_000
	DefaultLedgerPenaltyBps  = 500
	DefaultPenaltyRateBps    = 500
	maxBps                   = 10_000
	maxMarketplacePenaltyBps = 1_000
)
