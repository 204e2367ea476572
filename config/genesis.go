package config

import (
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
)

// Genesis validates the configuration and converts it into the marketplace
// genesis parameters.
func (c *Config) Genesis() (marketplace.Genesis, error) {
	if err := c.Validate(); err != nil {
		return marketplace.Genesis{}, err
	}
	admin, _ := parseAddress("Admin", c.Admin, true)
	treasury, _ := parseAddress("Treasury", c.Treasury, true)
	distributor, _ := parseAddress("Distributor", c.Distributor, false)
	genesis := marketplace.Genesis{
		Admin:             admin,
		Treasury:          treasury,
		Distributor:       distributor,
		PlatformFeeBps:    c.PlatformFeeBps,
		DefaultRoyaltyBps: c.DefaultRoyaltyBps,
		LedgerPenaltyBps:  c.LedgerPenaltyBps,
		PenaltyRateBps:    c.PenaltyRateBps,
	}
	for _, raw := range c.Configurators {
		addr, _ := parseAddress("Configurators", raw, true)
		genesis.Configurators = append(genesis.Configurators, addr)
	}
	for _, raw := range c.Arbitrators {
		addr, _ := parseAddress("Arbitrators", raw, true)
		genesis.Arbitrators = append(genesis.Arbitrators, addr)
	}
	return genesis, nil
}
