package config

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Validate checks the genesis configuration bounds.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil genesis")
	}
	if _, err := parseAddress("Admin", c.Admin, true); err != nil {
		return err
	}
	if _, err := parseAddress("Treasury", c.Treasury, true); err != nil {
		return err
	}
	if _, err := parseAddress("Distributor", c.Distributor, false); err != nil {
		return err
	}
	if c.PlatformFeeBps > maxBps {
		return fmt.Errorf("config: PlatformFeeBps %d exceeds %d", c.PlatformFeeBps, maxBps)
	}
	if c.DefaultRoyaltyBps > maxBps {
		return fmt.Errorf("config: DefaultRoyaltyBps %d exceeds %d", c.DefaultRoyaltyBps, maxBps)
	}
	if c.LedgerPenaltyBps > maxBps {
		return fmt.Errorf("config: LedgerPenaltyBps %d exceeds %d", c.LedgerPenaltyBps, maxBps)
	}
	if c.PenaltyRateBps > maxMarketplacePenaltyBps {
		return fmt.Errorf("config: PenaltyRateBps %d exceeds %d", c.PenaltyRateBps, maxMarketplacePenaltyBps)
	}
	for i, raw := range c.Configurators {
		if _, err := parseAddress(fmt.Sprintf("Configurators[%d]", i), raw, true); err != nil {
			return err
		}
	}
	for i, raw := range c.Arbitrators {
		if _, err := parseAddress(fmt.Sprintf("Arbitrators[%d]", i), raw, true); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(field, raw string, required bool) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return ethcommon.Address{}, fmt.Errorf("config: %s is required", field)
		}
		return ethcommon.Address{}, nil
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, fmt.Errorf("config: %s %q is not a hex address", field, raw)
	}
	addr := ethcommon.HexToAddress(trimmed)
	if required && addr == (ethcommon.Address{}) {
		return ethcommon.Address{}, fmt.Errorf("config: %s must not be the zero address", field)
	}
	return addr, nil
}
