package revenue

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
)

// ValidateSplit checks the recipient/share arrays without touching state.
func ValidateSplit(recipients []ethcommon.Address, shares []uint32) error {
	if len(recipients) != len(shares) {
		return fmt.Errorf("%w: %d recipients, %d shares", ErrArrayLengthMismatch, len(recipients), len(shares))
	}
	if len(recipients) == 0 {
		return fmt.Errorf("%w: empty recipient list", ErrInvalidRecipient)
	}
	var sum uint64
	for i, recipient := range recipients {
		if recipient == (ethcommon.Address{}) {
			return fmt.Errorf("%w: recipient %d is the zero address", ErrInvalidRecipient, i)
		}
		sum += uint64(shares[i])
	}
	if sum != bpsDenominator {
		return fmt.Errorf("%w: got %d", ErrInvalidSharesSum, sum)
	}
	return nil
}

// ConfigureSplit replaces the split of an asset. The caller must hold the
// configurator role and a rejected configuration leaves the previous one in
// place.
func (e *Engine) ConfigureSplit(caller ethcommon.Address, assetID uint64, recipients []ethcommon.Address, shares []uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(access.RoleConfigurator, caller); err != nil {
		return err
	}
	if err := ValidateSplit(recipients, shares); err != nil {
		return err
	}
	split := &Split{
		AssetID:    assetID,
		Recipients: append([]ethcommon.Address(nil), recipients...),
		Shares:     append([]uint32(nil), shares...),
	}
	if err := e.state.RevenueSplitPut(split); err != nil {
		return err
	}
	e.emit(SplitConfiguredEvent(split))
	return nil
}

// IsConfigured reports whether the asset has a split.
func (e *Engine) IsConfigured(assetID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.state.RevenueSplitGet(assetID)
	return ok, err
}

// Split returns the configured split of an asset.
func (e *Engine) Split(assetID uint64) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	split, ok, err := e.state.RevenueSplitGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || split == nil {
		return nil, fmt.Errorf("%w: asset %d", errSplitNotFound, assetID)
	}
	split.AssetID = assetID
	return split, nil
}
