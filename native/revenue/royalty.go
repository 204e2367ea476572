package revenue

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/fees"
)

// SetDefaultRoyalty updates the royalty used by assets without an override.
// Admin only.
func (e *Engine) SetDefaultRoyalty(caller ethcommon.Address, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(access.RoleAdmin, caller); err != nil {
		return err
	}
	if err := fees.ValidateBps(bps); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoyaltyRate, err)
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.DefaultRoyaltyBps = bps
	if err := e.state.RevenueParamsPut(params); err != nil {
		return err
	}
	e.emit(DefaultRoyaltyUpdatedEvent(bps))
	return nil
}

// SetAssetRoyalty stores an explicit override for the asset. A stored zero is
// an override of zero, not a fallback to the default. Configurator only.
func (e *Engine) SetAssetRoyalty(caller ethcommon.Address, assetID uint64, bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(access.RoleConfigurator, caller); err != nil {
		return err
	}
	if err := fees.ValidateBps(bps); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoyaltyRate, err)
	}
	if err := e.state.RevenueAssetRoyaltyPut(assetID, bps); err != nil {
		return err
	}
	e.emit(AssetRoyaltyUpdatedEvent(assetID, bps))
	return nil
}

// ClearAssetRoyalty removes the override so the asset uses the default again.
func (e *Engine) ClearAssetRoyalty(caller ethcommon.Address, assetID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRole(access.RoleConfigurator, caller); err != nil {
		return err
	}
	if err := e.state.RevenueAssetRoyaltyDelete(assetID); err != nil {
		return err
	}
	e.emit(AssetRoyaltyClearedEvent(assetID))
	return nil
}

// RoyaltyBps resolves the royalty of an asset: the override when present,
// otherwise the default.
func (e *Engine) RoyaltyBps(assetID uint64) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	bps, ok, err := e.state.RevenueAssetRoyaltyGet(assetID)
	if err != nil {
		return 0, err
	}
	if ok {
		return bps, nil
	}
	params, err := e.Params()
	if err != nil {
		return 0, err
	}
	return params.DefaultRoyaltyBps, nil
}

// RoyaltyInfo answers the standard secondary-royalty query. Royalties are
// paid to the distributor, which splits them on the next distribution.
func (e *Engine) RoyaltyInfo(assetID uint64, salePrice *big.Int) (ethcommon.Address, *big.Int, error) {
	bps, err := e.RoyaltyBps(assetID)
	if err != nil {
		return ethcommon.Address{}, nil, err
	}
	params, err := e.Params()
	if err != nil {
		return ethcommon.Address{}, nil, err
	}
	return params.Distributor, ShareOf(salePrice, bps), nil
}
