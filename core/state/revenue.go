package state

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
)

type storedRevenueParams struct {
	Treasury          ethcommon.Address
	Distributor       ethcommon.Address
	PlatformFeeBps    uint64
	DefaultRoyaltyBps uint64
	LedgerPenaltyBps  uint64
}

type storedBalance struct {
	Principal   *big.Int
	LastAccrual uint64
}

type storedSplit struct {
	Recipients []ethcommon.Address
	Shares     []uint64
}

func checkAmount(label string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", label)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, fmt.Errorf("%s overflow", label)
	}
	return new(big.Int).Set(v), nil
}

func toUnix(ts uint64) int64 { return int64(ts) }

func fromUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// RevenueParamsGet loads the revenue parameters.
func (m *Manager) RevenueParamsGet() (*revenue.Params, bool, error) {
	var stored storedRevenueParams
	ok, err := m.KVGet(revenueParamsKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &revenue.Params{
		Treasury:          stored.Treasury,
		Distributor:       stored.Distributor,
		PlatformFeeBps:    uint32(stored.PlatformFeeBps),
		DefaultRoyaltyBps: uint32(stored.DefaultRoyaltyBps),
		LedgerPenaltyBps:  uint32(stored.LedgerPenaltyBps),
	}, true, nil
}

// RevenueParamsPut persists the revenue parameters.
func (m *Manager) RevenueParamsPut(params *revenue.Params) error {
	if params == nil {
		return fmt.Errorf("revenue params must not be nil")
	}
	return m.KVPut(revenueParamsKeyBytes, storedRevenueParams{
		Treasury:          params.Treasury,
		Distributor:       params.Distributor,
		PlatformFeeBps:    uint64(params.PlatformFeeBps),
		DefaultRoyaltyBps: uint64(params.DefaultRoyaltyBps),
		LedgerPenaltyBps:  uint64(params.LedgerPenaltyBps),
	})
}

// RevenueBalanceGet loads the pull-payment balance of an account.
func (m *Manager) RevenueBalanceGet(account ethcommon.Address) (*revenue.Balance, bool, error) {
	var stored storedBalance
	ok, err := m.KVGet(RevenueBalanceKey(account), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	balance := &revenue.Balance{Account: account, Principal: big.NewInt(0), LastAccrual: toUnix(stored.LastAccrual)}
	if stored.Principal != nil {
		balance.Principal.Set(stored.Principal)
	}
	return balance, true, nil
}

// RevenueBalancePut persists an account balance. Principals beyond 256 bits
// are rejected.
func (m *Manager) RevenueBalancePut(balance *revenue.Balance) error {
	if balance == nil {
		return fmt.Errorf("balance must not be nil")
	}
	principal, err := checkAmount("balance", balance.Principal)
	if err != nil {
		return err
	}
	return m.KVPut(RevenueBalanceKey(balance.Account), storedBalance{
		Principal:   principal,
		LastAccrual: fromUnix(balance.LastAccrual),
	})
}

// RevenueSplitGet loads the split configured for an asset.
func (m *Manager) RevenueSplitGet(assetID uint64) (*revenue.Split, bool, error) {
	var stored storedSplit
	ok, err := m.KVGet(RevenueSplitKey(assetID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	split := &revenue.Split{
		AssetID:    assetID,
		Recipients: append([]ethcommon.Address(nil), stored.Recipients...),
		Shares:     make([]uint32, len(stored.Shares)),
	}
	for i, share := range stored.Shares {
		split.Shares[i] = uint32(share)
	}
	return split, true, nil
}

// RevenueSplitPut replaces the split of an asset.
func (m *Manager) RevenueSplitPut(split *revenue.Split) error {
	if split == nil {
		return fmt.Errorf("split must not be nil")
	}
	stored := storedSplit{
		Recipients: append([]ethcommon.Address(nil), split.Recipients...),
		Shares:     make([]uint64, len(split.Shares)),
	}
	for i, share := range split.Shares {
		stored.Shares[i] = uint64(share)
	}
	return m.KVPut(RevenueSplitKey(split.AssetID), stored)
}

// RevenueAssetRoyaltyGet loads a per-asset royalty override. The boolean
// reports presence, so a stored zero is distinguishable from no override.
func (m *Manager) RevenueAssetRoyaltyGet(assetID uint64) (uint32, bool, error) {
	var bps uint64
	ok, err := m.KVGet(RevenueRoyaltyKey(assetID), &bps)
	if err != nil || !ok {
		return 0, ok, err
	}
	return uint32(bps), true, nil
}

// RevenueAssetRoyaltyPut stores a per-asset royalty override.
func (m *Manager) RevenueAssetRoyaltyPut(assetID uint64, bps uint32) error {
	return m.KVPut(RevenueRoyaltyKey(assetID), uint64(bps))
}

// RevenueAssetRoyaltyDelete removes a per-asset royalty override.
func (m *Manager) RevenueAssetRoyaltyDelete(assetID uint64) error {
	return m.KVDelete(RevenueRoyaltyKey(assetID))
}

// RevenueDustGet returns the cumulative undistributed truncation remainder.
func (m *Manager) RevenueDustGet() (*big.Int, error) {
	total := new(big.Int)
	ok, err := m.KVGet(revenueDustKeyBytes, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// RevenueDustPut stores the cumulative truncation remainder.
func (m *Manager) RevenueDustPut(total *big.Int) error {
	value, err := checkAmount("dust", total)
	if err != nil {
		return err
	}
	return m.KVPut(revenueDustKeyBytes, value)
}
