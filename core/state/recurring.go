package state

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
)

type storedRecurringState struct {
	LastPayment  uint64
	CurrentOwner ethcommon.Address
	BaseAmount   *big.Int
}

type storedRecurringParams struct {
	PenaltyRateBps uint64
}

// RecurringStateGet loads the payment tracker of a license.
func (m *Manager) RecurringStateGet(licenseID uint64) (*recurring.State, bool, error) {
	var stored storedRecurringState
	ok, err := m.KVGet(RecurringStateKey(licenseID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	st := &recurring.State{
		LicenseID:    licenseID,
		LastPayment:  toUnix(stored.LastPayment),
		CurrentOwner: stored.CurrentOwner,
		BaseAmount:   big.NewInt(0),
	}
	if stored.BaseAmount != nil {
		st.BaseAmount.Set(stored.BaseAmount)
	}
	return st, true, nil
}

// RecurringStatePut persists the payment tracker of a license.
func (m *Manager) RecurringStatePut(st *recurring.State) error {
	if st == nil {
		return fmt.Errorf("recurring state must not be nil")
	}
	base, err := checkAmount("base amount", st.BaseAmount)
	if err != nil {
		return err
	}
	return m.KVPut(RecurringStateKey(st.LicenseID), storedRecurringState{
		LastPayment:  fromUnix(st.LastPayment),
		CurrentOwner: st.CurrentOwner,
		BaseAmount:   base,
	})
}

// RecurringParamsGet loads the marketplace-level recurring parameters.
func (m *Manager) RecurringParamsGet() (*recurring.Params, bool, error) {
	var stored storedRecurringParams
	ok, err := m.KVGet(recurringParamsKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &recurring.Params{PenaltyRateBps: uint32(stored.PenaltyRateBps)}, true, nil
}

// RecurringParamsPut persists the marketplace-level recurring parameters.
func (m *Manager) RecurringParamsPut(params *recurring.Params) error {
	if params == nil {
		return fmt.Errorf("recurring params must not be nil")
	}
	return m.KVPut(recurringParamsKey, storedRecurringParams{PenaltyRateBps: uint64(params.PenaltyRateBps)})
}
