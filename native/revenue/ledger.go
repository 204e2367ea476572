package revenue

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func (e *Engine) loadBalance(account ethcommon.Address) (*Balance, error) {
	balance, ok, err := e.state.RevenueBalanceGet(account)
	if err != nil {
		return nil, err
	}
	if !ok || balance == nil {
		return &Balance{Account: account, Principal: big.NewInt(0)}, nil
	}
	if balance.Principal == nil {
		balance.Principal = big.NewInt(0)
	}
	balance.Account = account
	return balance, nil
}

// Credit adds amount to the account principal. The accrual clock starts only
// when the previous principal was zero; an accruing balance keeps its
// original clock.
func (e *Engine) Credit(account ethcommon.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if account == (ethcommon.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.loadBalance(account)
	if err != nil {
		return err
	}
	if balance.Principal.Sign() == 0 {
		balance.LastAccrual = e.now()
	}
	balance.Principal = new(big.Int).Add(balance.Principal, amount)
	if err := e.state.RevenueBalancePut(balance); err != nil {
		return err
	}
	e.emit(BalanceCreditedEvent(account, amount.String(), balance.Principal.String()))
	return nil
}

// Balance returns the raw principal credited to the account.
func (e *Engine) Balance(account ethcommon.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.loadBalance(account)
	if err != nil {
		return nil, err
	}
	return newBigInt(balance.Principal), nil
}

// BalanceWithPenalty returns the principal, the compounding penalty accrued
// on it so far and their sum. It does not modify state.
func (e *Engine) BalanceWithPenalty(account ethcommon.Address) (principal, penalty, total *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, nil, nil, errNilState
	}
	balance, err := e.loadBalance(account)
	if err != nil {
		return nil, nil, nil, err
	}
	params, err := e.Params()
	if err != nil {
		return nil, nil, nil, err
	}
	penalty, _ = e.accrued(balance, params.LedgerPenaltyBps)
	principal = newBigInt(balance.Principal)
	total = new(big.Int).Add(principal, penalty)
	return principal, penalty, total, nil
}

func (e *Engine) accrued(balance *Balance, rateBps uint32) (*big.Int, uint64) {
	if balance.Principal == nil || balance.Principal.Sign() == 0 {
		return big.NewInt(0), 0
	}
	months := ElapsedMonths(balance.LastAccrual, e.now())
	return CompoundPenalty(balance.Principal, rateBps, months), months
}

// ReserveWithdrawal zeroes the account balance and returns the amount owed.
// The caller commits the reservation before transferring value out and hands
// the result to RestoreWithdrawal if the transfer fails. Withdrawal events are
// emitted here so they travel with the reservation.
func (e *Engine) ReserveWithdrawal(account ethcommon.Address) (*Withdrawal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.loadBalance(account)
	if err != nil {
		return nil, err
	}
	if balance.Principal.Sign() == 0 {
		return nil, ErrNoBalanceToWithdraw
	}
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	penalty, months := e.accrued(balance, params.LedgerPenaltyBps)
	withdrawal := &Withdrawal{
		Account:     account,
		Principal:   newBigInt(balance.Principal),
		Penalty:     penalty,
		Total:       new(big.Int).Add(balance.Principal, penalty),
		Months:      months,
		Compounded:  compoundedMonths(months),
		LastAccrual: balance.LastAccrual,
	}
	// LastAccrual is left stale; zero principal accrues nothing.
	balance.Principal = big.NewInt(0)
	if err := e.state.RevenueBalancePut(balance); err != nil {
		return nil, err
	}
	e.emit(WithdrawalEvent(withdrawal))
	if penalty.Sign() > 0 {
		e.emit(PenaltyAccruedEvent(withdrawal))
	}
	return withdrawal, nil
}

// RestoreWithdrawal returns a reserved principal to the ledger after a failed
// transfer. Credits that arrived in the meantime are kept and the original
// accrual clock is reinstated.
func (e *Engine) RestoreWithdrawal(w *Withdrawal, reason string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if w == nil || w.Principal == nil || w.Principal.Sign() <= 0 {
		return errNothingToRestore
	}
	balance, err := e.loadBalance(w.Account)
	if err != nil {
		return err
	}
	balance.Principal = new(big.Int).Add(balance.Principal, w.Principal)
	balance.LastAccrual = w.LastAccrual
	if err := e.state.RevenueBalancePut(balance); err != nil {
		return err
	}
	e.emit(WithdrawalRestoredEvent(w, reason))
	return nil
}
