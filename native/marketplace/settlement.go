package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DistributePayment splits a payment for an asset between the treasury, the
// split recipients and the seller. attached must equal amount.
func (m *Marketplace) DistributePayment(ctx context.Context, assetID uint64, amount *big.Int, seller ethcommon.Address, attached *big.Int) (*revenue.Distribution, error) {
	var dist *revenue.Distribution
	err := m.exec(ctx, "distribute_payment", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		dist, err = c.distribute(assetID, amount, seller, attached)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// Withdraw pays out the account balance including its accrued penalty. The
// balance is zeroed and committed before the sink is called, so a sink that
// re-enters Withdraw observes an empty balance. A failed transfer restores
// the principal.
func (m *Marketplace) Withdraw(ctx context.Context, account ethcommon.Address) (*revenue.Withdrawal, error) {
	if m.sink == nil {
		return nil, errSinkNotConfigured
	}
	var w *revenue.Withdrawal
	held, err := m.run(ctx, "withdraw", true, func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		reserved, err := c.revenue.ReserveWithdrawal(account)
		if err != nil {
			return err
		}
		if _, busy := m.inFlight[account]; busy {
			return fmt.Errorf("%w: %s", ErrWithdrawalInFlight, account.Hex())
		}
		m.inFlight[account] = struct{}{}
		m.metrics.SetInFlight(len(m.inFlight))
		w = reserved
		return nil
	})
	if err != nil {
		if w != nil {
			m.mu.Lock()
			m.release(account)
			m.mu.Unlock()
		}
		return nil, err
	}

	transfer := newTransfer(account, w.Total, PurposeWithdrawal, "")
	sendErr := m.sink.Send(ctx, transfer)
	if sendErr == nil {
		m.mu.Lock()
		held.Flush(m.emitter)
		m.release(account)
		m.mu.Unlock()
		m.metrics.RecordWithdrawal(w.Total, w.Penalty)
		m.logger.Info("marketplace: withdrawal sent",
			"transfer", transfer.ID, "account", account.Hex(), "total", w.Total.String(), "penalty", w.Penalty.String())
		return w, nil
	}

	m.metrics.RecordSinkFailure(PurposeWithdrawal)
	m.logger.Warn("marketplace: withdrawal transfer failed, restoring balance",
		"transfer", transfer.ID, "account", account.Hex(), "error", sendErr)
	restoreErr := m.exec(ctx, "withdraw_restore", func(c *call) error {
		return c.revenue.RestoreWithdrawal(w, sendErr.Error())
	})
	m.mu.Lock()
	m.release(account)
	m.mu.Unlock()
	if restoreErr != nil {
		return nil, fmt.Errorf("%w: %v (restore failed: %v)", ErrTransferFailed, sendErr, restoreErr)
	}
	return nil, fmt.Errorf("%w: %v", ErrTransferFailed, sendErr)
}

// release clears the in-flight marker. Callers hold m.mu.
func (m *Marketplace) release(account ethcommon.Address) {
	delete(m.inFlight, account)
	m.metrics.SetInFlight(len(m.inFlight))
}

// ConfigureSplit replaces the revenue split of an asset. Configurator only.
func (m *Marketplace) ConfigureSplit(ctx context.Context, caller ethcommon.Address, assetID uint64, recipients []ethcommon.Address, shares []uint32) error {
	return m.exec(ctx, "configure_split", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.revenue.ConfigureSplit(caller, assetID, recipients, shares)
	})
}

// SetDefaultRoyalty updates the default royalty. Admin only.
func (m *Marketplace) SetDefaultRoyalty(ctx context.Context, caller ethcommon.Address, bps uint32) error {
	return m.exec(ctx, "set_default_royalty", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.revenue.SetDefaultRoyalty(caller, bps)
	})
}

// SetAssetRoyalty stores a per-asset royalty override. Configurator only.
func (m *Marketplace) SetAssetRoyalty(ctx context.Context, caller ethcommon.Address, assetID uint64, bps uint32) error {
	return m.exec(ctx, "set_asset_royalty", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.revenue.SetAssetRoyalty(caller, assetID, bps)
	})
}

// ClearAssetRoyalty removes a per-asset royalty override.
func (m *Marketplace) ClearAssetRoyalty(ctx context.Context, caller ethcommon.Address, assetID uint64) error {
	return m.exec(ctx, "clear_asset_royalty", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.revenue.ClearAssetRoyalty(caller, assetID)
	})
}

// SetPenaltyRate updates the marketplace late-payment rate. Admin only.
func (m *Marketplace) SetPenaltyRate(ctx context.Context, caller ethcommon.Address, bps uint32) error {
	return m.exec(ctx, "set_penalty_rate", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.recurring.SetPenaltyRate(caller, bps)
	})
}

// GrantRole assigns a role. Admin only.
func (m *Marketplace) GrantRole(ctx context.Context, caller ethcommon.Address, role string, account ethcommon.Address) error {
	return m.exec(ctx, "grant_role", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.policy.Grant(caller, role, account)
	})
}

// RevokeRole removes a role. Admin only.
func (m *Marketplace) RevokeRole(ctx context.Context, caller ethcommon.Address, role string, account ethcommon.Address) error {
	return m.exec(ctx, "revoke_role", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.policy.Revoke(caller, role, account)
	})
}

// GrantConfiguratorRole lets account configure splits and asset royalties.
func (m *Marketplace) GrantConfiguratorRole(ctx context.Context, caller, account ethcommon.Address) error {
	return m.GrantRole(ctx, caller, access.RoleConfigurator, account)
}

// RevokeConfiguratorRole removes the configurator role from account.
func (m *Marketplace) RevokeConfiguratorRole(ctx context.Context, caller, account ethcommon.Address) error {
	return m.RevokeRole(ctx, caller, access.RoleConfigurator, account)
}

// Pause blocks every mutating operation except Unpause.
func (m *Marketplace) Pause(ctx context.Context, caller ethcommon.Address) error {
	return m.setPaused(ctx, caller, true)
}

// Unpause lifts the pause.
func (m *Marketplace) Unpause(ctx context.Context, caller ethcommon.Address) error {
	return m.setPaused(ctx, caller, false)
}

func (m *Marketplace) setPaused(ctx context.Context, caller ethcommon.Address, paused bool) error {
	op := "unpause"
	if paused {
		op = "pause"
	}
	err := m.exec(ctx, op, func(c *call) error {
		return c.policy.SetPaused(caller, paused)
	})
	if err == nil {
		m.metrics.SetPause(paused)
	}
	return err
}

// Paused reports whether mutations are blocked.
func (m *Marketplace) Paused() bool {
	var paused bool
	_ = m.view(func(c *call) error {
		paused = c.policy.Paused()
		return nil
	})
	return paused
}

// HasRole reports whether account holds role.
func (m *Marketplace) HasRole(role string, account ethcommon.Address) bool {
	var ok bool
	_ = m.view(func(c *call) error {
		ok = c.policy.HasRole(role, account)
		return nil
	})
	return ok
}

// MintAsset registers a new asset owned by owner.
func (m *Marketplace) MintAsset(ctx context.Context, caller, owner ethcommon.Address, uri string) (*licensing.Asset, error) {
	var asset *licensing.Asset
	err := m.exec(ctx, "mint_asset", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		asset, err = c.registry.MintAsset(caller, owner, uri)
		return err
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// IssueLicense creates a license over an asset owned by the caller.
func (m *Marketplace) IssueLicense(ctx context.Context, caller ethcommon.Address, params licensing.IssueParams) (*licensing.License, error) {
	var license *licensing.License
	err := m.exec(ctx, "issue_license", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		license, err = c.registry.IssueLicense(caller, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

// RevokeLicense revokes a license as the outcome of a dispute. Arbitrator
// only.
func (m *Marketplace) RevokeLicense(ctx context.Context, caller ethcommon.Address, licenseID uint64, reason string) error {
	return m.exec(ctx, "revoke_license", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		return c.registry.RevokeByArbitrator(caller, licenseID, reason)
	})
}

// MakePayment settles the next period of a recurring license. The amount due
// is distributed for the license's asset and any excess is refunded after
// commit. When the license has missed too many payments it is revoked, the
// revocation is committed and ErrLicenseRevokedForMissedPayments is returned.
func (m *Marketplace) MakePayment(ctx context.Context, licenseID uint64, payer ethcommon.Address, attached *big.Int) (*recurring.Payment, error) {
	var payment *recurring.Payment
	err := m.exec(ctx, "make_payment", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		payment, err = c.recurring.MakePayment(licenseID, payer, attached)
		return err
	})
	if err != nil {
		return nil, err
	}
	if payment.Refund != nil && payment.Refund.Sign() > 0 {
		m.refund(ctx, newTransfer(payer, payment.Refund, PurposeRefund, fmt.Sprintf("license/%d", licenseID)))
	}
	return payment, nil
}

// Balance returns the raw principal of an account.
func (m *Marketplace) Balance(account ethcommon.Address) (*big.Int, error) {
	var out *big.Int
	err := m.view(func(c *call) error {
		var err error
		out, err = c.revenue.Balance(account)
		return err
	})
	return out, err
}

// BalanceWithPenalty returns the principal, the accrued penalty and their sum.
func (m *Marketplace) BalanceWithPenalty(account ethcommon.Address) (principal, penalty, total *big.Int, err error) {
	err = m.view(func(c *call) error {
		var verr error
		principal, penalty, total, verr = c.revenue.BalanceWithPenalty(account)
		return verr
	})
	return principal, penalty, total, err
}

// RoyaltyInfo returns the royalty receiver and amount for a sale price.
func (m *Marketplace) RoyaltyInfo(assetID uint64, salePrice *big.Int) (ethcommon.Address, *big.Int, error) {
	var (
		receiver ethcommon.Address
		amount   *big.Int
	)
	err := m.view(func(c *call) error {
		var err error
		receiver, amount, err = c.revenue.RoyaltyInfo(assetID, salePrice)
		return err
	})
	return receiver, amount, err
}

// Split returns the configured split of an asset.
func (m *Marketplace) Split(assetID uint64) (*revenue.Split, error) {
	var split *revenue.Split
	err := m.view(func(c *call) error {
		var err error
		split, err = c.revenue.Split(assetID)
		return err
	})
	return split, err
}

// IsConfigured reports whether an asset has a split.
func (m *Marketplace) IsConfigured(assetID uint64) (bool, error) {
	var ok bool
	err := m.view(func(c *call) error {
		var err error
		ok, err = c.revenue.IsConfigured(assetID)
		return err
	})
	return ok, err
}

// Params returns the revenue parameters.
func (m *Marketplace) Params() (*revenue.Params, error) {
	var params *revenue.Params
	err := m.view(func(c *call) error {
		var err error
		params, err = c.revenue.Params()
		return err
	})
	return params, err
}

// PenaltyRate returns the marketplace late-payment rate.
func (m *Marketplace) PenaltyRate() (uint32, error) {
	var rate uint32
	err := m.view(func(c *call) error {
		var err error
		rate, err = c.recurring.PenaltyRate()
		return err
	})
	return rate, err
}

// Dust returns the cumulative truncation remainder of all distributions.
func (m *Marketplace) Dust() (*big.Int, error) {
	var dust *big.Int
	err := m.view(func(c *call) error {
		var err error
		dust, err = c.revenue.Dust()
		return err
	})
	return dust, err
}

// TotalPaymentDue returns what a payer must attach to settle a license now.
func (m *Marketplace) TotalPaymentDue(licenseID uint64) (*recurring.Due, error) {
	var due *recurring.Due
	err := m.view(func(c *call) error {
		var err error
		due, err = c.recurring.TotalPaymentDue(licenseID)
		return err
	})
	return due, err
}

// CalculatePenalty returns the late-payment penalty currently owed on a
// license.
func (m *Marketplace) CalculatePenalty(licenseID uint64) (*big.Int, error) {
	var penalty *big.Int
	err := m.view(func(c *call) error {
		var err error
		penalty, err = c.recurring.Penalty(licenseID)
		return err
	})
	return penalty, err
}

// MissedPayments returns the number of periods elapsed since the last
// payment.
func (m *Marketplace) MissedPayments(licenseID uint64) (uint64, error) {
	var missed uint64
	err := m.view(func(c *call) error {
		var err error
		missed, err = c.recurring.MissedPayments(licenseID)
		return err
	})
	return missed, err
}

// RecurringState returns the tracker record of a license.
func (m *Marketplace) RecurringState(licenseID uint64) (*recurring.State, error) {
	var st *recurring.State
	err := m.view(func(c *call) error {
		var err error
		st, err = c.recurring.State(licenseID)
		return err
	})
	return st, err
}

// Asset returns a registered asset.
func (m *Marketplace) Asset(assetID uint64) (*licensing.Asset, error) {
	var asset *licensing.Asset
	err := m.view(func(c *call) error {
		var err error
		asset, err = c.registry.Asset(assetID)
		return err
	})
	return asset, err
}

// License returns an issued license.
func (m *Marketplace) License(licenseID uint64) (*licensing.License, error) {
	var license *licensing.License
	err := m.view(func(c *call) error {
		var err error
		license, err = c.registry.License(licenseID)
		return err
	})
	return license, err
}

// IsTerminal reports whether err is a committed revocation.
func IsTerminal(err error) bool {
	return errors.Is(err, recurring.ErrLicenseRevokedForMissedPayments)
}
