package revenue

import (
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

const (
	// EventTypeBalanceCredited is emitted whenever a ledger balance grows.
	EventTypeBalanceCredited = "revenue.balance.credited"
	// EventTypeWithdrawal is emitted when a balance is paid out.
	EventTypeWithdrawal = "revenue.withdrawal"
	// EventTypePenaltyAccrued is emitted alongside a withdrawal that carried a
	// compounding penalty.
	EventTypePenaltyAccrued = "revenue.penalty.accrued"
	// EventTypeSplitConfigured is emitted when an asset split is replaced.
	EventTypeSplitConfigured = "revenue.split.configured"
	// EventTypeDefaultRoyaltyUpdated is emitted when the default royalty changes.
	EventTypeDefaultRoyaltyUpdated = "revenue.royalty.default_updated"
	// EventTypeAssetRoyaltyUpdated is emitted when an asset override is set.
	EventTypeAssetRoyaltyUpdated = "revenue.royalty.asset_updated"
	// EventTypeAssetRoyaltyCleared is emitted when an asset override is removed.
	EventTypeAssetRoyaltyCleared = "revenue.royalty.asset_cleared"
	// EventTypePaymentDistributed is emitted once per distributed payment.
	EventTypePaymentDistributed = "revenue.payment.distributed"
	// EventTypeWithdrawalRestored is emitted when a failed transfer is rolled
	// back into the ledger.
	EventTypeWithdrawalRestored = "revenue.withdrawal.restored"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func uintString(v uint64) string { return strconv.FormatUint(v, 10) }

// BalanceCreditedEvent captures a ledger credit and the resulting principal.
func BalanceCreditedEvent(account ethcommon.Address, amount, principal string) *types.Event {
	return &types.Event{
		Type: EventTypeBalanceCredited,
		Attributes: map[string]string{
			"account":   account.Hex(),
			"amount":    amount,
			"principal": principal,
		},
	}
}

// WithdrawalEvent captures a completed withdrawal.
func WithdrawalEvent(w *Withdrawal) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawal,
		Attributes: map[string]string{
			"account":   w.Account.Hex(),
			"principal": newBigInt(w.Principal).String(),
			"total":     newBigInt(w.Total).String(),
		},
	}
}

// PenaltyAccruedEvent captures the compounding penalty folded into a
// withdrawal.
func PenaltyAccruedEvent(w *Withdrawal) *types.Event {
	return &types.Event{
		Type: EventTypePenaltyAccrued,
		Attributes: map[string]string{
			"account": w.Account.Hex(),
			"penalty":    newBigInt(w.Penalty).String(),
			"months":     uintString(w.Months),
			"compounded": uintString(w.Compounded),
		},
	}
}

// WithdrawalRestoredEvent captures a withdrawal returned to the ledger.
func WithdrawalRestoredEvent(w *Withdrawal, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawalRestored,
		Attributes: map[string]string{
			"account":   w.Account.Hex(),
			"principal": newBigInt(w.Principal).String(),
			"reason":    reason,
		},
	}
}

// SplitConfiguredEvent captures the full replacement split.
func SplitConfiguredEvent(split *Split) *types.Event {
	recipients := make([]string, len(split.Recipients))
	for i, r := range split.Recipients {
		recipients[i] = r.Hex()
	}
	shares := make([]string, len(split.Shares))
	for i, s := range split.Shares {
		shares[i] = uintString(uint64(s))
	}
	return &types.Event{
		Type: EventTypeSplitConfigured,
		Attributes: map[string]string{
			"assetId":    uintString(split.AssetID),
			"recipients": strings.Join(recipients, ","),
			"shares":     strings.Join(shares, ","),
		},
	}
}

// DefaultRoyaltyUpdatedEvent captures a default royalty change.
func DefaultRoyaltyUpdatedEvent(bps uint32) *types.Event {
	return &types.Event{
		Type:       EventTypeDefaultRoyaltyUpdated,
		Attributes: map[string]string{"royaltyBps": uintString(uint64(bps))},
	}
}

// AssetRoyaltyUpdatedEvent captures a per-asset royalty override.
func AssetRoyaltyUpdatedEvent(assetID uint64, bps uint32) *types.Event {
	return &types.Event{
		Type: EventTypeAssetRoyaltyUpdated,
		Attributes: map[string]string{
			"assetId":    uintString(assetID),
			"royaltyBps": uintString(uint64(bps)),
		},
	}
}

// AssetRoyaltyClearedEvent captures the removal of a per-asset override.
func AssetRoyaltyClearedEvent(assetID uint64) *types.Event {
	return &types.Event{
		Type:       EventTypeAssetRoyaltyCleared,
		Attributes: map[string]string{"assetId": uintString(assetID)},
	}
}

// PaymentDistributedEvent summarises a distribution, including the
// truncation dust left undistributed.
func PaymentDistributedEvent(d *Distribution) *types.Event {
	return &types.Event{
		Type: EventTypePaymentDistributed,
		Attributes: map[string]string{
			"assetId":        uintString(d.AssetID),
			"amount":         newBigInt(d.Amount).String(),
			"seller":         d.Seller.Hex(),
			"saleType":       d.Sale.String(),
			"royaltyBps":     uintString(uint64(d.Sale.RoyaltyBps)),
			"platformFee":    newBigInt(d.PlatformFee).String(),
			"royalty":        newBigInt(d.Royalty).String(),
			"sellerProceeds": newBigInt(d.SellerProceeds).String(),
			"credits":        strconv.Itoa(len(d.Credits)),
			"dust":           newBigInt(d.Dust).String(),
		},
	}
}
