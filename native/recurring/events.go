package recurring

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

const (
	// EventTypeTrackingStarted is emitted when a recurring license is first
	// tracked.
	EventTypeTrackingStarted = "recurring.tracking.started"
	// EventTypePaymentMade is emitted when a recurring payment is accepted.
	EventTypePaymentMade = "recurring.payment.made"
	// EventTypeLicenseRevoked is emitted when the missed-payment threshold
	// revokes a license.
	EventTypeLicenseRevoked = "recurring.license.revoked"
	// EventTypePenaltyRateUpdated is emitted when the marketplace rate changes.
	EventTypePenaltyRateUpdated = "recurring.penalty_rate.updated"
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

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// TrackingStartedEvent captures the first payment of a recurring license.
func TrackingStartedEvent(st *State, interval uint64) *types.Event {
	return &types.Event{
		Type: EventTypeTrackingStarted,
		Attributes: map[string]string{
			"licenseId":  u64(st.LicenseID),
			"owner":      st.CurrentOwner.Hex(),
			"baseAmount": bigString(st.BaseAmount),
			"interval":   u64(interval),
			"startedAt":  strconv.FormatInt(st.LastPayment, 10),
		},
	}
}

// PaymentMadeEvent captures an accepted recurring payment.
func PaymentMadeEvent(p *Payment) *types.Event {
	return &types.Event{
		Type: EventTypePaymentMade,
		Attributes: map[string]string{
			"licenseId": u64(p.LicenseID),
			"assetId":   u64(p.AssetID),
			"payer":     p.Payer.Hex(),
			"base":      bigString(p.Due.Base),
			"penalty":   bigString(p.Due.Penalty),
			"total":     bigString(p.Due.Total),
			"refund":    bigString(p.Refund),
		},
	}
}

// LicenseRevokedEvent captures an automatic revocation.
func LicenseRevokedEvent(licenseID, missed, maxMissed uint64) *types.Event {
	return &types.Event{
		Type: EventTypeLicenseRevoked,
		Attributes: map[string]string{
			"licenseId": u64(licenseID),
			"missed":    u64(missed),
			"maxMissed": u64(maxMissed),
		},
	}
}

// PenaltyRateUpdatedEvent captures a marketplace penalty rate change.
func PenaltyRateUpdatedEvent(bps uint32, sender ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypePenaltyRateUpdated,
		Attributes: map[string]string{
			"penaltyRateBps": u64(uint64(bps)),
			"sender":         sender.Hex(),
		},
	}
}
