package licensing

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

const (
	EventTypeAssetMinted        = "licensing.asset.minted"
	EventTypeAssetTransferred   = "licensing.asset.transferred"
	EventTypeLicenseIssued      = "licensing.license.issued"
	EventTypeLicenseTransferred = "licensing.license.transferred"
	EventTypeLicenseRevoked     = "licensing.license.revoked"
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

func id(v uint64) string { return strconv.FormatUint(v, 10) }

func AssetMintedEvent(asset *Asset) *types.Event {
	return &types.Event{
		Type: EventTypeAssetMinted,
		Attributes: map[string]string{
			"assetId": id(asset.ID),
			"owner":   asset.Owner.Hex(),
			"uri":     asset.URI,
		},
	}
}

func AssetTransferredEvent(assetID uint64, from, to ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypeAssetTransferred,
		Attributes: map[string]string{
			"assetId": id(assetID),
			"from":    from.Hex(),
			"to":      to.Hex(),
		},
	}
}

func LicenseIssuedEvent(license *License) *types.Event {
	return &types.Event{
		Type: EventTypeLicenseIssued,
		Attributes: map[string]string{
			"licenseId":         id(license.ID),
			"assetId":           id(license.AssetID),
			"holder":            license.Holder.Hex(),
			"paymentInterval":   id(license.PaymentInterval),
			"maxMissedPayments": id(license.MaxMissedPayments),
			"penaltyRateBps":    id(uint64(license.PenaltyRateBps)),
			"expiresAt":         strconv.FormatInt(license.ExpiresAt, 10),
		},
	}
}

func LicenseTransferredEvent(licenseID uint64, from, to ethcommon.Address) *types.Event {
	return &types.Event{
		Type: EventTypeLicenseTransferred,
		Attributes: map[string]string{
			"licenseId": id(licenseID),
			"from":      from.Hex(),
			"to":        to.Hex(),
		},
	}
}

func LicenseRevokedEvent(license *License) *types.Event {
	return &types.Event{
		Type: EventTypeLicenseRevoked,
		Attributes: map[string]string{
			"licenseId": id(license.ID),
			"reason":    license.Revocation.String(),
			"note":      license.RevocationNote,
		},
	}
}
