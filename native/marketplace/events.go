package marketplace

import (
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

const (
	EventTypeListingCreated   = "marketplace.listing.created"
	EventTypeListingCancelled = "marketplace.listing.cancelled"
	EventTypeListingPurchased = "marketplace.listing.purchased"
	EventTypeOfferMade        = "marketplace.offer.made"
	EventTypeOfferCancelled   = "marketplace.offer.cancelled"
	EventTypeOfferAccepted    = "marketplace.offer.accepted"
	// EventTypeRefundCredited is emitted when a refund could not be pushed and
	// was credited to the ledger instead.
	EventTypeRefundCredited = "marketplace.refund.credited"
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

func formatID(v uint64) string { return strconv.FormatUint(v, 10) }

func listingAttributes(l *Listing) map[string]string {
	return map[string]string{
		"listingId": formatID(l.ID),
		"seller":    l.Seller.Hex(),
		"assetId":   formatID(l.AssetID),
		"licenseId": formatID(l.LicenseID),
		"price":     amountString(l.Price),
	}
}

// ListingCreatedEvent captures a new listing.
func ListingCreatedEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListingCreated, Attributes: listingAttributes(l)}
}

// ListingCancelledEvent captures a seller withdrawing a listing.
func ListingCancelledEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListingCancelled, Attributes: listingAttributes(l)}
}

// ListingPurchasedEvent captures a completed purchase.
func ListingPurchasedEvent(l *Listing, buyer ethcommon.Address) *types.Event {
	attrs := listingAttributes(l)
	attrs["buyer"] = buyer.Hex()
	return &types.Event{Type: EventTypeListingPurchased, Attributes: attrs}
}

func offerAttributes(o *Offer) map[string]string {
	return map[string]string{
		"offerId":   formatID(o.ID),
		"buyer":     o.Buyer.Hex(),
		"assetId":   formatID(o.AssetID),
		"licenseId": formatID(o.LicenseID),
		"amount":    amountString(o.Amount),
		"expiresAt": strconv.FormatInt(o.ExpiresAt, 10),
	}
}

// OfferMadeEvent captures an escrowed offer.
func OfferMadeEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypeOfferMade, Attributes: offerAttributes(o)}
}

// OfferCancelledEvent captures a buyer reclaiming an offer.
func OfferCancelledEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: offerAttributes(o)}
}

// OfferAcceptedEvent captures the seller accepting an offer.
func OfferAcceptedEvent(o *Offer, seller ethcommon.Address) *types.Event {
	attrs := offerAttributes(o)
	attrs["seller"] = seller.Hex()
	return &types.Event{Type: EventTypeOfferAccepted, Attributes: attrs}
}

// RefundCreditedEvent captures a refund that fell back to the ledger.
func RefundCreditedEvent(t Transfer, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeRefundCredited,
		Attributes: map[string]string{
			"transferId": t.ID,
			"account":    t.To.Hex(),
			"amount":     amountString(t.Amount),
			"purpose":    t.Purpose,
			"reason":     reason,
		},
	}
}
