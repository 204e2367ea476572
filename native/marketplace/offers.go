package marketplace

import (
	"context"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
)

// OfferStatus tracks the lifecycle of an offer.
type OfferStatus uint8

const (
	OfferOpen OfferStatus = iota
	OfferCancelled
	OfferAccepted
)

func (s OfferStatus) String() string {
	switch s {
	case OfferCancelled:
		return "cancelled"
	case OfferAccepted:
		return "accepted"
	default:
		return "open"
	}
}

// Offer is an escrowed bid on an asset, or a license when LicenseID is
// non-zero. The escrowed Amount is paid to the seller on acceptance and
// refunded to the buyer on cancellation.
type Offer struct {
	ID        uint64            `json:"id"`
	Buyer     ethcommon.Address `json:"buyer"`
	AssetID   uint64            `json:"assetId"`
	LicenseID uint64            `json:"licenseId"`
	Amount    *big.Int          `json:"amount"`
	CreatedAt int64             `json:"createdAt"`
	ExpiresAt int64             `json:"expiresAt"`
	Status    OfferStatus       `json:"status"`
}

// Expired reports whether the offer can no longer be accepted.
func (o *Offer) Expired(now int64) bool { return o != nil && now >= o.ExpiresAt }

type storedOffer struct {
	Buyer     ethcommon.Address
	AssetID   uint64
	LicenseID uint64
	Amount    *big.Int
	CreatedAt uint64
	ExpiresAt uint64
	Status    uint8
}

func (c *call) loadOffer(id uint64) (*Offer, error) {
	var stored storedOffer
	ok, err := c.state.KVGet(offerKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOfferNotFound, id)
	}
	return &Offer{
		ID:        id,
		Buyer:     stored.Buyer,
		AssetID:   stored.AssetID,
		LicenseID: stored.LicenseID,
		Amount:    stored.Amount,
		CreatedAt: int64(stored.CreatedAt),
		ExpiresAt: int64(stored.ExpiresAt),
		Status:    OfferStatus(stored.Status),
	}, nil
}

func (c *call) putOffer(o *Offer) error {
	return c.state.KVPut(offerKey(o.ID), &storedOffer{
		Buyer:     o.Buyer,
		AssetID:   o.AssetID,
		LicenseID: o.LicenseID,
		Amount:    o.Amount,
		CreatedAt: uint64(o.CreatedAt),
		ExpiresAt: uint64(o.ExpiresAt),
		Status:    uint8(o.Status),
	})
}

func notOwnerError(assetID, licenseID uint64) error {
	if licenseID == 0 {
		return fmt.Errorf("%w: asset %d", licensing.ErrNotOwner, assetID)
	}
	return fmt.Errorf("%w: license %d", licensing.ErrNotHolder, licenseID)
}

// OfferParams describes a new offer.
type OfferParams struct {
	AssetID   uint64
	LicenseID uint64
	ExpiresAt int64
}

// MakeOffer escrows attached as a bid on an item.
func (m *Marketplace) MakeOffer(ctx context.Context, buyer ethcommon.Address, params OfferParams, attached *big.Int) (*Offer, error) {
	var offer *Offer
	err := m.exec(ctx, "make_offer", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		if attached == nil || attached.Sign() <= 0 {
			return ErrInvalidPrice
		}
		if params.ExpiresAt <= c.now {
			return fmt.Errorf("%w: %d", ErrInvalidExpiry, params.ExpiresAt)
		}
		owner, assetID, err := c.ownerOfItem(params.AssetID, params.LicenseID)
		if err != nil {
			return err
		}
		if owner == buyer {
			return ErrSelfTrade
		}
		id, err := c.state.NextSequence(offerSequence)
		if err != nil {
			return err
		}
		offer = &Offer{
			ID:        id,
			Buyer:     buyer,
			AssetID:   assetID,
			LicenseID: params.LicenseID,
			Amount:    new(big.Int).Set(attached),
			CreatedAt: c.now,
			ExpiresAt: params.ExpiresAt,
			Status:    OfferOpen,
		}
		if err := c.putOffer(offer); err != nil {
			return err
		}
		c.emit(OfferMadeEvent(offer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// CancelOffer closes an open offer and refunds the escrow to the buyer. Only
// the buyer may cancel, expired or not.
func (m *Marketplace) CancelOffer(ctx context.Context, caller ethcommon.Address, offerID uint64) (*Offer, error) {
	var offer *Offer
	err := m.exec(ctx, "cancel_offer", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		offer, err = c.loadOffer(offerID)
		if err != nil {
			return err
		}
		if offer.Buyer != caller {
			return fmt.Errorf("%w: %d", ErrNotOfferMaker, offerID)
		}
		if offer.Status != OfferOpen {
			return fmt.Errorf("%w: %d is %s", ErrOfferNotOpen, offerID, offer.Status)
		}
		offer.Status = OfferCancelled
		if err := c.putOffer(offer); err != nil {
			return err
		}
		c.emit(OfferCancelledEvent(offer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.refund(ctx, newTransfer(offer.Buyer, offer.Amount, PurposeOfferRefund, fmt.Sprintf("offer/%d", offerID)))
	return offer, nil
}

// AcceptOffer sells the item to the offer's buyer for the escrowed amount.
// The caller must own the item and the offer must not have expired.
func (m *Marketplace) AcceptOffer(ctx context.Context, seller ethcommon.Address, offerID uint64) (*Offer, error) {
	var offer *Offer
	err := m.exec(ctx, "accept_offer", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		offer, err = c.loadOffer(offerID)
		if err != nil {
			return err
		}
		if offer.Status != OfferOpen {
			return fmt.Errorf("%w: %d is %s", ErrOfferNotOpen, offerID, offer.Status)
		}
		if offer.Expired(c.now) {
			return fmt.Errorf("%w: %d", ErrOfferExpired, offerID)
		}
		owner, _, err := c.ownerOfItem(offer.AssetID, offer.LicenseID)
		if err != nil {
			return err
		}
		if owner != seller {
			return notOwnerError(offer.AssetID, offer.LicenseID)
		}
		if seller == offer.Buyer {
			return ErrSelfTrade
		}
		offer.Status = OfferAccepted
		if err := c.putOffer(offer); err != nil {
			return err
		}
		if err := c.settleSale(offer.AssetID, offer.LicenseID, seller, offer.Buyer, offer.Amount, offer.Amount); err != nil {
			return err
		}
		c.emit(OfferAcceptedEvent(offer, seller))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// Offer returns a stored offer.
func (m *Marketplace) Offer(offerID uint64) (*Offer, error) {
	var offer *Offer
	err := m.view(func(c *call) error {
		var err error
		offer, err = c.loadOffer(offerID)
		return err
	})
	return offer, err
}
