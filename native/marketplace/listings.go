package marketplace

import (
	"context"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
)

const (
	listingSequence = "marketplace/listings"
	offerSequence   = "marketplace/offers"
)

func listingKey(id uint64) []byte { return []byte(fmt.Sprintf("marketplace/listing/%d", id)) }

func offerKey(id uint64) []byte { return []byte(fmt.Sprintf("marketplace/offer/%d", id)) }

// Listing offers an asset, or a license over it when LicenseID is non-zero,
// at a fixed price.
type Listing struct {
	ID        uint64            `json:"id"`
	Seller    ethcommon.Address `json:"seller"`
	AssetID   uint64            `json:"assetId"`
	LicenseID uint64            `json:"licenseId"`
	Price     *big.Int          `json:"price"`
	CreatedAt int64             `json:"createdAt"`
	Active    bool              `json:"active"`
}

type storedListing struct {
	Seller    ethcommon.Address
	AssetID   uint64
	LicenseID uint64
	Price     *big.Int
	CreatedAt uint64
	Active    bool
}

func (c *call) loadListing(id uint64) (*Listing, error) {
	var stored storedListing
	ok, err := c.state.KVGet(listingKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	return &Listing{
		ID:        id,
		Seller:    stored.Seller,
		AssetID:   stored.AssetID,
		LicenseID: stored.LicenseID,
		Price:     stored.Price,
		CreatedAt: int64(stored.CreatedAt),
		Active:    stored.Active,
	}, nil
}

func (c *call) putListing(l *Listing) error {
	return c.state.KVPut(listingKey(l.ID), &storedListing{
		Seller:    l.Seller,
		AssetID:   l.AssetID,
		LicenseID: l.LicenseID,
		Price:     l.Price,
		CreatedAt: uint64(l.CreatedAt),
		Active:    l.Active,
	})
}

// ownerOfItem resolves who may sell the item and the asset it settles
// against. A non-zero licenseID names a license, otherwise the asset itself.
func (c *call) ownerOfItem(assetID, licenseID uint64) (ethcommon.Address, uint64, error) {
	if licenseID == 0 {
		owner, err := c.registry.OwnerOf(assetID)
		return owner, assetID, err
	}
	license, err := c.registry.License(licenseID)
	if err != nil {
		return ethcommon.Address{}, 0, err
	}
	if license.Revoked() || license.Expired(c.now) {
		return ethcommon.Address{}, 0, fmt.Errorf("%w: license %d", recurring.ErrLicenseNotActive, licenseID)
	}
	return license.Holder, license.AssetID, nil
}

// settleSale distributes the sale price with the seller as the selling party,
// hands the item to the buyer and starts recurring tracking for recurring
// licenses. The distribution runs before the transfer so an unsplit asset
// pays its selling owner.
func (c *call) settleSale(assetID, licenseID uint64, seller, buyer ethcommon.Address, price, attached *big.Int) error {
	if _, err := c.distribute(assetID, price, seller, attached); err != nil {
		return err
	}
	if licenseID == 0 {
		return c.registry.TransferAsset(seller, buyer, assetID)
	}
	if err := c.registry.TransferLicense(seller, buyer, licenseID); err != nil {
		return err
	}
	_, err := c.recurring.InitializeOnFirstPayment(licenseID, buyer, price)
	return err
}

// ListingParams describes a new listing.
type ListingParams struct {
	AssetID   uint64
	LicenseID uint64
	Price     *big.Int
}

// CreateListing lists an item owned by the caller.
func (m *Marketplace) CreateListing(ctx context.Context, caller ethcommon.Address, params ListingParams) (*Listing, error) {
	var listing *Listing
	err := m.exec(ctx, "create_listing", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		if params.Price == nil || params.Price.Sign() <= 0 {
			return ErrInvalidPrice
		}
		owner, assetID, err := c.ownerOfItem(params.AssetID, params.LicenseID)
		if err != nil {
			return err
		}
		if owner != caller {
			return notOwnerError(params.AssetID, params.LicenseID)
		}
		id, err := c.state.NextSequence(listingSequence)
		if err != nil {
			return err
		}
		listing = &Listing{
			ID:        id,
			Seller:    caller,
			AssetID:   assetID,
			LicenseID: params.LicenseID,
			Price:     new(big.Int).Set(params.Price),
			CreatedAt: c.now,
			Active:    true,
		}
		if err := c.putListing(listing); err != nil {
			return err
		}
		c.emit(ListingCreatedEvent(listing))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing deactivates a listing. Only its seller may cancel it.
func (m *Marketplace) CancelListing(ctx context.Context, caller ethcommon.Address, listingID uint64) error {
	return m.exec(ctx, "cancel_listing", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		listing, err := c.loadListing(listingID)
		if err != nil {
			return err
		}
		if !listing.Active {
			return fmt.Errorf("%w: %d", ErrListingInactive, listingID)
		}
		if listing.Seller != caller {
			return fmt.Errorf("%w: %d", ErrNotSeller, listingID)
		}
		listing.Active = false
		if err := c.putListing(listing); err != nil {
			return err
		}
		c.emit(ListingCancelledEvent(listing))
		return nil
	})
}

// PurchaseListing buys a listed item. attached must equal the listing price.
func (m *Marketplace) PurchaseListing(ctx context.Context, buyer ethcommon.Address, listingID uint64, attached *big.Int) (*Listing, error) {
	var listing *Listing
	err := m.exec(ctx, "purchase_listing", func(c *call) error {
		if err := c.guard(); err != nil {
			return err
		}
		var err error
		listing, err = c.loadListing(listingID)
		if err != nil {
			return err
		}
		if !listing.Active {
			return fmt.Errorf("%w: %d", ErrListingInactive, listingID)
		}
		if listing.Seller == buyer {
			return ErrSelfTrade
		}
		owner, _, err := c.ownerOfItem(listing.AssetID, listing.LicenseID)
		if err != nil {
			return err
		}
		if owner != listing.Seller {
			// The seller no longer holds the item.
			return fmt.Errorf("%w: %d", ErrListingInactive, listingID)
		}
		listing.Active = false
		if err := c.putListing(listing); err != nil {
			return err
		}
		if err := c.settleSale(listing.AssetID, listing.LicenseID, listing.Seller, buyer, listing.Price, attached); err != nil {
			return err
		}
		c.emit(ListingPurchasedEvent(listing, buyer))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Listing returns a stored listing.
func (m *Marketplace) Listing(listingID uint64) (*Listing, error) {
	var listing *Listing
	err := m.view(func(c *call) error {
		var err error
		listing, err = c.loadListing(listingID)
		return err
	})
	return listing, err
}
