package revenue

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/fees"
)

// Balance is the pull-payment record of a single account. A zero principal
// accrues nothing even when LastAccrual is stale.
type Balance struct {
	Account     ethcommon.Address `json:"account"`
	Principal   *big.Int          `json:"principal"`
	LastAccrual int64             `json:"lastAccrual"`
}

// Clone returns a deep copy of the balance.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Principal = newBigInt(b.Principal)
	return &clone
}

// Split is the revenue split configured for an asset. Shares are basis points
// summing to 10000 and recipient order is preserved.
type Split struct {
	AssetID    uint64              `json:"assetId"`
	Recipients []ethcommon.Address `json:"recipients"`
	Shares     []uint32            `json:"shares"`
}

// Clone returns a deep copy of the split.
func (s *Split) Clone() *Split {
	if s == nil {
		return nil
	}
	return &Split{
		AssetID:    s.AssetID,
		Recipients: append([]ethcommon.Address(nil), s.Recipients...),
		Shares:     append([]uint32(nil), s.Shares...),
	}
}

// Contains reports whether the account appears anywhere in the recipients.
func (s *Split) Contains(account ethcommon.Address) bool {
	if s == nil {
		return false
	}
	for _, recipient := range s.Recipients {
		if recipient == account {
			return true
		}
	}
	return false
}

// Params holds the global revenue parameters installed at genesis.
type Params struct {
	Treasury          ethcommon.Address `json:"treasury"`
	Distributor       ethcommon.Address `json:"distributor"`
	PlatformFeeBps    uint32            `json:"platformFeeBps"`
	DefaultRoyaltyBps uint32            `json:"defaultRoyaltyBps"`
	LedgerPenaltyBps  uint32            `json:"ledgerPenaltyBps"`
}

// Validate checks the parameter bounds.
func (p *Params) Validate() error {
	if p == nil {
		return errParamsNotSet
	}
	if p.Treasury == (ethcommon.Address{}) {
		return fmt.Errorf("%w: treasury", ErrInvalidRecipient)
	}
	if err := fees.ValidateBps(p.PlatformFeeBps); err != nil {
		return fmt.Errorf("revenue: platform fee: %w", err)
	}
	if err := fees.ValidateBps(p.DefaultRoyaltyBps); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoyaltyRate, err)
	}
	if err := fees.ValidateBps(p.LedgerPenaltyBps); err != nil {
		return fmt.Errorf("revenue: ledger penalty: %w", err)
	}
	return nil
}

// SaleKind tags the classification of a distribution.
type SaleKind uint8

const (
	SaleUnsplit SaleKind = iota
	SalePrimary
	SaleSecondary
)

func (k SaleKind) String() string {
	switch k {
	case SalePrimary:
		return "primary"
	case SaleSecondary:
		return "secondary"
	default:
		return "unsplit"
	}
}

// SaleType is the result of classifying a payment against an asset split.
// RoyaltyBps is only meaningful for secondary sales.
type SaleType struct {
	Kind       SaleKind
	RoyaltyBps uint32
}

// Primary returns the classification for a seller inside the split.
func Primary() SaleType { return SaleType{Kind: SalePrimary} }

// Secondary returns the classification for a seller outside the split.
func Secondary(royaltyBps uint32) SaleType {
	return SaleType{Kind: SaleSecondary, RoyaltyBps: royaltyBps}
}

func (s SaleType) String() string { return s.Kind.String() }

// Credit is a single ledger credit produced by a distribution.
type Credit struct {
	Account ethcommon.Address `json:"account"`
	Amount  *big.Int          `json:"amount"`
}

// Distribution summarises how one payment was split.
type Distribution struct {
	AssetID        uint64            `json:"assetId"`
	Amount         *big.Int          `json:"amount"`
	Seller         ethcommon.Address `json:"seller"`
	Sale           SaleType          `json:"-"`
	PlatformFee    *big.Int          `json:"platformFee"`
	Royalty        *big.Int          `json:"royalty"`
	SellerProceeds *big.Int          `json:"sellerProceeds"`
	Credits        []Credit          `json:"credits"`
	Dust           *big.Int          `json:"dust"`
}

// Withdrawal captures a reserved withdrawal. LastAccrual keeps the clock the
// balance had before it was zeroed so a failed transfer can be restored.
type Withdrawal struct {
	Account     ethcommon.Address `json:"account"`
	Principal   *big.Int          `json:"principal"`
	Penalty     *big.Int          `json:"penalty"`
	Total       *big.Int          `json:"total"`
	Months      uint64            `json:"months"`
	// Compounded is Months clamped to MaxCompoundingMonths.
	Compounded  uint64            `json:"compounded"`
	LastAccrual int64             `json:"lastAccrual"`
}

// AssetOracle resolves the current owner of an asset.
type AssetOracle interface {
	OwnerOf(assetID uint64) (ethcommon.Address, error)
}

// Authorizer is the role check the engine consults before configuration
// changes.
type Authorizer interface {
	Require(role string, caller ethcommon.Address) error
}
