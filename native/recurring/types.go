package recurring

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// State tracks the periodic payments of one recurring license. LastPayment
// zero means the license is not tracked.
type State struct {
	LicenseID    uint64            `json:"licenseId"`
	LastPayment  int64             `json:"lastPayment"`
	CurrentOwner ethcommon.Address `json:"currentOwner"`
	BaseAmount   *big.Int          `json:"baseAmount"`
}

// Clone returns a deep copy of the tracker state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	if s.BaseAmount != nil {
		clone.BaseAmount = new(big.Int).Set(s.BaseAmount)
	}
	return &clone
}

// Initialized reports whether tracking has started.
func (s *State) Initialized() bool { return s != nil && s.LastPayment > 0 }

// Params are the marketplace-level recurring payment settings. PenaltyRateBps
// applies to licenses that do not carry their own rate.
type Params struct {
	PenaltyRateBps uint32 `json:"penaltyRateBps"`
}

// Due is the amount a payer must attach to settle a recurring license now.
type Due struct {
	Base        *big.Int `json:"base"`
	Penalty     *big.Int `json:"penalty"`
	Total       *big.Int `json:"total"`
	Missed      uint64   `json:"missed"`
	SecondsLate int64    `json:"secondsLate"`
	RateBps     uint32   `json:"rateBps"`
}

// Payment is the receipt of an accepted recurring payment.
type Payment struct {
	LicenseID uint64            `json:"licenseId"`
	AssetID   uint64            `json:"assetId"`
	Payer     ethcommon.Address `json:"payer"`
	Due       Due               `json:"due"`
	Refund    *big.Int          `json:"refund"`
	PaidAt    int64             `json:"paidAt"`
}

// LicenseOracle is the view of the license registry the tracker consumes.
type LicenseOracle interface {
	IsActiveLicense(licenseID uint64) (bool, error)
	PaymentInterval(licenseID uint64) (uint64, error)
	MaxMissedPayments(licenseID uint64) (uint64, error)
	PenaltyRate(licenseID uint64) (uint32, error)
	AssetOf(licenseID uint64) (uint64, error)
	RevokeForMissedPayments(licenseID uint64, missed uint64) error
}

// Distributor receives the total of an accepted payment for the license's
// underlying asset.
type Distributor interface {
	DistributeRecurring(licenseID, assetID uint64, amount *big.Int) error
}

// Authorizer is the role check consulted by admin operations.
type Authorizer interface {
	Require(role string, caller ethcommon.Address) error
}
