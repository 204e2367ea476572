package licensing

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultMaxMissedPayments applies when a license is issued without a
	// threshold.
	DefaultMaxMissedPayments = 3
	// MaxPenaltyRateBps caps the per-license penalty rate (50% per month).
	MaxPenaltyRateBps = 5_000
)

// RevocationReason records why a license stopped being active.
type RevocationReason uint8

const (
	RevocationNone RevocationReason = iota
	RevocationMissedPayments
	RevocationDispute
)

func (r RevocationReason) String() string {
	switch r {
	case RevocationMissedPayments:
		return "missed_payments"
	case RevocationDispute:
		return "dispute"
	default:
		return "none"
	}
}

// Asset is a tokenised piece of intellectual property.
type Asset struct {
	ID        uint64            `json:"id"`
	Owner     ethcommon.Address `json:"owner"`
	URI       string            `json:"uri"`
	CreatedAt int64             `json:"createdAt"`
}

// License grants its holder usage rights over an asset. A zero
// PaymentInterval marks a one-time license; a zero PenaltyRateBps defers to
// the marketplace rate.
type License struct {
	ID                uint64            `json:"id"`
	AssetID           uint64            `json:"assetId"`
	Issuer            ethcommon.Address `json:"issuer"`
	Holder            ethcommon.Address `json:"holder"`
	URI               string            `json:"uri"`
	PaymentInterval   uint64            `json:"paymentInterval"`
	MaxMissedPayments uint64            `json:"maxMissedPayments"`
	PenaltyRateBps    uint32            `json:"penaltyRateBps"`
	IssuedAt          int64             `json:"issuedAt"`
	ExpiresAt         int64             `json:"expiresAt"`
	RevokedAt         int64             `json:"revokedAt"`
	Revocation        RevocationReason  `json:"revocation"`
	RevocationNote    string            `json:"revocationNote"`
}

// Clone returns a copy of the license.
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// Revoked reports whether the license has been revoked.
func (l *License) Revoked() bool { return l != nil && l.Revocation != RevocationNone }

// Expired reports whether the license expired at or before now.
func (l *License) Expired(now int64) bool {
	return l != nil && l.ExpiresAt > 0 && now >= l.ExpiresAt
}

// Recurring reports whether the license requires periodic payments.
func (l *License) Recurring() bool { return l != nil && l.PaymentInterval > 0 }

// IssueParams describes a license to issue.
type IssueParams struct {
	AssetID           uint64
	Holder            ethcommon.Address
	URI               string
	PaymentInterval   uint64
	MaxMissedPayments uint64
	PenaltyRateBps    uint32
	ExpiresAt         int64
}

// Authorizer is the role check consulted by privileged operations.
type Authorizer interface {
	Require(role string, caller ethcommon.Address) error
}
