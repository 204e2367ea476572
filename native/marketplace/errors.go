package marketplace

import (
	"errors"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/access"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/common"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/fees"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/licensing"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/recurring"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/revenue"
)

var (
	ErrListingNotFound    = errors.New("marketplace: listing not found")
	ErrListingInactive    = errors.New("marketplace: listing not active")
	ErrOfferNotFound      = errors.New("marketplace: offer not found")
	ErrOfferNotOpen       = errors.New("marketplace: offer not open")
	ErrOfferExpired       = errors.New("marketplace: offer expired")
	ErrNotOfferMaker      = errors.New("marketplace: caller did not make the offer")
	ErrNotSeller          = errors.New("marketplace: caller did not create the listing")
	ErrInvalidPrice       = errors.New("marketplace: price must be positive")
	ErrInvalidExpiry      = errors.New("marketplace: expiry must be in the future")
	ErrSelfTrade          = errors.New("marketplace: buyer and seller are the same account")
	ErrWithdrawalInFlight = errors.New("marketplace: withdrawal already in flight")
	ErrTransferFailed     = errors.New("marketplace: value transfer failed")

	errSinkNotConfigured = errors.New("marketplace: value sink not configured")
	errNilDatabase       = errors.New("marketplace: database not configured")
)

// ErrorKind groups errors for callers that translate them, such as the HTTP
// layer.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindPrecondition  ErrorKind = "precondition"
	KindPayment       ErrorKind = "payment"
	KindTerminal      ErrorKind = "terminal"
	KindPaused        ErrorKind = "paused"
	KindNotFound      ErrorKind = "not_found"
	KindTransfer      ErrorKind = "transfer"
	KindInternal      ErrorKind = "internal"
)

var kindTable = []struct {
	kind ErrorKind
	errs []error
}{
	{KindTerminal, []error{recurring.ErrLicenseRevokedForMissedPayments}},
	{KindPaused, []error{common.ErrModulePaused}},
	{KindValidation, []error{
		revenue.ErrArrayLengthMismatch,
		revenue.ErrInvalidSharesSum,
		revenue.ErrInvalidRoyaltyRate,
		revenue.ErrInvalidRecipient,
		revenue.ErrInvalidAmount,
		fees.ErrInvalidBps,
		recurring.ErrInvalidPenaltyRate,
		licensing.ErrInvalidPenaltyRate,
		licensing.ErrInvalidPaymentInterval,
		ErrInvalidPrice,
		ErrInvalidExpiry,
		ErrSelfTrade,
	}},
	{KindAuthorization, []error{
		access.ErrUnauthorized,
		licensing.ErrNotOwner,
		licensing.ErrNotHolder,
		ErrNotOfferMaker,
		ErrNotSeller,
	}},
	{KindPayment, []error{
		revenue.ErrIncorrectPaymentAmount,
		recurring.ErrInsufficientPayment,
	}},
	{KindPrecondition, []error{
		revenue.ErrNoBalanceToWithdraw,
		recurring.ErrNotRecurringLicense,
		recurring.ErrLicenseNotActive,
		licensing.ErrInsufficientMissedPayments,
		licensing.ErrAlreadyRevoked,
		ErrListingInactive,
		ErrOfferNotOpen,
		ErrOfferExpired,
		ErrWithdrawalInFlight,
	}},
	{KindNotFound, []error{
		licensing.ErrInvalidTokenID,
		licensing.ErrInvalidLicenseID,
		ErrListingNotFound,
		ErrOfferNotFound,
	}},
	{KindTransfer, []error{ErrTransferFailed}},
}

// Kind classifies err. Nil maps to KindNone and anything unrecognised to
// KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, row := range kindTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.kind
			}
		}
	}
	return KindInternal
}
