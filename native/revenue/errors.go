package revenue

import "errors"

var (
	ErrIncorrectPaymentAmount = errors.New("revenue: attached value does not match amount")
	ErrArrayLengthMismatch    = errors.New("revenue: recipients and shares length mismatch")
	ErrInvalidSharesSum       = errors.New("revenue: shares must sum to 10000")
	ErrInvalidRoyaltyRate     = errors.New("revenue: royalty rate exceeds 10000 bps")
	ErrInvalidRecipient       = errors.New("revenue: invalid recipient")
	ErrNoBalanceToWithdraw    = errors.New("revenue: no balance to withdraw")
	ErrInvalidAmount          = errors.New("revenue: amount must be positive")

	errNilState         = errors.New("revenue engine: state not configured")
	errNilPolicy        = errors.New("revenue engine: access policy not configured")
	errNilOracle        = errors.New("revenue engine: asset oracle not configured")
	errParamsNotSet     = errors.New("revenue engine: params not initialised")
	errSplitNotFound    = errors.New("revenue engine: split not configured")
	errNothingToRestore = errors.New("revenue engine: withdrawal has nothing to restore")
)
