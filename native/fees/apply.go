package fees

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// BasisPoints is the denominator for every bps rate (10000 = 100%).
const BasisPoints = 10_000

var (
	// ErrInvalidBps is returned when a rate exceeds BasisPoints.
	ErrInvalidBps = errors.New("fees: basis points out of range")

	bpsDenominator = big.NewInt(BasisPoints)
)

// ValidateBps rejects rates above 100%.
func ValidateBps(bps uint32) error {
	if bps > BasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return nil
}

// PortionBps returns amount*bps/10000 with truncating division. Nil or
// non-positive amounts yield zero.
func PortionBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return out.Quo(out, bpsDenominator)
}

// ApplyInput captures the context required to evaluate the platform fee for
// a payment.
type ApplyInput struct {
	Gross       *big.Int
	FeeBps      uint32
	RouteWallet ethcommon.Address
}

// ApplyResult summarises the computed fee and the net amount left for
// distribution.
type ApplyResult struct {
	Fee         *big.Int
	Net         *big.Int
	RouteWallet ethcommon.Address
}

// Apply splits the gross amount into the platform fee routed to the treasury
// wallet and the remaining net amount. The caller credits both legs.
func Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0), RouteWallet: input.RouteWallet}
	if input.Gross != nil {
		result.Net = new(big.Int).Set(input.Gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 || input.FeeBps == 0 {
		return result
	}
	fee := PortionBps(result.Net, input.FeeBps)
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}
