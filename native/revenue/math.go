package revenue

import (
	"math/big"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/fees"
)

const (
	// SecondsPerMonth is the 30-day month used by both penalty models.
	SecondsPerMonth = 2_592_000

	bpsDenominator = fees.BasisPoints

	// MaxCompoundingMonths bounds the per-month loop (100 years). Months past
	// the bound accrue nothing further.
	MaxCompoundingMonths = 1_200
)

// ElapsedMonths returns floor((now-since)/30 days), or zero when the clock has
// not started or runs backwards.
func ElapsedMonths(since, now int64) uint64 {
	if since <= 0 || now <= since {
		return 0
	}
	return uint64((now - since) / SecondsPerMonth)
}

// CompoundPenalty compounds principal at rateBps per month for the given
// number of whole months. Each month adds total*rateBps/10000 using
// truncating division. It returns only the accrued penalty.
func CompoundPenalty(principal *big.Int, rateBps uint32, months uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || months == 0 {
		return big.NewInt(0)
	}
	months = compoundedMonths(months)
	total := new(big.Int).Set(principal)
	for i := uint64(0); i < months; i++ {
		total.Add(total, fees.PortionBps(total, rateBps))
	}
	return total.Sub(total, principal)
}

func compoundedMonths(months uint64) uint64 {
	if months > MaxCompoundingMonths {
		return MaxCompoundingMonths
	}
	return months
}

// ShareOf returns amount*shareBps/10000 truncated.
func ShareOf(amount *big.Int, shareBps uint32) *big.Int {
	return fees.PortionBps(amount, shareBps)
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
