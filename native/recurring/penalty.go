package recurring

import "math/big"

const (
	// GracePeriodSeconds is the window after a due date in which no penalty
	// accrues.
	GracePeriodSeconds = 3 * 24 * 60 * 60
	// SecondsPerMonth is the 30-day month the penalty rate is expressed in.
	SecondsPerMonth = 2_592_000

	// DefaultPenaltyRateBps applies when neither the license nor the
	// marketplace configures a rate.
	DefaultPenaltyRateBps = 500
	// MaxMarketplacePenaltyRateBps caps SetPenaltyRate.
	MaxMarketplacePenaltyRateBps = 1_000
)

var penaltyDenominator = big.NewInt(10_000 * SecondsPerMonth)

// CalculatePenalty returns the linear late-payment penalty:
// base*rateBps*(secondsLate-grace) / (10000*SecondsPerMonth). All numerator
// terms are multiplied before the single truncating division. Nothing accrues
// until secondsLate exceeds the grace period.
func CalculatePenalty(base *big.Int, rateBps uint32, secondsLate, graceSeconds int64) *big.Int {
	if base == nil || base.Sign() <= 0 || rateBps == 0 || secondsLate <= graceSeconds {
		return big.NewInt(0)
	}
	effective := secondsLate - graceSeconds
	penalty := new(big.Int).Mul(base, new(big.Int).SetUint64(uint64(rateBps)))
	penalty.Mul(penalty, big.NewInt(effective))
	return penalty.Quo(penalty, penaltyDenominator)
}
