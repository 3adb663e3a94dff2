package grants

import (
	"math/big"
	"time"

	"equity-portal/grant-ledger-backend/pkg/numeric"
)

// VestedAt computes the number of options vested at the given instant. Zero
// before the vesting start and during the cliff, the full total once the
// vesting duration has elapsed, and a floor-truncated linear proportion in
// between. The total*elapsed product is taken in arbitrary precision, so no
// representable total or elapsed time can overflow; fractional options never
// vest.
func VestedAt(total uint64, start time.Time, cliffSeconds, durationSeconds int64, at time.Time) uint64 {
	if at.Before(start) {
		return 0
	}
	elapsed := at.Unix() - start.Unix()
	if elapsed < cliffSeconds {
		return 0
	}
	if elapsed >= durationSeconds {
		return total
	}

	v := new(big.Int).SetUint64(total)
	v.Mul(v, big.NewInt(elapsed))
	v.Quo(v, big.NewInt(durationSeconds))
	return v.Uint64() // < total by construction
}

// Exercisable returns vested - exercised, floored at zero so inconsistent
// inputs cannot underflow.
func Exercisable(vested, exercised uint64) uint64 {
	if vested <= exercised {
		return 0
	}
	return vested - exercised
}

// ExerciseCost returns amount*strikePrice exactly, in the payment asset's
// smallest unit. The result is arbitrary precision so the largest
// representable amount and price cannot silently overflow.
func ExerciseCost(amount, strikePrice uint64) *big.Int {
	return numeric.MulUint64(amount, strikePrice)
}
