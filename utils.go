package txengine

import (
	"math"
	"math/bits"
)

// BpsDenominator is the fixed-point denominator for fee multipliers.
// 10000 bps == 1.0x.
const BpsDenominator = 10_000

// ApplyBps scales value by a basis-point multiplier using integer
// arithmetic. All fee escalation in the engine goes through this so results
// are reproducible across platforms. The 128-bit intermediate keeps large
// wei-denominated fees exact; results past the uint64 range saturate.
func ApplyBps(value uint64, bps uint32) uint64 {
	hi, lo := bits.Mul64(value, uint64(bps))
	if hi >= BpsDenominator {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}
