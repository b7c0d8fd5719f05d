package vm

import "math"

// DoubleIsInt32 reports whether d is exactly representable as an int32.
// Negative zero is not: storing it as int32 would lose the sign.
func DoubleIsInt32(d float64) (int32, bool) {
	if d != d || d < math.MinInt32 || d > math.MaxInt32 {
		return 0, false
	}
	i := int32(d)
	if float64(i) != d {
		return 0, false
	}
	if i == 0 && math.Signbit(d) {
		return 0, false
	}
	return i, true
}
