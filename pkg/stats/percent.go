package stats

import "math"

// Round2 rounds v to two decimal places, half away from zero
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percentage returns part as a percentage of total rounded to two decimals.
// A zero total yields 0, never NaN or Inf.
func Percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return Round2(float64(part) / float64(total) * 100)
}

// ChangePercent returns delta relative to base as a percentage. The second
// return value is false when base is zero and the change is undefined.
func ChangePercent(delta, base int64) (float64, bool) {
	if base == 0 {
		return 0, false
	}
	return float64(delta) / float64(base) * 100, true
}
