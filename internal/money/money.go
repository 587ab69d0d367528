// Package money converts between decimal currency amounts and integer
// minor units (cents). All arithmetic inside the settlement engine runs
// in cents; decimals exist only at the storage and API boundary.
package money

import "math"

// ToCents rounds half away from zero at two decimal places.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents is the exact inverse of ToCents, no further rounding.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
