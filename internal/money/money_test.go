package money

import "testing"

func TestToCents(t *testing.T) {
	tests := []struct {
		amount float64
		cents  int64
	}{
		{0, 0},
		{100.00, 10000},
		{33.34, 3334},
		{33.33, 3333},
		{-5.25, -525},
		{0.025, 3},   // half rounds away from zero
		{-0.025, -3}, // and symmetrically for negatives
		{19.999, 2000},
		{0.001, 0},
	}

	for _, tt := range tests {
		if got := ToCents(tt.amount); got != tt.cents {
			t.Errorf("ToCents(%v) = %d; want %d", tt.amount, got, tt.cents)
		}
	}
}

func TestFromCents(t *testing.T) {
	tests := []struct {
		cents  int64
		amount float64
	}{
		{0, 0},
		{10000, 100.00},
		{3334, 33.34},
		{-525, -5.25},
		{1, 0.01},
	}

	for _, tt := range tests {
		if got := FromCents(tt.cents); got != tt.amount {
			t.Errorf("FromCents(%d) = %v; want %v", tt.cents, got, tt.amount)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 3333, 3334, 10000, -42, 1000000001} {
		if got := ToCents(FromCents(cents)); got != cents {
			t.Errorf("round trip of %d cents gave %d", cents, got)
		}
	}
}
