package core

import (
	"errors"
	"math"
	"testing"
)

func TestAllocateSharesEvenSplit(t *testing.T) {
	cases := []struct {
		total float64
		users []int64
	}{
		{40.00, []int64{1, 2}},
		{100.00, []int64{1, 2, 3}},
		{0.01, []int64{7}},
		{99.99, []int64{1, 2, 3, 4, 5}},
	}
	for i, tc := range cases {
		weights := make(map[int64]float64, len(tc.users))
		for _, id := range tc.users {
			weights[id] = 0
		}
		shares, err := AllocateShares(tc.total, weights)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		want := tc.total / float64(len(tc.users))
		for id, got := range shares {
			if got != want {
				t.Fatalf("case %d: user %d got %v, want %v", i, id, got, want)
			}
		}
	}
}

func TestAllocateSharesPercentage(t *testing.T) {
	shares, err := AllocateShares(50.00, map[int64]float64{1: 60, 2: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares[1] != 30.00 {
		t.Fatalf("user 1 got %v, want 30.00", shares[1])
	}
	if shares[2] != 20.00 {
		t.Fatalf("user 2 got %v, want 20.00", shares[2])
	}

	var sum float64
	for _, v := range shares {
		sum += v
	}
	if math.Abs(sum-50.00) > ShareTolerance {
		t.Fatalf("shares sum to %v, want 50.00 within tolerance", sum)
	}
}

func TestAllocateSharesAbsolute(t *testing.T) {
	shares, err := AllocateShares(30.00, map[int64]float64{1: 15.00, 2: 15.00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares[1] != 15.00 || shares[2] != 15.00 {
		t.Fatalf("unexpected shares: %v", shares)
	}
}

func TestAllocateSharesImbalanced(t *testing.T) {
	_, err := AllocateShares(30.00, map[int64]float64{1: 15.00, 2: 10.00})
	if !errors.Is(err, ErrImbalancedShares) {
		t.Fatalf("expected ErrImbalancedShares, got %v", err)
	}
}

func TestAllocateSharesWithinTolerance(t *testing.T) {
	// 10.0005 + 19.999 = 29.9995, off by 0.0005 <= 1e-3
	shares, err := AllocateShares(30.00, map[int64]float64{1: 10.0005, 2: 19.999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
}

func TestAllocateSharesNegative(t *testing.T) {
	// Only reachable through the absolute branch: sum is neither 0 nor 100
	// and matches the total.
	_, err := AllocateShares(10.00, map[int64]float64{1: 15.00, 2: -5.00})
	if !errors.Is(err, ErrInvalidShare) {
		t.Fatalf("expected ErrInvalidShare, got %v", err)
	}
}

func TestAllocateSharesInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		total   float64
		weights map[int64]float64
	}{
		{"zero total", 0, map[int64]float64{1: 0}},
		{"negative total", -5, map[int64]float64{1: 0}},
		{"empty weights", 10, map[int64]float64{}},
		{"nil weights", 10, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := AllocateShares(tc.total, tc.weights); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAllocateSharesExactBranchSelection(t *testing.T) {
	// 99.9999999 is not exactly 100: the weights fall through to the
	// absolute branch and fail against a total of 50.
	_, err := AllocateShares(50.00, map[int64]float64{1: 59.9999999, 2: 40})
	if !errors.Is(err, ErrImbalancedShares) {
		t.Fatalf("expected ErrImbalancedShares for near-100 sum, got %v", err)
	}
}
