package core

import (
	"fmt"
	"math"
)

// ShareTolerance is the absolute tolerance used when checking that share
// amounts sum to an expense total.
const ShareTolerance = 1e-3

// AllocateShares turns a mapping of user id to raw weight into a mapping of
// user id to a concrete share amount for one expense total.
//
// The weight sum selects the mode:
//   - exactly 100: weights are percentages, share = total * weight / 100
//   - exactly 0: even split, share = total / len(weights)
//   - anything else: weights are absolute amounts and must sum to total
//     within ShareTolerance
//
// The 0 and 100 branch checks are deliberately exact float comparisons; a
// caller supplying percentages must make them sum to exactly 100.
func AllocateShares(total float64, weights map[int64]float64) (map[int64]float64, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: share weights must not be empty", ErrValidation)
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}

	shares := make(map[int64]float64, len(weights))
	switch {
	case sum == 100:
		for id, w := range weights {
			shares[id] = total * w / 100
		}
	case sum == 0:
		each := total / float64(len(weights))
		for id := range weights {
			shares[id] = each
		}
	default:
		if math.Abs(sum-total) > ShareTolerance {
			return nil, fmt.Errorf("%w: share amounts sum to %.4f, expense total is %.4f",
				ErrImbalancedShares, sum, total)
		}
		for id, w := range weights {
			shares[id] = w
		}
	}

	for id, amount := range shares {
		if amount < 0 {
			return nil, fmt.Errorf("%w: share for user %d is negative (%.4f)",
				ErrInvalidShare, id, amount)
		}
	}

	return shares, nil
}
