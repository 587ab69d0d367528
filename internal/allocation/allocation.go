// Package allocation splits integer cent amounts across participants with
// an exact-sum guarantee. Both functions are pure: same input, same output.
package allocation

import (
	"sort"

	"github.com/and161185/ecosbor/internal/errs"
)

type Weight struct {
	ID     int64
	Weight int64
}

// EqualSplit divides target cents into n shares differing by at most one
// cent. The first target%n shares (in caller order) carry the extra cent.
// Target must be non-negative; n <= 0 returns nil.
func EqualSplit(target int64, n int) []int64 {
	if n <= 0 {
		return nil
	}

	base := target / int64(n)
	remainder := target % int64(n)

	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

// ProportionalSplit distributes target cents across weights, floor of the
// exact fraction first, then one leftover cent at a time in order of
// descending weight, ascending ID. The tie-break is deliberate policy:
// refunds and top-up bills must be reproducible for auditing.
func ProportionalSplit(target int64, weights []Weight) ([]int64, error) {
	if target < 0 {
		return nil, errs.ErrInvalidAmount
	}

	var total int64
	for _, w := range weights {
		total += w.Weight
	}
	if total == 0 {
		return nil, errs.ErrAllocationImpossible
	}

	shares := make([]int64, len(weights))
	var allocated int64
	for i, w := range weights {
		shares[i] = target * w.Weight / total
		allocated += shares[i]
	}

	residual := target - allocated
	if residual == 0 {
		return shares, nil
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		wa, wb := weights[order[a]], weights[order[b]]
		if wa.Weight != wb.Weight {
			return wa.Weight > wb.Weight
		}
		return wa.ID < wb.ID
	})

	for i := int64(0); i < residual; i++ {
		shares[order[i]]++
	}
	return shares, nil
}
