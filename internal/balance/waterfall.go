// Package balance depletes a period's funding sources by its expenses.
//
// Sources are consumed strictly in the order given ("waterfall"): the first
// source absorbs as much expense as it can, then the next, and so on. Any
// expense left once every source is empty is charged to the last source,
// which is the only place a negative remaining amount can appear.
package balance

import (
	"sort"

	"bilancio/internal/core"
)

// Compute runs the waterfall for one period. Inputs are read, never mutated.
func Compute(sources []core.FundingSource, items map[string][]core.LineItem) core.Balances {
	out := core.Balances{
		BucketTotals: make(map[string]float64, len(items)),
		Remaining:    make([]core.SourceBalance, len(sources)),
	}

	// Buckets are summed in name order so float totals are reproducible.
	for _, bucket := range sortedBuckets(items) {
		var sum float64
		for _, it := range items[bucket] {
			sum += it.Amount
		}
		out.BucketTotals[bucket] = sum
		out.TotalSpent += sum
	}

	remaining := out.TotalSpent
	for i, s := range sources {
		available := capacity(s.InitialAmount)
		if remaining > 0 {
			deduction := min(available, remaining)
			available -= deduction
			remaining -= deduction
		}
		out.Remaining[i] = core.SourceBalance{Name: s.Name, Remaining: available}
	}

	// Overspend lands on the last source only.
	if remaining > 0 && len(sources) > 0 {
		out.Remaining[len(sources)-1].Remaining -= remaining
	}

	return out
}

// Unabsorbed returns how much of the period's expense no source could cover.
// With no sources at all this is the whole total.
func Unabsorbed(sources []core.FundingSource, b core.Balances) float64 {
	if len(sources) == 0 {
		return max(b.TotalSpent, 0)
	}
	last := b.Remaining[len(b.Remaining)-1].Remaining
	if last < 0 {
		return -last
	}
	return 0
}

// capacity is how much a source can absorb; negative entries absorb nothing.
func capacity(amount float64) float64 {
	if amount < 0 {
		return 0
	}
	return amount
}

func sortedBuckets(items map[string][]core.LineItem) []string {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
