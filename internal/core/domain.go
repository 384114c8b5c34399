package core

import "sort"

type (
	// FundingSource is one pool of money for a period. Slice order is depletion priority.
	FundingSource struct {
		Name          string
		InitialAmount float64
	}

	LineItem struct {
		Label  string
		Amount float64
		Bucket string
	}

	// PeriodRecord holds one month of funding and expenses for a profile family.
	PeriodRecord struct {
		Key               string // opaque grouping label, e.g. "budget-2024-3"
		Year              int
		Month             int // 1-12
		Sources           []FundingSource
		LineItemsByBucket map[string][]LineItem
	}

	SourceBalance struct {
		Name      string
		Remaining float64
	}

	// Balances is the result of depleting a period's sources by its expenses.
	Balances struct {
		BucketTotals map[string]float64
		TotalSpent   float64
		Remaining    []SourceBalance // same order as the input sources
	}

	SpendItem struct {
		Label  string
		Amount float64
	}

	MonthReport struct {
		RemainingBySource map[string]float64
		TotalSpent        float64
		MostSpent         *SpendItem
		LeastSpent        *SpendItem
	}

	Report struct {
		Year           int
		TotalsBySource map[string]float64
		TotalSpent     float64
		Months         map[int]MonthReport
	}
)

// RemainingBySource returns the remaining amounts keyed by source name.
// Duplicate names keep the last value.
func (b Balances) RemainingBySource() map[string]float64 {
	out := make(map[string]float64, len(b.Remaining))
	for _, sb := range b.Remaining {
		out[sb.Name] = sb.Remaining
	}
	return out
}

// TotalRemaining sums every source's remaining amount, overspend included.
func (b Balances) TotalRemaining() float64 {
	var total float64
	for _, sb := range b.Remaining {
		total += sb.Remaining
	}
	return total
}

// Items returns every line item pooled across buckets. Buckets are visited in
// name order so the result is stable for identical input.
func (p PeriodRecord) Items() []LineItem {
	var out []LineItem
	for _, bucket := range p.Buckets() {
		out = append(out, p.LineItemsByBucket[bucket]...)
	}
	return out
}

// Buckets returns the record's bucket names sorted.
func (p PeriodRecord) Buckets() []string {
	names := make([]string, 0, len(p.LineItemsByBucket))
	for name := range p.LineItemsByBucket {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceTotal sums the initial amounts of all sources.
func (p PeriodRecord) SourceTotal() float64 {
	var total float64
	for _, s := range p.Sources {
		total += s.InitialAmount
	}
	return total
}

// SortedMonths returns the report's months in calendar order.
func (r Report) SortedMonths() []int {
	months := make([]int, 0, len(r.Months))
	for m := range r.Months {
		months = append(months, m)
	}
	sort.Ints(months)
	return months
}

// SortedYears returns the years of a report map in ascending order.
func SortedYears(reports map[int]Report) []int {
	years := make([]int, 0, len(reports))
	for y := range reports {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
