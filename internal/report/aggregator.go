// Package report rolls period records up into yearly reports.
package report

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"bilancio/internal/balance"
	"bilancio/internal/core"
)

// ErrInvalidInput is returned when the record collection itself is unusable.
// Individual bad records never produce an error.
var ErrInvalidInput = errors.New("invalid input")

// Build groups records by year and month and computes each month's balances
// and spend extremes. The result is unordered; use core.SortedYears and
// Report.SortedMonths for presentation order.
//
// Records sharing a year and month are merged before computing: sources with
// the same name add up and line items concatenate per bucket.
func Build(records []core.PeriodRecord) (map[int]core.Report, error) {
	reports := make(map[int]core.Report)

	for year, months := range group(records) {
		rep := core.Report{
			Year:           year,
			TotalsBySource: make(map[string]float64),
			Months:         make(map[int]core.MonthReport, len(months)),
		}
		for _, month := range sortedKeys(months) {
			period := months[month]
			mr := Month(period)
			rep.Months[month] = mr
			rep.TotalSpent += mr.TotalSpent
			for _, s := range period.Sources {
				rep.TotalsBySource[s.Name] += s.InitialAmount
			}
		}
		reports[year] = rep
	}

	return reports, nil
}

// BuildFrom accepts any slice or array of core.PeriodRecord (or pointers to
// them) and fails with ErrInvalidInput for anything that cannot be iterated.
// A nil value is an empty collection. Nil pointers inside are skipped.
func BuildFrom(records any) (map[int]core.Report, error) {
	if records == nil {
		return Build(nil)
	}
	if rs, ok := records.([]core.PeriodRecord); ok {
		return Build(rs)
	}

	v := reflect.ValueOf(records)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a collection of period records, got %T", ErrInvalidInput, records)
	}
	out := make([]core.PeriodRecord, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		switch r := v.Index(i).Interface().(type) {
		case core.PeriodRecord:
			out = append(out, r)
		case *core.PeriodRecord:
			if r != nil {
				out = append(out, *r)
			}
		default:
			return nil, fmt.Errorf("%w: element %d is %T, not a period record", ErrInvalidInput, i, r)
		}
	}
	return Build(out)
}

// Month computes a single month's report.
func Month(period core.PeriodRecord) core.MonthReport {
	b := balance.Compute(period.Sources, period.LineItemsByBucket)
	most, least := SpendExtremes(period.Items())
	return core.MonthReport{
		RemainingBySource: b.RemainingBySource(),
		TotalSpent:        b.TotalSpent,
		MostSpent:         most,
		LeastSpent:        least,
	}
}

// SpendExtremes returns the largest and smallest qualifying items. Items with
// a blank label or a non-positive amount do not qualify. least is nil unless
// at least two items qualify and the smallest amount differs from the largest.
// Ties keep input order.
func SpendExtremes(items []core.LineItem) (most, least *core.SpendItem) {
	var qualifying []core.SpendItem
	for _, it := range items {
		if strings.TrimSpace(it.Label) == "" || !(it.Amount > 0) {
			continue
		}
		qualifying = append(qualifying, core.SpendItem{Label: it.Label, Amount: it.Amount})
	}
	if len(qualifying) == 0 {
		return nil, nil
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].Amount > qualifying[j].Amount
	})

	first := qualifying[0]
	most = &first
	if len(qualifying) >= 2 {
		last := qualifying[len(qualifying)-1]
		if last.Amount != first.Amount {
			least = &last
		}
	}
	return most, least
}

// group buckets records by year and month, merging duplicates.
func group(records []core.PeriodRecord) map[int]map[int]core.PeriodRecord {
	out := make(map[int]map[int]core.PeriodRecord)
	for _, r := range records {
		months, ok := out[r.Year]
		if !ok {
			months = make(map[int]core.PeriodRecord)
			out[r.Year] = months
		}
		if existing, ok := months[r.Month]; ok {
			months[r.Month] = merge(existing, r)
			continue
		}
		months[r.Month] = r
	}
	return out
}

// merge combines two records of the same month into a fresh record.
func merge(a, b core.PeriodRecord) core.PeriodRecord {
	out := core.PeriodRecord{
		Key:               a.Key,
		Year:              a.Year,
		Month:             a.Month,
		LineItemsByBucket: make(map[string][]core.LineItem),
	}

	index := make(map[string]int)
	for _, s := range append(append([]core.FundingSource(nil), a.Sources...), b.Sources...) {
		if i, ok := index[s.Name]; ok {
			out.Sources[i].InitialAmount += s.InitialAmount
			continue
		}
		index[s.Name] = len(out.Sources)
		out.Sources = append(out.Sources, s)
	}

	for _, src := range []map[string][]core.LineItem{a.LineItemsByBucket, b.LineItemsByBucket} {
		for bucket, list := range src {
			merged := make([]core.LineItem, 0, len(out.LineItemsByBucket[bucket])+len(list))
			merged = append(merged, out.LineItemsByBucket[bucket]...)
			out.LineItemsByBucket[bucket] = append(merged, list...)
		}
	}
	return out
}

func sortedKeys(m map[int]core.PeriodRecord) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
