package profile

import (
	"fmt"

	"bilancio/internal/core"
)

// Row edits. Each returns a new record and leaves the input untouched, so
// callers can recompute balances from the full, unchanged history.

// AddItem appends an item to a bucket.
func AddItem(rec core.PeriodRecord, b Bucket, label string, amount float64) core.PeriodRecord {
	out := clone(rec)
	out.LineItemsByBucket[b.name] = append(out.LineItemsByBucket[b.name], core.LineItem{
		Label:  label,
		Amount: amount,
		Bucket: b.name,
	})
	return out
}

// UpdateItem replaces the item at index i of a bucket.
func UpdateItem(rec core.PeriodRecord, b Bucket, i int, label string, amount float64) (core.PeriodRecord, error) {
	list := rec.LineItemsByBucket[b.name]
	if i < 0 || i >= len(list) {
		return rec, fmt.Errorf("%w: %d in bucket %s", ErrItemIndex, i, b.name)
	}
	out := clone(rec)
	out.LineItemsByBucket[b.name][i] = core.LineItem{Label: label, Amount: amount, Bucket: b.name}
	return out, nil
}

// RemoveItem deletes the item at index i of a bucket.
func RemoveItem(rec core.PeriodRecord, b Bucket, i int) (core.PeriodRecord, error) {
	list := rec.LineItemsByBucket[b.name]
	if i < 0 || i >= len(list) {
		return rec, fmt.Errorf("%w: %d in bucket %s", ErrItemIndex, i, b.name)
	}
	out := clone(rec)
	items := out.LineItemsByBucket[b.name]
	out.LineItemsByBucket[b.name] = append(items[:i], items[i+1:]...)
	return out, nil
}

// SetSource sets the amount of one of the profile's funding sources, adding
// it in depletion order when the record does not have it yet.
func (p Profile) SetSource(rec core.PeriodRecord, name string, amount float64) (core.PeriodRecord, error) {
	known := false
	for _, s := range p.SourceNames() {
		if s == name {
			known = true
			break
		}
	}
	if !known {
		return rec, fmt.Errorf("%w: %q for profile %s", ErrUnknownSource, name, p.Name)
	}

	out := p.Normalize(rec)
	for i := range out.Sources {
		if out.Sources[i].Name == name {
			out.Sources[i].InitialAmount = amount
		}
	}
	return out, nil
}

func clone(rec core.PeriodRecord) core.PeriodRecord {
	out := rec
	out.Sources = append([]core.FundingSource(nil), rec.Sources...)
	out.LineItemsByBucket = make(map[string][]core.LineItem, len(rec.LineItemsByBucket))
	for bucket, list := range rec.LineItemsByBucket {
		out.LineItemsByBucket[bucket] = append([]core.LineItem(nil), list...)
	}
	return out
}
