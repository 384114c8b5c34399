// Package records converts persisted period blobs into core.PeriodRecord.
//
// A blob is stored per user under a key "<family>-<year>-<month>" and holds
// the free-text amounts exactly as the user typed them:
//
//	{
//	  "sources": [{"name": "income", "amount": "€2,000"}],
//	  "items":   {"needs": [{"label": "rent", "amount": "800"}]}
//	}
//
// Amounts may also be plain JSON numbers. Missing collections decode as empty.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"bilancio/internal/core"
)

var (
	ErrMalformedKey  = errors.New("malformed period key")
	ErrMalformedBlob = errors.New("malformed period blob")
)

// Amount is a monetary value that unmarshals from either a JSON string or a
// JSON number, applying core.ParseAmount to strings.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(core.ParseAmount(s))
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*a = 0
		return nil
	}
	*a = Amount(v)
	return nil
}

type (
	sourceBlob struct {
		Name   string `json:"name"`
		Amount Amount `json:"amount"`
	}

	itemBlob struct {
		Label  string `json:"label"`
		Amount Amount `json:"amount"`
	}

	periodBlob struct {
		Sources []sourceBlob          `json:"sources"`
		Items   map[string][]itemBlob `json:"items"`
	}
)

// Key builds the persistence key for a family's period.
func Key(family string, year, month int) string {
	return fmt.Sprintf("%s-%d-%02d", family, year, month)
}

// Prefix returns the key prefix shared by every period of a family.
func Prefix(family string) string {
	return family + "-"
}

// ParseKey splits "<family>-<year>-<month>". The family may itself contain
// dashes; year and month are always the last two parts.
func ParseKey(key string) (family string, year, month int, err error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	n := len(parts)
	family = strings.Join(parts[:n-2], "-")
	year, yerr := strconv.Atoi(parts[n-2])
	month, merr := strconv.Atoi(parts[n-1])
	if family == "" || yerr != nil || merr != nil || month < 1 || month > 12 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return family, year, month, nil
}

// Decode turns a stored blob into a record. The key supplies year and month.
func Decode(key string, blob []byte) (core.PeriodRecord, error) {
	_, year, month, err := ParseKey(key)
	if err != nil {
		return core.PeriodRecord{}, err
	}

	rec := core.PeriodRecord{
		Key:               key,
		Year:              year,
		Month:             month,
		LineItemsByBucket: make(map[string][]core.LineItem),
	}
	if len(bytes.TrimSpace(blob)) == 0 || bytes.Equal(bytes.TrimSpace(blob), []byte("null")) {
		return rec, nil
	}

	var pb periodBlob
	if err := json.Unmarshal(blob, &pb); err != nil {
		return core.PeriodRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedBlob, key, err)
	}

	for _, s := range pb.Sources {
		rec.Sources = append(rec.Sources, core.FundingSource{Name: strings.TrimSpace(s.Name), InitialAmount: float64(s.Amount)})
	}
	for bucket, list := range pb.Items {
		items := make([]core.LineItem, 0, len(list))
		for _, it := range list {
			items = append(items, core.LineItem{Label: it.Label, Amount: float64(it.Amount), Bucket: bucket})
		}
		rec.LineItemsByBucket[bucket] = items
	}
	return rec, nil
}

// Encode serializes a record; amounts are written as numbers.
func Encode(rec core.PeriodRecord) ([]byte, error) {
	pb := periodBlob{
		Sources: make([]sourceBlob, 0, len(rec.Sources)),
		Items:   make(map[string][]itemBlob, len(rec.LineItemsByBucket)),
	}
	for _, s := range rec.Sources {
		pb.Sources = append(pb.Sources, sourceBlob{Name: s.Name, Amount: Amount(s.InitialAmount)})
	}
	for bucket, list := range rec.LineItemsByBucket {
		items := make([]itemBlob, 0, len(list))
		for _, it := range list {
			items = append(items, itemBlob{Label: it.Label, Amount: Amount(it.Amount)})
		}
		pb.Items[bucket] = items
	}
	return json.Marshal(pb)
}

// Collect decodes every blob that belongs to family. Blobs whose key or body
// cannot be decoded are logged and skipped so one bad entry never hides the
// rest of the history. The result is sorted by year and month.
func Collect(family string, blobs map[string][]byte, logger *slog.Logger) []core.PeriodRecord {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]core.PeriodRecord, 0, len(blobs))
	for key, blob := range blobs {
		fam, _, _, err := ParseKey(key)
		if err != nil {
			logger.Warn("Skipping period with malformed key", "key", key, "error", err)
			continue
		}
		if fam != family {
			continue
		}
		rec, err := Decode(key, blob)
		if err != nil {
			logger.Warn("Skipping malformed period blob", "key", key, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Key < out[j].Key
	})
	return out
}
