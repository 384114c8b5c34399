package http

import (
	"encoding/json"
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/profile"
	"bilancio/internal/services"
)

// Amounts are sent raw for computation and pre-formatted for display.
// Remaining balances keep their signed value but display clamped at zero.
type amountJSON struct {
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

func amount(v float64) amountJSON    { return amountJSON{Value: v, Display: core.FormatAmount(v)} }
func remaining(v float64) amountJSON { return amountJSON{Value: v, Display: core.FormatClamped(v)} }

type (
	profileJSON struct {
		Name       string   `json:"name"`
		Family     string   `json:"family"`
		Sources    []string `json:"sources"`
		Buckets    []string `json:"buckets"`
		Parties    []string `json:"parties,omitempty"`
		JointOrder []string `json:"joint_order,omitempty"`
	}

	sourceJSON struct {
		Name   string     `json:"name"`
		Amount amountJSON `json:"amount"`
	}

	itemJSON struct {
		Label  string     `json:"label"`
		Amount amountJSON `json:"amount"`
	}

	periodJSON struct {
		Key     string                `json:"key"`
		Year    int                   `json:"year"`
		Month   int                   `json:"month"`
		Sources []sourceJSON          `json:"sources"`
		Items   map[string][]itemJSON `json:"items"`
	}

	remainingJSON struct {
		Name      string     `json:"name"`
		Remaining amountJSON `json:"remaining"`
	}

	balancesJSON struct {
		BucketTotals   map[string]amountJSON `json:"bucket_totals"`
		TotalSpent     amountJSON            `json:"total_spent"`
		Remaining      []remainingJSON       `json:"remaining"`
		TotalRemaining amountJSON            `json:"total_remaining"`
	}

	balancesResponse struct {
		Period     periodJSON              `json:"period"`
		Balances   balancesJSON            `json:"balances"`
		Partners   map[string]balancesJSON `json:"partners,omitempty"`
		Unabsorbed amountJSON              `json:"unabsorbed"`
	}

	spendJSON struct {
		Label  string     `json:"label"`
		Amount amountJSON `json:"amount"`
	}

	monthJSON struct {
		Month             int                   `json:"month"`
		RemainingBySource map[string]amountJSON `json:"remaining_by_source"`
		TotalSpent        amountJSON            `json:"total_spent"`
		MostSpent         *spendJSON            `json:"most_spent"`
		LeastSpent        *spendJSON            `json:"least_spent"`
	}

	yearJSON struct {
		Year           int                   `json:"year"`
		TotalsBySource map[string]amountJSON `json:"totals_by_source"`
		TotalSpent     amountJSON            `json:"total_spent"`
		Months         []monthJSON           `json:"months"`
	}

	reportResponse struct {
		User    string     `json:"user"`
		Profile string     `json:"profile"`
		Years   []yearJSON `json:"years"`
	}

	errorResponse struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id,omitempty"`
	}
)

func newProfileJSON(p profile.Profile) profileJSON {
	return profileJSON{
		Name:       p.Name.String(),
		Family:     p.Family,
		Sources:    p.SourceNames(),
		Buckets:    p.BucketNames(),
		Parties:    p.Parties,
		JointOrder: p.JointOrder,
	}
}

func newPeriodJSON(rec core.PeriodRecord) periodJSON {
	out := periodJSON{
		Key:     rec.Key,
		Year:    rec.Year,
		Month:   rec.Month,
		Sources: make([]sourceJSON, 0, len(rec.Sources)),
		Items:   make(map[string][]itemJSON, len(rec.LineItemsByBucket)),
	}
	for _, s := range rec.Sources {
		out.Sources = append(out.Sources, sourceJSON{Name: s.Name, Amount: amount(s.InitialAmount)})
	}
	for bucket, list := range rec.LineItemsByBucket {
		items := make([]itemJSON, 0, len(list))
		for _, it := range list {
			items = append(items, itemJSON{Label: it.Label, Amount: amount(it.Amount)})
		}
		out.Items[bucket] = items
	}
	return out
}

func newBalancesJSON(b core.Balances) balancesJSON {
	out := balancesJSON{
		BucketTotals:   make(map[string]amountJSON, len(b.BucketTotals)),
		TotalSpent:     amount(b.TotalSpent),
		Remaining:      make([]remainingJSON, 0, len(b.Remaining)),
		TotalRemaining: remaining(b.TotalRemaining()),
	}
	for bucket, total := range b.BucketTotals {
		out.BucketTotals[bucket] = amount(total)
	}
	for _, r := range b.Remaining {
		out.Remaining = append(out.Remaining, remainingJSON{Name: r.Name, Remaining: remaining(r.Remaining)})
	}
	return out
}

func newBalancesResponse(p profile.Profile, pb services.PeriodBalances) balancesResponse {
	out := balancesResponse{
		Period:     newPeriodJSON(pb.Record),
		Balances:   newBalancesJSON(pb.Balances),
		Unabsorbed: amount(pb.Unabsorbed),
	}
	if pb.Partners != nil && len(p.Parties) == 2 {
		out.Partners = map[string]balancesJSON{
			p.Parties[0]: newBalancesJSON(pb.Partners.First),
			p.Parties[1]: newBalancesJSON(pb.Partners.Second),
			"joint":      newBalancesJSON(pb.Partners.Joint),
		}
	}
	return out
}

func newSpendJSON(s *core.SpendItem) *spendJSON {
	if s == nil {
		return nil
	}
	return &spendJSON{Label: s.Label, Amount: amount(s.Amount)}
}

func newReportResponse(user string, p profile.Profile, reports map[int]core.Report) reportResponse {
	out := reportResponse{User: user, Profile: p.Name.String(), Years: make([]yearJSON, 0, len(reports))}
	for _, year := range core.SortedYears(reports) {
		rep := reports[year]
		y := yearJSON{
			Year:           year,
			TotalsBySource: amountMap(rep.TotalsBySource, amount),
			TotalSpent:     amount(rep.TotalSpent),
			Months:         make([]monthJSON, 0, len(rep.Months)),
		}
		for _, month := range rep.SortedMonths() {
			mr := rep.Months[month]
			y.Months = append(y.Months, monthJSON{
				Month:             month,
				RemainingBySource: amountMap(mr.RemainingBySource, remaining),
				TotalSpent:        amount(mr.TotalSpent),
				MostSpent:         newSpendJSON(mr.MostSpent),
				LeastSpent:        newSpendJSON(mr.LeastSpent),
			})
		}
		out.Years = append(out.Years, y)
	}
	return out
}

func amountMap(m map[string]float64, conv func(float64) amountJSON) map[string]amountJSON {
	out := make(map[string]amountJSON, len(m))
	for k, v := range m {
		out[k] = conv(v)
	}
	return out
}

func newProfilesJSON(all []profile.Profile) []profileJSON {
	out := make([]profileJSON, 0, len(all))
	for _, p := range all {
		out = append(out, newProfileJSON(p))
	}
	return out
}

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", log.FieldError, err)
	}
}

// writeError sends a JSON error carrying the request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}
