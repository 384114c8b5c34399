package sheets

import (
	"fmt"
	"sort"
	"strings"

	"bilancio/internal/core"
)

// Header is the first row of every report sheet.
var Header = []any{"User", "Profile", "Month", "Total spent", "Remaining", "Most spent", "Most spent amount", "Least spent", "Least spent amount"}

// ReportRows renders one row per month, in month order.
func ReportRows(user, profile string, rep core.Report) [][]any {
	rows := make([][]any, 0, len(rep.Months))
	for _, month := range rep.SortedMonths() {
		mr := rep.Months[month]
		row := []any{user, profile, month, core.FormatAmount(mr.TotalSpent), remainingCell(mr.RemainingBySource), "", "", "", ""}
		if mr.MostSpent != nil {
			row[5], row[6] = mr.MostSpent.Label, core.FormatAmount(mr.MostSpent.Amount)
		}
		if mr.LeastSpent != nil {
			row[7], row[8] = mr.LeastSpent.Label, core.FormatAmount(mr.LeastSpent.Amount)
		}
		rows = append(rows, row)
	}
	return rows
}

// MergeRows replaces the rows of user and profile in existing with rows,
// keeping every other row in place. The header is always first.
func MergeRows(existing [][]any, user, profile string, rows [][]any) [][]any {
	out := [][]any{Header}
	for i, row := range existing {
		if i == 0 && len(row) > 0 && cell(row, 0) == Header[0] {
			continue
		}
		if cell(row, 0) == user && cell(row, 1) == profile {
			continue
		}
		if len(row) == 0 {
			continue
		}
		out = append(out, row)
	}
	return append(out, rows...)
}

func remainingCell(remaining map[string]float64) string {
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+core.FormatAmount(remaining[name]))
	}
	return strings.Join(parts, "; ")
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}
