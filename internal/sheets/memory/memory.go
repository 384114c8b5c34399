package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/sheets"
)

// Writer keeps report sheets in memory, keyed by sheet name.
type Writer struct {
	mu     sync.Mutex
	base   string
	sheets map[string][][]any
}

var _ sheets.ReportWriter = (*Writer)(nil)

func New(base string) *Writer {
	if base == "" {
		base = "Report"
	}
	return &Writer{base: base, sheets: make(map[string][][]any)}
}

// WriteReport stores the report rows in the "<year> <base>" sheet.
func (w *Writer) WriteReport(ctx context.Context, user, profile string, rep core.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := w.SheetName(rep.Year)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sheets[name] = sheets.MergeRows(w.sheets[name], user, profile, sheets.ReportRows(user, profile, rep))
	return nil
}

func (w *Writer) SheetName(year int) string {
	return fmt.Sprintf("%d %s", year, w.base)
}

// Rows returns a copy of a sheet's rows, header included.
func (w *Writer) Rows(sheet string) [][]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := w.sheets[sheet]
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

// Sheets returns the number of sheets written so far.
func (w *Writer) Sheets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sheets)
}
