package memory

import (
	"context"
	"testing"

	"bilancio/internal/core"
)

func TestWriterReplacesUserRows(t *testing.T) {
	w := New("")
	ctx := context.Background()
	rep := core.Report{Year: 2024, Months: map[int]core.MonthReport{1: {TotalSpent: 10}, 2: {TotalSpent: 20}}}

	if err := w.WriteReport(ctx, "alice", "individual", rep); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteReport(ctx, "bob", "individual", rep); err != nil {
		t.Fatal(err)
	}
	rep.Months = map[int]core.MonthReport{1: {TotalSpent: 5}}
	if err := w.WriteReport(ctx, "alice", "individual", rep); err != nil {
		t.Fatal(err)
	}

	rows := w.Rows("2024 Report")
	if len(rows) != 4 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
	last := rows[len(rows)-1]
	if last[0] != "alice" || last[3] != "5.00" {
		t.Errorf("last row = %v", last)
	}
	if w.Sheets() != 1 {
		t.Errorf("sheets = %d", w.Sheets())
	}
}

func TestWriterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New("X").WriteReport(ctx, "a", "b", core.Report{Year: 2024}); err == nil {
		t.Fatal("expected error")
	}
}
