package balance

import (
	"testing"

	"bilancio/internal/core"
)

func couple() (Party, Party) {
	her := Party{
		Name:    "her",
		Sources: []core.FundingSource{{"income", 1000}, {"savings", 0}},
		Items:   items(map[string][]float64{"needs": {1500}}),
	}
	his := Party{
		Name:    "his",
		Sources: []core.FundingSource{{"income", 2000}, {"savings", 300}},
		Items:   items(map[string][]float64{"needs": {300}, "gifts": {200}}),
	}
	return her, his
}

func TestComputePartnersIndividualViews(t *testing.T) {
	her, his := couple()
	got := ComputePartners(her, his, nil)

	h := got.First.RemainingBySource()
	if h["income"] != 0 || h["savings"] != -500 {
		t.Fatalf("her: unexpected %v", h)
	}
	m := got.Second.RemainingBySource()
	if m["income"] != 1500 || m["savings"] != 300 {
		t.Fatalf("his: unexpected %v", m)
	}
}

func TestComputePartnersJointAbsorbsOverspend(t *testing.T) {
	her, his := couple()
	got := ComputePartners(her, his, nil)

	want := []core.SourceBalance{
		{"her.income", 0},
		{"his.income", 1000},
		{"her.savings", 0},
		{"his.savings", 300},
	}
	if len(got.Joint.Remaining) != len(want) {
		t.Fatalf("expected %d joint sources, got %+v", len(want), got.Joint.Remaining)
	}
	for i, w := range want {
		if got.Joint.Remaining[i] != w {
			t.Fatalf("joint[%d] = %+v, want %+v", i, got.Joint.Remaining[i], w)
		}
	}
	if got.Joint.TotalSpent != 2000 {
		t.Fatalf("expected joint spend 2000, got %v", got.Joint.TotalSpent)
	}
	if got.Joint.BucketTotals["needs"] != 1800 || got.Joint.BucketTotals["gifts"] != 200 {
		t.Fatalf("unexpected joint buckets: %v", got.Joint.BucketTotals)
	}

	// Summing the individual views would report her savings overdrawn.
	summed := got.First.RemainingBySource()["savings"] + got.Second.RemainingBySource()["savings"]
	if summed == got.Joint.RemainingBySource()["her.savings"]+got.Joint.RemainingBySource()["his.savings"] {
		t.Fatalf("joint view should differ from summed individual views")
	}
}

func TestJointSourcesCustomOrder(t *testing.T) {
	her, his := couple()
	got := JointSources(her, his, []string{"his.savings", "unknown", "her.income", "his.savings"})
	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
	}
	want := []string{"his.savings", "her.income", "his.income", "her.savings"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestJointItemsDoesNotAlias(t *testing.T) {
	her, his := couple()
	joint := JointItems(her, his)
	if len(joint["needs"]) != 2 {
		t.Fatalf("expected merged needs, got %+v", joint["needs"])
	}
	joint["needs"][0].Amount = 1
	if her.Items["needs"][0].Amount != 1500 {
		t.Fatalf("joint items alias the party input")
	}
}
