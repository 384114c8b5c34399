package balance

import (
	"math"
	"testing"

	"bilancio/internal/core"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func items(amounts map[string][]float64) map[string][]core.LineItem {
	out := map[string][]core.LineItem{}
	for bucket, list := range amounts {
		for i, a := range list {
			out[bucket] = append(out[bucket], core.LineItem{Label: bucket + string(rune('a'+i)), Amount: a, Bucket: bucket})
		}
	}
	return out
}

func TestComputeScenarioIncomeThenSavings(t *testing.T) {
	sources := []core.FundingSource{{"income", 2000}, {"savings", 500}}
	got := Compute(sources, items(map[string][]float64{"needs": {1800}, "wants": {500}}))

	if got.TotalSpent != 2300 {
		t.Fatalf("expected total 2300, got %v", got.TotalSpent)
	}
	rem := got.RemainingBySource()
	if rem["income"] != 0 || rem["savings"] != 200 {
		t.Fatalf("expected income=0 savings=200, got %v", rem)
	}
	if got.BucketTotals["needs"] != 1800 || got.BucketTotals["wants"] != 500 {
		t.Fatalf("unexpected bucket totals: %v", got.BucketTotals)
	}
	if got.Remaining[0].Name != "income" || got.Remaining[1].Name != "savings" {
		t.Fatalf("remaining must keep source order: %+v", got.Remaining)
	}
}

func TestComputeEmptySources(t *testing.T) {
	got := Compute(nil, items(map[string][]float64{"needs": {100, 200}}))
	if len(got.Remaining) != 0 || len(got.RemainingBySource()) != 0 {
		t.Fatalf("expected no remaining entries, got %+v", got.Remaining)
	}
	if got.TotalSpent != 300 {
		t.Fatalf("expected total 300, got %v", got.TotalSpent)
	}
	if u := Unabsorbed(nil, got); u != 300 {
		t.Fatalf("expected 300 unabsorbed, got %v", u)
	}
}

func TestComputeEmptyItems(t *testing.T) {
	sources := []core.FundingSource{{"pension", 1200}, {"savings", 300}}
	got := Compute(sources, nil)
	if got.TotalSpent != 0 {
		t.Fatalf("expected zero spend, got %v", got.TotalSpent)
	}
	for i, s := range sources {
		if got.Remaining[i].Remaining != s.InitialAmount {
			t.Fatalf("%s: expected %v untouched, got %v", s.Name, s.InitialAmount, got.Remaining[i].Remaining)
		}
	}
}

func TestComputeConservesWithoutOverspend(t *testing.T) {
	cases := []struct {
		sources []float64
		spend   []float64
	}{
		{[]float64{100, 50}, []float64{120}},
		{[]float64{1000, 0, 250}, []float64{10.5, 99.25, 300}},
		{[]float64{0, 0, 40}, []float64{39.99}},
		{[]float64{500}, []float64{}},
	}
	for i, tc := range cases {
		var sources []core.FundingSource
		var before float64
		for j, a := range tc.sources {
			sources = append(sources, core.FundingSource{Name: string(rune('a' + j)), InitialAmount: a})
			before += a
		}
		got := Compute(sources, items(map[string][]float64{"x": tc.spend}))
		if got.TotalSpent > before {
			t.Fatalf("case %d: fixture overspends", i)
		}
		if !approx(before-got.TotalRemaining(), got.TotalSpent) {
			t.Fatalf("case %d: before=%v after=%v spent=%v", i, before, got.TotalRemaining(), got.TotalSpent)
		}
		for _, sb := range got.Remaining {
			if sb.Remaining < 0 {
				t.Fatalf("case %d: %s went negative without overspend", i, sb.Name)
			}
		}
	}
}

func TestComputeOverspendHitsLastSourceOnly(t *testing.T) {
	sources := []core.FundingSource{{"income", 300}, {"gifts", 100}, {"savings", 200}}
	got := Compute(sources, items(map[string][]float64{"needs": {500}, "medical": {250}}))

	want := got.TotalSpent - 600
	if got.Remaining[0].Remaining != 0 || got.Remaining[1].Remaining != 0 {
		t.Fatalf("earlier sources must be exactly 0: %+v", got.Remaining)
	}
	if !approx(got.Remaining[2].Remaining, -want) {
		t.Fatalf("expected last source at %v, got %v", -want, got.Remaining[2].Remaining)
	}
	if u := Unabsorbed(sources, got); !approx(u, want) {
		t.Fatalf("expected unabsorbed %v, got %v", want, u)
	}
}

func TestComputeIsOrderDependent(t *testing.T) {
	spend := items(map[string][]float64{"needs": {120}})
	forward := Compute([]core.FundingSource{{"income", 100}, {"savings", 50}}, spend)
	reversed := Compute([]core.FundingSource{{"savings", 50}, {"income", 100}}, spend)

	f, r := forward.RemainingBySource(), reversed.RemainingBySource()
	if f["income"] != 0 || f["savings"] != 30 {
		t.Fatalf("forward: unexpected %v", f)
	}
	if r["savings"] != 0 || r["income"] != 30 {
		t.Fatalf("reversed: unexpected %v", r)
	}
	if forward.TotalRemaining() != 30 || reversed.TotalRemaining() != 30 {
		t.Fatalf("total remaining must match: %v vs %v", forward.TotalRemaining(), reversed.TotalRemaining())
	}
}

func TestComputeNegativeSourceAbsorbsNothing(t *testing.T) {
	sources := []core.FundingSource{{"income", -100}, {"savings", 300}}
	got := Compute(sources, items(map[string][]float64{"needs": {50}}))
	if got.Remaining[0].Remaining != 0 || got.Remaining[1].Remaining != 250 {
		t.Fatalf("unexpected remaining: %+v", got.Remaining)
	}
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	sources := []core.FundingSource{{"income", 100}}
	in := items(map[string][]float64{"needs": {60, 70}})
	Compute(sources, in)
	if sources[0].InitialAmount != 100 || len(in["needs"]) != 2 || in["needs"][0].Amount != 60 {
		t.Fatalf("input was mutated: %+v %+v", sources, in)
	}
}

func TestComputeDeterministic(t *testing.T) {
	sources := []core.FundingSource{{"income", 1000.1}, {"savings", 0.2}}
	in := items(map[string][]float64{"a": {0.1}, "b": {0.2}, "c": {0.3}, "d": {999.7}})
	first := Compute(sources, in)
	for i := 0; i < 50; i++ {
		again := Compute(sources, in)
		if again.TotalSpent != first.TotalSpent || again.Remaining[1] != first.Remaining[1] {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}
