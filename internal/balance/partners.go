package balance

import "bilancio/internal/core"

// Party is one side of a two-party period.
type Party struct {
	Name    string // prefix used for joint source names, e.g. "her"
	Sources []core.FundingSource
	Items   map[string][]core.LineItem
}

type PartnerBalances struct {
	First  core.Balances
	Second core.Balances
	// Joint depletes the pooled sources by both parties' expenses. Source
	// names are qualified as "<party>.<source>".
	Joint core.Balances
}

// ComputePartners runs the waterfall three times: once per party and once on
// the pooled view. The joint result is computed on its own and is generally
// not the sum of the two individual results, since pooling lets one party's
// surplus absorb the other's overspend.
//
// jointOrder lists qualified source names ("her.income") in depletion order.
// Sources it does not name follow in the default interleaved order: first
// source of each party, then the second of each, and so on. Unknown names are
// ignored.
func ComputePartners(first, second Party, jointOrder []string) PartnerBalances {
	return PartnerBalances{
		First:  Compute(first.Sources, first.Items),
		Second: Compute(second.Sources, second.Items),
		Joint:  Compute(JointSources(first, second, jointOrder), JointItems(first, second)),
	}
}

// JointSources builds the pooled source list used for the joint view.
func JointSources(first, second Party, order []string) []core.FundingSource {
	var interleaved []core.FundingSource
	for i := 0; i < max(len(first.Sources), len(second.Sources)); i++ {
		if i < len(first.Sources) {
			interleaved = append(interleaved, qualify(first.Name, first.Sources[i]))
		}
		if i < len(second.Sources) {
			interleaved = append(interleaved, qualify(second.Name, second.Sources[i]))
		}
	}
	if len(order) == 0 {
		return interleaved
	}

	byName := make(map[string]int, len(interleaved))
	for i, s := range interleaved {
		if _, dup := byName[s.Name]; !dup {
			byName[s.Name] = i
		}
	}
	used := make([]bool, len(interleaved))
	out := make([]core.FundingSource, 0, len(interleaved))
	for _, name := range order {
		i, ok := byName[name]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, interleaved[i])
	}
	for i, s := range interleaved {
		if !used[i] {
			out = append(out, s)
		}
	}
	return out
}

// JointItems merges both parties' buckets, first party's items first.
func JointItems(first, second Party) map[string][]core.LineItem {
	out := make(map[string][]core.LineItem, len(first.Items)+len(second.Items))
	for _, p := range []Party{first, second} {
		for bucket, list := range p.Items {
			merged := make([]core.LineItem, 0, len(out[bucket])+len(list))
			merged = append(merged, out[bucket]...)
			out[bucket] = append(merged, list...)
		}
	}
	return out
}

func qualify(party string, s core.FundingSource) core.FundingSource {
	if party == "" {
		return s
	}
	return core.FundingSource{Name: party + "." + s.Name, InitialAmount: s.InitialAmount}
}
