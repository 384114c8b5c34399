// Package profile describes the life-stage profiles a user can track:
// which funding sources they have, in what order those sources are
// depleted, and which expense buckets they record.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"bilancio/internal/balance"
	"bilancio/internal/core"
)

const (
	Individual Name = "individual"
	Dependent  Name = "dependent"
	Retiree    Name = "retiree"
	Couple     Name = "couple"
	Group      Name = "group"
)

// Party prefixes for the couple profile. Couple records store both parties'
// sources and buckets in one record, qualified as "her.income", "his.needs".
const (
	PartyHer = "her"
	PartyHis = "his"
)

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrUnknownBucket  = errors.New("unknown bucket")
	ErrUnknownSource  = errors.New("unknown funding source")
	ErrItemIndex      = errors.New("line item index out of range")
)

type (
	Name string

	// Bucket is a validated expense category of a profile. Obtain one with
	// Profile.Bucket so that name checks happen once, at the boundary.
	Bucket struct {
		name string
	}

	Profile struct {
		Name    Name
		Family  string   // persistence key prefix
		Sources []string // depletion order
		Buckets []string
		// Parties is set for two-party profiles; sources and buckets above
		// are then per party and get qualified with the party prefix.
		Parties []string
		// JointOrder is the depletion order of the pooled view.
		JointOrder []string
	}
)

var registry = map[Name]Profile{
	Individual: {
		Name:    Individual,
		Family:  "budget",
		Sources: []string{"income", "savings"},
		Buckets: []string{"needs", "wants", "bills", "gifts"},
	},
	Dependent: {
		Name:    Dependent,
		Family:  "allowance",
		Sources: []string{"allowance", "savings"},
		Buckets: []string{"needs", "wants", "school"},
	},
	Retiree: {
		Name:    Retiree,
		Family:  "pension",
		Sources: []string{"pension", "savings"},
		Buckets: []string{"needs", "medical", "bills", "gifts"},
	},
	Group: {
		Name:    Group,
		Family:  "group",
		Sources: []string{"contributions", "savings"},
		Buckets: []string{"needs", "events", "bills"},
	},
	Couple: {
		Name:       Couple,
		Family:     "couple",
		Sources:    []string{"income", "savings"},
		Buckets:    []string{"needs", "wants", "bills", "gifts"},
		Parties:    []string{PartyHer, PartyHis},
		JointOrder: []string{"her.income", "his.income", "her.savings", "his.savings"},
	},
}

// Lookup returns the profile registered under name (case-insensitive).
func Lookup(name string) (Profile, error) {
	p, ok := registry[Name(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// All returns every profile sorted by name.
func All() []Profile {
	out := make([]Profile, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (n Name) String() string { return string(n) }

func (b Bucket) String() string { return b.name }

// IsPartnered reports whether the profile tracks two parties.
func (p Profile) IsPartnered() bool { return len(p.Parties) > 0 }

// SourceNames returns the names stored in records, qualified for couples.
func (p Profile) SourceNames() []string {
	if !p.IsPartnered() {
		return append([]string(nil), p.Sources...)
	}
	var out []string
	for _, party := range p.Parties {
		for _, s := range p.Sources {
			out = append(out, party+"."+s)
		}
	}
	return out
}

// BucketNames returns the bucket names stored in records, qualified for couples.
func (p Profile) BucketNames() []string {
	if !p.IsPartnered() {
		return append([]string(nil), p.Buckets...)
	}
	var out []string
	for _, party := range p.Parties {
		for _, b := range p.Buckets {
			out = append(out, party+"."+b)
		}
	}
	return out
}

// DepletionOrder returns the stored source names in the order the waterfall
// consumes them. For two-party profiles that is JointOrder, followed by any
// qualified source JointOrder leaves out.
func (p Profile) DepletionOrder() []string {
	names := p.SourceNames()
	if !p.IsPartnered() || len(p.JointOrder) == 0 {
		return names
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	out := make([]string, 0, len(names))
	used := make(map[string]bool, len(names))
	for _, n := range p.JointOrder {
		if known[n] && !used[n] {
			used[n] = true
			out = append(out, n)
		}
	}
	for _, n := range names {
		if !used[n] {
			out = append(out, n)
		}
	}
	return out
}

// Bucket resolves a bucket name for this profile.
func (p Profile) Bucket(name string) (Bucket, error) {
	name = strings.TrimSpace(name)
	for _, b := range p.BucketNames() {
		if b == name {
			return Bucket{name: b}, nil
		}
	}
	return Bucket{}, fmt.Errorf("%w: %q for profile %s", ErrUnknownBucket, name, p.Name)
}

// Template returns an empty record for the period with every source at zero.
func (p Profile) Template(year, month int) core.PeriodRecord {
	rec := core.PeriodRecord{
		Year:              year,
		Month:             month,
		LineItemsByBucket: make(map[string][]core.LineItem),
	}
	for _, name := range p.DepletionOrder() {
		rec.Sources = append(rec.Sources, core.FundingSource{Name: name})
	}
	return rec
}

// Normalize puts a record's sources into the profile's depletion order, so
// that balance.Compute on the record matches the joint view for couples.
// Known sources missing from the record are added at zero; sources the
// profile does not know are kept after the known ones in their original order.
func (p Profile) Normalize(rec core.PeriodRecord) core.PeriodRecord {
	out := clone(rec)
	amounts := make(map[string]float64, len(rec.Sources))
	for _, s := range rec.Sources {
		amounts[s.Name] += s.InitialAmount
	}

	known := p.DepletionOrder()
	isKnown := make(map[string]bool, len(known))
	out.Sources = make([]core.FundingSource, 0, len(known)+len(rec.Sources))
	for _, name := range known {
		isKnown[name] = true
		out.Sources = append(out.Sources, core.FundingSource{Name: name, InitialAmount: amounts[name]})
	}
	seen := map[string]bool{}
	for _, s := range rec.Sources {
		if isKnown[s.Name] || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out.Sources = append(out.Sources, core.FundingSource{Name: s.Name, InitialAmount: amounts[s.Name]})
	}
	return out
}

// Split separates a couple record into its two parties, stripping the party
// prefix from source and bucket names. Entries without a known prefix go to
// neither party.
func (p Profile) Split(rec core.PeriodRecord) (balance.Party, balance.Party) {
	parties := make([]balance.Party, 2)
	for i := range parties {
		if i < len(p.Parties) {
			parties[i].Name = p.Parties[i]
		}
		parties[i].Items = make(map[string][]core.LineItem)
	}

	for _, s := range rec.Sources {
		if i, rest := partyOf(parties, s.Name); i >= 0 {
			parties[i].Sources = append(parties[i].Sources, core.FundingSource{Name: rest, InitialAmount: s.InitialAmount})
		}
	}
	for bucket, list := range rec.LineItemsByBucket {
		i, rest := partyOf(parties, bucket)
		if i < 0 {
			continue
		}
		for _, it := range list {
			it.Bucket = rest
			parties[i].Items[rest] = append(parties[i].Items[rest], it)
		}
	}
	return parties[0], parties[1]
}

func partyOf(parties []balance.Party, qualified string) (int, string) {
	for i, party := range parties {
		if party.Name == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(qualified, party.Name+"."); ok {
			return i, rest
		}
	}
	return -1, ""
}
