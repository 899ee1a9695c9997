package party

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
)

// Options set the minimum number of voting members a party needs on an issue
// before it has a majority position or a cohesion score for that issue.
type Options struct {
	MinMajorityVoters int
	MinCohesionVoters int
}

// DefaultOptions returns the settings used by the batch run.
func DefaultOptions() Options {
	return Options{MinMajorityVoters: 1, MinCohesionVoters: 3}
}

// AgreementEntry counts, for one unordered pair of parties, the issues on
// which both had a majority and how many of those majorities matched.
type AgreementEntry struct {
	PartyA     string `json:"partyA"`
	PartyB     string `json:"partyB"`
	TotalBills int    `json:"totalBills"`
	Agreements int    `json:"agreements"`
}

// AgreementPercent is Agreements/TotalBills in [0,100]; 0 when TotalBills is 0.
func (e AgreementEntry) AgreementPercent() float64 {
	if e.TotalBills == 0 {
		return 0
	}
	return float64(e.Agreements) / float64(e.TotalBills) * 100
}

// CohesionEntry is a party's mean cohesion over the issues it qualified on.
type CohesionEntry struct {
	Party              string  `json:"party"`
	AvgCohesionPercent float64 `json:"avgCohesionPercent"`
	BillsVoted         int     `json:"billsVoted"`
}

// Result holds both tables. They are independent of each other.
type Result struct {
	Agreement []AgreementEntry
	Cohesion  []CohesionEntry
}

// Tally is a party's yes/no/abstain count on one issue.
type Tally struct {
	Yes, No, Abstain int
}

// Total is the number of members who cast a vote.
func (t Tally) Total() int { return t.Yes + t.No + t.Abstain }

// Majority returns the position held by most members. Equal counts resolve
// in the fixed order yes, no, abstain.
func (t Tally) Majority() votes.Value {
	best, count := votes.Yes, t.Yes
	if t.No > count {
		best, count = votes.No, t.No
	}
	if t.Abstain > count {
		best = votes.Abstain
	}
	return best
}

// Cohesion is the share of members voting with the majority, in percent.
func (t Tally) Cohesion() float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	top := max(t.Yes, t.No, t.Abstain)
	return float64(top) / float64(total) * 100
}

// Tallies counts cast votes per (issue, canonical party). Records of
// legislators whose group does not resolve are skipped, as are did_not_vote
// records. A repeated (legislator, issue) record replaces the earlier one.
func Tallies(records []votes.Record, groups map[string]string, table *Table) map[string]map[string]Tally {
	type cell struct{ legislator, issue string }
	latest := make(map[cell]votes.Value, len(records))
	order := make([]cell, 0, len(records))
	for _, r := range records {
		c := cell{r.LegislatorID, r.IssueID}
		if _, seen := latest[c]; !seen {
			order = append(order, c)
		}
		latest[c] = r.Value
	}

	codes := make(map[string]string, len(groups))
	out := make(map[string]map[string]Tally)
	for _, c := range order {
		v := latest[c]
		if !v.Cast() {
			continue
		}
		code, ok := codes[c.legislator]
		if !ok {
			code, _ = table.Canonical(groups[c.legislator])
			codes[c.legislator] = code
		}
		if code == "" {
			continue
		}
		byParty := out[c.issue]
		if byParty == nil {
			byParty = make(map[string]Tally)
			out[c.issue] = byParty
		}
		t := byParty[code]
		switch v {
		case votes.Yes:
			t.Yes++
		case votes.No:
			t.No++
		case votes.Abstain:
			t.Abstain++
		}
		byParty[code] = t
	}
	return out
}

// Aggregate computes the agreement and cohesion tables from raw records.
func Aggregate(records []votes.Record, groups map[string]string, table *Table, opts Options) Result {
	tallies := Tallies(records, groups, table)
	return Result{
		Agreement: agreement(tallies, opts),
		Cohesion:  cohesion(tallies, table, opts),
	}
}

func agreement(tallies map[string]map[string]Tally, opts Options) []AgreementEntry {
	type pair struct{ a, b string }
	entries := make(map[pair]*AgreementEntry)

	for _, byParty := range tallies {
		majorities := make(map[string]votes.Value, len(byParty))
		parties := make([]string, 0, len(byParty))
		for code, t := range byParty {
			if t.Total() == 0 || t.Total() < opts.MinMajorityVoters {
				continue
			}
			majorities[code] = t.Majority()
			parties = append(parties, code)
		}
		sort.Strings(parties)
		for i := 0; i < len(parties); i++ {
			for j := i + 1; j < len(parties); j++ {
				p := pair{parties[i], parties[j]}
				e := entries[p]
				if e == nil {
					e = &AgreementEntry{PartyA: p.a, PartyB: p.b}
					entries[p] = e
				}
				e.TotalBills++
				if majorities[p.a] == majorities[p.b] {
					e.Agreements++
				}
			}
		}
	}

	out := make([]AgreementEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartyA != out[j].PartyA {
			return out[i].PartyA < out[j].PartyA
		}
		return out[i].PartyB < out[j].PartyB
	})
	return out
}

func cohesion(tallies map[string]map[string]Tally, table *Table, opts Options) []CohesionEntry {
	// Issues are visited in a fixed order so the float sums are reproducible.
	issues := make([]string, 0, len(tallies))
	for issue := range tallies {
		issues = append(issues, issue)
	}
	sort.Strings(issues)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, issue := range issues {
		for code, t := range tallies[issue] {
			if t.Total() == 0 || t.Total() < opts.MinCohesionVoters {
				continue
			}
			sums[code] += t.Cohesion()
			counts[code]++
		}
	}

	out := make([]CohesionEntry, 0, len(counts))
	for code, n := range counts {
		out = append(out, CohesionEntry{
			Party:              code,
			AvgCohesionPercent: sums[code] / float64(n),
			BillsVoted:         n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := table.Rank(out[i].Party), table.Rank(out[j].Party)
		if ri != rj {
			return ri < rj
		}
		return out[i].Party < out[j].Party
	})
	return out
}
