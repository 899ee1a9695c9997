// Package matrix assembles the dense legislator x issue vote matrix that the
// decomposition runs on.
package matrix

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
)

// Options are the participation thresholds. A legislator needs at least
// MinVotesPerLegislator cast votes and an issue at least MinVotersPerIssue
// cast votes to be kept. Both are counted after duplicate records collapse,
// and everyone who appears in the records is a candidate, so with a zero
// threshold a legislator who never cast a vote still gets a row.
type Options struct {
	MinVotesPerLegislator int
	MinVotersPerIssue     int
}

// Matrix holds one row per retained legislator and one column per retained
// issue, both in ascending id order.
type Matrix struct {
	Legislators []string    `json:"legislators"`
	Issues      []string    `json:"issues"`
	Values      [][]float64 `json:"values"`
}

// Empty reports whether filtering left no legislators or no issues.
func (m *Matrix) Empty() bool {
	return m == nil || len(m.Legislators) == 0 || len(m.Issues) == 0
}

func (m *Matrix) Rows() int { return len(m.Legislators) }
func (m *Matrix) Cols() int { return len(m.Issues) }

// Row returns the encoded votes of a legislator, or nil if it was filtered out.
func (m *Matrix) Row(legislatorID string) []float64 {
	i := sort.SearchStrings(m.Legislators, legislatorID)
	if i < len(m.Legislators) && m.Legislators[i] == legislatorID {
		return m.Values[i]
	}
	return nil
}

type cell struct {
	legislator, issue string
}

// Build filters and encodes records. When the same legislator appears twice
// on an issue the later record wins.
func Build(records []votes.Record, opts Options) *Matrix {
	latest := make(map[cell]votes.Value, len(records))
	for _, r := range records {
		if r.LegislatorID == "" || r.IssueID == "" {
			continue
		}
		latest[cell{r.LegislatorID, r.IssueID}] = r.Value
	}

	votesPerLegislator := make(map[string]int)
	votersPerIssue := make(map[string]int)
	for c, v := range latest {
		var cast int
		if v.Cast() {
			cast = 1
		}
		votesPerLegislator[c.legislator] += cast
		votersPerIssue[c.issue] += cast
	}

	legislators := make([]string, 0, len(votesPerLegislator))
	for id, n := range votesPerLegislator {
		if n >= opts.MinVotesPerLegislator {
			legislators = append(legislators, id)
		}
	}
	issues := make([]string, 0, len(votersPerIssue))
	for id, n := range votersPerIssue {
		if n >= opts.MinVotersPerIssue {
			issues = append(issues, id)
		}
	}
	sort.Strings(legislators)
	sort.Strings(issues)

	m := &Matrix{Legislators: legislators, Issues: issues}
	if m.Empty() {
		return &Matrix{Legislators: []string{}, Issues: []string{}, Values: [][]float64{}}
	}

	rowIndex := make(map[string]int, len(legislators))
	for i, id := range legislators {
		rowIndex[id] = i
	}
	colIndex := make(map[string]int, len(issues))
	for j, id := range issues {
		colIndex[id] = j
	}
	m.Values = make([][]float64, len(legislators))
	for i := range m.Values {
		m.Values[i] = make([]float64, len(issues))
	}
	for c, v := range latest {
		i, ok := rowIndex[c.legislator]
		if !ok {
			continue
		}
		j, ok := colIndex[c.issue]
		if !ok {
			continue
		}
		m.Values[i][j] = v.Encode()
	}
	return m
}
