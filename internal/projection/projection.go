// Package projection places a new, possibly partial, vote vector on the axes
// of a stored basis.
package projection

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/artifacts"
)

// Response is one answer to an issue. Value is +1 for yes, -1 for no and 0
// for abstain; anything else is treated as 0.
type Response struct {
	IssueID string  `json:"issueId"`
	Value   float64 `json:"value"`
}

// Result is the projected point plus counts describing how much of the
// basis the responses covered.
type Result struct {
	Coordinates []float64 `json:"coordinates"`
	Answered    int       `json:"answered"`
	Unmatched   []string  `json:"unmatched,omitempty"`
}

// Stale reports whether some responses named issues the basis does not know.
func (r Result) Stale() bool { return len(r.Unmatched) > 0 }

// Project computes coordinates[c] = Σ_j (r_j - mean_j) · component[c][j].
// Unanswered issues contribute r_j = 0. When an issue is answered twice the
// later response is used.
func Project(basis *artifacts.Basis, responses []Response) Result {
	if basis == nil || len(basis.IssueIDs) == 0 {
		res := Result{Coordinates: []float64{}}
		for _, r := range responses {
			res.Unmatched = append(res.Unmatched, r.IssueID)
		}
		return res
	}

	index := basis.Index()

	answers := make([]float64, len(basis.IssueIDs))
	answered := make([]bool, len(basis.IssueIDs))
	var unmatched []string
	for _, r := range responses {
		j, ok := index[r.IssueID]
		if !ok {
			unmatched = append(unmatched, r.IssueID)
			continue
		}
		answers[j] = normalize(r.Value)
		answered[j] = true
	}

	count := 0
	for _, a := range answered {
		if a {
			count++
		}
	}

	coords := make([]float64, len(basis.Components))
	for c, comp := range basis.Components {
		var s float64
		for j, w := range comp {
			s += (answers[j] - basis.Means[j]) * w
		}
		coords[c] = s
	}
	return Result{Coordinates: coords, Answered: count, Unmatched: unmatched}
}

func normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	switch v {
	case 1, -1:
		return v
	default:
		return 0
	}
}
