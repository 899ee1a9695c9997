// Package loadings ranks the issues that best explain each principal axis.
//
// A loading here is the Pearson correlation between an issue's centered vote
// column and the legislators' scores on an axis. Unlike the raw eigenvector
// coefficient it is bounded to [-1, 1] and comparable across axes.
package loadings

import (
	"math"
	"sort"
)

const epsilon = 1e-12

// IssueLoading is one issue's correlation with an axis.
type IssueLoading struct {
	IssueID string  `json:"issueId"`
	Loading float64 `json:"loading"`
}

// Correlations returns corr[axis][issue] for a centered n x m matrix and the
// n x k scores computed from it. Columns or axes without variance correlate
// as exactly 0.
func Correlations(centered [][]float64, scores [][]float64) [][]float64 {
	n := len(centered)
	if n == 0 || len(scores) != n {
		return [][]float64{}
	}
	m := len(centered[0])
	k := len(scores[0])

	corr := make([][]float64, k)
	for c := 0; c < k; c++ {
		axis := make([]float64, n)
		for i := range scores {
			axis[i] = scores[i][c]
		}
		axis = demean(axis)
		axisNorm := math.Sqrt(sumSquares(axis))

		row := make([]float64, m)
		for j := 0; j < m; j++ {
			if axisNorm < epsilon {
				continue
			}
			col := make([]float64, n)
			for i := range centered {
				col[i] = centered[i][j]
			}
			col = demean(col)
			colNorm := math.Sqrt(sumSquares(col))
			if colNorm < epsilon {
				continue
			}
			var cov float64
			for i := range col {
				cov += col[i] * axis[i]
			}
			row[j] = clamp(cov / (colNorm * axisNorm))
		}
		corr[c] = row
	}
	return corr
}

// TopPerAxis keeps, for every axis, up to n issues with the most positive
// loading (strongest first) followed by up to n with the most negative
// loading (strongest first). Zero loadings are never selected.
func TopPerAxis(corr [][]float64, issueIDs []string, n int) [][]IssueLoading {
	out := make([][]IssueLoading, len(corr))
	for c, row := range corr {
		ranked := rank(row, issueIDs)
		sort.SliceStable(ranked, func(a, b int) bool {
			if ranked[a].Loading != ranked[b].Loading {
				return ranked[a].Loading > ranked[b].Loading
			}
			return ranked[a].IssueID < ranked[b].IssueID
		})

		selected := make([]IssueLoading, 0, 2*n)
		for _, il := range ranked {
			if len(selected) == n || il.Loading <= 0 {
				break
			}
			selected = append(selected, il)
		}
		positives := len(selected)
		for i := len(ranked) - 1; i >= 0; i-- {
			il := ranked[i]
			if len(selected)-positives == n || il.Loading >= 0 {
				break
			}
			selected = append(selected, il)
		}
		out[c] = selected
	}
	return out
}

// Diagnostic returns the n issues with the largest absolute loading on the
// first axis, strongest first. These discriminate best between legislators
// and are used to build questionnaires.
func Diagnostic(corr [][]float64, issueIDs []string, n int) []IssueLoading {
	if len(corr) == 0 || n <= 0 {
		return []IssueLoading{}
	}
	ranked := rank(corr[0], issueIDs)
	sort.SliceStable(ranked, func(a, b int) bool {
		x, y := math.Abs(ranked[a].Loading), math.Abs(ranked[b].Loading)
		if x != y {
			return x > y
		}
		return ranked[a].IssueID < ranked[b].IssueID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func rank(row []float64, issueIDs []string) []IssueLoading {
	ranked := make([]IssueLoading, 0, len(row))
	for j, v := range row {
		if j >= len(issueIDs) {
			break
		}
		ranked = append(ranked, IssueLoading{IssueID: issueIDs[j], Loading: v})
	}
	return ranked
}

func demean(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x - mean
	}
	return out
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

// clamp absorbs rounding that would push a correlation past ±1.
func clamp(r float64) float64 {
	switch {
	case r > 1:
		return 1
	case r < -1:
		return -1
	}
	return r
}
