package loadings

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/pca"
)

func TestConstantIssueHasZeroLoading(t *testing.T) {
	data := [][]float64{
		{1, 1, -1, 1},
		{1, -1, -1, 1},
		{-1, 1, -1, -1},
		{-1, -1, -1, 0},
		{1, 0, -1, 1},
	}
	res := pca.Decompose(data, pca.DefaultOptions())
	corr := Correlations(res.Centered, res.Scores)

	if len(corr) != 3 {
		t.Fatalf("expected 3 axes, got %d", len(corr))
	}
	for c, row := range corr {
		if row[2] != 0 {
			t.Errorf("axis %d loading on unanimous issue = %v, want exactly 0", c, row[2])
		}
		for j, v := range row {
			if math.IsNaN(v) || v < -1 || v > 1 {
				t.Errorf("axis %d issue %d loading %v out of range", c, j, v)
			}
		}
	}
}

func TestCorrelationOfPerfectlyAlignedIssue(t *testing.T) {
	centered := [][]float64{{1, -1}, {-1, 1}, {0, 0}}
	scores := [][]float64{{2}, {-2}, {0}}
	corr := Correlations(centered, scores)
	if math.Abs(corr[0][0]-1) > 1e-12 || math.Abs(corr[0][1]+1) > 1e-12 {
		t.Errorf("corr = %v, want [[1 -1]]", corr)
	}
}

func TestZeroAxisHasZeroLoadings(t *testing.T) {
	centered := [][]float64{{1}, {-1}}
	scores := [][]float64{{0}, {0}}
	if got := Correlations(centered, scores); got[0][0] != 0 {
		t.Errorf("loading on zero axis = %v", got[0][0])
	}
}

func TestTopPerAxis(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	corr := [][]float64{
		{0.9, -0.8, 0.5, 0, -0.3, 0.5},
	}
	got := TopPerAxis(corr, ids, 2)
	want := [][]IssueLoading{{
		{IssueID: "a", Loading: 0.9},
		{IssueID: "c", Loading: 0.5},
		{IssueID: "b", Loading: -0.8},
		{IssueID: "e", Loading: -0.3},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TopPerAxis mismatch (-want +got):\n%s", diff)
	}
}

func TestTopPerAxisFewerThanN(t *testing.T) {
	got := TopPerAxis([][]float64{{0.2, 0}}, []string{"a", "b"}, 3)
	want := [][]IssueLoading{{{IssueID: "a", Loading: 0.2}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnosticUsesAbsoluteFirstAxis(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	corr := [][]float64{
		{0.1, -0.9, 0.4, -0.4},
		{0.99, 0, 0, 0},
	}
	got := Diagnostic(corr, ids, 3)
	want := []IssueLoading{
		{IssueID: "b", Loading: -0.9},
		{IssueID: "c", Loading: 0.4},
		{IssueID: "d", Loading: -0.4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diagnostic mismatch (-want +got):\n%s", diff)
	}
}
