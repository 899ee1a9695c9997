package projection

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/artifacts"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/pca"
)

var training = [][]float64{
	{1, 1, -1, 0},
	{1, 1, -1, -1},
	{-1, -1, 1, 1},
	{-1, 0, 1, 1},
	{1, -1, 0, -1},
	{0, 1, -1, 1},
}

var issueIDs = []string{"i1", "i2", "i3", "i4"}

func trainedBasis(t *testing.T) (*artifacts.Basis, *pca.Result) {
	t.Helper()
	res := pca.Decompose(training, pca.DefaultOptions())
	b := &artifacts.Basis{IssueIDs: issueIDs, Means: res.Means, Components: res.Components}
	if err := b.Validate(); err != nil {
		t.Fatalf("basis invalid: %v", err)
	}
	return b, res
}

// Projecting a legislator's full training row reproduces their scores.
func TestSelfProjection(t *testing.T) {
	b, res := trainedBasis(t)
	for i, row := range training {
		responses := make([]Response, len(row))
		for j, v := range row {
			responses[j] = Response{IssueID: issueIDs[j], Value: v}
		}
		got := Project(b, responses)
		if got.Answered != len(row) || got.Stale() {
			t.Errorf("row %d: answered=%d unmatched=%v", i, got.Answered, got.Unmatched)
		}
		for c := range got.Coordinates {
			if math.Abs(got.Coordinates[c]-res.Scores[i][c]) > 1e-9 {
				t.Errorf("row %d axis %d: %v, want %v", i, c, got.Coordinates[c], res.Scores[i][c])
			}
		}
	}
}

func TestUnknownIssuesAreReportedNotFatal(t *testing.T) {
	b, _ := trainedBasis(t)
	got := Project(b, []Response{
		{IssueID: "i1", Value: 1},
		{IssueID: "retired-bill", Value: -1},
	})
	if got.Answered != 1 {
		t.Errorf("answered = %d, want 1", got.Answered)
	}
	if diff := cmp.Diff([]string{"retired-bill"}, got.Unmatched); diff != "" {
		t.Errorf("unmatched (-want +got):\n%s", diff)
	}
	if !got.Stale() {
		t.Error("expected stale result")
	}
}

func TestMalformedValuesAreNeutral(t *testing.T) {
	b, _ := trainedBasis(t)
	neutral := Project(b, []Response{{IssueID: "i2", Value: 0}})
	for _, v := range []float64{0.5, 7, -3, math.NaN(), math.Inf(1)} {
		got := Project(b, []Response{{IssueID: "i2", Value: v}})
		if diff := cmp.Diff(neutral.Coordinates, got.Coordinates); diff != "" {
			t.Errorf("value %v not neutral (-want +got):\n%s", v, diff)
		}
	}
}

func TestNoResponsesIsMinusMeanProjection(t *testing.T) {
	b, _ := trainedBasis(t)
	got := Project(b, nil)
	for c, comp := range b.Components {
		var want float64
		for j, w := range comp {
			want -= b.Means[j] * w
		}
		if math.Abs(got.Coordinates[c]-want) > 1e-12 {
			t.Errorf("axis %d = %v, want %v", c, got.Coordinates[c], want)
		}
	}
}

func TestNilBasis(t *testing.T) {
	got := Project(nil, []Response{{IssueID: "x", Value: 1}})
	if len(got.Coordinates) != 0 || got.Answered != 0 || len(got.Unmatched) != 1 {
		t.Errorf("unexpected result %+v", got)
	}
}
