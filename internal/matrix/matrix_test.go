package matrix

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
)

func rec(l, i string, v votes.Value) votes.Record {
	return votes.Record{LegislatorID: l, IssueID: i, Value: v}
}

func TestBuildEncodesAndOrders(t *testing.T) {
	records := []votes.Record{
		rec("b", "i2", votes.No),
		rec("a", "i1", votes.Yes),
		rec("a", "i2", votes.Abstain),
		rec("b", "i1", votes.DidNotVote),
		rec("b", "i3", votes.Yes),
	}
	m := Build(records, Options{})

	want := &Matrix{
		Legislators: []string{"a", "b"},
		Issues:      []string{"i1", "i2", "i3"},
		Values: [][]float64{
			{1, 0, 0},
			{0, -1, 1},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFiltersByParticipation(t *testing.T) {
	records := []votes.Record{
		rec("a", "i1", votes.Yes), rec("a", "i2", votes.No), rec("a", "i3", votes.Yes),
		rec("b", "i1", votes.No), rec("b", "i2", votes.Yes),
		rec("c", "i1", votes.Yes), rec("c", "i2", votes.DidNotVote), rec("c", "i3", votes.DidNotVote),
	}
	m := Build(records, Options{MinVotesPerLegislator: 2, MinVotersPerIssue: 2})

	if diff := cmp.Diff([]string{"a", "b"}, m.Legislators); diff != "" {
		t.Errorf("legislators (-want +got):\n%s", diff)
	}
	// i3 has a single cast vote; i2's did_not_vote does not count.
	if diff := cmp.Diff([]string{"i1", "i2"}, m.Issues); diff != "" {
		t.Errorf("issues (-want +got):\n%s", diff)
	}
	if got := m.Row("b"); got == nil || got[0] != -1 || got[1] != 1 {
		t.Errorf("Row(b) = %v", got)
	}
	if m.Row("c") != nil {
		t.Error("c should have been filtered out")
	}
}

func TestBuildDuplicateLastWins(t *testing.T) {
	records := []votes.Record{
		rec("a", "i1", votes.Yes),
		rec("a", "i1", votes.No),
	}
	m := Build(records, Options{MinVotesPerLegislator: 1, MinVotersPerIssue: 1})
	if m.Values[0][0] != -1 {
		t.Errorf("expected later record to win, got %v", m.Values[0][0])
	}
}

func TestBuildEmpty(t *testing.T) {
	m := Build(nil, Options{})
	if !m.Empty() {
		t.Fatal("expected empty matrix")
	}
	m = Build([]votes.Record{rec("a", "i1", votes.Yes)}, Options{MinVotesPerLegislator: 5})
	if !m.Empty() || m.Rows() != 0 {
		t.Errorf("expected all legislators filtered, got %+v", m)
	}
}

func TestBuildZeroThresholdKeepsAbsentees(t *testing.T) {
	records := []votes.Record{
		rec("a", "i1", votes.Yes),
		rec("a", "i2", votes.No),
		rec("z", "i1", votes.DidNotVote),
		rec("z", "i2", votes.DidNotVote),
		rec("z", "i3", votes.DidNotVote),
	}
	m := Build(records, Options{})

	want := &Matrix{
		Legislators: []string{"a", "z"},
		Issues:      []string{"i1", "i2", "i3"},
		Values: [][]float64{
			{1, -1, 0},
			{0, 0, 0},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}

	// A threshold of one drops the absentee and the issue nobody voted on.
	m = Build(records, Options{MinVotesPerLegislator: 1, MinVotersPerIssue: 1})
	if diff := cmp.Diff([]string{"a"}, m.Legislators); diff != "" {
		t.Errorf("legislators (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"i1", "i2"}, m.Issues); diff != "" {
		t.Errorf("issues (-want +got):\n%s", diff)
	}
}
