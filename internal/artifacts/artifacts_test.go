package artifacts

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
)

func sampleBasis() *Basis {
	return &Basis{
		IssueIDs:   []string{"a", "b"},
		Means:      []float64{0.5, -0.25},
		Components: [][]float64{{-0.6, -0.8}, {-0.8, 0.6}},
	}
}

func TestEncodeDecode(t *testing.T) {
	in := sampleBasis()
	rec, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if rec.Key != KeyBasis || rec.Version != Version {
		t.Fatalf("record header = %s v%d", rec.Key, rec.Version)
	}
	out := &Basis{}
	if err := Decode(&rec, out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("basis (-want +got):\n%s", diff)
	}
}

func TestDecodeRejects(t *testing.T) {
	good, err := Encode(sampleBasis())
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]store.Record{
		"wrong key":     {Key: KeyVariance, Version: Version, Data: good.Data},
		"wrong version": {Key: KeyBasis, Version: Version + 1, Data: good.Data},
		"not json":      {Key: KeyBasis, Version: Version, Data: []byte(`{`)},
		"bad shape":     {Key: KeyBasis, Version: Version, Data: []byte(`{"issueIds":["a"],"means":[0,1],"components":[[1]]}`)},
		"empty":         {Key: KeyBasis, Version: Version, Data: []byte(`{}`)},
	}
	for name, rec := range cases {
		rec := rec
		if err := Decode(&rec, &Basis{}); !errors.Is(err, apperrors.ErrArtifactInvalid) {
			t.Errorf("%s: err = %v, want ErrArtifactInvalid", name, err)
		}
	}
}

func TestEncodeRefusesInvalid(t *testing.T) {
	if _, err := Encode(&Variance{1, -0.1}); err == nil {
		t.Error("negative variance accepted")
	}
	if _, err := Encode(&PartyAgreement{{PartyA: "SD", PartyB: "EPP", TotalBills: 1}}); err == nil {
		t.Error("unordered pair accepted")
	}
	if _, err := Encode(&Questionnaire{{IssueID: "x", Loading: 1.5}}); err == nil {
		t.Error("loading outside [-1,1] accepted")
	}
	if _, err := Encode(&LegislatorCoordinates{
		{LegislatorID: "a", Coordinates: []float64{1, 2}},
		{LegislatorID: "b", Coordinates: []float64{1}},
	}); err == nil {
		t.Error("ragged coordinates accepted")
	}
}

func TestListArtifactsStoreBareArrays(t *testing.T) {
	tests := []struct {
		name string
		in   Artifact
		want string
	}{
		{"variance", &Variance{2.5, 1}, `[2.5,1]`},
		{"top issues", &TopIssues{{{IssueID: "b1", Loading: -0.5}}}, `[[{"issueId":"b1","loading":-0.5}]]`},
		{
			"agreement",
			&PartyAgreement{{PartyA: "EPP", PartyB: "SD", Agreements: 3, TotalBills: 4}},
			`[{"partyA":"EPP","partyB":"SD","totalBills":4,"agreements":3}]`,
		},
		{
			"cohesion",
			&PartyCohesion{{Party: "SD", AvgCohesionPercent: 80, BillsVoted: 2}},
			`[{"party":"SD","avgCohesionPercent":80,"billsVoted":2}]`,
		},
		{"empty agreement", &PartyAgreement{}, `[]`},
		{"nil cohesion", new(PartyCohesion), `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(rec.Data) == 0 || rec.Data[0] != '[' {
				t.Fatalf("stored %s, want a JSON array", rec.Data)
			}
			if diff := cmp.Diff(tt.want, string(rec.Data)); diff != "" {
				t.Errorf("stored bytes (-want +got):\n%s", diff)
			}
			out, err := New(tt.in.Key())
			if err != nil {
				t.Fatal(err)
			}
			if err := Decode(&rec, out); err != nil {
				t.Fatalf("Decode: %v", err)
			}
		})
	}
}

func TestNewCoversEveryKey(t *testing.T) {
	for _, key := range Keys {
		a, err := New(key)
		if err != nil {
			t.Fatalf("New(%q): %v", key, err)
		}
		if a.Key() != key {
			t.Errorf("New(%q).Key() = %q", key, a.Key())
		}
	}
	if _, err := New("nope"); !errors.Is(err, apperrors.ErrArtifactNotFound) {
		t.Errorf("unknown key err = %v", err)
	}
}
