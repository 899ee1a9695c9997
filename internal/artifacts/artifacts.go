// Package artifacts defines the versioned records a batch run publishes and
// checks their shape whenever one is read back.
package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/loadings"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/party"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
)

// Version is the schema version written with every artifact. Records with
// any other version are rejected on read.
const Version = 1

const (
	KeyVariance              = "variance"
	KeyBasis                 = "basis"
	KeyTopIssues             = "topIssuesPerAxis"
	KeyPartyAgreement        = "partyAgreement"
	KeyPartyCohesion         = "partyCohesion"
	KeyLegislatorCoordinates = "legislatorCoordinates"
	KeyQuestionnaire         = "questionnaireIssues"
)

// Keys lists every artifact a complete run publishes.
var Keys = []string{
	KeyVariance,
	KeyBasis,
	KeyTopIssues,
	KeyPartyAgreement,
	KeyPartyCohesion,
	KeyLegislatorCoordinates,
	KeyQuestionnaire,
}

// Artifact is implemented by pointers to the record types below.
type Artifact interface {
	Key() string
	Validate() error
}

// New returns an empty artifact for key, ready to Decode into.
func New(key string) (Artifact, error) {
	switch key {
	case KeyVariance:
		return &Variance{}, nil
	case KeyBasis:
		return &Basis{}, nil
	case KeyTopIssues:
		return &TopIssues{}, nil
	case KeyPartyAgreement:
		return &PartyAgreement{}, nil
	case KeyPartyCohesion:
		return &PartyCohesion{}, nil
	case KeyLegislatorCoordinates:
		return &LegislatorCoordinates{}, nil
	case KeyQuestionnaire:
		return &Questionnaire{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown artifact %q", apperrors.ErrArtifactNotFound, key)
	}
}

// Encode validates a and wraps it as a store record. List artifacts are
// stored as bare JSON arrays, never null.
func Encode(a Artifact) (store.Record, error) {
	if err := a.Validate(); err != nil {
		return store.Record{}, fmt.Errorf("encoding %s: %w", a.Key(), err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshaling %s: %w", a.Key(), err)
	}
	if bytes.Equal(data, []byte("null")) {
		data = []byte("[]")
	}
	return store.Record{Key: a.Key(), Version: Version, Data: data}, nil
}

// Decode fills dst from rec. A record for another key, another version, or
// with a body that fails validation yields ErrArtifactInvalid.
func Decode(rec *store.Record, dst Artifact) error {
	if rec.Key != dst.Key() {
		return fmt.Errorf("%w: record %q decoded as %q", apperrors.ErrArtifactInvalid, rec.Key, dst.Key())
	}
	if rec.Version != Version {
		return fmt.Errorf("%w: %s has version %d, want %d", apperrors.ErrArtifactInvalid, rec.Key, rec.Version, Version)
	}
	if err := json.Unmarshal(rec.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrArtifactInvalid, rec.Key, err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrArtifactInvalid, rec.Key, err)
	}
	return nil
}

// Variance is the variance captured by each axis, in axis order.
type Variance []float64

func (*Variance) Key() string { return KeyVariance }

func (v *Variance) Validate() error {
	if len(*v) == 0 {
		return fmt.Errorf("no axes")
	}
	for c, x := range *v {
		if !finite(x) || x < 0 {
			return fmt.Errorf("axis %d variance %v", c, x)
		}
	}
	return nil
}

// Basis is everything needed to project a new vote vector: the issue order,
// the column means subtracted before the decomposition and the components.
type Basis struct {
	IssueIDs   []string    `json:"issueIds"`
	Means      []float64   `json:"means"`
	Components [][]float64 `json:"components"`
}

func (*Basis) Key() string { return KeyBasis }

func (b *Basis) Validate() error {
	m := len(b.IssueIDs)
	if m == 0 {
		return fmt.Errorf("no issues")
	}
	if len(b.Means) != m {
		return fmt.Errorf("%d means for %d issues", len(b.Means), m)
	}
	if len(b.Components) == 0 {
		return fmt.Errorf("no components")
	}
	seen := make(map[string]bool, m)
	for _, id := range b.IssueIDs {
		if id == "" || seen[id] {
			return fmt.Errorf("bad or repeated issue id %q", id)
		}
		seen[id] = true
	}
	for j, x := range b.Means {
		if !finite(x) {
			return fmt.Errorf("mean %d is %v", j, x)
		}
	}
	for c, comp := range b.Components {
		if len(comp) != m {
			return fmt.Errorf("component %d has %d loadings for %d issues", c, len(comp), m)
		}
		for _, x := range comp {
			if !finite(x) {
				return fmt.Errorf("component %d has non-finite loading", c)
			}
		}
	}
	return nil
}

// Index maps issue ids to their column.
func (b *Basis) Index() map[string]int {
	idx := make(map[string]int, len(b.IssueIDs))
	for j, id := range b.IssueIDs {
		idx[id] = j
	}
	return idx
}

// TopIssues holds, per axis, the most positively then most negatively
// correlated issues.
type TopIssues [][]loadings.IssueLoading

func (*TopIssues) Key() string { return KeyTopIssues }

func (t *TopIssues) Validate() error {
	for c, axis := range *t {
		if err := validLoadings(axis); err != nil {
			return fmt.Errorf("axis %d: %w", c, err)
		}
	}
	return nil
}

// PartyAgreement has one entry per unordered party pair, PartyA < PartyB.
type PartyAgreement []party.AgreementEntry

func (*PartyAgreement) Key() string { return KeyPartyAgreement }

func (p *PartyAgreement) Validate() error {
	for _, e := range *p {
		if e.PartyA == "" || e.PartyA >= e.PartyB {
			return fmt.Errorf("pair %q/%q is not ordered", e.PartyA, e.PartyB)
		}
		if e.TotalBills < 0 || e.Agreements < 0 || e.Agreements > e.TotalBills {
			return fmt.Errorf("pair %s/%s: %d agreements over %d bills", e.PartyA, e.PartyB, e.Agreements, e.TotalBills)
		}
	}
	return nil
}

type PartyCohesion []party.CohesionEntry

func (*PartyCohesion) Key() string { return KeyPartyCohesion }

func (p *PartyCohesion) Validate() error {
	for _, e := range *p {
		if e.Party == "" {
			return fmt.Errorf("entry without party")
		}
		if !finite(e.AvgCohesionPercent) || e.AvgCohesionPercent < 0 || e.AvgCohesionPercent > 100 {
			return fmt.Errorf("party %s cohesion %v", e.Party, e.AvgCohesionPercent)
		}
		if e.BillsVoted <= 0 {
			return fmt.Errorf("party %s has no qualifying bills", e.Party)
		}
	}
	return nil
}

// LegislatorCoordinate is one legislator's position on every axis.
type LegislatorCoordinate struct {
	LegislatorID string    `json:"legislatorId"`
	Group        string    `json:"group,omitempty"`
	Coordinates  []float64 `json:"coordinates"`
}

type LegislatorCoordinates []LegislatorCoordinate

func (*LegislatorCoordinates) Key() string { return KeyLegislatorCoordinates }

func (l *LegislatorCoordinates) Validate() error {
	dims := -1
	for _, e := range *l {
		if e.LegislatorID == "" {
			return fmt.Errorf("entry without legislator id")
		}
		if dims >= 0 && len(e.Coordinates) != dims {
			return fmt.Errorf("legislator %s has %d coordinates, want %d", e.LegislatorID, len(e.Coordinates), dims)
		}
		dims = len(e.Coordinates)
		for _, x := range e.Coordinates {
			if !finite(x) {
				return fmt.Errorf("legislator %s has non-finite coordinate", e.LegislatorID)
			}
		}
	}
	return nil
}

// Questionnaire lists the issues that best separate legislators on the
// first axis, for building a short quiz.
type Questionnaire []loadings.IssueLoading

func (*Questionnaire) Key() string { return KeyQuestionnaire }

func (q *Questionnaire) Validate() error {
	return validLoadings(*q)
}

func validLoadings(ls []loadings.IssueLoading) error {
	for _, l := range ls {
		if l.IssueID == "" {
			return fmt.Errorf("loading without issue id")
		}
		if !finite(l.Loading) || l.Loading < -1 || l.Loading > 1 {
			return fmt.Errorf("issue %s loading %v out of range", l.IssueID, l.Loading)
		}
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
