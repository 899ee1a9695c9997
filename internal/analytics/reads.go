package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/artifacts"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/party"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/projection"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/tracing"
)

// Coordinate sources.
const (
	SourceStored = "stored"
	SourceLive   = "live"
)

// LiveResult is a freshly computed decomposition, independent of any
// published snapshot.
type LiveResult struct {
	MinVotes    int                              `json:"minVotes"`
	Coordinates []artifacts.LegislatorCoordinate `json:"coordinates"`
	IssueIDs    []string                         `json:"issueIds"`
	Matrix      [][]float64                      `json:"matrix"`
	Variance    []float64                        `json:"variance"`
}

// Empty reports that no legislator survived the filters.
func (r *LiveResult) Empty() bool {
	return r == nil || len(r.Coordinates) == 0
}

// LiveCoordinates decomposes the current votes with the given per-legislator
// vote threshold. Identical concurrent requests share one computation; the
// result is never cached since it reflects the votes as they are now.
func (s *Service) LiveCoordinates(ctx context.Context, minVotes int) (*LiveResult, error) {
	if minVotes < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "min_votes must not be negative")
	}
	ch := s.live.DoChan(strconv.Itoa(minVotes), func() (any, error) {
		return s.computeLive(context.WithoutCancel(ctx), minVotes)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*LiveResult), nil
	}
}

func (s *Service) computeLive(ctx context.Context, minVotes int) (*LiveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "live", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(logger.FromContext(ctx).With("component", "analytics-live"))
	}()

	var ds *votes.Dataset
	if err := s.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		ds, err = s.source.Load(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("%w: loading votes: %w", apperrors.ErrUnavailable, err)
	}

	mopts := s.opts.Matrix
	mopts.MinVotesPerLegislator = minVotes
	an, err := s.analyze(ctx, ds.Records, mopts)
	if err != nil {
		return nil, err
	}

	out := &LiveResult{
		MinVotes:    minVotes,
		Coordinates: []artifacts.LegislatorCoordinate{},
		IssueIDs:    an.matrix.Issues,
		Matrix:      an.matrix.Values,
		Variance:    []float64{},
	}
	if an.matrix.Empty() {
		return out, nil
	}
	out.Coordinates = s.coordinates(an, ds.Groups())
	out.Variance = an.pca.Variance
	return out, nil
}

// CoordinatesResult is the legislator map together with where it came from.
type CoordinatesResult struct {
	Source      string                           `json:"source"`
	SnapshotID  string                           `json:"snapshotId,omitempty"`
	Coordinates []artifacts.LegislatorCoordinate `json:"coordinates"`
}

// Coordinates serves the published coordinates, computing them live when the
// artifact is missing or fails validation.
func (s *Service) Coordinates(ctx context.Context) (*CoordinatesResult, error) {
	var stored artifacts.LegislatorCoordinates
	snapshotID, err := s.readArtifact(ctx, &stored)
	if err == nil {
		s.countServed(SourceStored)
		return &CoordinatesResult{Source: SourceStored, SnapshotID: snapshotID, Coordinates: stored}, nil
	}
	if !errors.Is(err, apperrors.ErrArtifactNotFound) && !errors.Is(err, apperrors.ErrArtifactInvalid) {
		return nil, err
	}
	logger.FromContext(ctx).Warn("stored coordinates unusable, computing live", "error", err)

	live, err := resilience.Bounded(ctx, s.opts.FallbackTimeout, "live fallback", func(ctx context.Context) (*LiveResult, error) {
		return s.LiveCoordinates(ctx, s.opts.Matrix.MinVotesPerLegislator)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return nil, err
	}
	s.countServed(SourceLive)
	return &CoordinatesResult{Source: SourceLive, Coordinates: live.Coordinates}, nil
}

// ProjectionResult is a projected point tagged with the basis snapshot.
type ProjectionResult struct {
	projection.Result
	SnapshotID string `json:"snapshotId"`
}

// Project places responses in the space of the current basis.
func (s *Service) Project(ctx context.Context, responses []projection.Response) (*ProjectionResult, error) {
	var basis artifacts.Basis
	snapshotID, err := s.readArtifact(ctx, &basis)
	if err != nil {
		if errors.Is(err, apperrors.ErrArtifactNotFound) {
			s.countProjection("no_basis")
		} else {
			s.countProjection(statusError)
		}
		return nil, err
	}
	res := projection.Project(&basis, responses)
	if res.Stale() {
		s.countProjection("stale")
		logger.FromContext(ctx).Info("projection used issues missing from basis",
			"snapshot_id", snapshotID,
			"unmatched", len(res.Unmatched),
		)
	} else {
		s.countProjection("ok")
	}
	return &ProjectionResult{Result: res, SnapshotID: snapshotID}, nil
}

// ArtifactView is a validated artifact with its provenance.
type ArtifactView struct {
	Key        string             `json:"key"`
	Version    int                `json:"version"`
	SnapshotID string             `json:"snapshotId"`
	Data       artifacts.Artifact `json:"data"`
}

// Artifact reads and validates the current artifact stored under key.
func (s *Service) Artifact(ctx context.Context, key string) (*ArtifactView, error) {
	a, err := artifacts.New(key)
	if err != nil {
		return nil, err
	}
	snapshotID, err := s.readArtifact(ctx, a)
	if err != nil {
		return nil, err
	}
	return &ArtifactView{Key: key, Version: artifacts.Version, SnapshotID: snapshotID, Data: a}, nil
}

// AgreementView adds the derived percentage to an agreement entry.
type AgreementView struct {
	party.AgreementEntry
	AgreementPercent float64 `json:"agreementPercent"`
}

// PartyAgreement returns the published agreement table.
func (s *Service) PartyAgreement(ctx context.Context) ([]AgreementView, string, error) {
	var a artifacts.PartyAgreement
	snapshotID, err := s.readArtifact(ctx, &a)
	if err != nil {
		return nil, "", err
	}
	out := make([]AgreementView, len(a))
	for i, e := range a {
		out[i] = AgreementView{AgreementEntry: e, AgreementPercent: e.AgreementPercent()}
	}
	return out, snapshotID, nil
}

// PartyCohesion returns the published cohesion table.
func (s *Service) PartyCohesion(ctx context.Context) ([]party.CohesionEntry, string, error) {
	var c artifacts.PartyCohesion
	snapshotID, err := s.readArtifact(ctx, &c)
	if err != nil {
		return nil, "", err
	}
	return c, snapshotID, nil
}

// CurrentSnapshot describes the snapshot readers currently see.
func (s *Service) CurrentSnapshot(ctx context.Context) (*store.Snapshot, error) {
	return s.store.CurrentSnapshot(ctx)
}

// readArtifact loads dst from the current snapshot, through the cache.
func (s *Service) readArtifact(ctx context.Context, dst artifacts.Artifact) (string, error) {
	rec, _, err := cache.GetOrCompute(ctx, s.cache, cache.Key("artifact", dst.Key()),
		func(ctx context.Context) (*store.Record, error) {
			return s.store.Current(ctx, dst.Key())
		})
	if err != nil {
		return "", err
	}
	if err := artifacts.Decode(rec, dst); err != nil {
		return "", err
	}
	return rec.SnapshotID, nil
}

func (s *Service) countServed(source string) {
	if s.metrics != nil {
		s.metrics.FallbackTotal.WithLabelValues(source).Inc()
	}
}

func (s *Service) countProjection(result string) {
	if s.metrics != nil {
		s.metrics.ProjectionsTotal.WithLabelValues(result).Inc()
	}
}
