// Package analytics orchestrates the voting analysis: the batch run that
// publishes a snapshot of artifacts, the live fallback computed on request
// when stored coordinates are unusable, and projection of new vote vectors
// onto the published basis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/artifacts"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/loadings"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/matrix"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/party"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/pca"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/tracing"
)

// Run outcomes.
const (
	StatusPublished        = "published"
	StatusInsufficientData = "insufficient_data"
	statusError            = "error"
)

// ArtifactStore is the snapshot store the service publishes to and reads from.
type ArtifactStore interface {
	Publish(ctx context.Context, records []store.Record) (*store.Snapshot, error)
	Current(ctx context.Context, key string) (*store.Record, error)
	CurrentSnapshot(ctx context.Context) (*store.Snapshot, error)
}

// EventPublisher announces published snapshots.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Options tune every stage of the pipeline.
type Options struct {
	Matrix            matrix.Options
	PCA               pca.Options
	Party             party.Options
	TopIssuesPerAxis  int
	QuestionnaireSize int
	// FallbackTimeout bounds the live computation behind Coordinates. Zero
	// waits for it to finish.
	FallbackTimeout time.Duration
	EventTimeout    time.Duration
	// RunTimeout bounds a shared recompute run, which outlives the caller
	// that started it. Zero leaves it unbounded.
	RunTimeout time.Duration
	Retry      resilience.RetryConfig
}

// OptionsFromConfig maps the analysis and party sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	a := cfg.Analysis
	return Options{
		Matrix: matrix.Options{
			MinVotesPerLegislator: a.MinVotesPerLegislator,
			MinVotersPerIssue:     a.MinVotersPerIssue,
		},
		PCA: pca.Options{
			Components: a.Components,
			Iterations: a.Iterations,
			Tolerance:  a.Tolerance,
			Epsilon:    a.Epsilon,
		},
		Party: party.Options{
			MinMajorityVoters: cfg.Parties.MinMajorityVoters,
			MinCohesionVoters: cfg.Parties.MinCohesionVoters,
		},
		TopIssuesPerAxis:  a.TopIssuesPerAxis,
		QuestionnaireSize: a.QuestionnaireSize,
		FallbackTimeout:   a.FallbackTimeout,
		EventTimeout:      5 * time.Second,
		RunTimeout:        10 * time.Minute,
	}
}

// PartyTable builds the canonical party table from configuration.
func PartyTable(cfg config.PartyConfig) (*party.Table, error) {
	groups := make([]party.Group, len(cfg.Groups))
	for i, g := range cfg.Groups {
		groups[i] = party.Group{Code: g.Code, Name: g.Name, Aliases: g.Aliases}
	}
	return party.NewTable(groups)
}

// Deps are the collaborators of a Service. Cache, Events and Metrics may be
// nil.
type Deps struct {
	Source  votes.Source
	Store   ArtifactStore
	Parties *party.Table
	Cache   *cache.Cache
	Events  EventPublisher
	Metrics *metrics.Metrics
}

type Service struct {
	source  votes.Source
	store   ArtifactStore
	parties *party.Table
	cache   *cache.Cache
	events  EventPublisher
	metrics *metrics.Metrics
	opts    Options

	runs   singleflight.Group
	live   singleflight.Group
	logger *slog.Logger
}

func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Source == nil || deps.Store == nil || deps.Parties == nil {
		return nil, fmt.Errorf("analytics service needs a vote source, an artifact store and a party table")
	}
	if opts.TopIssuesPerAxis <= 0 {
		opts.TopIssuesPerAxis = 5
	}
	if opts.QuestionnaireSize <= 0 {
		opts.QuestionnaireSize = 20
	}
	if opts.Retry.Permanent == nil {
		opts.Retry.Permanent = func(err error) bool {
			return errors.Is(err, apperrors.ErrInvalidInput)
		}
	}
	s := &Service{
		source:  deps.Source,
		store:   deps.Store,
		parties: deps.Parties,
		cache:   deps.Cache,
		events:  deps.Events,
		metrics: deps.Metrics,
		opts:    opts,
		logger:  slog.Default().With("component", "analytics-service"),
	}
	if s.metrics != nil {
		s.cache.SetObserver(s.metrics.ObserveCache)
	}
	return s, nil
}

// Report summarises one batch run.
type Report struct {
	RunID       string                `json:"runId"`
	Status      string                `json:"status"`
	SnapshotID  string                `json:"snapshotId,omitempty"`
	Legislators int                   `json:"legislators"`
	Issues      int                   `json:"issues"`
	Variance    []float64             `json:"variance,omitempty"`
	Stages      []tracing.StageTiming `json:"stages"`
	StartedAt   time.Time             `json:"startedAt"`
	DurationMs  int64                 `json:"durationMs"`
	// Shared is set when the caller joined a run already in progress.
	Shared bool `json:"shared,omitempty"`
}

// Recompute runs the batch pipeline and publishes a new snapshot. Concurrent
// calls share one run, which keeps going when the caller that started it
// goes away. Too little data is not an error: the report says
// insufficient_data and the previous snapshot stays current.
func (s *Service) Recompute(ctx context.Context) (*Report, error) {
	ch := s.runs.DoChan("recompute", func() (any, error) {
		rctx := context.WithoutCancel(ctx)
		if s.opts.RunTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, s.opts.RunTimeout)
			defer cancel()
		}
		return s.recompute(rctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		report := *res.Val.(*Report)
		report.Shared = res.Shared
		return &report, nil
	}
}

func ptr[T any](v T) *T { return &v }

func (s *Service) recompute(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "analytics-batch")

	ctx, root := tracing.StartSpan(ctx, "recompute", runID)
	report := &Report{RunID: runID, StartedAt: time.Now().UTC()}
	defer func() {
		root.End()
		root.Log(log)
		report.Stages = root.Stages()
		report.DurationMs = root.Duration.Milliseconds()
	}()

	log.Info("recompute started")

	var ds *votes.Dataset
	if err := s.stage(ctx, "load", func(ctx context.Context) error {
		return resilience.Retry(ctx, "load votes", s.opts.Retry, func() error {
			var err error
			ds, err = s.source.Load(ctx)
			return err
		})
	}); err != nil {
		s.countRun(statusError)
		return nil, fmt.Errorf("%w: loading votes: %w", apperrors.ErrRecomputeFailed, err)
	}
	groups := ds.Groups()

	// The decomposition and the party tables read the same records and
	// nothing else, so they run side by side.
	var (
		an      *analysis
		parties party.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		an, err = s.analyze(gctx, ds.Records, s.opts.Matrix)
		return err
	})
	g.Go(func() error {
		return s.stage(gctx, "parties", func(ctx context.Context) error {
			parties = party.Aggregate(ds.Records, groups, s.parties, s.opts.Party)
			span := tracing.SpanFromContext(ctx)
			span.SetAttr("pairs", len(parties.Agreement))
			span.SetAttr("parties", len(parties.Cohesion))
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		s.countRun(statusError)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRecomputeFailed, err)
	}

	report.Legislators, report.Issues = an.matrix.Rows(), an.matrix.Cols()
	if s.metrics != nil {
		s.metrics.MatrixLegislators.Set(float64(report.Legislators))
		s.metrics.MatrixIssues.Set(float64(report.Issues))
	}
	if an.matrix.Empty() {
		report.Status = StatusInsufficientData
		log.Warn("not enough voting data, keeping previous snapshot",
			"records", len(ds.Records),
			"legislators", report.Legislators,
			"issues", report.Issues,
		)
		s.countRun(StatusInsufficientData)
		return report, nil
	}
	report.Variance = an.pca.Variance

	records, err := s.encode(an, parties, groups)
	if err != nil {
		s.countRun(statusError)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRecomputeFailed, err)
	}

	var snap *store.Snapshot
	if err := s.stage(ctx, "publish", func(ctx context.Context) error {
		return resilience.Retry(ctx, "publish snapshot", s.opts.Retry, func() error {
			var err error
			snap, err = s.store.Publish(ctx, records)
			return err
		})
	}); err != nil {
		s.countRun(statusError)
		return nil, fmt.Errorf("%w: publishing: %w", apperrors.ErrRecomputeFailed, err)
	}

	report.Status = StatusPublished
	report.SnapshotID = snap.ID
	s.countRun(StatusPublished)
	if s.metrics != nil {
		s.metrics.SetAxes(an.pca.Variance, an.pca.Iterations)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Warn("cache invalidation failed", "error", err)
	}
	s.announce(ctx, snap, runID, an.pca.Variance)

	log.Info("recompute finished",
		"snapshot_id", snap.ID,
		"legislators", report.Legislators,
		"issues", report.Issues,
		"variance", an.pca.Variance,
	)
	return report, nil
}

// analysis is the PCA path of a run: matrix, decomposition and correlations.
type analysis struct {
	matrix *matrix.Matrix
	pca    *pca.Result
	corr   [][]float64
}

// analyze is shared by the batch run and the live fallback. An empty matrix
// stops after the first stage.
func (s *Service) analyze(ctx context.Context, records []votes.Record, mopts matrix.Options) (*analysis, error) {
	an := &analysis{}
	if err := s.stage(ctx, "matrix", func(ctx context.Context) error {
		an.matrix = matrix.Build(records, mopts)
		span := tracing.SpanFromContext(ctx)
		span.SetAttr("legislators", an.matrix.Rows())
		span.SetAttr("issues", an.matrix.Cols())
		return nil
	}); err != nil {
		return nil, err
	}
	if an.matrix.Empty() {
		return an, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, "pca", func(ctx context.Context) error {
		an.pca = pca.Decompose(an.matrix.Values, s.opts.PCA)
		tracing.SpanFromContext(ctx).SetAttr("iterations", an.pca.Iterations)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, "loadings", func(ctx context.Context) error {
		an.corr = loadings.Correlations(an.pca.Centered, an.pca.Scores)
		return nil
	}); err != nil {
		return nil, err
	}
	return an, nil
}

func (s *Service) encode(an *analysis, parties party.Result, groups map[string]string) ([]store.Record, error) {
	issues := an.matrix.Issues
	set := []artifacts.Artifact{
		ptr(artifacts.Variance(an.pca.Variance)),
		&artifacts.Basis{IssueIDs: issues, Means: an.pca.Means, Components: an.pca.Components},
		ptr(artifacts.TopIssues(loadings.TopPerAxis(an.corr, issues, s.opts.TopIssuesPerAxis))),
		ptr(artifacts.PartyAgreement(parties.Agreement)),
		ptr(artifacts.PartyCohesion(parties.Cohesion)),
		ptr(artifacts.LegislatorCoordinates(s.coordinates(an, groups))),
		ptr(artifacts.Questionnaire(loadings.Diagnostic(an.corr, issues, s.opts.QuestionnaireSize))),
	}
	records := make([]store.Record, 0, len(set))
	for _, a := range set {
		rec, err := artifacts.Encode(a)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) coordinates(an *analysis, groups map[string]string) []artifacts.LegislatorCoordinate {
	out := make([]artifacts.LegislatorCoordinate, len(an.matrix.Legislators))
	for i, id := range an.matrix.Legislators {
		out[i] = artifacts.LegislatorCoordinate{
			LegislatorID: id,
			Group:        s.groupCode(groups[id]),
			Coordinates:  an.pca.Scores[i],
		}
	}
	return out
}

// groupCode prefers the canonical code and falls back to the raw label.
func (s *Service) groupCode(label string) string {
	if code, ok := s.parties.Canonical(label); ok {
		return code
	}
	return label
}

// stage runs fn under a child span and records its duration.
func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, name)
	start := time.Now()
	err := fn(ctx)
	span.Fail(err)
	span.End()
	if s.metrics != nil {
		s.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return err
}

func (s *Service) announce(ctx context.Context, snap *store.Snapshot, runID string, variance []float64) {
	if s.events == nil {
		return
	}
	event := SnapshotPublished{
		Type:        EventSnapshotPublished,
		SnapshotID:  snap.ID,
		Seq:         snap.Seq,
		RunID:       runID,
		Artifacts:   artifacts.Keys,
		Variance:    variance,
		PublishedAt: snap.CreatedAt,
	}
	err := resilience.WithTimeout(ctx, s.opts.EventTimeout, "publish snapshot event", func(ctx context.Context) error {
		return s.events.Publish(ctx, kafka.Event{Key: snap.ID, Value: event})
	})
	status := "ok"
	if err != nil {
		status = statusError
		logger.FromContext(ctx).Warn("snapshot event not published", "snapshot_id", snap.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues("out", status).Inc()
	}
}

func (s *Service) countRun(status string) {
	if s.metrics != nil {
		s.metrics.RecomputeRunsTotal.WithLabelValues(status).Inc()
	}
}
