package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/artifacts"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/matrix"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/party"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/pca"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/projection"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/votes"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/sqlite"
)

// chamber builds 30 legislators in three blocs voting on 24 issues, with
// scattered defections, abstentions and absences.
func chamber() votes.Dataset {
	labels := []string{"S&D", "EPP", "Renew Europe"}
	stances := [][]votes.Value{
		{votes.Yes, votes.Yes, votes.No},
		{votes.No, votes.Yes, votes.No},
		{votes.Yes, votes.No, votes.Yes},
	}
	var ds votes.Dataset
	for i := 0; i < 30; i++ {
		ds.Legislators = append(ds.Legislators, votes.Legislator{
			ID:    fmt.Sprintf("L%02d", i),
			Group: labels[i/10],
		})
	}
	for j := 0; j < 24; j++ {
		issue := fmt.Sprintf("bill-%02d", j)
		for i := 0; i < 30; i++ {
			v := stances[i/10][j%3]
			switch {
			case (i*3+j)%17 == 0:
				v = votes.DidNotVote
			case (i*7+j*5)%9 == 0:
				v = votes.Abstain
			case (i+j)%11 == 0:
				if v == votes.Yes {
					v = votes.No
				} else {
					v = votes.Yes
				}
			}
			ds.Records = append(ds.Records, votes.Record{
				LegislatorID: fmt.Sprintf("L%02d", i),
				IssueID:      issue,
				Value:        v,
			})
		}
	}
	return ds
}

// switchSource serves whatever dataset it currently holds.
type switchSource struct {
	mu sync.Mutex
	ds votes.Dataset
}

func (s *switchSource) Load(ctx context.Context) (*votes.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := s.ds
	return &ds, nil
}

func (s *switchSource) set(ds votes.Dataset) {
	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// flakyStore fails Publish while failing is set.
type flakyStore struct {
	*store.SQLStore
	failing bool
}

func (f *flakyStore) Publish(ctx context.Context, records []store.Record) (*store.Snapshot, error) {
	if f.failing {
		return nil, errors.New("disk full")
	}
	return f.SQLStore.Publish(ctx, records)
}

// gatedSource blocks Load until release is closed and remembers whether a
// caller gave up on it first.
type gatedSource struct {
	ds        votes.Dataset
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
	mu        sync.Mutex
	cancelled bool
}

func newGatedSource(ds votes.Dataset) *gatedSource {
	return &gatedSource{ds: ds, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) Load(ctx context.Context) (*votes.Dataset, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		ds := g.ds
		return &ds, nil
	case <-ctx.Done():
		g.mu.Lock()
		g.cancelled = true
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// memBackend is an in-process cache backend.
type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func testOptions() Options {
	return Options{
		Matrix:            matrix.Options{MinVotesPerLegislator: 20, MinVotersPerIssue: 10},
		PCA:               pca.DefaultOptions(),
		Party:             party.DefaultOptions(),
		TopIssuesPerAxis:  3,
		QuestionnaireSize: 5,
		EventTimeout:      time.Second,
		Retry:             resilience.RetryConfig{MaxAttempts: 1},
	}
}

func newArtifactStore(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db, store.SQLite, store.WithRetention(3))
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return st
}

func newTestService(t *testing.T, src votes.Source, st ArtifactStore, events EventPublisher) *Service {
	t.Helper()
	table, err := PartyTable(config.PartyConfig{Groups: config.DefaultPartyGroups()})
	if err != nil {
		t.Fatal(err)
	}
	deps := Deps{Source: src, Store: st, Parties: table}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewService(deps, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestRecomputePublishesEveryArtifact(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	events := &recordingPublisher{}
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, events)

	report, err := svc.Recompute(ctx)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if report.Status != StatusPublished || report.SnapshotID == "" {
		t.Fatalf("report = %+v", report)
	}
	if report.Legislators != 30 || report.Issues != 24 {
		t.Errorf("matrix %dx%d, want 30x24", report.Legislators, report.Issues)
	}
	if len(report.Variance) != 3 {
		t.Errorf("variance = %v", report.Variance)
	}

	stages := map[string]bool{}
	for _, s := range report.Stages {
		stages[s.Stage] = true
	}
	for _, want := range []string{"load", "matrix", "pca", "loadings", "parties", "publish"} {
		if !stages[want] {
			t.Errorf("stage %q missing from report", want)
		}
	}

	for _, key := range artifacts.Keys {
		view, err := svc.Artifact(ctx, key)
		if err != nil {
			t.Errorf("artifact %s: %v", key, err)
			continue
		}
		if view.SnapshotID != report.SnapshotID {
			t.Errorf("artifact %s from snapshot %s, want %s", key, view.SnapshotID, report.SnapshotID)
		}
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 1 {
		t.Fatalf("events published = %d", len(events.events))
	}
	ev, ok := events.events[0].Value.(SnapshotPublished)
	if !ok || ev.SnapshotID != report.SnapshotID || ev.Type != EventSnapshotPublished {
		t.Errorf("event = %+v", events.events[0])
	}
}

func TestRecomputeIsDeterministic(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)

	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatal(err)
	}
	first := map[string]string{}
	for _, key := range artifacts.Keys {
		rec, err := st.Current(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		first[key] = string(rec.Data)
	}

	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatal(err)
	}
	for _, key := range artifacts.Keys {
		rec, err := st.Current(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first[key], string(rec.Data)); diff != "" {
			t.Errorf("%s differs between runs (-first +second):\n%s", key, diff)
		}
	}
}

func TestInsufficientDataKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	src := &switchSource{ds: chamber()}
	svc := newTestService(t, src, st, nil)

	first, err := svc.Recompute(ctx)
	if err != nil {
		t.Fatal(err)
	}

	src.set(votes.Dataset{Records: []votes.Record{{LegislatorID: "x", IssueID: "y", Value: votes.Yes}}})
	report, err := svc.Recompute(ctx)
	if err != nil {
		t.Fatalf("insufficient data must not be an error: %v", err)
	}
	if report.Status != StatusInsufficientData || report.SnapshotID != "" {
		t.Errorf("report = %+v", report)
	}

	cur, err := svc.CurrentSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID != first.SnapshotID {
		t.Errorf("current snapshot = %s, want %s", cur.ID, first.SnapshotID)
	}
}

func TestPublishFailureLeavesPreviousSnapshotCurrent(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{SQLStore: newArtifactStore(t)}
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)

	first, err := svc.Recompute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	st.failing = true
	if _, err := svc.Recompute(ctx); !errors.Is(err, apperrors.ErrRecomputeFailed) {
		t.Fatalf("err = %v, want ErrRecomputeFailed", err)
	}
	res, err := svc.Coordinates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceStored || res.SnapshotID != first.SnapshotID {
		t.Errorf("coordinates from %s/%s, want stored/%s", res.Source, res.SnapshotID, first.SnapshotID)
	}
}

func TestCoordinatesFallBackToLiveWithoutSnapshot(t *testing.T) {
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, newArtifactStore(t), nil)
	res, err := svc.Coordinates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceLive || len(res.Coordinates) != 30 {
		t.Errorf("source=%s coordinates=%d", res.Source, len(res.Coordinates))
	}
}

func TestCoordinatesFallBackOnInvalidArtifact(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	if _, err := st.Publish(ctx, []store.Record{
		{Key: artifacts.KeyLegislatorCoordinates, Version: artifacts.Version + 1, Data: []byte(`[]`)},
	}); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)
	res, err := svc.Coordinates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceLive {
		t.Errorf("source = %s, want live", res.Source)
	}
}

func TestLiveMatchesBatchCoordinates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, newArtifactStore(t), nil)
	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatal(err)
	}
	stored, err := svc.Coordinates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	live, err := svc.LiveCoordinates(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(stored.Coordinates, live.Coordinates); diff != "" {
		t.Errorf("live and batch disagree (-batch +live):\n%s", diff)
	}
	if len(live.IssueIDs) != 24 || len(live.Matrix) != 30 {
		t.Errorf("live matrix %dx%d", len(live.Matrix), len(live.IssueIDs))
	}
}

func TestLiveCoordinatesEmptyWhenThresholdTooHigh(t *testing.T) {
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, newArtifactStore(t), nil)
	res, err := svc.LiveCoordinates(context.Background(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty() {
		t.Errorf("expected empty result, got %d coordinates", len(res.Coordinates))
	}
	if _, err := svc.LiveCoordinates(context.Background(), -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative threshold err = %v", err)
	}
}

func TestLiveCoordinatesFollowTheSource(t *testing.T) {
	ctx := context.Background()
	src := &switchSource{}
	src.set(chamber())
	svc := newTestService(t, src, newArtifactStore(t), nil)
	svc.cache = cache.New(&memBackend{}, time.Hour, nil)

	first, err := svc.LiveCoordinates(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Coordinates) != 30 {
		t.Fatalf("coordinates = %d, want 30", len(first.Coordinates))
	}

	src.set(votes.Dataset{})
	second, err := svc.LiveCoordinates(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Empty() {
		t.Errorf("after the votes were cleared live returned %d coordinates", len(second.Coordinates))
	}
}

func TestRecomputeSurvivesCallerCancel(t *testing.T) {
	src := newGatedSource(chamber())
	st := newArtifactStore(t)
	svc := newTestService(t, src, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Recompute(ctx)
		firstErr <- err
	}()
	<-src.started

	type result struct {
		report *Report
		err    error
	}
	second := make(chan result, 1)
	go func() {
		r, err := svc.Recompute(context.Background())
		second <- result{r, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("joined caller: %v", got.err)
	}
	if got.report.Status != StatusPublished {
		t.Errorf("status = %s, want %s", got.report.Status, StatusPublished)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.cancelled {
		t.Error("shared run was cancelled with its first caller")
	}
}

func TestCoordinatesFallbackDeadline(t *testing.T) {
	src := newGatedSource(chamber())
	t.Cleanup(func() { close(src.release) })
	table, err := PartyTable(config.PartyConfig{Groups: config.DefaultPartyGroups()})
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions()
	opts.FallbackTimeout = 20 * time.Millisecond
	svc, err := NewService(Deps{Source: src, Store: newArtifactStore(t), Parties: table}, opts)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Coordinates(context.Background())
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	var de *resilience.DeadlineError
	if !errors.As(err, &de) || de.Op != "live fallback" {
		t.Errorf("err = %v, want a live fallback deadline", err)
	}
	if got := apperrors.HTTPStatusCode(err); got != 503 {
		t.Errorf("status = %d, want 503", got)
	}
}

func TestStoredListArtifactsAreArrays(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)
	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatal(err)
	}
	for _, key := range artifacts.Keys {
		rec, err := st.Current(ctx, key)
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		want := byte('[')
		if key == artifacts.KeyBasis {
			want = '{'
		}
		if len(rec.Data) == 0 || rec.Data[0] != want {
			t.Errorf("%s stored as %.40s", key, rec.Data)
		}
	}
}

func TestProjectionWithoutBasis(t *testing.T) {
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, newArtifactStore(t), nil)
	_, err := svc.Project(context.Background(), []projection.Response{{IssueID: "bill-00", Value: 1}})
	if !errors.Is(err, apperrors.ErrArtifactNotFound) {
		t.Errorf("err = %v, want ErrArtifactNotFound", err)
	}
}

// A legislator answering exactly as they voted lands on their own coordinates.
func TestProjectionReproducesLegislator(t *testing.T) {
	ctx := context.Background()
	ds := chamber()
	svc := newTestService(t, votes.StaticSource{Dataset: ds}, newArtifactStore(t), nil)
	report, err := svc.Recompute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	coords, err := svc.Coordinates(ctx)
	if err != nil {
		t.Fatal(err)
	}

	target := coords.Coordinates[7]
	var responses []projection.Response
	for _, r := range ds.Records {
		if r.LegislatorID == target.LegislatorID {
			responses = append(responses, projection.Response{IssueID: r.IssueID, Value: r.Value.Encode()})
		}
	}
	res, err := svc.Project(ctx, responses)
	if err != nil {
		t.Fatal(err)
	}
	if res.SnapshotID != report.SnapshotID || res.Stale() {
		t.Errorf("projection snapshot=%s stale=%v", res.SnapshotID, res.Stale())
	}
	for c := range target.Coordinates {
		if math.Abs(res.Coordinates[c]-target.Coordinates[c]) > 1e-9 {
			t.Errorf("axis %d: %v, want %v", c, res.Coordinates[c], target.Coordinates[c])
		}
	}
}

func TestPartyTablesAreServed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, newArtifactStore(t), nil)
	if _, err := svc.Recompute(ctx); err != nil {
		t.Fatal(err)
	}
	agreement, _, err := svc.PartyAgreement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(agreement) != 3 {
		t.Fatalf("agreement pairs = %d, want 3", len(agreement))
	}
	for _, a := range agreement {
		if a.TotalBills != 24 || a.AgreementPercent < 0 || a.AgreementPercent > 100 {
			t.Errorf("entry %+v", a)
		}
	}
	cohesion, _, err := svc.PartyCohesion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, c := range cohesion {
		order = append(order, c.Party)
	}
	if diff := cmp.Diff([]string{"SD", "RENEW", "EPP"}, order); diff != "" {
		t.Errorf("cohesion order (-want +got):\n%s", diff)
	}
}

func TestConcurrentRecomputesShareOneRun(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Recompute(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	snaps, err := st.Snapshots(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) < 1 || len(snaps) > 3 {
		t.Errorf("snapshots = %d", len(snaps))
	}
}

func TestHandleRecomputeEvent(t *testing.T) {
	ctx := context.Background()
	st := newArtifactStore(t)
	svc := newTestService(t, votes.StaticSource{Dataset: chamber()}, st, nil)
	handle := HandleRecompute(svc)

	if err := handle(ctx, nil, []byte("garbage")); err != nil {
		t.Errorf("malformed message must be dropped, got %v", err)
	}
	if _, err := st.CurrentSnapshot(ctx); !errors.Is(err, apperrors.ErrArtifactNotFound) {
		t.Fatalf("malformed message triggered a run")
	}

	msg := []byte(`{"type":"recompute_requested","requestId":"r-1","reason":"import"}`)
	if err := handle(ctx, []byte("k"), msg); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CurrentSnapshot(ctx); err != nil {
		t.Errorf("no snapshot after recompute request: %v", err)
	}
}
