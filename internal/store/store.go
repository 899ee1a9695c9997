// Package store persists published artifact snapshots in PostgreSQL or
// SQLite.
//
// A snapshot is the full artifact set of one batch run. Snapshots are never
// updated: a run inserts a new snapshot row, all of its artifact rows and
// moves the current pointer in one transaction, so readers following the
// pointer never observe a partially written run.
//
// Schema:
//
//	CREATE TABLE analytics_snapshots (
//	    id             TEXT PRIMARY KEY,
//	    seq            BIGINT NOT NULL UNIQUE,
//	    created_at     BIGINT NOT NULL,      -- unix milliseconds
//	    artifact_count INTEGER NOT NULL
//	);
//	CREATE TABLE analytics_artifacts (
//	    snapshot_id  TEXT NOT NULL REFERENCES analytics_snapshots(id),
//	    artifact_key TEXT NOT NULL,
//	    version      INTEGER NOT NULL,
//	    data         JSONB NOT NULL,         -- TEXT on SQLite
//	    PRIMARY KEY (snapshot_id, artifact_key)
//	);
//	CREATE TABLE analytics_current (
//	    name        TEXT PRIMARY KEY,
//	    snapshot_id TEXT NOT NULL
//	);
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
)

// Dialect selects placeholder style and column types.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

const currentName = "current"

// Record is one stored artifact. SnapshotID is filled on read.
type Record struct {
	Key        string
	Version    int
	Data       []byte
	SnapshotID string
}

// Snapshot describes one published run.
type Snapshot struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	CreatedAt     time.Time `json:"createdAt"`
	ArtifactCount int       `json:"artifactCount"`
}

// DB is satisfied by the postgres and sqlite clients.
type DB interface {
	Ping(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Option configures an SQLStore.
type Option func(*SQLStore)

// WithRetention keeps only the newest n snapshots. Zero keeps all.
func WithRetention(n int) Option {
	return func(s *SQLStore) { s.retention = n }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

type SQLStore struct {
	db        DB
	dialect   Dialect
	retention int
	now       func() time.Time
	logger    *slog.Logger
}

func New(db DB, dialect Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.Default().With("component", "artifact-store", "dialect", dialect.String()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	dataType := "JSONB"
	if s.dialect == SQLite {
		dataType = "TEXT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analytics_snapshots (
			id             TEXT PRIMARY KEY,
			seq            BIGINT NOT NULL UNIQUE,
			created_at     BIGINT NOT NULL,
			artifact_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analytics_artifacts (
			snapshot_id  TEXT NOT NULL REFERENCES analytics_snapshots(id),
			artifact_key TEXT NOT NULL,
			version      INTEGER NOT NULL,
			data         ` + dataType + ` NOT NULL,
			PRIMARY KEY (snapshot_id, artifact_key)
		)`,
		`CREATE TABLE IF NOT EXISTS analytics_current (
			name        TEXT PRIMARY KEY,
			snapshot_id TEXT NOT NULL
		)`,
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrating artifact store: %w", err)
			}
		}
		return nil
	})
}

// Publish writes records as a new snapshot and makes it current. Either the
// whole snapshot becomes visible or nothing changes.
func (s *SQLStore) Publish(ctx context.Context, records []Record) (*Snapshot, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty artifact set", apperrors.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Key == "" {
			return nil, fmt.Errorf("%w: artifact without key", apperrors.ErrInvalidInput)
		}
		if seen[r.Key] {
			return nil, fmt.Errorf("%w: artifact %q listed twice", apperrors.ErrInvalidInput, r.Key)
		}
		seen[r.Key] = true
	}

	snap := &Snapshot{
		ID:            uuid.NewString(),
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
		ArtifactCount: len(records),
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM analytics_snapshots`,
		).Scan(&snap.Seq); err != nil {
			return fmt.Errorf("allocating snapshot sequence: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO analytics_snapshots (id, seq, created_at, artifact_count) VALUES (?, ?, ?, ?)`),
			snap.ID, snap.Seq, snap.CreatedAt.UnixMilli(), snap.ArtifactCount,
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}

		insert := s.rebind(
			`INSERT INTO analytics_artifacts (snapshot_id, artifact_key, version, data) VALUES (?, ?, ?, ?)`)
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, insert, snap.ID, r.Key, r.Version, string(r.Data)); err != nil {
				return fmt.Errorf("inserting artifact %s: %w", r.Key, err)
			}
		}

		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO analytics_current (name, snapshot_id) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET snapshot_id = EXCLUDED.snapshot_id`),
			currentName, snap.ID,
		); err != nil {
			return fmt.Errorf("moving current pointer: %w", err)
		}

		return s.prune(ctx, tx, snap.Seq)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("snapshot published",
		"snapshot_id", snap.ID,
		"seq", snap.Seq,
		"artifacts", snap.ArtifactCount,
	)
	return snap, nil
}

// prune drops snapshots older than the retention window.
func (s *SQLStore) prune(ctx context.Context, tx *sql.Tx, latest int64) error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := latest - int64(s.retention)
	if cutoff <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM analytics_artifacts WHERE snapshot_id IN
		 (SELECT id FROM analytics_snapshots WHERE seq <= ?)`), cutoff,
	); err != nil {
		return fmt.Errorf("pruning artifacts: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM analytics_snapshots WHERE seq <= ?`), cutoff)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("pruned snapshots", "count", n, "retention", s.retention)
	}
	return nil
}

// Current returns the artifact stored under key in the current snapshot.
func (s *SQLStore) Current(ctx context.Context, key string) (*Record, error) {
	rec := &Record{Key: key}
	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT a.version, a.data, a.snapshot_id
		 FROM analytics_current c
		 JOIN analytics_artifacts a ON a.snapshot_id = c.snapshot_id
		 WHERE c.name = ? AND a.artifact_key = ?`),
		currentName, key,
	).Scan(&rec.Version, &data, &rec.SnapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrArtifactNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact %s: %w", key, err)
	}
	rec.Data = data
	return rec, nil
}

// CurrentSnapshot describes the snapshot the pointer refers to.
func (s *SQLStore) CurrentSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var createdMs int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT s.id, s.seq, s.created_at, s.artifact_count
		 FROM analytics_current c
		 JOIN analytics_snapshots s ON s.id = c.snapshot_id
		 WHERE c.name = ?`),
		currentName,
	).Scan(&snap.ID, &snap.Seq, &createdMs, &snap.ArtifactCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no snapshot published", apperrors.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying current snapshot: %w", err)
	}
	snap.CreatedAt = time.UnixMilli(createdMs).UTC()
	return snap, nil
}

// Snapshots lists retained snapshots, newest first.
func (s *SQLStore) Snapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, seq, created_at, artifact_count
		 FROM analytics_snapshots ORDER BY seq DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap      Snapshot
			createdMs int64
		)
		if err := rows.Scan(&snap.ID, &snap.Seq, &createdMs, &snap.ArtifactCount); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		snap.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *SQLStore) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// Rebind turns ? placeholders into $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
