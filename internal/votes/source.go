package votes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
)

// Source loads the full voting dataset.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Querier is satisfied by the postgres and sqlite clients.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLSource reads the tables owned by the browsing application:
//
//	CREATE TABLE legislators (id TEXT PRIMARY KEY, group_label TEXT);
//	CREATE TABLE votes (
//	    legislator_id TEXT NOT NULL,
//	    issue_id      TEXT NOT NULL,
//	    value         TEXT NOT NULL
//	);
type SQLSource struct {
	db Querier
}

func NewSQLSource(db Querier) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Load(ctx context.Context) (*Dataset, error) {
	legislators, err := s.legislators(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	return &Dataset{Legislators: legislators, Records: records}, nil
}

func (s *SQLSource) legislators(ctx context.Context) ([]Legislator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(group_label, '') FROM legislators ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying legislators: %w", err)
	}
	defer rows.Close()

	var out []Legislator
	for rows.Next() {
		var l Legislator
		if err := rows.Scan(&l.ID, &l.Group); err != nil {
			return nil, fmt.Errorf("scanning legislator row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLSource) records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT legislator_id, issue_id, value FROM votes ORDER BY issue_id, legislator_id`)
	if err != nil {
		return nil, fmt.Errorf("querying votes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r   Record
			raw string
		)
		if err := rows.Scan(&r.LegislatorID, &r.IssueID, &raw); err != nil {
			return nil, fmt.Errorf("scanning vote row: %w", err)
		}
		r.Value = ParseValue(raw)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileSource reads a JSON-encoded Dataset from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", f.Path, err)
	}
	var raw struct {
		Legislators []Legislator `json:"legislators"`
		Votes       []struct {
			LegislatorID string `json:"legislatorId"`
			IssueID      string `json:"issueId"`
			Value        string `json:"value"`
		} `json:"votes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", f.Path, err)
	}
	ds := &Dataset{Legislators: raw.Legislators, Records: make([]Record, 0, len(raw.Votes))}
	for _, v := range raw.Votes {
		ds.Records = append(ds.Records, Record{
			LegislatorID: v.LegislatorID,
			IssueID:      v.IssueID,
			Value:        ParseValue(v.Value),
		})
	}
	return ds, nil
}

// StaticSource serves a fixed dataset.
type StaticSource struct {
	Dataset Dataset
}

func (s StaticSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := s.Dataset
	return &ds, nil
}
