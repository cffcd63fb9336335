// Package history keeps an append-only SQLite ledger of assessments,
// release runs, rollbacks and monitoring cycles.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/release"
)

const schema = `
CREATE TABLE IF NOT EXISTS assessments (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	item           TEXT NOT NULL,
	category       TEXT NOT NULL,
	score          REAL NOT NULL,
	grade          TEXT NOT NULL,
	ready          INTEGER NOT NULL,
	blocking_json  TEXT,
	recorded_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_item ON assessments(item, recorded_at);

CREATE TABLE IF NOT EXISTS release_runs (
	run_id         TEXT PRIMARY KEY,
	backup_id      TEXT,
	status         TEXT NOT NULL,
	state          TEXT NOT NULL,
	dry_run        INTEGER NOT NULL,
	items          INTEGER NOT NULL,
	applied        INTEGER NOT NULL,
	summary        TEXT NOT NULL,
	errors_json    TEXT,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rollbacks (
	id             TEXT PRIMARY KEY,
	backup_id      TEXT NOT NULL,
	restored       INTEGER NOT NULL,
	pruned         INTEGER NOT NULL,
	verified       INTEGER NOT NULL,
	summary        TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_cycles (
	cycle_id         TEXT PRIMARY KEY,
	cycle            INTEGER NOT NULL,
	kind             TEXT NOT NULL,
	baseline_adopted INTEGER NOT NULL,
	alerts           INTEGER NOT NULL,
	alerts_json      TEXT,
	started_at       TEXT NOT NULL,
	duration_ms      INTEGER NOT NULL
);
`

// Entry kinds.
const (
	KindAssessment = "assessment"
	KindRelease    = "release"
	KindRollback   = "rollback"
	KindCycle      = "cycle"
)

// Entry is one row of the combined ledger.
type Entry struct {
	Kind    string    `json:"kind" yaml:"kind"`
	ID      string    `json:"id" yaml:"id"`
	At      time.Time `json:"at" yaml:"at"`
	Status  string    `json:"status" yaml:"status"`
	Summary string    `json:"summary" yaml:"summary"`
}

// Assessment is one recorded readiness decision.
type Assessment struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Item       string    `json:"item" yaml:"item"`
	Category   string    `json:"category" yaml:"category"`
	Score      float64   `json:"score" yaml:"score"`
	Grade      string    `json:"grade" yaml:"grade"`
	Ready      bool      `json:"ready" yaml:"ready"`
	Blocking   []string  `json:"blocking,omitempty" yaml:"blocking,omitempty"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Store is the SQLite ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return nil, errors.Storage("history", "create history dir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Storage("history", "open db", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Storage("history", "migrate", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAssessments stores the readiness decisions of one run.
func (s *Store) RecordAssessments(ctx context.Context, runID string, at time.Time, candidates []gatekeeper.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("history", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := at.UTC().Format(time.RFC3339Nano)
	for _, c := range candidates {
		var blocking []string
		for _, issue := range c.BlockingIssues {
			blocking = append(blocking, issue.Name())
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO assessments (id, run_id, item, category, score, grade, ready, blocking_json, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), runID, string(c.Item), c.Category, c.Score, string(c.Grade), c.Ready, marshal(blocking), stamp,
		)
		if err != nil {
			return errors.Storage("history", "insert assessment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage("history", "commit", err)
	}
	return nil
}

// RecordRelease stores a release run.
func (s *Store) RecordRelease(ctx context.Context, res *release.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO release_runs (run_id, backup_id, status, state, dry_run, items, applied, summary, errors_json, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.BackupID, string(res.Status), string(res.State), res.DryRun, len(res.Items), res.Count(release.ItemApplied),
		res.Summary(), marshal(res.Errors), res.StartedAt.UTC().Format(time.RFC3339Nano), res.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Storage("history", "insert release", err)
	}
	return nil
}

// RecordRollback stores a rollback.
func (s *Store) RecordRollback(ctx context.Context, res *release.RollbackResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rollbacks (id, backup_id, restored, pruned, verified, summary, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), res.BackupID, len(res.Restored), len(res.Pruned), res.Verified, res.Summary(),
		res.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Storage("history", "insert rollback", err)
	}
	return nil
}

// RecordCycle stores a monitoring cycle.
func (s *Store) RecordCycle(ctx context.Context, res monitor.CycleResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_cycles (cycle_id, cycle, kind, baseline_adopted, alerts, alerts_json, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Cycle, string(res.Kind), res.BaselineAdopted, len(res.Alerts), marshal(res.Alerts),
		res.StartedAt.UTC().Format(time.RFC3339Nano), res.Duration.Milliseconds(),
	)
	if err != nil {
		return errors.Storage("history", "insert cycle", err)
	}
	return nil
}

// ItemHistory returns the recorded assessments of item, oldest first.
func (s *Store) ItemHistory(ctx context.Context, item string) ([]Assessment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, item, category, score, grade, ready, blocking_json, recorded_at
		 FROM assessments WHERE item = ? ORDER BY recorded_at ASC`, item,
	)
	if err != nil {
		return nil, errors.Storage("history", "query assessments", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Assessment
	for rows.Next() {
		var a Assessment
		var blocking sql.NullString
		var recorded string
		if err := rows.Scan(&a.RunID, &a.Item, &a.Category, &a.Score, &a.Grade, &a.Ready, &blocking, &recorded); err != nil {
			return nil, errors.Storage("history", "scan assessment", err)
		}
		if blocking.Valid && blocking.String != "" {
			_ = json.Unmarshal([]byte(blocking.String), &a.Blocking)
		}
		a.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("history", "read assessments", err)
	}
	return out, nil
}

// Recent returns the newest ledger entries of kind, or of every kind when
// kind is empty. Assessments are grouped per run.
func (s *Store) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	queries := map[string]string{
		KindAssessment: `SELECT run_id, MAX(recorded_at), printf('%d/%d ready', SUM(ready), COUNT(*)), printf('%d items, mean score %.3f', COUNT(*), AVG(score))
			FROM assessments GROUP BY run_id ORDER BY MAX(recorded_at) DESC LIMIT ?`,
		KindRelease: `SELECT run_id, finished_at, status, summary
			FROM release_runs ORDER BY finished_at DESC LIMIT ?`,
		KindRollback: `SELECT backup_id, finished_at, CASE verified WHEN 1 THEN 'verified' ELSE 'unverified' END, summary
			FROM rollbacks ORDER BY finished_at DESC LIMIT ?`,
		KindCycle: `SELECT cycle_id, started_at, CASE WHEN baseline_adopted = 1 THEN 'baseline' WHEN alerts > 0 THEN 'alerts' ELSE 'ok' END,
			printf('%s cycle %d, %d alerts', kind, cycle, alerts)
			FROM monitor_cycles ORDER BY started_at DESC LIMIT ?`,
	}
	kinds := []string{KindAssessment, KindRelease, KindRollback, KindCycle}
	if kind != "" {
		if _, ok := queries[kind]; !ok {
			return nil, errors.NewValidationError("kind", kind, "unknown history kind")
		}
		kinds = []string{kind}
	}

	var entries []Entry
	for _, k := range kinds {
		found, err := s.query(ctx, k, queries[k], limit)
		if err != nil {
			return nil, err
		}
		entries = append(entries, found...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.After(entries[j].At)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) query(ctx context.Context, kind, query string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Storage("history", "query "+kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e := Entry{Kind: kind}
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Status, &e.Summary); err != nil {
			return nil, errors.Storage("history", "scan "+kind, err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("history", "read "+kind, err)
	}
	return out, nil
}

func marshal(v any) any {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	return string(data)
}
