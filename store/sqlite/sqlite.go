/*
Package sqlite provides a SQLite-backed implementation of generic.Store.

PURPOSE:
  Persists calculation runs so results can be browsed and re-reported
  without recomputing. A run is its header, its level-5 flows, and its
  diagnostics. Coarser levels are never stored: they are regrouped from the
  level-5 rows on load (report.Group).

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics:
  - No UPDATE statements on any table
  - No DELETE statements on any table
  - A run is written once, in one transaction

KEY TABLES:
  runs:        One row per calculation
  flows:       Level-5 flows, keyed by codec identifier
  diagnostics: Non-fatal conditions recorded by the run

  Flow values are stored as decimal strings so a loaded run is bit-equal to
  the computed one.

INDEXES:
  - idx_flows_run_region: Region-filtered loads (hot path for the API)
  - idx_diagnostics_run:  Diagnostic listing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/flows.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.SaveRun(ctx, run, rows, diags)

SEE ALSO:
  - generic/store.go: Interface definition
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives as long as its one connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		region_tokens INTEGER NOT NULL,
		region_filter TEXT NOT NULL DEFAULT '',
		regions INTEGER NOT NULL,
		flow_count INTEGER NOT NULL,
		diagnostic_count INTEGER NOT NULL
	);

	-- Level-5 flows. name is the codec identifier; region and units are
	-- denormalized for filtering.
	CREATE TABLE IF NOT EXISTS flows (
		run_id TEXT NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		region TEXT NOT NULL,
		units TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_flows_run_region
		ON flows(run_id, region, units);

	CREATE TABLE IF NOT EXISTS diagnostics (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		pass INTEGER NOT NULL,
		region TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_run
		ON diagnostics(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// SaveRun writes the run header, its level-5 flows and its diagnostics in one
// transaction. Flow and diagnostic counts in the header are taken from the
// slices, not from run.
func (s *Store) SaveRun(ctx context.Context, run generic.Run, flows []generic.FlowRow, diags []generic.DiagnosticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range flows {
		if f.Level != generic.Levels {
			return &generic.LevelError{Level: f.Level}
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var exists int
	if err := sqlTx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", run.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists > 0 {
		return generic.ErrDuplicateRun
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, region_tokens, region_filter, regions, flow_count, diagnostic_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC().Format(timeLayout), run.RegionTokens, run.Region,
		run.Regions, len(flows), len(diags))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	flowStmt, err := sqlTx.PrepareContext(ctx,
		"INSERT INTO flows (run_id, name, region, units, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare flow insert: %w", err)
	}
	defer flowStmt.Close()
	for _, f := range flows {
		name := generic.EncodeFlow(f.Key, generic.Levels)
		if _, err := flowStmt.ExecContext(ctx, run.ID, name, string(f.Key.Region), string(f.Key.Units), f.Value.String()); err != nil {
			return fmt.Errorf("failed to insert flow %s: %w", name, err)
		}
	}

	diagStmt, err := sqlTx.PrepareContext(ctx,
		"INSERT INTO diagnostics (run_id, seq, pass, region, kind, message) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare diagnostic insert: %w", err)
	}
	defer diagStmt.Close()
	for i, d := range diags {
		if _, err := diagStmt.ExecContext(ctx, run.ID, i, d.Pass, string(d.Region), string(d.Kind), d.Message); err != nil {
			return fmt.Errorf("failed to insert diagnostic: %w", err)
		}
	}

	return sqlTx.Commit()
}

// =============================================================================
// READS
// =============================================================================

// timeLayout has fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, created_at, region_tokens, region_filter, regions, flow_count, diagnostic_count`

// GetRun returns the run header.
func (s *Store) GetRun(ctx context.Context, id generic.RunID) (generic.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Run{}, generic.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]generic.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []generic.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadFlows returns the run's level-5 flows in canonical order.
func (s *Store) LoadFlows(ctx context.Context, id generic.RunID, filter generic.FlowFilter) ([]generic.FlowRow, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT name, value FROM flows WHERE run_id = ?"
	args := []any{id}
	if filter.Region != "" {
		query += " AND region = ?"
		args = append(args, string(filter.Region))
	}
	if filter.Units != "" {
		query += " AND units = ?"
		args = append(args, string(filter.Units))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var flows []generic.FlowRow
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		key, level, err := generic.DecodeFlow(name, run.RegionTokens)
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("flow %s: %w", name, err)
		}
		flows = append(flows, generic.FlowRow{Key: key, Level: level, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	generic.SortRows(flows)
	return flows, nil
}

// LoadDiagnostics returns the run's diagnostics in recorded order.
func (s *Store) LoadDiagnostics(ctx context.Context, id generic.RunID) ([]generic.DiagnosticRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT pass, region, kind, message FROM diagnostics WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []generic.DiagnosticRecord
	for rows.Next() {
		var d generic.DiagnosticRecord
		var region, kind string
		if err := rows.Scan(&d.Pass, &region, &kind, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		d.Region = generic.Region(region)
		d.Kind = generic.DiagnosticKind(kind)
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (generic.Run, error) {
	var (
		run       generic.Run
		id        string
		createdAt string
	)
	err := row.Scan(&id, &createdAt, &run.RegionTokens, &run.Region, &run.Regions, &run.Flows, &run.Diagnostics)
	if err != nil {
		return run, err
	}
	run.ID = generic.RunID(id)
	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return run, fmt.Errorf("run %s: bad created_at: %w", id, err)
	}
	return run, nil
}
