/*
store.go - Persistence interface for computed flow tables

PURPOSE:
  Defines the interface between the calculator's output and a database.
  A stored run is the single flat output table of one calculation (level-5
  flows), its header, and the diagnostics raised while computing it.

APPEND-ONLY CONTRACT:
  - SaveRun(): atomic write of header + flows + diagnostics
  - NO Update() or Delete() methods exist
  A run is immutable once saved. Recomputing produces a new run.

IDENTIFIERS:
  Flows are persisted under their level-5 codec name (codec.go) and decoded
  on load, so a stored table can be read without knowing the Go types that
  produced it. Run.RegionTokens is needed to decode.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - codec.go: Name encoding
  - api/handlers.go: Serves stored runs
*/
package generic

import (
	"context"
	"time"
)

type RunID string

// Run is the header of a stored calculation.
type Run struct {
	ID           RunID
	CreatedAt    time.Time
	RegionTokens int    // number of region key columns, needed to decode names
	Region       string // region filter, empty for all regions
	Regions      int    // regions computed
	Flows        int    // level-5 flows stored
	Diagnostics  int
}

// DiagnosticRecord is the persisted form of a Diagnostic.
type DiagnosticRecord struct {
	Pass    int
	Region  Region
	Kind    DiagnosticKind
	Message string
}

func NewDiagnosticRecord(d Diagnostic) DiagnosticRecord {
	msg := ""
	if d.Err != nil {
		msg = d.Err.Error()
	}
	return DiagnosticRecord{Pass: d.Pass, Region: d.Region, Kind: d.Kind(), Message: msg}
}

// FlowFilter narrows LoadFlows. Zero fields match everything.
type FlowFilter struct {
	Region Region
	Units  Units
}

func (f FlowFilter) Match(k FlowKey) bool {
	if f.Region != "" && k.Region != f.Region {
		return false
	}
	if f.Units != "" && k.Units != f.Units {
		return false
	}
	return true
}

// Store persists computed runs.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// SaveRun persists a run with its level-5 flows and diagnostics atomically.
	// Returns ErrDuplicateRun if the ID exists.
	SaveRun(ctx context.Context, run Run, flows []FlowRow, diags []DiagnosticRecord) error

	// GetRun returns ErrRunNotFound for an unknown ID.
	GetRun(ctx context.Context, id RunID) (Run, error)

	// ListRuns returns runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// LoadFlows returns the run's level-5 flows in canonical order.
	LoadFlows(ctx context.Context, id RunID, filter FlowFilter) ([]FlowRow, error)

	LoadDiagnostics(ctx context.Context, id RunID) ([]DiagnosticRecord, error)
}
