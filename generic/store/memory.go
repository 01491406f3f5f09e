// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	runs  map[generic.RunID]generic.Run
	order []generic.RunID
	flows map[generic.RunID][]generic.FlowRow
	diags map[generic.RunID][]generic.DiagnosticRecord
}

func NewMemory() *Memory {
	return &Memory{
		runs:  make(map[generic.RunID]generic.Run),
		flows: make(map[generic.RunID][]generic.FlowRow),
		diags: make(map[generic.RunID][]generic.DiagnosticRecord),
	}
}

// SaveRun stores a run atomically. Append-only.
func (m *Memory) SaveRun(_ context.Context, run generic.Run, flows []generic.FlowRow, diags []generic.DiagnosticRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return generic.ErrDuplicateRun
	}

	rows := make([]generic.FlowRow, len(flows))
	copy(rows, flows)
	generic.SortRows(rows)

	run.Flows = len(rows)
	run.Diagnostics = len(diags)
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.flows[run.ID] = rows
	m.diags[run.ID] = append([]generic.DiagnosticRecord(nil), diags...)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id generic.RunID) (generic.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return generic.Run{}, generic.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first; ties keep reverse insertion order.
func (m *Memory) ListRuns(_ context.Context) ([]generic.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]generic.Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		runs = append(runs, m.runs[m.order[i]])
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (m *Memory) LoadFlows(_ context.Context, id generic.RunID, filter generic.FlowFilter) ([]generic.FlowRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[id]; !ok {
		return nil, generic.ErrRunNotFound
	}
	var result []generic.FlowRow
	for _, row := range m.flows[id] {
		if filter.Match(row.Key) {
			result = append(result, row)
		}
	}
	return result, nil
}

func (m *Memory) LoadDiagnostics(_ context.Context, id generic.RunID) ([]generic.DiagnosticRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[id]; !ok {
		return nil, generic.ErrRunNotFound
	}
	return append([]generic.DiagnosticRecord(nil), m.diags[id]...), nil
}
