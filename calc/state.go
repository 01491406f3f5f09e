package calc

import (
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// REGION STATE - Everything one pass over one region accumulates
// =============================================================================

// mix maps a counterpart path to its fraction of some node total.
type mix map[generic.Path]decimal.Decimal

// regionState is owned by a single pass of a single region. Stages receive it
// in order and only ever add to it.
type regionState struct {
	pass   int
	region generic.Region
	row    *BaselineRow
	ledger *generic.Ledger

	// Stage A emissions, in emission order, for the observed mixes.
	collected []generic.FlowRow

	// Observed source mix per level-1 target node and observed discharge mix
	// per level-1 source node (Stage A). Fallback fractions for C and D.
	observedSources    map[generic.NodeKey]mix
	observedDischarges map[generic.NodeKey]mix

	// Stage B totals, keyed by level-5 derived node, and the same totals
	// broken down by the intensity source they were derived from.
	derived     map[generic.NodeKey]decimal.Decimal
	derivedFrom map[generic.NodeKey]mix

	// Fractions actually applied by Stage C, and destination fractions of
	// each split node's total recorded by Stage D.
	sourceFractions    map[generic.NodeKey]mix
	dischargeFractions map[generic.NodeKey]mix

	// Reconciliation residuals: exports on target nodes, imports on source nodes.
	exports map[generic.NodeKey]decimal.Decimal
	imports map[generic.NodeKey]decimal.Decimal
	matches []Match

	diags  []generic.Diagnostic
	logger *slog.Logger
}

func newRegionState(pass int, row *BaselineRow, logger *slog.Logger) *regionState {
	return &regionState{
		pass:               pass,
		region:             row.Region,
		row:                row,
		ledger:             generic.NewLedger(),
		observedSources:    make(map[generic.NodeKey]mix),
		observedDischarges: make(map[generic.NodeKey]mix),
		derived:            make(map[generic.NodeKey]decimal.Decimal),
		derivedFrom:        make(map[generic.NodeKey]mix),
		sourceFractions:    make(map[generic.NodeKey]mix),
		dischargeFractions: make(map[generic.NodeKey]mix),
		exports:            make(map[generic.NodeKey]decimal.Decimal),
		imports:            make(map[generic.NodeKey]decimal.Decimal),
		logger:             logger,
	}
}

func (s *regionState) note(err error) {
	s.diags = append(s.diags, generic.Diagnostic{Pass: s.pass, Region: s.region, Err: err})
}

func (s *regionState) node(p generic.Path, u generic.Units) generic.NodeKey {
	return generic.NodeKey{Region: s.region, Path: p, Units: u}
}

func (s *regionState) flow(src, tgt generic.Path, u generic.Units) generic.FlowKey {
	return generic.FlowKey{Region: s.region, Source: src, Target: tgt, Units: u}
}

// emit appends a flow, recording rather than raising a negative value.
func (s *regionState) emit(key generic.FlowKey, v decimal.Decimal) bool {
	if err := s.ledger.Append(key, v); err != nil {
		s.note(err)
		return false
	}
	return true
}

func addTo(m map[generic.NodeKey]mix, node generic.NodeKey, p generic.Path, v decimal.Decimal) {
	inner, ok := m[node]
	if !ok {
		inner = make(mix)
		m[node] = inner
	}
	inner[p] = inner[p].Add(v)
}
