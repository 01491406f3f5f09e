/*
ledger.go - Append-only five-level rollup of flows and node totals

PURPOSE:
  The Ledger is where every stage of a regional calculation records what it
  emits. It keeps five parallel flow maps (R1..R5) and, for node totals, five
  inflow maps and five outflow maps. Appending a level-5 value accumulates it
  into every coarser level at once, so a level-k view never has to be derived
  after the fact.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: values are only ever added. No Set, no Delete.
  2. NON-NEGATIVE: a negative value is rejected with NegativeMagnitudeError.
  3. CONSERVATION: for every k, R_k[key] is the sum of all level-5 values
     whose first k source and target components match key.

WHY TWO NODE MAPS?
  Inflow is demand arriving at a node (what a target receives), outflow is
  supply leaving a node (what a source gives). Reconciliation compares the
  two, so they must never be conflated with each other or with flows.

ORDERING:
  Accumulation is decimal addition: exact, commutative and associative.
  Any enumeration order yields identical totals.

EXAMPLE:
  l := generic.NewLedger()
  l.Append(key, decimal.NewFromInt(12))   // WSW/fresh/surface -> PWS
  l.Append(key2, decimal.NewFromInt(18))  // WSW/fresh/ground  -> PWS
  v, _ := l.Flow(key.Truncate(1), 1)      // WSW -> PWS = 30

SEE ALSO:
  - types.go: FlowKey / NodeKey truncation
  - calc/state.go: Per-region owner of a Ledger
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	flows   [Levels]map[FlowKey]decimal.Decimal
	inflow  [Levels]map[NodeKey]decimal.Decimal
	outflow [Levels]map[NodeKey]decimal.Decimal
}

func NewLedger() *Ledger {
	l := &Ledger{}
	for i := 0; i < Levels; i++ {
		l.flows[i] = make(map[FlowKey]decimal.Decimal)
		l.inflow[i] = make(map[NodeKey]decimal.Decimal)
		l.outflow[i] = make(map[NodeKey]decimal.Decimal)
	}
	return l
}

// Append accumulates a level-5 flow into R1..R5.
func (l *Ledger) Append(key FlowKey, value decimal.Decimal) error {
	if value.IsNegative() {
		return &NegativeMagnitudeError{Identifier: EncodeFlow(key, Levels), Value: value}
	}
	for level := 1; level <= Levels; level++ {
		k := key.Truncate(level)
		l.flows[level-1][k] = l.flows[level-1][k].Add(value)
	}
	return nil
}

// AddInflow accumulates demand arriving at a level-5 node.
func (l *Ledger) AddInflow(node NodeKey, value decimal.Decimal) error {
	return addNode(&l.inflow, node, value)
}

// AddOutflow accumulates supply leaving a level-5 node.
func (l *Ledger) AddOutflow(node NodeKey, value decimal.Decimal) error {
	return addNode(&l.outflow, node, value)
}

func addNode(maps *[Levels]map[NodeKey]decimal.Decimal, node NodeKey, value decimal.Decimal) error {
	if value.IsNegative() {
		return &NegativeMagnitudeError{Identifier: EncodeNode(node, Levels), Value: value}
	}
	for level := 1; level <= Levels; level++ {
		k := node.Truncate(level)
		maps[level-1][k] = maps[level-1][k].Add(value)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Flow returns the level rollup of key. Absence is reported, never zero-filled.
func (l *Ledger) Flow(key FlowKey, level int) (decimal.Decimal, bool) {
	if ValidateLevel(level) != nil {
		return decimal.Zero, false
	}
	v, ok := l.flows[level-1][key.Truncate(level)]
	return v, ok
}

func (l *Ledger) Inflow(node NodeKey, level int) (decimal.Decimal, bool) {
	if ValidateLevel(level) != nil {
		return decimal.Zero, false
	}
	v, ok := l.inflow[level-1][node.Truncate(level)]
	return v, ok
}

func (l *Ledger) Outflow(node NodeKey, level int) (decimal.Decimal, bool) {
	if ValidateLevel(level) != nil {
		return decimal.Zero, false
	}
	v, ok := l.outflow[level-1][node.Truncate(level)]
	return v, ok
}

// Len is the number of distinct flows at level.
func (l *Ledger) Len(level int) int {
	if ValidateLevel(level) != nil {
		return 0
	}
	return len(l.flows[level-1])
}

// Rows returns the level-k flows in canonical order.
func (l *Ledger) Rows(level int) ([]FlowRow, error) {
	if err := ValidateLevel(level); err != nil {
		return nil, err
	}
	rows := make([]FlowRow, 0, len(l.flows[level-1]))
	for k, v := range l.flows[level-1] {
		rows = append(rows, FlowRow{Key: k, Level: level, Value: v})
	}
	SortRows(rows)
	return rows, nil
}

// InflowNodes returns the level-5 nodes that received inflow, sorted.
func (l *Ledger) InflowNodes() []NodeKey {
	return sortedNodes(l.inflow[Levels-1])
}

// OutflowNodes returns the level-5 nodes that produced outflow, sorted.
func (l *Ledger) OutflowNodes() []NodeKey {
	return sortedNodes(l.outflow[Levels-1])
}

func sortedNodes(m map[NodeKey]decimal.Decimal) []NodeKey {
	nodes := make([]NodeKey, 0, len(m))
	for k := range m {
		nodes = append(nodes, k)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Less(nodes[j]) })
	return nodes
}
