package calc

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// SPLIT GROUPS - Declared fractions indexed by (node, units, axis)
// =============================================================================

type share struct {
	counterpart generic.Path
	fraction    decimal.Decimal
}

// splitGroup is every declared fraction of one node total on one axis.
// Groups keep declaration order so chained discharges (RES -> WW, then
// WW -> surface) see the inflow their predecessors produced.
type splitGroup struct {
	node   generic.Path
	units  generic.Units
	axis   Axis
	shares []share
}

func indexSplits(splits []Split) []*splitGroup {
	type groupKey struct {
		node  generic.Path
		units generic.Units
		axis  Axis
	}
	var groups []*splitGroup
	byKey := make(map[groupKey]*splitGroup)
	position := make(map[groupKey]map[generic.Path]int)

	for _, sp := range splits {
		k := groupKey{sp.Node, sp.Units, sp.Axis}
		g, ok := byKey[k]
		if !ok {
			g = &splitGroup{node: sp.Node, units: sp.Units, axis: sp.Axis}
			byKey[k] = g
			position[k] = make(map[generic.Path]int)
			groups = append(groups, g)
		}
		// Water-type rows of the same counterpart add up.
		if i, seen := position[k][sp.Counterpart]; seen {
			g.shares[i].fraction = g.shares[i].fraction.Add(sp.Fraction)
			continue
		}
		position[k][sp.Counterpart] = len(g.shares)
		g.shares = append(g.shares, share{counterpart: sp.Counterpart, fraction: sp.Fraction})
	}
	return groups
}

func (g *splitGroup) fractionColumn(counterpart generic.Path) string {
	if g.axis == AxisSource {
		return generic.EncodeFraction(counterpart, g.node, generic.Levels)
	}
	return generic.EncodeFraction(g.node, counterpart, generic.Levels)
}

// fractions resolves the group's fractions for a region. A region-specific
// fraction column beats the parameter. When no positive fraction remains the
// observed mix from Stage A is used instead, preserving the observed shares.
// The fallback is decided per group: a zero share next to positive ones stays
// zero.
func (g *splitGroup) fractions(s *regionState, observed mix) []share {
	resolved := make([]share, 0, len(g.shares))
	sum := decimal.Zero
	for _, sh := range g.shares {
		f := sh.fraction
		if v, ok := s.row.Value(g.fractionColumn(sh.counterpart)); ok {
			f = v
		}
		resolved = append(resolved, share{counterpart: sh.counterpart, fraction: f})
		sum = sum.Add(f)
	}
	if sum.IsPositive() {
		return resolved
	}
	return observed.shares()
}

func (m mix) shares() []share {
	out := make([]share, 0, len(m))
	for p, f := range m {
		out = append(out, share{counterpart: p, fraction: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].counterpart.Less(out[j].counterpart) })
	return out
}

func (m mix) sum() decimal.Decimal {
	total := decimal.Zero
	for _, f := range m {
		total = total.Add(f)
	}
	return total
}

// =============================================================================
// STAGE C - Source split of derived totals
// =============================================================================

// splitSources apportions each Stage-B total across its declared sources,
// emitting source -> node flows and adding to each source's outflow.
// The node's inflow is not touched: Stage B already counted it. Derived
// totals left unsplit are then emitted from their intensity sources.
func (c *Calculator) splitSources(s *regionState) {
	for _, g := range c.splits {
		if g.axis != AxisSource {
			continue
		}
		node := s.node(g.node, g.units)
		total, ok := s.derived[node]
		if !ok || total.IsZero() {
			continue
		}

		applied := make(mix)
		emitted := decimal.Zero
		for _, sh := range g.fractions(s, s.observedSources[node.Truncate(1)]) {
			if sh.fraction.IsZero() {
				continue
			}
			v := total.Mul(sh.fraction)
			key := s.flow(sh.counterpart, g.node, g.units)
			if !s.emit(key, v) {
				continue
			}
			s.ledger.AddOutflow(key.SourceNode(), v)
			applied[sh.counterpart] = applied[sh.counterpart].Add(sh.fraction)
			emitted = emitted.Add(v)
		}
		s.sourceFractions[node] = applied
		s.checkConservation(node, AxisSource, total, emitted, applied)
	}
	s.emitDerived()
}

// =============================================================================
// STAGE D - Discharge split of node totals
// =============================================================================

// splitDischarges apportions each node's inflow (collected plus derived)
// across its declared discharge destinations, emitting node -> destination
// flows. Destinations gain inflow, so later groups can split them in turn.
// Each destination's share of the node total is recorded.
func (c *Calculator) splitDischarges(s *regionState) {
	for _, g := range c.splits {
		if g.axis != AxisDischarge {
			continue
		}
		node := s.node(g.node, g.units)
		total, ok := s.ledger.Inflow(node, generic.Levels)
		if !ok || total.IsZero() {
			continue
		}

		applied := make(mix)
		emitted := decimal.Zero
		for _, sh := range g.fractions(s, s.observedDischarges[node.Truncate(1)]) {
			if sh.fraction.IsZero() {
				continue
			}
			v := total.Mul(sh.fraction)
			key := s.flow(g.node, sh.counterpart, g.units)
			if !s.emit(key, v) {
				continue
			}
			s.ledger.AddOutflow(key.SourceNode(), v)
			s.ledger.AddInflow(key.TargetNode(), v)
			applied[sh.counterpart] = applied[sh.counterpart].Add(sh.fraction)
			addTo(s.dischargeFractions, node, sh.counterpart, v.Div(total))
			emitted = emitted.Add(v)
		}
		s.checkConservation(node, AxisDischarge, total, emitted, applied)
	}
}

// checkConservation records a SplitImbalanceError when the emitted splits do
// not add back up to the node total. The emissions stand as computed.
func (s *regionState) checkConservation(node generic.NodeKey, axis Axis, total, emitted decimal.Decimal, applied mix) {
	if generic.ApproxEqual(total, emitted) {
		return
	}
	s.note(&generic.SplitImbalanceError{
		Node: generic.EncodeNode(node, generic.Levels),
		Axis: string(axis),
		Sum:  applied.sum(),
	})
}
