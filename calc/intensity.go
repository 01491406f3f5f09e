package calc

import (
	"sort"

	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// STAGE B - Intensity derivation
// =============================================================================

// derive computes each declared intensity node as
//
//	total(Source, UnitsIn) x intensity
//
// The source total is the node's inflow, or its outflow for pure supply
// nodes that receive nothing. A missing total skips the rule silently.
// A region-specific intensity column takes precedence over the parameter.
//
// The result is added to the derived node's inflow and remembered as that
// node's Stage-B total, which Stage C splits across sources. Totals that no
// source split apportions are emitted by emitDerived.
func (c *Calculator) derive(s *regionState) {
	for _, rule := range c.params.Intensities {
		src := s.node(rule.Source, rule.UnitsIn)
		total, ok := s.ledger.Inflow(src, generic.Levels)
		if !ok {
			total, ok = s.ledger.Outflow(src, generic.Levels)
		}
		if !ok {
			continue
		}

		intensity := rule.Value
		if v, ok := s.row.Value(generic.EncodeIntensity(rule.Source, rule.Target)); ok {
			intensity = v
		}

		v := total.Mul(intensity)
		tgt := s.node(rule.Target, rule.UnitsOut())
		if err := s.ledger.AddInflow(tgt, v); err != nil {
			s.note(err)
			continue
		}
		s.derived[tgt] = s.derived[tgt].Add(v)
		addTo(s.derivedFrom, tgt, rule.Source, v)
	}
}

// emitDerived emits every positive derived total that Stage C did not split
// as a flow from its intensity source, in the derived units. The source gains
// outflow as it would from a split; the node's inflow was counted above.
func (s *regionState) emitDerived() {
	nodes := make([]generic.NodeKey, 0, len(s.derivedFrom))
	for node := range s.derivedFrom {
		if len(s.sourceFractions[node]) == 0 {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Less(nodes[j]) })

	for _, node := range nodes {
		from := s.derivedFrom[node]
		sources := make([]generic.Path, 0, len(from))
		for src := range from {
			sources = append(sources, src)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i].Less(sources[j]) })

		for _, src := range sources {
			v := from[src]
			if !v.IsPositive() {
				continue
			}
			key := s.flow(src, node.Path, node.Units)
			if s.emit(key, v) {
				s.ledger.AddOutflow(key.SourceNode(), v)
			}
		}
	}
}
