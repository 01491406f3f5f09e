package calc

import (
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// STAGE A - Direct collection from the baseline
// =============================================================================

// collect emits every declared (target, source, units) pair whose column is
// present in the region's baseline row. A missing column is absence: the
// pair is skipped, never treated as zero.
//
// Each emission adds to the target's inflow and the source's outflow. Once
// all pairs are read, the observed mixes are recorded: each level-5 source's
// share of its level-1 target inflow, and each level-5 target's share of its
// level-1 source outflow.
func (c *Calculator) collect(s *regionState) {
	for _, rule := range c.params.Collections {
		v, ok := s.row.Value(rule.Column())
		if !ok {
			continue
		}
		v = v.Mul(rule.Factor)

		key := s.flow(rule.Source, rule.Target, rule.Units)
		if !s.emit(key, v) {
			continue
		}
		s.ledger.AddInflow(key.TargetNode(), v)
		s.ledger.AddOutflow(key.SourceNode(), v)
		s.collected = append(s.collected, generic.FlowRow{Key: key, Level: generic.Levels, Value: v})
	}
	s.observeMix()
}

func (s *regionState) observeMix() {
	for _, row := range s.collected {
		target := row.Key.TargetNode().Truncate(1)
		if total, ok := s.ledger.Inflow(target, 1); ok && total.IsPositive() {
			addTo(s.observedSources, target, row.Key.Source, row.Value.Div(total))
		}

		source := row.Key.SourceNode().Truncate(1)
		if total, ok := s.ledger.Outflow(source, 1); ok && total.IsPositive() {
			addTo(s.observedDischarges, source, row.Key.Target, row.Value.Div(total))
		}
	}
}
