package calc

import (
	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// REDUCTION - Keep/remove between pass 1 and pass 2
// =============================================================================

// reduce applies every update set to a copy of the region's baseline row.
//
// The kept value of a set is the sum of its keep flows as computed by pass 1,
// less whatever Stage A collected for those flows straight from the baseline.
// Each remove subtracts the kept value from its baseline column. A column
// that is absent stays absent. A set with an unresolved keep is skipped
// entirely: its removes become no-ops.
//
// The original row is never modified. The returned map holds the kept value
// of every set that applied.
func (c *Calculator) reduce(s *regionState) (*BaselineRow, map[string]decimal.Decimal) {
	reduced := s.row.Clone()
	kept := make(map[string]decimal.Decimal)

	for _, set := range c.sets {
		if len(set.keeps) == 0 {
			continue
		}
		value, ok := s.keptValue(set)
		if !ok {
			continue
		}
		kept[set.id] = value

		for _, r := range set.removes {
			column := r.Column()
			base, ok := reduced.Value(column)
			if !ok {
				continue
			}
			next := base.Sub(value)
			if next.IsNegative() {
				s.note(&generic.BaselineOverdrawError{
					SetID:     set.id,
					Column:    column,
					Baseline:  base,
					Requested: value,
				})
				next = decimal.Zero
			}
			reduced.set(column, next)
		}
	}
	return reduced, kept
}

// keptValue sums the computed part of the set's keep flows in the pass-1
// ledger. The collected part is the baseline's own value and is not removed
// from it. Every missing keep is recorded.
func (s *regionState) keptValue(set *updateSet) (decimal.Decimal, bool) {
	total := decimal.Zero
	complete := true
	for _, r := range set.keeps {
		key := r.FlowKey(s.region)
		v, ok := s.ledger.Flow(key, generic.Levels)
		if !ok {
			s.note(&generic.MissingFlowError{SetID: set.id, Flow: generic.EncodeFlow(key, generic.Levels)})
			complete = false
			continue
		}
		total = total.Add(v.Sub(s.collectedValue(key)))
	}
	return total, complete
}

// collectedValue is the part of a level-5 flow that Stage A read from the
// baseline.
func (s *regionState) collectedValue(key generic.FlowKey) decimal.Decimal {
	v := decimal.Zero
	for _, row := range s.collected {
		if row.Key == key {
			v = v.Add(row.Value)
		}
	}
	return v
}
