package calc

import (
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// UPDATE SETS - Rules grouped by (bundle, set id)
// =============================================================================

// updateSet is the indexed form of all rules sharing a bundle and set id.
type updateSet struct {
	id      string
	keeps   []UpdateRule
	removes []UpdateRule
	matches [][]UpdateRule // grouped by (To, Units), first-seen order
	exports []UpdateRule
	imports []UpdateRule
}

// SetID is the identifier recorded in diagnostics and in RegionResult.Kept.
func SetID(bundle, set string) string {
	if bundle == "" {
		return set
	}
	return bundle + "/" + set
}

func indexUpdates(rules []UpdateRule) []*updateSet {
	type matchKey struct {
		to    generic.Path
		units generic.Units
	}
	var sets []*updateSet
	byID := make(map[string]*updateSet)
	matchPos := make(map[string]map[matchKey]int)

	for _, r := range rules {
		id := SetID(r.Bundle, r.SetID)
		set, ok := byID[id]
		if !ok {
			set = &updateSet{id: id}
			byID[id] = set
			matchPos[id] = make(map[matchKey]int)
			sets = append(sets, set)
		}
		switch r.Role {
		case RoleKeep:
			set.keeps = append(set.keeps, r)
		case RoleRemove:
			set.removes = append(set.removes, r)
		case RoleExport:
			set.exports = append(set.exports, r)
		case RoleImport:
			set.imports = append(set.imports, r)
		case RoleMatch:
			k := matchKey{r.To, r.Units}
			i, seen := matchPos[id][k]
			if !seen {
				i = len(set.matches)
				matchPos[id][k] = i
				set.matches = append(set.matches, nil)
			}
			set.matches[i] = append(set.matches[i], r)
		}
	}
	return sets
}

// =============================================================================
// RECONCILIATION - Matching inflows to outflows
// =============================================================================

// Match records how one source node was reconciled against a target node.
type Match struct {
	SetID       string
	Source      generic.NodeKey
	Target      generic.NodeKey
	Split       decimal.Decimal // target inflow x source share
	SourceTotal decimal.Decimal // source outflow
	Emitted     decimal.Decimal
	Export      decimal.Decimal // split beyond the source total, charged to the target
	Import      decimal.Decimal // source total beyond the split, charged to the source
}

// reconcile matches the inflow of each match target against the outflows of
// the sources that feed it, emits the matched flows, and accumulates the
// residuals. Export and import rules then route the residuals.
//
// Reconciled flows are appended to the ledger but never change node totals:
// they restate volume that is already counted.
func (c *Calculator) reconcile(s *regionState) {
	for _, set := range c.sets {
		for _, group := range set.matches {
			s.match(set.id, group)
		}
	}

	exported := make(map[generic.NodeKey]bool)
	imported := make(map[generic.NodeKey]bool)
	for _, set := range c.sets {
		for _, r := range set.exports {
			node := s.node(r.From, r.Units)
			s.route(r, node, s.exports[node], exported)
		}
		for _, r := range set.imports {
			node := s.node(r.To, r.Units)
			s.route(r, node, s.imports[node], imported)
		}
	}
}

// match reconciles one target against its declared sources. Each source's
// split is the target inflow apportioned by that source's share of the
// group's total outflow.
func (s *regionState) match(setID string, rules []UpdateRule) {
	target := s.node(rules[0].To, rules[0].Units)
	targetTotal, ok := s.ledger.Inflow(target, generic.Levels)
	if !ok {
		return
	}

	type source struct {
		rule  UpdateRule
		total decimal.Decimal
	}
	var sources []source
	grand := decimal.Zero
	for _, r := range rules {
		t, ok := s.ledger.Outflow(s.node(r.From, r.Units), generic.Levels)
		if !ok {
			continue
		}
		sources = append(sources, source{rule: r, total: t})
		grand = grand.Add(t)
	}
	if !grand.IsPositive() {
		return
	}

	for _, src := range sources {
		node := s.node(src.rule.From, src.rule.Units)
		m := Match{
			SetID:       setID,
			Source:      node,
			Target:      target,
			Split:       targetTotal.Mul(src.total).Div(grand),
			SourceTotal: src.total,
		}
		switch {
		case generic.ApproxEqual(m.Split, m.SourceTotal):
			m.Emitted = m.Split
		case m.Split.GreaterThan(m.SourceTotal):
			m.Emitted = m.SourceTotal
			m.Export = m.Split.Sub(m.SourceTotal)
			s.exports[target] = s.exports[target].Add(m.Export)
		default:
			m.Emitted = m.Split
			m.Import = m.SourceTotal.Sub(m.Split)
			s.imports[node] = s.imports[node].Add(m.Import)
		}
		if m.Emitted.IsPositive() {
			s.emit(src.rule.FlowKey(s.region), m.Emitted)
		}
		s.matches = append(s.matches, m)
	}
}

// route emits a residual along an export or import rule. A residual is
// routed once, to the first rule that names its node; later rules naming the
// same node are logged and skipped.
func (s *regionState) route(r UpdateRule, node generic.NodeKey, residual decimal.Decimal, routed map[generic.NodeKey]bool) {
	if !residual.IsPositive() {
		return
	}
	if routed[node] {
		s.logger.Debug("residual already routed, rule skipped",
			slog.Int("pass", s.pass),
			slog.String("region", string(s.region)),
			slog.String("role", string(r.Role)),
			slog.String("node", generic.EncodeNode(node, generic.Levels)),
			slog.String("flow", generic.EncodeFlow(r.FlowKey(s.region), generic.Levels)))
		return
	}
	if s.emit(r.FlowKey(s.region), residual) {
		routed[node] = true
	}
}
