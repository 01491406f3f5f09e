/*
Package generic provides the core flow accounting primitives.

PURPOSE:
  This package contains the domain-agnostic building blocks of the flow
  engine: sector paths, flow and node identifiers, the flow-name codec, the
  nested parameter tree, and the append-only rollup ledger. The calc package
  composes these into the water-energy calculation stages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Units:   The unit tag carried by every magnitude (mgd or bbtu)
  - Path:    A five-level sector path, padded with "total"
  - Region:  An opaque region identifier (composite key joined by "_")
  - FlowKey: A directed edge (region, source, target, units)
  - NodeKey: A node total (region, path, units)
  - FlowRow: A long-form output row at some level

DESIGN PRINCIPLES:
  1. Structural keys: flows are identified by comparable structs, not strings.
     The string form (codec.go) is only used for I/O.
  2. Precision: magnitudes are decimal.Decimal so rollups are exact and
     independent of accumulation order.
  3. Truncation: a level-k key keeps the first k components of each path and
     blanks the rest, so the same struct type serves every level.

USAGE:
  src := generic.NewPath("WSW", "fresh", "surface")
  tgt := generic.NewPath("RES")
  key := generic.FlowKey{Region: "US_CA_001", Source: src, Target: tgt, Units: generic.UnitMGD}
  coarse := key.Truncate(1) // WSW -> RES

SEE ALSO:
  - codec.go: String encoding of keys
  - ledger.go: Five-level rollup of flows and node totals
  - params.go: Nested parameter trees
*/
package generic

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Levels is the number of nested sector levels in a path.
const Levels = 5

// Total fills sub-levels that a shallower path does not specify.
const Total = "total"

// Separator joins identifier components. Components must not contain it.
const Separator = "_"

// =============================================================================
// UNITS
// =============================================================================

type Units string

const (
	UnitMGD  Units = "mgd"  // megagallons per day (water)
	UnitBBTU Units = "bbtu" // billion BTU (energy)
)

// ParseUnits returns the units tag named by s.
func ParseUnits(s string) (Units, bool) {
	u := Units(strings.TrimSpace(s))
	return u, u.Valid()
}

func (u Units) Valid() bool { return u == UnitMGD || u == UnitBBTU }

// =============================================================================
// SECTOR PATH
// =============================================================================

// Path is an ordered tuple of nested sector identifiers (L1..L5).
//
// A full path has all five components set; missing sub-levels are "total".
// A truncated path (see Truncate) keeps the first k components and leaves the
// remainder empty. Truncated paths are only used as rollup keys.
type Path [Levels]string

// NewPath builds a full path, padding missing or empty components with Total.
// Components past the fifth are ignored.
func NewPath(parts ...string) Path {
	var p Path
	for i := range p {
		if i < len(parts) && strings.TrimSpace(parts[i]) != "" {
			p[i] = strings.TrimSpace(parts[i])
		} else {
			p[i] = Total
		}
	}
	return p
}

// Truncate keeps the first level components and blanks the rest.
func (p Path) Truncate(level int) Path {
	var out Path
	if level > Levels {
		level = Levels
	}
	if level > 0 {
		copy(out[:level], p[:level])
	}
	return out
}

// Depth is the number of leading non-empty components.
func (p Path) Depth() int {
	n := 0
	for n < Levels && p[n] != "" {
		n++
	}
	return n
}

// Components returns a copy of the first level components.
func (p Path) Components(level int) []string {
	return append([]string(nil), p[:level]...)
}

// HasPrefix reports whether p and q agree on their first level components.
func (p Path) HasPrefix(q Path, level int) bool {
	for i := 0; i < level && i < Levels; i++ {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	return strings.Join(p[:p.Depth()], Separator)
}

// Less orders paths component by component.
func (p Path) Less(q Path) bool { return p.compare(q) < 0 }

func (p Path) compare(q Path) int {
	for i := 0; i < Levels; i++ {
		if c := strings.Compare(p[i], q[i]); c != 0 {
			return c
		}
	}
	return 0
}

// =============================================================================
// REGION
// =============================================================================

// Region identifies the scope of a calculation. Flows never cross regions.
type Region string

// NewRegion joins composite region components (e.g. country, state, county).
func NewRegion(parts ...string) Region {
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimSpace(p)
	}
	return Region(strings.Join(trimmed, Separator))
}

// Parts splits the region back into its components.
func (r Region) Parts() []string {
	if r == "" {
		return nil
	}
	return strings.Split(string(r), Separator)
}

// =============================================================================
// KEYS
// =============================================================================

// NodeKey identifies an aggregate magnitude at a sector path.
// Node totals are kept apart from flows: they carry no direction.
type NodeKey struct {
	Region Region
	Path   Path
	Units  Units
}

func (n NodeKey) Truncate(level int) NodeKey {
	return NodeKey{Region: n.Region, Path: n.Path.Truncate(level), Units: n.Units}
}

func (n NodeKey) Level() int { return n.Path.Depth() }

func (n NodeKey) Less(o NodeKey) bool {
	if n.Region != o.Region {
		return n.Region < o.Region
	}
	if c := n.Path.compare(o.Path); c != 0 {
		return c < 0
	}
	return n.Units < o.Units
}

// FlowKey identifies a directed flow between two sector paths.
type FlowKey struct {
	Region Region
	Source Path
	Target Path
	Units  Units
}

// Truncate derives the level-k rollup key: first k source components and
// first k target components.
func (k FlowKey) Truncate(level int) FlowKey {
	return FlowKey{
		Region: k.Region,
		Source: k.Source.Truncate(level),
		Target: k.Target.Truncate(level),
		Units:  k.Units,
	}
}

func (k FlowKey) Level() int { return k.Source.Depth() }

func (k FlowKey) SourceNode() NodeKey {
	return NodeKey{Region: k.Region, Path: k.Source, Units: k.Units}
}

func (k FlowKey) TargetNode() NodeKey {
	return NodeKey{Region: k.Region, Path: k.Target, Units: k.Units}
}

func (k FlowKey) Less(o FlowKey) bool {
	if k.Region != o.Region {
		return k.Region < o.Region
	}
	if c := k.Source.compare(o.Source); c != 0 {
		return c < 0
	}
	if c := k.Target.compare(o.Target); c != 0 {
		return c < 0
	}
	return k.Units < o.Units
}

// =============================================================================
// FLOW ROW - Long-form output record
// =============================================================================

// FlowRow is one row of a long-form flow table at a given level.
type FlowRow struct {
	Key   FlowKey
	Level int
	Value decimal.Decimal
}

// SortRows orders rows canonically (region, source, target, units).
func SortRows(rows []FlowRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Less(rows[j].Key) })
}

// =============================================================================
// MAGNITUDES
// =============================================================================

// Tolerance is the relative tolerance used by conservation checks.
var Tolerance = decimal.New(1, -9)

// ApproxEqual compares two magnitudes within Tolerance, relative to the larger
// magnitude (absolute below 1).
func ApproxEqual(a, b decimal.Decimal) bool {
	scale := decimal.Max(a.Abs(), b.Abs(), decimal.NewFromInt(1))
	return a.Sub(b).Abs().LessThanOrEqual(scale.Mul(Tolerance))
}

// ParseMagnitude parses a table cell. The sentinel "--" and empty cells mean
// absence: ok is false and no error is returned.
func ParseMagnitude(cell string) (value decimal.Decimal, ok bool, err error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "--" {
		return decimal.Zero, false, nil
	}
	value, err = decimal.NewFromString(cell)
	if err != nil {
		return decimal.Zero, false, err
	}
	return value, true, nil
}
