/*
Package calc implements the regional water-energy flow calculator.

PURPOSE:
  For each region of a baseline table, calc runs a fixed pipeline of stages
  over a per-region Ledger and returns the complete set of flows:

    Stage A  collect.go    observed source->target flows from the baseline
    Stage B  intensity.go  node totals derived as upstream total x intensity
    Stage C  split.go      derived totals split across sources by fraction
    Stage D  split.go      node totals split across discharge destinations
    Match    reconcile.go  inflow vs outflow matching, import/export residuals
    Update   update.go     keep/remove reduction between the two passes

  calculator.go orchestrates: pass 1, reduction on a copy of the baseline,
  pass 2. The pass-2 ledger is the result.

KEY CONCEPTS IN THIS FILE (types.go):
  - Collection: a declared (target, source, units) pair read from the baseline
  - Intensity:  a declared derivation source node -> derived node
  - Split:      a declared fraction of a node total for one counterpart
  - UpdateRule: a keep/remove/match/export/import directive
  - Parameters: the typed rule set built by the factory package

CONCURRENCY:
  Regions are independent and run in parallel (errgroup). Within a region
  every stage runs sequentially on state owned by that region alone.

SEE ALSO:
  - generic/ledger.go: Rollup engine
  - factory/parameters.go: Builds Parameters from tables
*/
package calc

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// IntensityKind names what an intensity derives. Water kinds yield mgd,
// the energy kind yields bbtu. The kind is also the last component of the
// derived node's path.
type IntensityKind string

const (
	IntensityWithdrawal IntensityKind = "withdrawal"
	IntensityProduced   IntensityKind = "produced"
	IntensityEnergy     IntensityKind = "energy"
)

func ParseIntensityKind(s string) (IntensityKind, bool) {
	k := IntensityKind(strings.TrimSpace(s))
	switch k {
	case IntensityWithdrawal, IntensityProduced, IntensityEnergy:
		return k, true
	}
	return "", false
}

// Units is the units tag of the derived node.
func (k IntensityKind) Units() generic.Units {
	if k == IntensityEnergy {
		return generic.UnitBBTU
	}
	return generic.UnitMGD
}

// Axis selects which side of a node a split apportions.
type Axis string

const (
	AxisSource    Axis = "source"    // counterpart -> node
	AxisDischarge Axis = "discharge" // node -> counterpart
)

func ParseAxis(s string) (Axis, bool) {
	a := Axis(strings.TrimSpace(s))
	return a, a == AxisSource || a == AxisDischarge
}

type Role string

const (
	RoleKeep   Role = "keep"   // computed flow is authoritative for the set
	RoleRemove Role = "remove" // baseline cell decremented by the kept value
	RoleMatch  Role = "match"  // source <-> target reconciliation pair
	RoleExport Role = "export" // emit the From node's export residual to To
	RoleImport Role = "import" // emit the To node's import residual from From
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	switch r {
	case RoleKeep, RoleRemove, RoleMatch, RoleExport, RoleImport:
		return r, true
	}
	return "", false
}

// =============================================================================
// RULES
// =============================================================================

// Collection declares an observed flow Source -> Target to read from the
// baseline column EncodeColumn(Source, Target, Units). Factor scales the cell
// and is the one place a unit conversion may be applied at ingestion.
type Collection struct {
	Target generic.Path
	Source generic.Path
	Units  generic.Units
	Factor decimal.Decimal
}

func (c Collection) Column() string {
	return generic.EncodeColumn(c.Source, c.Target, c.Units)
}

// Intensity declares Target = total(Source, UnitsIn) x Value.
// A baseline column EncodeIntensity(Source, Target) overrides Value per region.
type Intensity struct {
	Source  generic.Path
	UnitsIn generic.Units
	Target  generic.Path
	Kind    IntensityKind
	Value   decimal.Decimal
}

func (i Intensity) UnitsOut() generic.Units { return i.Kind.Units() }

// Split declares the fraction of Node's total attributed to Counterpart on
// Axis. Rows for several water types of the same counterpart add up.
type Split struct {
	Node        generic.Path
	Units       generic.Units
	Counterpart generic.Path
	Axis        Axis
	WaterType   string
	Fraction    decimal.Decimal
}

// UpdateRule is one line of an update bundle. The flow it names is From -> To.
type UpdateRule struct {
	Bundle string
	SetID  string
	From   generic.Path
	To     generic.Path
	Units  generic.Units
	Role   Role
}

func (r UpdateRule) FlowKey(region generic.Region) generic.FlowKey {
	return generic.FlowKey{Region: region, Source: r.From, Target: r.To, Units: r.Units}
}

// Column is the baseline column a remove rule decrements.
func (r UpdateRule) Column() string {
	return generic.EncodeColumn(r.From, r.To, r.Units)
}

// Parameters is the complete, read-only rule set of a calculation.
type Parameters struct {
	Collections []Collection
	Intensities []Intensity
	Splits      []Split
	Updates     []UpdateRule
}
