package calc

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// BASELINE - Observed values per region
// =============================================================================

// Baseline is the flat input table: region key columns followed by value
// columns named with codec identifiers. Absent cells are not stored.
type Baseline struct {
	RegionColumns []string
	Columns       []string
	Rows          []*BaselineRow
}

// RegionTokens is the number of components in each region identifier.
func (b *Baseline) RegionTokens() int { return len(b.RegionColumns) }

// Select returns the rows to compute: all of them, or the single row whose
// encoded region equals filter.
func (b *Baseline) Select(filter string) ([]*BaselineRow, error) {
	seen := make(map[generic.Region]bool, len(b.Rows))
	for i, row := range b.Rows {
		if seen[row.Region] {
			return nil, &generic.BaselineError{Row: i + 1, Column: "region", Reason: "duplicate region " + string(row.Region)}
		}
		seen[row.Region] = true
	}
	if filter == "" {
		return b.Rows, nil
	}
	for _, row := range b.Rows {
		if string(row.Region) == filter {
			return []*BaselineRow{row}, nil
		}
	}
	return nil, &generic.RegionError{Region: filter}
}

// BaselineRow holds one region's observed values. Rows are read-only during
// a pass; the update controller works on a Clone.
type BaselineRow struct {
	Region generic.Region
	values map[string]decimal.Decimal
}

func NewBaselineRow(region generic.Region, values map[string]decimal.Decimal) *BaselineRow {
	row := &BaselineRow{Region: region, values: make(map[string]decimal.Decimal, len(values))}
	for k, v := range values {
		row.values[k] = v
	}
	return row
}

// Value returns the cell for column. Missing means absent, not zero.
func (r *BaselineRow) Value(column string) (decimal.Decimal, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r *BaselineRow) set(column string, v decimal.Decimal) {
	r.values[column] = v
}

func (r *BaselineRow) Clone() *BaselineRow {
	return NewBaselineRow(r.Region, r.values)
}

// Columns lists the present cells, sorted.
func (r *BaselineRow) Columns() []string {
	cols := make([]string, 0, len(r.values))
	for c := range r.values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
