package factory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// BASELINE
// =============================================================================

// ReadBaseline reads a baseline CSV whose first regionColumns columns are the
// region key. Value cells are parsed as magnitudes; "--" and empty cells are
// absent. Any malformed cell fails the whole read with a BaselineError.
func ReadBaseline(r io.Reader, name string, regionColumns int) (*calc.Baseline, error) {
	t, err := ReadTable(r, name)
	if err != nil {
		return nil, &generic.BaselineError{Reason: err.Error()}
	}
	if regionColumns < 1 || regionColumns >= t.Width() {
		return nil, &generic.BaselineError{
			Reason: fmt.Sprintf("%d region columns in a table of %d columns", regionColumns, t.Width()),
		}
	}

	b := &calc.Baseline{
		RegionColumns: t.Header[:regionColumns],
		Columns:       t.Header[regionColumns:],
	}
	seen := make(map[string]bool, len(b.Columns))
	for _, col := range b.Columns {
		if col == "" {
			return nil, &generic.BaselineError{Reason: "empty column header"}
		}
		if seen[col] {
			return nil, &generic.BaselineError{Column: col, Reason: "duplicate column"}
		}
		seen[col] = true
	}

	for i, row := range t.Rows {
		if len(row) != t.Width() {
			return nil, &generic.BaselineError{
				Row:    i + 1,
				Reason: fmt.Sprintf("row has %d columns, header has %d", len(row), t.Width()),
			}
		}
		for j, part := range row[:regionColumns] {
			if !generic.ValidComponent(part) {
				return nil, &generic.BaselineError{Row: i + 1, Column: t.Header[j], Reason: fmt.Sprintf("invalid region component %q", part)}
			}
		}

		values := make(map[string]decimal.Decimal)
		for j, cell := range row[regionColumns:] {
			col := b.Columns[j]
			v, ok, err := generic.ParseMagnitude(cell)
			if err != nil {
				return nil, &generic.BaselineError{Row: i + 1, Column: col, Reason: fmt.Sprintf("not a number: %q", cell)}
			}
			if ok {
				values[col] = v
			}
		}
		b.Rows = append(b.Rows, calc.NewBaselineRow(generic.NewRegion(row[:regionColumns]...), values))
	}
	return b, nil
}

// LoadBaseline reads the baseline CSV at path.
func LoadBaseline(path string, regionColumns int) (*calc.Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open baseline: %w", err)
	}
	defer f.Close()
	return ReadBaseline(f, filepath.Base(path), regionColumns)
}
