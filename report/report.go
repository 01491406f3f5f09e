/*
Package report projects calculation results into long-form tables.

PURPOSE:
  A calculation keeps every flow at all five levels. Reports pick one level
  and emit one row per flow:

    region, S1..Sk, T1..Tk, units, value

  Group collapses a finer table to a coarser level by summing over the
  trailing components, so a level-5 file can be re-reported at level 2
  without rerunning the calculation.

NAMED FORM:
  Names renders rows as a {flow identifier: value} mapping using the codec;
  FromNames parses it back. This is the form the result store persists.

SEE ALSO:
  - generic/codec.go: Identifier encoding
  - generic/ledger.go: Level rollups
*/
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
)

// Long returns the result's flows at level, in canonical order.
func Long(result *calc.Result, level int) ([]generic.FlowRow, error) {
	return result.Rows(level)
}

// Group collapses rows to level. Every row must be at level or finer.
func Group(rows []generic.FlowRow, level int) ([]generic.FlowRow, error) {
	if err := generic.ValidateLevel(level); err != nil {
		return nil, err
	}
	sums := make(map[generic.FlowKey]decimal.Decimal)
	var order []generic.FlowKey
	for _, row := range rows {
		if row.Level < level {
			return nil, &generic.LevelError{Level: level}
		}
		key := row.Key.Truncate(level)
		if _, ok := sums[key]; !ok {
			order = append(order, key)
		}
		sums[key] = sums[key].Add(row.Value)
	}

	out := make([]generic.FlowRow, 0, len(order))
	for _, key := range order {
		out = append(out, generic.FlowRow{Key: key, Level: level, Value: sums[key]})
	}
	generic.SortRows(out)
	return out, nil
}

// =============================================================================
// CSV
// =============================================================================

// Header returns the long-form header at level.
func Header(level int) []string {
	h := []string{"region"}
	for i := 1; i <= level; i++ {
		h = append(h, "S"+strconv.Itoa(i))
	}
	for i := 1; i <= level; i++ {
		h = append(h, "T"+strconv.Itoa(i))
	}
	return append(h, "units", "value")
}

// WriteCSV writes rows, all at level, as a long-form table.
func WriteCSV(w io.Writer, rows []generic.FlowRow, level int) error {
	if err := generic.ValidateLevel(level); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(level)); err != nil {
		return err
	}
	for _, row := range rows {
		if row.Level != level {
			return &generic.LevelError{Level: row.Level}
		}
		rec := make([]string, 0, 2*level+3)
		rec = append(rec, string(row.Key.Region))
		rec = append(rec, row.Key.Source.Components(level)...)
		rec = append(rec, row.Key.Target.Components(level)...)
		rec = append(rec, string(row.Key.Units), row.Value.String())
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a long-form table written by WriteCSV. The level is taken
// from the header width.
func ReadCSV(r io.Reader) ([]generic.FlowRow, int, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	level := (len(header) - 3) / 2
	if err := generic.ValidateLevel(level); err != nil || len(header) != 2*level+3 {
		return nil, 0, fmt.Errorf("unexpected header width %d", len(header))
	}

	var rows []generic.FlowRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		units, ok := generic.ParseUnits(rec[2*level+1])
		if !ok {
			return nil, 0, fmt.Errorf("line %d: unknown units %q", line, rec[2*level+1])
		}
		value, err := decimal.NewFromString(rec[2*level+2])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		var key generic.FlowKey
		key.Region = generic.Region(rec[0])
		copy(key.Source[:level], rec[1:1+level])
		copy(key.Target[:level], rec[1+level:1+2*level])
		key.Units = units
		rows = append(rows, generic.FlowRow{Key: key, Level: level, Value: value})
	}
	return rows, level, nil
}

// =============================================================================
// NAMED FORM
// =============================================================================

// Names renders rows as a mapping from flow identifier to value.
func Names(rows []generic.FlowRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		name := generic.EncodeFlow(row.Key, row.Level)
		out[name] = out[name].Add(row.Value)
	}
	return out
}

// FromNames parses a {flow identifier: value} mapping back into sorted rows.
func FromNames(named map[string]decimal.Decimal, regionTokens int) ([]generic.FlowRow, error) {
	rows := make([]generic.FlowRow, 0, len(named))
	for name, v := range named {
		key, level, err := generic.DecodeFlow(name, regionTokens)
		if err != nil {
			return nil, err
		}
		rows = append(rows, generic.FlowRow{Key: key, Level: level, Value: v})
	}
	generic.SortRows(rows)
	return rows, nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Record converts a result into the form a generic.Store persists: the run
// header, the level-5 flows and the diagnostics.
func Record(result *calc.Result, id generic.RunID, regionFilter string, created time.Time) (generic.Run, []generic.FlowRow, []generic.DiagnosticRecord, error) {
	flows, err := result.Rows(generic.Levels)
	if err != nil {
		return generic.Run{}, nil, nil, err
	}
	diags := make([]generic.DiagnosticRecord, len(result.Diagnostics))
	for i, d := range result.Diagnostics {
		diags[i] = generic.NewDiagnosticRecord(d)
	}
	run := generic.Run{
		ID:           id,
		CreatedAt:    created,
		RegionTokens: result.RegionTokens,
		Region:       regionFilter,
		Regions:      len(result.Regions),
		Flows:        len(flows),
		Diagnostics:  len(diags),
	}
	return run, flows, diags, nil
}
