/*
Package factory turns CSV files into calculation inputs.

PURPOSE:
  Parameter tables and the baseline arrive as CSV files with a header row.
  The factory reads them, validates their shape, builds the nested
  parameter trees (generic.Build), and converts the trees into the typed
  rule set the calc package runs on.

TABLE SHAPES:
  collect    T1..T5, units, S1..S5, parameter, value              13 columns
  intensity  S1..S5, units_in, T1..T4, parameter, value           12 columns
  split      N1..N5, units, C1..C5, axis, water_type, value       14 columns
  update     bundle, set_id, F1..F5, T1..T5, units, role          14 columns

  Five-column path spans are collapsed into one encoded key before the tree
  is built, so no table nests deeper than generic.MaxDepth. Empty path cells
  mean "total". A component containing "_" is rejected: it would break the
  flow-name codec.

BASELINE:
  The first N columns are region key components; every other column is a
  value column named by the codec (flow, fraction or intensity columns).
  "--" and empty cells are absent values.

USAGE:
  params, err := factory.LoadParameters(factory.Sources{
      Collect: []string{"collect.csv"},
      Split:   []string{"split.csv"},
  })
  baseline, err := factory.LoadBaseline("baseline.csv", 3)

SEE ALSO:
  - generic/params.go: Tree construction and depth limits
  - calc/types.go: The typed rules produced here
*/
package factory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// CSV TABLES
// =============================================================================

// ReadTable reads a CSV table with a header row. Blank lines are skipped;
// rows of the wrong width are left for Build to report with their row number.
func ReadTable(r io.Reader, name string) (*generic.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &generic.ParameterError{Table: name, Reason: "empty table"}
	}
	if err != nil {
		return nil, &generic.ParameterError{Table: name, Reason: err.Error()}
	}

	t := &generic.Table{Name: name, Header: trimAll(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &generic.ParameterError{Table: name, Row: len(t.Rows) + 1, Reason: err.Error()}
		}
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, trimAll(rec))
	}
	return t, nil
}

// ReadTableFile reads the CSV table at path. The table is named after the file.
func ReadTableFile(path string) (*generic.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return ReadTable(f, filepath.Base(path))
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, c := range rec {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
