package factory

import (
	"fmt"
	"strings"

	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
)

// Table widths, validated before anything else is read.
const (
	CollectWidth   = 13
	IntensityWidth = 12
	SplitWidth     = 14
	UpdateWidth    = 14
)

// Sources lists the parameter files of each kind. Several files of one kind
// are concatenated in order.
type Sources struct {
	Collect   []string
	Intensity []string
	Split     []string
	Update    []string
}

// LoadParameters reads every listed file and returns the combined rule set.
func LoadParameters(src Sources) (*calc.Parameters, error) {
	p := &calc.Parameters{}
	for _, path := range src.Collect {
		t, err := ReadTableFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseCollections(t)
		if err != nil {
			return nil, err
		}
		p.Collections = append(p.Collections, rules...)
	}
	for _, path := range src.Intensity {
		t, err := ReadTableFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseIntensities(t)
		if err != nil {
			return nil, err
		}
		p.Intensities = append(p.Intensities, rules...)
	}
	for _, path := range src.Split {
		t, err := ReadTableFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseSplits(t)
		if err != nil {
			return nil, err
		}
		p.Splits = append(p.Splits, rules...)
	}
	for _, path := range src.Update {
		t, err := ReadTableFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseUpdates(t)
		if err != nil {
			return nil, err
		}
		p.Updates = append(p.Updates, rules...)
	}
	return p, nil
}

// =============================================================================
// COLLECT - T1..T5, units, S1..S5, parameter, value
// =============================================================================

const factorParam = "factor"

func ParseCollections(t *generic.Table) ([]calc.Collection, error) {
	nested, err := collapse(t, CollectWidth, []string{"target", "units", "source", "parameter", "value"},
		func(row []string) ([]string, error) {
			target, err := encodePath(row[0:5])
			if err != nil {
				return nil, err
			}
			source, err := encodePath(row[6:11])
			if err != nil {
				return nil, err
			}
			return []string{target, row[5], source, row[11], row[12]}, nil
		})
	if err != nil {
		return nil, err
	}
	root, err := generic.Build(nested)
	if err != nil {
		return nil, err
	}

	var out []calc.Collection
	err = root.Walk(func(keys []string, param string, leaf *generic.Node) error {
		id := strings.Join(append(keys, param), "/")
		if param != factorParam {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: fmt.Sprintf("parameter must be %q", factorParam)}
		}
		units, ok := generic.ParseUnits(keys[1])
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown units " + keys[1]}
		}
		factor, err := leaf.Decimal()
		if err != nil {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "factor is not a number"}
		}
		out = append(out, calc.Collection{
			Target: decodePath(keys[0]),
			Source: decodePath(keys[2]),
			Units:  units,
			Factor: factor,
		})
		return nil
	})
	return out, err
}

// =============================================================================
// INTENSITY - S1..S5, units_in, T1..T4, kind, value
// =============================================================================

// ParseIntensities reads an intensity table. The kind column completes the
// derived node's path as its fifth component.
func ParseIntensities(t *generic.Table) ([]calc.Intensity, error) {
	nested, err := collapse(t, IntensityWidth, []string{"source", "units_in", "target", "kind", "value"},
		func(row []string) ([]string, error) {
			source, err := encodePath(row[0:5])
			if err != nil {
				return nil, err
			}
			target, err := encodeCells(row[6:10])
			if err != nil {
				return nil, err
			}
			return []string{source, row[5], target, row[10], row[11]}, nil
		})
	if err != nil {
		return nil, err
	}
	root, err := generic.Build(nested)
	if err != nil {
		return nil, err
	}

	var out []calc.Intensity
	err = root.Walk(func(keys []string, param string, leaf *generic.Node) error {
		id := strings.Join(append(keys, param), "/")
		units, ok := generic.ParseUnits(keys[1])
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown units " + keys[1]}
		}
		kind, ok := calc.ParseIntensityKind(param)
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown intensity kind " + param}
		}
		value, err := leaf.Decimal()
		if err != nil {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "intensity is not a number"}
		}
		if value.IsNegative() {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "negative intensity"}
		}
		target := append(strings.Split(keys[2], generic.Separator), string(kind))
		out = append(out, calc.Intensity{
			Source:  decodePath(keys[0]),
			UnitsIn: units,
			Target:  generic.NewPath(target...),
			Kind:    kind,
			Value:   value,
		})
		return nil
	})
	return out, err
}

// =============================================================================
// SPLIT - N1..N5, units, C1..C5, axis, water_type, value
// =============================================================================

func ParseSplits(t *generic.Table) ([]calc.Split, error) {
	nested, err := collapse(t, SplitWidth, []string{"node", "units", "counterpart", "axis", "water_type", "value"},
		func(row []string) ([]string, error) {
			node, err := encodePath(row[0:5])
			if err != nil {
				return nil, err
			}
			counterpart, err := encodePath(row[6:11])
			if err != nil {
				return nil, err
			}
			return []string{node, row[5], counterpart, row[11], row[12], row[13]}, nil
		})
	if err != nil {
		return nil, err
	}
	root, err := generic.Build(nested)
	if err != nil {
		return nil, err
	}

	var out []calc.Split
	err = root.Walk(func(keys []string, param string, leaf *generic.Node) error {
		id := strings.Join(append(keys, param), "/")
		units, ok := generic.ParseUnits(keys[1])
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown units " + keys[1]}
		}
		axis, ok := calc.ParseAxis(keys[3])
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown axis " + keys[3]}
		}
		fraction, err := leaf.Decimal()
		if err != nil {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "fraction is not a number"}
		}
		if fraction.IsNegative() {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "negative fraction"}
		}
		out = append(out, calc.Split{
			Node:        decodePath(keys[0]),
			Units:       units,
			Counterpart: decodePath(keys[2]),
			Axis:        axis,
			WaterType:   param,
			Fraction:    fraction,
		})
		return nil
	})
	return out, err
}

// =============================================================================
// UPDATE - bundle, set_id, F1..F5, T1..T5, units, role
// =============================================================================

// ParseUpdates reads an update table. The role is the tree parameter, so one
// set may keep and remove the same flow, but may not name it twice in one role.
func ParseUpdates(t *generic.Table) ([]calc.UpdateRule, error) {
	nested, err := collapse(t, UpdateWidth, []string{"bundle", "set_id", "from", "to", "units", "role", "value"},
		func(row []string) ([]string, error) {
			from, err := encodePath(row[2:7])
			if err != nil {
				return nil, err
			}
			to, err := encodePath(row[7:12])
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(row[1]) == "" {
				return nil, fmt.Errorf("empty set id")
			}
			return []string{row[0], row[1], from, to, row[12], row[13], row[13]}, nil
		})
	if err != nil {
		return nil, err
	}
	root, err := generic.Build(nested)
	if err != nil {
		return nil, err
	}

	var out []calc.UpdateRule
	err = root.Walk(func(keys []string, param string, _ *generic.Node) error {
		id := strings.Join(append(keys, param), "/")
		units, ok := generic.ParseUnits(keys[4])
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown units " + keys[4]}
		}
		role, ok := calc.ParseRole(param)
		if !ok {
			return &generic.ParameterError{Table: t.Name, Identifier: id, Reason: "unknown role " + param}
		}
		out = append(out, calc.UpdateRule{
			Bundle: keys[0],
			SetID:  keys[1],
			From:   decodePath(keys[2]),
			To:     decodePath(keys[3]),
			Units:  units,
			Role:   role,
		})
		return nil
	})
	return out, err
}

// =============================================================================
// PATH SPANS
// =============================================================================

// collapse checks the table width and rewrites every row through fn into a
// narrower table whose path spans are single encoded keys.
func collapse(t *generic.Table, width int, header []string, fn func(row []string) ([]string, error)) (*generic.Table, error) {
	if t.Width() != width {
		return nil, &generic.ParameterError{
			Table:  t.Name,
			Reason: fmt.Sprintf("expected %d columns, got %d", width, t.Width()),
		}
	}
	out := &generic.Table{Name: t.Name, Header: header, Rows: make([][]string, 0, len(t.Rows))}
	for i, row := range t.Rows {
		if len(row) != width {
			return nil, &generic.ParameterError{
				Table:  t.Name,
				Row:    i + 1,
				Reason: fmt.Sprintf("row has %d columns, expected %d", len(row), width),
			}
		}
		nested, err := fn(row)
		if err != nil {
			return nil, &generic.ParameterError{Table: t.Name, Row: i + 1, Reason: err.Error()}
		}
		out.Rows = append(out.Rows, nested)
	}
	return out, nil
}

// encodePath validates a five-cell path span and returns its encoded form.
func encodePath(cells []string) (string, error) {
	if _, err := encodeCells(cells); err != nil {
		return "", err
	}
	return generic.NewPath(cells...).Encode(generic.Levels), nil
}

// encodeCells validates and joins a path span of any width, padding empty
// cells with "total".
func encodeCells(cells []string) (string, error) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			c = generic.Total
		}
		if !generic.ValidComponent(c) {
			return "", fmt.Errorf("component %q contains %q", c, generic.Separator)
		}
		parts[i] = c
	}
	return strings.Join(parts, generic.Separator), nil
}

func decodePath(encoded string) generic.Path {
	return generic.NewPath(strings.Split(encoded, generic.Separator)...)
}
