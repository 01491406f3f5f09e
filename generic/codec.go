/*
codec.go - Flow-name encoding and decoding

PURPOSE:
  Deterministic conversion between structured keys and the underscore-joined
  identifiers used in baseline headers, stored runs and wide tables.

FORMATS:
  Flow:       {region}_{src1..srcK}_to_{tgt1..tgtK}_{units}
  Node total: {region}_{path1..pathK}_{units}
  Fraction:   {src1..srcK}_to_{tgt1..tgtK}_fraction
  Intensity:  {src1..src5}_to_{tgt1..tgt5}_intensity
  Column:     {src1..src5}_to_{tgt1..tgt5}_{units}   (baseline, region implied by the row)

DECODING:
  A flow name with R region tokens at level K has R + 2K + 2 tokens
  (the "to" marker and the units tag). The decoder infers K from the count.
  With a two-token region, levels 1..5 give 6, 8, 10, 12 and 14 tokens.

CONSTRAINT:
  The separator is a single underscore, so components must not contain one.
  ValidComponent enforces this at ingestion.
*/
package generic

import (
	"fmt"
	"strings"
)

const (
	toMarker        = "to"
	fractionSuffix  = "fraction"
	intensitySuffix = "intensity"
)

// ValidComponent reports whether s can be used as a path or region component.
func ValidComponent(s string) bool {
	return s != "" && !strings.Contains(s, Separator)
}

// Encode joins the first level components of p.
func (p Path) Encode(level int) string {
	return strings.Join(p[:level], Separator)
}

// EncodeFlow renders a flow identifier at the given level.
func EncodeFlow(k FlowKey, level int) string {
	return join(string(k.Region), k.Source.Encode(level), toMarker, k.Target.Encode(level), string(k.Units))
}

// EncodeNode renders a node-total identifier at the given level.
func EncodeNode(n NodeKey, level int) string {
	return join(string(n.Region), n.Path.Encode(level), string(n.Units))
}

// EncodeFraction renders a split-fraction identifier at the given level.
func EncodeFraction(src, tgt Path, level int) string {
	return join(src.Encode(level), toMarker, tgt.Encode(level), fractionSuffix)
}

// EncodeIntensity renders the baseline column of a region-specific intensity.
func EncodeIntensity(src, tgt Path) string {
	return join(src.Encode(Levels), toMarker, tgt.Encode(Levels), intensitySuffix)
}

// EncodeColumn renders the baseline column holding a level-5 flow.
func EncodeColumn(src, tgt Path, units Units) string {
	return join(src.Encode(Levels), toMarker, tgt.Encode(Levels), string(units))
}

func join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// DecodeFlow recovers the key and level of a flow identifier whose region
// spans regionTokens components. The returned key is truncated to the level.
func DecodeFlow(name string, regionTokens int) (FlowKey, int, error) {
	if regionTokens < 1 {
		return FlowKey{}, 0, &IdentifierError{Name: name, Reason: "region must span at least one token"}
	}
	tokens := strings.Split(name, Separator)
	n := len(tokens) - regionTokens - 2
	if n < 2 || n%2 != 0 || n/2 > Levels {
		return FlowKey{}, 0, &IdentifierError{Name: name, Reason: fmt.Sprintf("unexpected token count %d", len(tokens))}
	}
	level := n / 2
	if tokens[regionTokens+level] != toMarker {
		return FlowKey{}, 0, &IdentifierError{Name: name, Reason: "missing \"to\" marker"}
	}
	units, ok := ParseUnits(tokens[len(tokens)-1])
	if !ok {
		return FlowKey{}, 0, &IdentifierError{Name: name, Reason: fmt.Sprintf("unknown units %q", tokens[len(tokens)-1])}
	}

	var key FlowKey
	key.Region = NewRegion(tokens[:regionTokens]...)
	copy(key.Source[:level], tokens[regionTokens:regionTokens+level])
	copy(key.Target[:level], tokens[regionTokens+level+1:regionTokens+2*level+1])
	key.Units = units
	return key, level, nil
}

// ColumnKind classifies a baseline header.
type ColumnKind int

const (
	ColumnUnknown ColumnKind = iota
	ColumnFlow
	ColumnFraction
	ColumnIntensity
)

// DecodeColumn classifies a level-5 baseline header and returns its paths.
// Headers that do not follow a known format return ColumnUnknown.
func DecodeColumn(header string) (kind ColumnKind, src, tgt Path, units Units) {
	tokens := strings.Split(header, Separator)
	if len(tokens) != 2*Levels+2 || tokens[Levels] != toMarker {
		return ColumnUnknown, src, tgt, ""
	}
	copy(src[:], tokens[:Levels])
	copy(tgt[:], tokens[Levels+1:2*Levels+1])

	suffix := tokens[len(tokens)-1]
	switch suffix {
	case fractionSuffix:
		return ColumnFraction, src, tgt, ""
	case intensitySuffix:
		return ColumnIntensity, src, tgt, ""
	}
	if u, ok := ParseUnits(suffix); ok {
		return ColumnFlow, src, tgt, u
	}
	return ColumnUnknown, Path{}, Path{}, ""
}
