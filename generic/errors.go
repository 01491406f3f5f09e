/*
errors.go - Centralized error types for the flow engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Fatal validation errors - Malformed parameters, depth, level, region,
     baseline. These stop a run before any flow is computed.
  2. Diagnostics - Missing keep flows, baseline overdraws, split imbalances,
     negative cells. These are recorded and the run continues.
  3. Store errors - Run lookup failures.

USAGE:
  Callers test categories with errors.Is:

    if errors.Is(err, generic.ErrMalformedParameters) {
        os.Exit(1)
    }

  Structured errors carry the offending identifier:

    var pe *generic.ParameterError
    if errors.As(err, &pe) {
        log.Printf("table %s row %d: %s", pe.Table, pe.Row, pe.Reason)
    }

SEE ALSO:
  - params.go: Raises ParameterError and DepthError
  - ledger.go: Raises NegativeMagnitudeError
  - calc/update.go: Records MissingFlowError and BaselineOverdrawError
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedParameters is returned when a parameter table has the wrong
	// column count, a non-numeric value, or an unknown role/axis/parameter.
	ErrMalformedParameters = errors.New("malformed parameters")

	// ErrParameterDepthExceeded is returned when a parameter table declares
	// more than MaxDepth grouping levels.
	ErrParameterDepthExceeded = errors.New("parameter depth exceeded")

	// ErrInvalidLevel is returned for a granularity outside 1..5.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrUnknownRegion is returned when a region filter matches no row.
	ErrUnknownRegion = errors.New("unknown region")

	// ErrMalformedBaseline is returned when the baseline table cannot be read.
	ErrMalformedBaseline = errors.New("malformed baseline")

	// ErrMalformedIdentifier is returned when an encoded name cannot be decoded.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrMissingFlow marks a keep rule naming a flow that was never emitted.
	ErrMissingFlow = errors.New("missing flow")

	// ErrBaselineOverdraw marks a remove rule that would drive a baseline cell
	// below zero.
	ErrBaselineOverdraw = errors.New("baseline overdraw")

	// ErrNegativeMagnitude marks a negative value offered to the ledger.
	ErrNegativeMagnitude = errors.New("negative magnitude")

	// ErrSplitImbalance marks split fractions that do not sum to one.
	ErrSplitImbalance = errors.New("split fractions do not sum to one")

	// ErrRunNotFound is returned when a stored run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when a run ID is saved twice.
	ErrDuplicateRun = errors.New("duplicate run")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ParameterError describes a malformed parameter table or row.
type ParameterError struct {
	Table      string
	Row        int // 1-based data row, 0 when the whole table is at fault
	Identifier string
	Reason     string
}

func (e *ParameterError) Error() string {
	msg := fmt.Sprintf("malformed parameters in %q", e.Table)
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Identifier != "" {
		msg += fmt.Sprintf(" (%s)", e.Identifier)
	}
	return msg + ": " + e.Reason
}

func (e *ParameterError) Unwrap() error { return ErrMalformedParameters }

// DepthError reports a parameter table nested deeper than allowed.
type DepthError struct {
	Table string
	Depth int
	Max   int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("parameter depth exceeded in %q: %d grouping levels, max %d", e.Table, e.Depth, e.Max)
}

func (e *DepthError) Unwrap() error { return ErrParameterDepthExceeded }

type LevelError struct {
	Level int
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("invalid level %d: must be between 1 and %d", e.Level, Levels)
}

func (e *LevelError) Unwrap() error { return ErrInvalidLevel }

type RegionError struct {
	Region string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("unknown region %q", e.Region)
}

func (e *RegionError) Unwrap() error { return ErrUnknownRegion }

// BaselineError describes an unreadable baseline cell, header or region.
type BaselineError struct {
	Row    int
	Column string
	Reason string
}

func (e *BaselineError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("malformed baseline row %d column %q: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("malformed baseline column %q: %s", e.Column, e.Reason)
}

func (e *BaselineError) Unwrap() error { return ErrMalformedBaseline }

type IdentifierError struct {
	Name   string
	Reason string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Name, e.Reason)
}

func (e *IdentifierError) Unwrap() error { return ErrMalformedIdentifier }

type NegativeMagnitudeError struct {
	Identifier string
	Value      decimal.Decimal
}

func (e *NegativeMagnitudeError) Error() string {
	return fmt.Sprintf("negative magnitude %s for %s", e.Value, e.Identifier)
}

func (e *NegativeMagnitudeError) Unwrap() error { return ErrNegativeMagnitude }

// MissingFlowError records a keep rule whose flow was never emitted.
// The removes of the same set become no-ops.
type MissingFlowError struct {
	SetID string
	Flow  string
}

func (e *MissingFlowError) Error() string {
	return fmt.Sprintf("update set %q keeps %s, which was not computed", e.SetID, e.Flow)
}

func (e *MissingFlowError) Unwrap() error { return ErrMissingFlow }

// BaselineOverdrawError records a remove that was clamped at zero.
type BaselineOverdrawError struct {
	SetID     string
	Column    string
	Baseline  decimal.Decimal
	Requested decimal.Decimal
}

// Shortfall is the part of the request that could not be removed.
func (e *BaselineOverdrawError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Baseline)
}

func (e *BaselineOverdrawError) Error() string {
	return fmt.Sprintf("update set %q removes %s from %s (baseline %s), clamped at zero",
		e.SetID, e.Requested, e.Column, e.Baseline)
}

func (e *BaselineOverdrawError) Unwrap() error { return ErrBaselineOverdraw }

// SplitImbalanceError records split fractions that do not conserve the node
// total. The emitted splits are kept as computed.
type SplitImbalanceError struct {
	Node string
	Axis string
	Sum  decimal.Decimal
}

func (e *SplitImbalanceError) Error() string {
	return fmt.Sprintf("%s fractions for %s sum to %s", e.Axis, e.Node, e.Sum)
}

func (e *SplitImbalanceError) Unwrap() error { return ErrSplitImbalance }

// =============================================================================
// DIAGNOSTICS - Non-fatal conditions recorded during a run
// =============================================================================

type DiagnosticKind string

const (
	DiagMissingFlow       DiagnosticKind = "missing_flow"
	DiagBaselineOverdraw  DiagnosticKind = "baseline_overdraw"
	DiagSplitImbalance    DiagnosticKind = "split_imbalance"
	DiagNegativeMagnitude DiagnosticKind = "negative_magnitude"
	DiagOther             DiagnosticKind = "other"
)

// Diagnostic is a non-fatal condition raised in a region during a pass.
type Diagnostic struct {
	Pass   int
	Region Region
	Err    error
}

func (d Diagnostic) Kind() DiagnosticKind {
	switch {
	case errors.Is(d.Err, ErrMissingFlow):
		return DiagMissingFlow
	case errors.Is(d.Err, ErrBaselineOverdraw):
		return DiagBaselineOverdraw
	case errors.Is(d.Err, ErrSplitImbalance):
		return DiagSplitImbalance
	case errors.Is(d.Err, ErrNegativeMagnitude):
		return DiagNegativeMagnitude
	}
	return DiagOther
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("pass %d region %s: %v", d.Pass, d.Region, d.Err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if the error must stop a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedParameters) ||
		errors.Is(err, ErrParameterDepthExceeded) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrUnknownRegion) ||
		errors.Is(err, ErrMalformedBaseline)
}

// IsDiagnostic returns true if the error is recorded rather than raised.
func IsDiagnostic(err error) bool {
	return errors.Is(err, ErrMissingFlow) ||
		errors.Is(err, ErrBaselineOverdraw) ||
		errors.Is(err, ErrSplitImbalance) ||
		errors.Is(err, ErrNegativeMagnitude)
}

// IsNotFound returns true if the error indicates a missing run or region.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrUnknownRegion)
}

// ValidateLevel checks that level is a valid granularity.
func ValidateLevel(level int) error {
	if level < 1 || level > Levels {
		return &LevelError{Level: level}
	}
	return nil
}
