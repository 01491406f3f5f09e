package calc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/generic"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// CALCULATOR - Two-pass orchestration over all regions
// =============================================================================

// Calculator runs the stage pipeline. It is immutable after construction and
// safe for concurrent use: every Run owns its own per-region state.
type Calculator struct {
	params   *Parameters
	splits   []*splitGroup
	sets     []*updateSet
	workers  int
	progress func(generic.Region)
	logger   *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l.With(slog.String("component", "calc"))
		}
	}
}

// WithWorkers bounds the number of regions computed concurrently.
// Values below 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Calculator) { c.workers = n }
}

// WithProgress registers fn to be called once per finished region.
// fn may be called from several goroutines at once.
func WithProgress(fn func(generic.Region)) Option {
	return func(c *Calculator) { c.progress = fn }
}

// NewCalculator validates the rule set and indexes split groups and update
// sets. Validation failures are ParameterErrors.
func NewCalculator(params *Parameters, opts ...Option) (*Calculator, error) {
	if params == nil {
		return nil, &generic.ParameterError{Table: "parameters", Reason: "nil parameter set"}
	}
	if err := validate(params); err != nil {
		return nil, err
	}

	c := &Calculator{
		params: params,
		splits: indexSplits(params.Splits),
		sets:   indexUpdates(params.Updates),
		logger: slog.Default().With(slog.String("component", "calc")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	return c, nil
}

func validate(p *Parameters) error {
	for i, r := range p.Collections {
		if !r.Units.Valid() {
			return &generic.ParameterError{Table: "collect", Row: i + 1, Identifier: r.Column(), Reason: "unknown units " + string(r.Units)}
		}
		if r.Factor.IsNegative() {
			return &generic.ParameterError{Table: "collect", Row: i + 1, Identifier: r.Column(), Reason: "negative factor"}
		}
	}
	for i, r := range p.Intensities {
		id := generic.EncodeIntensity(r.Source, r.Target)
		if !r.UnitsIn.Valid() {
			return &generic.ParameterError{Table: "intensity", Row: i + 1, Identifier: id, Reason: "unknown units " + string(r.UnitsIn)}
		}
		if _, ok := ParseIntensityKind(string(r.Kind)); !ok {
			return &generic.ParameterError{Table: "intensity", Row: i + 1, Identifier: id, Reason: "unknown kind " + string(r.Kind)}
		}
	}
	for i, r := range p.Splits {
		id := generic.EncodeFraction(r.Counterpart, r.Node, generic.Levels)
		if !r.Units.Valid() {
			return &generic.ParameterError{Table: "split", Row: i + 1, Identifier: id, Reason: "unknown units " + string(r.Units)}
		}
		if _, ok := ParseAxis(string(r.Axis)); !ok {
			return &generic.ParameterError{Table: "split", Row: i + 1, Identifier: id, Reason: "unknown axis " + string(r.Axis)}
		}
		if r.Fraction.IsNegative() {
			return &generic.ParameterError{Table: "split", Row: i + 1, Identifier: id, Reason: "negative fraction"}
		}
	}
	for i, r := range p.Updates {
		if !r.Units.Valid() {
			return &generic.ParameterError{Table: "update", Row: i + 1, Identifier: r.Column(), Reason: "unknown units " + string(r.Units)}
		}
		if _, ok := ParseRole(string(r.Role)); !ok {
			return &generic.ParameterError{Table: "update", Row: i + 1, Identifier: r.Column(), Reason: "unknown role " + string(r.Role)}
		}
		if r.SetID == "" {
			return &generic.ParameterError{Table: "update", Row: i + 1, Identifier: r.Column(), Reason: "empty set id"}
		}
	}
	return nil
}

// =============================================================================
// RESULTS
// =============================================================================

// RunOptions narrows a run. An empty Region computes every baseline row.
type RunOptions struct {
	Region string
}

// RegionResult is the pass-2 state of one region plus what the reduction did.
type RegionResult struct {
	Region generic.Region
	Ledger *generic.Ledger

	Derived            map[generic.NodeKey]decimal.Decimal
	SourceFractions    map[generic.NodeKey]map[generic.Path]decimal.Decimal
	DischargeFractions map[generic.NodeKey]map[generic.Path]decimal.Decimal
	Exports            map[generic.NodeKey]decimal.Decimal
	Imports            map[generic.NodeKey]decimal.Decimal
	Matches            []Match

	// Kept values of pass 1 per update set, and the decremented baseline
	// row pass 2 ran against.
	Kept     map[string]decimal.Decimal
	Baseline *BaselineRow

	Diagnostics []generic.Diagnostic
}

// Result is the outcome of a Run, regions sorted by identifier.
type Result struct {
	RegionTokens int
	Regions      []*RegionResult
	Diagnostics  []generic.Diagnostic
}

// Rows returns the flows of every region at level, in canonical order.
func (r *Result) Rows(level int) ([]generic.FlowRow, error) {
	if err := generic.ValidateLevel(level); err != nil {
		return nil, err
	}
	var rows []generic.FlowRow
	for _, region := range r.Regions {
		rr, err := region.Ledger.Rows(level)
		if err != nil {
			return nil, err
		}
		rows = append(rows, rr...)
	}
	generic.SortRows(rows)
	return rows, nil
}

// Region returns the result of one region.
func (r *Result) Region(id generic.Region) (*RegionResult, bool) {
	i := sort.Search(len(r.Regions), func(i int) bool { return r.Regions[i].Region >= id })
	if i < len(r.Regions) && r.Regions[i].Region == id {
		return r.Regions[i], true
	}
	return nil, false
}

// =============================================================================
// RUN
// =============================================================================

// Run computes every selected region of the baseline. Fatal conditions
// (unknown region, duplicate regions, cancellation) are returned as errors;
// everything else is recorded in Result.Diagnostics.
func (c *Calculator) Run(ctx context.Context, b *Baseline, opts RunOptions) (*Result, error) {
	if b == nil {
		return nil, &generic.BaselineError{Reason: "nil baseline"}
	}
	rows, err := b.Select(opts.Region)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Info("run started",
		slog.Int("regions", len(rows)),
		slog.Int("workers", c.workers),
		slog.String("region_filter", opts.Region))

	results := make([]*RegionResult, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = c.runRegion(row)
			if c.progress != nil {
				c.progress(row.Region)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Region < results[j].Region })
	out := &Result{RegionTokens: b.RegionTokens(), Regions: results}
	for _, r := range results {
		out.Diagnostics = append(out.Diagnostics, r.Diagnostics...)
	}

	c.logger.Info("run finished",
		slog.Int("regions", len(results)),
		slog.Int("diagnostics", len(out.Diagnostics)),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

// runRegion performs pass 1, the reduction, and pass 2 for one region.
// Pass-1 diagnostics other than those raised by the reduction are dropped:
// pass 2 raises them again against the reduced baseline.
func (c *Calculator) runRegion(row *BaselineRow) *RegionResult {
	first := c.evaluate(1, row)
	mark := len(first.diags)
	reduced, kept := c.reduce(first)
	diags := append([]generic.Diagnostic(nil), first.diags[mark:]...)

	second := c.evaluate(2, reduced)
	diags = append(diags, second.diags...)

	c.logger.Debug("region computed",
		slog.String("region", string(row.Region)),
		slog.Int("flows", second.ledger.Len(generic.Levels)),
		slog.Int("kept_sets", len(kept)),
		slog.Int("diagnostics", len(diags)))

	return &RegionResult{
		Region:             row.Region,
		Ledger:             second.ledger,
		Derived:            second.derived,
		SourceFractions:    unmix(second.sourceFractions),
		DischargeFractions: unmix(second.dischargeFractions),
		Exports:            second.exports,
		Imports:            second.imports,
		Matches:            second.matches,
		Kept:               kept,
		Baseline:           reduced,
		Diagnostics:        diags,
	}
}

// evaluate runs stages A through D and reconciliation once.
func (c *Calculator) evaluate(pass int, row *BaselineRow) *regionState {
	s := newRegionState(pass, row, c.logger)
	c.collect(s)
	c.derive(s)
	c.splitSources(s)
	c.splitDischarges(s)
	c.reconcile(s)
	return s
}

func unmix(m map[generic.NodeKey]mix) map[generic.NodeKey]map[generic.Path]decimal.Decimal {
	out := make(map[generic.NodeKey]map[generic.Path]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
