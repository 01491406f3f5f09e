/*
scenarios.go - Built-in demo inputs for testing and demonstrations

PURPOSE:

	Provides small, self-contained calculation inputs so a server started
	without input files can still compute and serve runs. Each scenario
	isolates one stage of the pipeline with literal values whose expected
	magnitudes are easy to check by hand.

AVAILABLE SCENARIOS:

	passthrough:  One observed flow, collected unchanged (10 mgd)
	intensity:    100 bbtu of gas x 0.02 withdrawal intensity = 2 mgd
	source-split: Derived PWS withdrawal of 30 split 0.4 / 0.6
	match-export: Target inflow 50 vs source outflow 30, export residual 20
	match-import: Target inflow 20 vs source outflow 50, import residual 30
	keep-remove:  Computed RES -> WW of 3 replaces 3 of a baseline 5

HOW SCENARIOS WORK:
 1. Build parameters and a one-region baseline in memory
 2. Validate them into a Calculator
 3. Swap them in as the handler's inputs
 4. Compute and store a run (same path as POST /api/runs)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "keep-remove"}

NOTE:

	Loading a scenario replaces the inputs the server was started with until
	the next scheduled reload. Stored runs are never touched.

SEE ALSO:
  - handlers.go: Compute
  - calc/calculator.go: The pipeline each scenario exercises
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func() (*calc.Parameters, *calc.Baseline)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "passthrough",
			Name:        "Identity Passthrough",
			Description: "One observed surface-water flow to residential use, collected unchanged",
			Category:    "collect",
		},
		build: passthroughScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "intensity",
			Name:        "Intensity Derivation",
			Description: "Gas-fired generation withdrawal derived from fuel input",
			Category:    "intensity",
		},
		build: intensityScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "source-split",
			Name:        "Source Split",
			Description: "Public supply withdrawal split between surface and ground water",
			Category:    "split",
		},
		build: sourceSplitScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "match-export",
			Name:        "Match, Inflow Exceeds Outflow",
			Description: "Reconciliation leaving an export residual on the target",
			Category:    "match",
		},
		build: func() (*calc.Parameters, *calc.Baseline) { return matchScenario("50", "30") },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "match-import",
			Name:        "Match, Outflow Exceeds Inflow",
			Description: "Reconciliation leaving an import residual on the source",
			Category:    "match",
		},
		build: func() (*calc.Parameters, *calc.Baseline) { return matchScenario("20", "50") },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "keep-remove",
			Name:        "Keep/Remove Reduction",
			Description: "Computed wastewater discharge replaces part of the observed value",
			Category:    "update",
		},
		build: keepRemoveScenario,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ScenarioInputs builds the inputs of a built-in scenario.
func ScenarioInputs(id string) (*Inputs, error) {
	s, ok := findScenario(id)
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", id)
	}
	params, baseline := s.build()
	c, err := calc.NewCalculator(params)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", id, err)
	}
	return &Inputs{Calculator: c, Baseline: baseline}, nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, or null when the
// inputs came from files.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.scenario
	h.mu.RUnlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario swaps in a scenario's inputs and computes a run with them.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := ScenarioInputs(req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.inputs = in
	h.scenario = req.ScenarioID
	h.mu.Unlock()

	run, err := h.Compute(r.Context(), "")
	if err != nil {
		writeError(w, statusFor(err), "Failed to compute scenario", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

const demoRegion = generic.Region("R")

var one = decimal.NewFromInt(1)

func demoBaseline(cells map[string]string) *calc.Baseline {
	values := make(map[string]decimal.Decimal, len(cells))
	for k, v := range cells {
		values[k] = decimal.RequireFromString(v)
	}
	return &calc.Baseline{
		RegionColumns: []string{"region"},
		Rows:          []*calc.BaselineRow{calc.NewBaselineRow(demoRegion, values)},
	}
}

func demoCollect(src, tgt generic.Path, u generic.Units) calc.Collection {
	return calc.Collection{Source: src, Target: tgt, Units: u, Factor: one}
}

func passthroughScenario() (*calc.Parameters, *calc.Baseline) {
	src, tgt := generic.NewPath("WSW", "fresh", "surface"), generic.NewPath("RES")
	return &calc.Parameters{Collections: []calc.Collection{demoCollect(src, tgt, generic.UnitMGD)}},
		demoBaseline(map[string]string{generic.EncodeColumn(src, tgt, generic.UnitMGD): "10"})
}

func intensityScenario() (*calc.Parameters, *calc.Baseline) {
	ng, egGas := generic.NewPath("NG"), generic.NewPath("EG", "gas")
	params := &calc.Parameters{
		Collections: []calc.Collection{demoCollect(ng, egGas, generic.UnitBBTU)},
		Intensities: []calc.Intensity{{
			Source:  egGas,
			UnitsIn: generic.UnitBBTU,
			Target:  generic.NewPath("EG", "gas", "withdrawal"),
			Kind:    calc.IntensityWithdrawal,
			Value:   decimal.RequireFromString("0.02"),
		}},
	}
	return params, demoBaseline(map[string]string{generic.EncodeColumn(ng, egGas, generic.UnitBBTU): "100"})
}

func sourceSplitScenario() (*calc.Parameters, *calc.Baseline) {
	pws, res := generic.NewPath("PWS"), generic.NewPath("RES")
	node := generic.NewPath("PWS", "withdrawal")
	params := &calc.Parameters{
		Collections: []calc.Collection{demoCollect(pws, res, generic.UnitMGD)},
		Intensities: []calc.Intensity{{Source: res, UnitsIn: generic.UnitMGD, Target: node, Kind: calc.IntensityWithdrawal, Value: one}},
		Splits: []calc.Split{
			{Node: node, Units: generic.UnitMGD, Counterpart: generic.NewPath("WSW", "fresh", "surface"), Axis: calc.AxisSource, WaterType: "fresh", Fraction: decimal.RequireFromString("0.4")},
			{Node: node, Units: generic.UnitMGD, Counterpart: generic.NewPath("WSW", "fresh", "ground"), Axis: calc.AxisSource, WaterType: "fresh", Fraction: decimal.RequireFromString("0.6")},
		},
	}
	return params, demoBaseline(map[string]string{generic.EncodeColumn(pws, res, generic.UnitMGD): "30"})
}

// matchScenario reconciles treated-water inflow at WWT against the outflow
// of the collection system WWC, routing whichever residual remains.
func matchScenario(targetInflow, sourceOutflow string) (*calc.Parameters, *calc.Baseline) {
	com, wwt := generic.NewPath("COM"), generic.NewPath("WWT")
	wwc, sd := generic.NewPath("WWC"), generic.NewPath("SD")
	params := &calc.Parameters{
		Collections: []calc.Collection{
			demoCollect(com, wwt, generic.UnitMGD),
			demoCollect(wwc, sd, generic.UnitMGD),
		},
		Updates: []calc.UpdateRule{
			{Bundle: "demo", SetID: "wastewater", From: wwc, To: wwt, Units: generic.UnitMGD, Role: calc.RoleMatch},
			{Bundle: "demo", SetID: "wastewater", From: wwt, To: generic.NewPath("EXP"), Units: generic.UnitMGD, Role: calc.RoleExport},
			{Bundle: "demo", SetID: "wastewater", From: generic.NewPath("IMP"), To: wwc, Units: generic.UnitMGD, Role: calc.RoleImport},
		},
	}
	return params, demoBaseline(map[string]string{
		generic.EncodeColumn(com, wwt, generic.UnitMGD): targetInflow,
		generic.EncodeColumn(wwc, sd, generic.UnitMGD):  sourceOutflow,
	})
}

func keepRemoveScenario() (*calc.Parameters, *calc.Baseline) {
	pws, res, ww := generic.NewPath("PWS"), generic.NewPath("RES"), generic.NewPath("WW")
	params := &calc.Parameters{
		Collections: []calc.Collection{demoCollect(pws, res, generic.UnitMGD)},
		Splits: []calc.Split{
			{Node: res, Units: generic.UnitMGD, Counterpart: ww, Axis: calc.AxisDischarge, Fraction: decimal.RequireFromString("0.3")},
			{Node: res, Units: generic.UnitMGD, Counterpart: generic.NewPath("CU"), Axis: calc.AxisDischarge, Fraction: decimal.RequireFromString("0.7")},
		},
		Updates: []calc.UpdateRule{
			{Bundle: "demo", SetID: "discharge", From: res, To: ww, Units: generic.UnitMGD, Role: calc.RoleKeep},
			{Bundle: "demo", SetID: "discharge", From: res, To: ww, Units: generic.UnitMGD, Role: calc.RoleRemove},
		},
	}
	return params, demoBaseline(map[string]string{
		generic.EncodeColumn(pws, res, generic.UnitMGD): "10",
		generic.EncodeColumn(res, ww, generic.UnitMGD):  "5",
	})
}
