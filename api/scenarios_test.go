/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each built-in scenario computes the magnitudes it advertises,
	so the scenarios double as end-to-end checks of the HTTP path.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
)

// storedFlows computes a scenario through the handler and returns its
// level-5 flows by name.
func storedFlows(t *testing.T, scenarioID string) map[string]decimal.Decimal {
	t.Helper()
	h, _ := setupTestHandler(t, scenarioID)
	ctx := context.Background()

	run, err := h.Compute(ctx, "")
	require.NoError(t, err)
	rows, err := h.Store.LoadFlows(ctx, run.ID, generic.FlowFilter{})
	require.NoError(t, err)

	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[generic.EncodeFlow(row.Key, row.Level)] = row.Value
	}
	return out
}

func assertFlow(t *testing.T, flows map[string]decimal.Decimal, name, want string) {
	t.Helper()
	got, ok := flows[name]
	require.True(t, ok, "missing %s", name)
	assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", name, want, got)
}

func TestScenario_Passthrough(t *testing.T) {
	flows := storedFlows(t, "passthrough")

	assertFlow(t, flows, "R_WSW_fresh_surface_total_total_to_RES_total_total_total_total_mgd", "10")
}

func TestScenario_Intensity(t *testing.T) {
	h, _ := setupTestHandler(t, "intensity")

	result, err := h.currentInputs().Calculator.Run(context.Background(), h.currentInputs().Baseline, calc.RunOptions{})
	require.NoError(t, err)

	node := generic.NodeKey{Region: demoRegion, Path: generic.NewPath("EG", "gas", "withdrawal"), Units: generic.UnitMGD}
	assert.True(t, decimal.NewFromInt(2).Equal(result.Regions[0].Derived[node]))

	flows := storedFlows(t, "intensity")
	assertFlow(t, flows, "R_EG_gas_total_total_total_to_EG_gas_withdrawal_total_total_mgd", "2")
}

func TestScenario_SourceSplit(t *testing.T) {
	flows := storedFlows(t, "source-split")

	assertFlow(t, flows, "R_WSW_fresh_surface_total_total_to_PWS_withdrawal_total_total_total_mgd", "12")
	assertFlow(t, flows, "R_WSW_fresh_ground_total_total_to_PWS_withdrawal_total_total_total_mgd", "18")
}

func TestScenario_MatchExport(t *testing.T) {
	flows := storedFlows(t, "match-export")

	assertFlow(t, flows, "R_WWC_total_total_total_total_to_WWT_total_total_total_total_mgd", "30")
	assertFlow(t, flows, "R_WWT_total_total_total_total_to_EXP_total_total_total_total_mgd", "20")
	assert.NotContains(t, flows, "R_IMP_total_total_total_total_to_WWC_total_total_total_total_mgd")
}

func TestScenario_MatchImport(t *testing.T) {
	flows := storedFlows(t, "match-import")

	assertFlow(t, flows, "R_WWC_total_total_total_total_to_WWT_total_total_total_total_mgd", "20")
	assertFlow(t, flows, "R_IMP_total_total_total_total_to_WWC_total_total_total_total_mgd", "30")
	assert.NotContains(t, flows, "R_WWT_total_total_total_total_to_EXP_total_total_total_total_mgd")
}

func TestScenario_KeepRemove(t *testing.T) {
	flows := storedFlows(t, "keep-remove")

	assertFlow(t, flows, "R_RES_total_total_total_total_to_WW_total_total_total_total_mgd", "3")
	assertFlow(t, flows, "R_RES_total_total_total_total_to_CU_total_total_total_total_mgd", "7")
}

func TestScenarioInputs_Unknown(t *testing.T) {
	_, err := ScenarioInputs("does-not-exist")

	assert.Error(t, err)
}

// =============================================================================
// HTTP
// =============================================================================

func TestLoadScenario_SwapsInputsAndComputes(t *testing.T) {
	// GIVEN: A server with no inputs
	_, router := setupTestHandler(t, "")

	// WHEN: Loading a scenario
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "source-split"})

	// THEN: A run is stored and the scenario is current
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[RunDTO](t, rec)
	assert.Positive(t, run.Flows)

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "source-split", decode[ScenarioDTO](t, rec).ID)

	rec = do(t, router, http.MethodGet, "/api/health", nil)
	assert.True(t, decode[HealthDTO](t, rec).Inputs)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router := setupTestHandler(t, "")

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScenarios(t *testing.T) {
	_, router := setupTestHandler(t, "")

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))
	assert.Equal(t, "passthrough", list[0].ID)

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestSetInputs_ClearsScenario(t *testing.T) {
	h, _ := setupTestHandler(t, "")
	in, err := ScenarioInputs("passthrough")
	require.NoError(t, err)

	h.mu.Lock()
	h.scenario = "passthrough"
	h.mu.Unlock()
	h.SetInputs(in)

	assert.Empty(t, h.scenario)
}
