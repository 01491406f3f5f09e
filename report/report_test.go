package report_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
	"github.com/warp/flow-engine/report"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fineRow(region generic.Region, src, tgt generic.Path, v string) generic.FlowRow {
	return generic.FlowRow{
		Key:   generic.FlowKey{Region: region, Source: src, Target: tgt, Units: generic.UnitMGD},
		Level: generic.Levels,
		Value: d(v),
	}
}

// computed runs a small two-region calculation with a source split.
func computed(t *testing.T) *calc.Result {
	t.Helper()
	node := generic.NewPath("PWS", "withdrawal")
	one := decimal.NewFromInt(1)
	params := &calc.Parameters{
		Collections: []calc.Collection{
			{Source: generic.NewPath("PWS"), Target: generic.NewPath("RES"), Units: generic.UnitMGD, Factor: one},
			{Source: generic.NewPath("PWS"), Target: generic.NewPath("COM"), Units: generic.UnitMGD, Factor: one},
		},
		Intensities: []calc.Intensity{{Source: generic.NewPath("RES"), UnitsIn: generic.UnitMGD, Target: node, Kind: calc.IntensityWithdrawal, Value: one}},
		Splits: []calc.Split{
			{Node: node, Units: generic.UnitMGD, Counterpart: generic.NewPath("WSW", "fresh", "surface"), Axis: calc.AxisSource, Fraction: d("0.25")},
			{Node: node, Units: generic.UnitMGD, Counterpart: generic.NewPath("WSW", "fresh", "ground"), Axis: calc.AxisSource, Fraction: d("0.75")},
		},
	}
	res := generic.EncodeColumn(generic.NewPath("PWS"), generic.NewPath("RES"), generic.UnitMGD)
	com := generic.EncodeColumn(generic.NewPath("PWS"), generic.NewPath("COM"), generic.UnitMGD)
	b := &calc.Baseline{
		RegionColumns: []string{"state", "county"},
		Rows: []*calc.BaselineRow{
			calc.NewBaselineRow("CA_001", map[string]decimal.Decimal{res: d("8"), com: d("2")}),
			calc.NewBaselineRow("CA_003", map[string]decimal.Decimal{res: d("1.5")}),
		},
	}
	c, err := calc.NewCalculator(params)
	require.NoError(t, err)
	result, err := c.Run(context.Background(), b, calc.RunOptions{})
	require.NoError(t, err)
	return result
}

func assertSameRows(t *testing.T, want, got []generic.FlowRow) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.Equal(t, want[i].Level, got[i].Level)
		assert.True(t, want[i].Value.Equal(got[i].Value), "%s: want %s, got %s",
			generic.EncodeFlow(want[i].Key, want[i].Level), want[i].Value, got[i].Value)
	}
}

// =============================================================================
// GROUP
// =============================================================================

func TestGroup_SumsTrailingComponents(t *testing.T) {
	// GIVEN: Two surface-water flows that differ below level 2
	rows := []generic.FlowRow{
		fineRow("R1", generic.NewPath("WSW", "fresh", "surface"), generic.NewPath("RES"), "3"),
		fineRow("R1", generic.NewPath("WSW", "fresh", "ground"), generic.NewPath("RES"), "4"),
		fineRow("R1", generic.NewPath("WSW", "saline", "surface"), generic.NewPath("RES"), "1"),
	}

	// WHEN: Grouping to level 2
	grouped, err := report.Group(rows, 2)

	// THEN: fresh is summed and saline kept apart
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, []string{"WSW", "fresh"}, grouped[0].Key.Source.Components(2))
	assert.Equal(t, "7", grouped[0].Value.String())
	assert.Equal(t, "1", grouped[1].Value.String())
	assert.Equal(t, 2, grouped[0].Level)
}

func TestGroup_MatchesRerunAtLevel(t *testing.T) {
	result := computed(t)
	fine, err := report.Long(result, generic.Levels)
	require.NoError(t, err)

	for level := 1; level <= generic.Levels; level++ {
		grouped, err := report.Group(fine, level)
		require.NoError(t, err)
		direct, err := report.Long(result, level)
		require.NoError(t, err)
		assertSameRows(t, direct, grouped)
	}
}

func TestLong_IncludesDerivedTotals(t *testing.T) {
	// GIVEN: 100 bbtu of gas into generation and a 0.02 withdrawal intensity
	egGas := generic.NewPath("EG", "gas")
	params := &calc.Parameters{
		Collections: []calc.Collection{{Source: generic.NewPath("NG"), Target: egGas, Units: generic.UnitBBTU, Factor: decimal.NewFromInt(1)}},
		Intensities: []calc.Intensity{{
			Source: egGas, UnitsIn: generic.UnitBBTU,
			Target: generic.NewPath("EG", "gas", "withdrawal"), Kind: calc.IntensityWithdrawal,
			Value: d("0.02"),
		}},
	}
	column := generic.EncodeColumn(generic.NewPath("NG"), egGas, generic.UnitBBTU)
	b := &calc.Baseline{
		RegionColumns: []string{"region"},
		Rows:          []*calc.BaselineRow{calc.NewBaselineRow("R", map[string]decimal.Decimal{column: d("100")})},
	}
	c, err := calc.NewCalculator(params)
	require.NoError(t, err)
	result, err := c.Run(context.Background(), b, calc.RunOptions{})
	require.NoError(t, err)

	// WHEN: Writing the long-form table at level 5 and level 1
	fine, err := report.Long(result, generic.Levels)
	require.NoError(t, err)
	coarse, err := report.Long(result, 1)
	require.NoError(t, err)

	// THEN: The derived 2 mgd is in both
	named := report.Names(fine)
	require.Contains(t, named, "R_EG_gas_total_total_total_to_EG_gas_withdrawal_total_total_mgd")
	assert.True(t, d("2").Equal(named["R_EG_gas_total_total_total_to_EG_gas_withdrawal_total_total_mgd"]))
	assert.True(t, d("2").Equal(report.Names(coarse)["R_EG_to_EG_mgd"]))
}

func TestGroup_RejectsCoarserInput(t *testing.T) {
	coarse, err := report.Group([]generic.FlowRow{
		fineRow("R1", generic.NewPath("WSW"), generic.NewPath("RES"), "1"),
	}, 1)
	require.NoError(t, err)

	_, err = report.Group(coarse, 3)
	assert.ErrorIs(t, err, generic.ErrInvalidLevel)

	_, err = report.Group(nil, 7)
	assert.ErrorIs(t, err, generic.ErrInvalidLevel)
}

// =============================================================================
// CSV
// =============================================================================

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{"region", "S1", "S2", "T1", "T2", "units", "value"}, report.Header(2))
}

func TestCSV_RoundTrip(t *testing.T) {
	// GIVEN: A computed result at level 3
	rows, err := report.Long(computed(t), 3)
	require.NoError(t, err)

	// WHEN: Writing and reading it back
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, rows, 3))
	got, level, err := report.ReadCSV(&buf)

	// THEN: The rows and level survive
	require.NoError(t, err)
	assert.Equal(t, 3, level)
	assertSameRows(t, rows, got)
}

func TestWriteCSV_LevelFiveLayout(t *testing.T) {
	rows := []generic.FlowRow{fineRow("R1", generic.NewPath("WSW", "fresh"), generic.NewPath("RES"), "2.5")}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, rows, 5))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "region,S1,S2,S3,S4,S5,T1,T2,T3,T4,T5,units,value", lines[0])
	assert.Equal(t, "R1,WSW,fresh,total,total,total,RES,total,total,total,total,mgd,2.5", lines[1])
}

func TestWriteCSV_RejectsMixedLevels(t *testing.T) {
	rows := []generic.FlowRow{fineRow("R1", generic.NewPath("WSW"), generic.NewPath("RES"), "1")}

	err := report.WriteCSV(&bytes.Buffer{}, rows, 2)

	assert.ErrorIs(t, err, generic.ErrInvalidLevel)
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"bad header":     "region,S1,units,value\n",
		"bad units":      "region,S1,T1,units,value\nR1,WSW,RES,gallons,1\n",
		"bad value":      "region,S1,T1,units,value\nR1,WSW,RES,mgd,many\n",
		"ragged row":     "region,S1,T1,units,value\nR1,WSW,RES,mgd\n",
		"level too deep": "region,S1,S2,S3,S4,S5,S6,T1,T2,T3,T4,T5,T6,units,value\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := report.ReadCSV(strings.NewReader(csv))
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// NAMED FORM
// =============================================================================

func TestNames_RoundTrip(t *testing.T) {
	result := computed(t)
	rows, err := report.Long(result, generic.Levels)
	require.NoError(t, err)

	named := report.Names(rows)
	assert.Contains(t, named, "CA_001_WSW_fresh_surface_total_total_to_PWS_withdrawal_total_total_total_mgd")

	back, err := report.FromNames(named, result.RegionTokens)
	require.NoError(t, err)
	assertSameRows(t, rows, back)
}

func TestFromNames_Malformed(t *testing.T) {
	_, err := report.FromNames(map[string]decimal.Decimal{"CA_001_WSW_RES_mgd": d("1")}, 2)

	assert.True(t, errors.Is(err, generic.ErrMalformedIdentifier))
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestRecord(t *testing.T) {
	result := computed(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	run, flows, diags, err := report.Record(result, "run-1", "", created)

	require.NoError(t, err)
	assert.Equal(t, generic.RunID("run-1"), run.ID)
	assert.Equal(t, 2, run.RegionTokens)
	assert.Equal(t, 2, run.Regions)
	assert.Equal(t, len(flows), run.Flows)
	assert.Empty(t, diags)
	for _, f := range flows {
		assert.Equal(t, generic.Levels, f.Level)
	}
}
