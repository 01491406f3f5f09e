package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/flow-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func sampleFlow() generic.FlowKey {
	return generic.FlowKey{
		Region: generic.NewRegion("US", "CA", "001"),
		Source: generic.NewPath("WSW", "fresh", "surface"),
		Target: generic.NewPath("RES"),
		Units:  generic.UnitMGD,
	}
}

// =============================================================================
// ENCODING
// =============================================================================

func TestEncodeFlow_LevelFive(t *testing.T) {
	// GIVEN: A flow in a three-token region
	key := sampleFlow()

	// WHEN: Encoding at level 5
	name := generic.EncodeFlow(key, generic.Levels)

	// THEN: Region, padded source, marker, padded target and units are joined
	assert.Equal(t, "US_CA_001_WSW_fresh_surface_total_total_to_RES_total_total_total_total_mgd", name)
}

func TestEncodeFlow_TruncatedLevel(t *testing.T) {
	key := sampleFlow()

	assert.Equal(t, "US_CA_001_WSW_to_RES_mgd", generic.EncodeFlow(key, 1))
	assert.Equal(t, "US_CA_001_WSW_fresh_to_RES_total_mgd", generic.EncodeFlow(key, 2))
}

func TestEncodeColumn_BaselineHeader(t *testing.T) {
	key := sampleFlow()

	assert.Equal(t, "WSW_fresh_surface_total_total_to_RES_total_total_total_total_mgd",
		generic.EncodeColumn(key.Source, key.Target, key.Units))
	assert.Equal(t, "WSW_fresh_surface_total_total_to_RES_total_total_total_total_fraction",
		generic.EncodeFraction(key.Source, key.Target, generic.Levels))
	assert.Equal(t, "WSW_fresh_surface_total_total_to_RES_total_total_total_total_intensity",
		generic.EncodeIntensity(key.Source, key.Target))
}

func TestEncodeNode(t *testing.T) {
	node := generic.NodeKey{Region: "R1", Path: generic.NewPath("PWS", "withdrawal"), Units: generic.UnitMGD}

	assert.Equal(t, "R1_PWS_withdrawal_total_total_total_mgd", generic.EncodeNode(node, generic.Levels))
	assert.Equal(t, "R1_PWS_mgd", generic.EncodeNode(node, 1))
}

// =============================================================================
// DECODING
// =============================================================================

func TestDecodeFlow_RoundTripsEveryLevel(t *testing.T) {
	// GIVEN: A flow key and its encoding at each level
	key := sampleFlow()

	for level := 1; level <= generic.Levels; level++ {
		name := generic.EncodeFlow(key, level)

		// WHEN: Decoding with the known region token count
		got, gotLevel, err := generic.DecodeFlow(name, 3)

		// THEN: The truncated key and its level come back
		require.NoError(t, err, name)
		assert.Equal(t, level, gotLevel, name)
		assert.Equal(t, key.Truncate(level), got, name)
	}
}

func TestDecodeFlow_SingleTokenRegion(t *testing.T) {
	got, level, err := generic.DecodeFlow("R1_EGS_to_RES_bbtu", 1)

	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.Equal(t, generic.Region("R1"), got.Region)
	assert.Equal(t, "EGS", got.Source[0])
	assert.Equal(t, "RES", got.Target[0])
	assert.Equal(t, generic.UnitBBTU, got.Units)
}

func TestDecodeFlow_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing marker": "R1_WSW_at_RES_mgd",
		"unknown units":  "R1_WSW_to_RES_gallons",
		"odd tokens":     "R1_WSW_fresh_to_RES_mgd",
		"too short":      "R1_mgd",
		"too deep":       "R1_a_b_c_d_e_f_to_a_b_c_d_e_f_mgd",
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := generic.DecodeFlow(id, 1)
			assert.ErrorIs(t, err, generic.ErrMalformedIdentifier)
		})
	}
}

func TestDecodeFlow_RequiresRegionTokens(t *testing.T) {
	_, _, err := generic.DecodeFlow("R1_WSW_to_RES_mgd", 0)
	assert.ErrorIs(t, err, generic.ErrMalformedIdentifier)
}

func TestDecodeColumn_Kinds(t *testing.T) {
	src := generic.NewPath("WSW", "fresh", "surface")
	tgt := generic.NewPath("RES")

	kind, gotSrc, gotTgt, units := generic.DecodeColumn(generic.EncodeColumn(src, tgt, generic.UnitMGD))
	assert.Equal(t, generic.ColumnFlow, kind)
	assert.Equal(t, src, gotSrc)
	assert.Equal(t, tgt, gotTgt)
	assert.Equal(t, generic.UnitMGD, units)

	kind, _, _, _ = generic.DecodeColumn(generic.EncodeFraction(src, tgt, generic.Levels))
	assert.Equal(t, generic.ColumnFraction, kind)

	kind, _, _, _ = generic.DecodeColumn(generic.EncodeIntensity(src, tgt))
	assert.Equal(t, generic.ColumnIntensity, kind)

	kind, _, _, _ = generic.DecodeColumn("population")
	assert.Equal(t, generic.ColumnUnknown, kind)
}

func TestValidComponent(t *testing.T) {
	assert.True(t, generic.ValidComponent("surface"))
	assert.False(t, generic.ValidComponent(""))
	assert.False(t, generic.ValidComponent("fresh_surface"))
}
