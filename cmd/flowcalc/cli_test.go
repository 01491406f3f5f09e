package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helpText calls the help function and returns the output as a string.
func helpText() string {
	var sb strings.Builder
	printUsage(&sb)
	return sb.String()
}

// longHelpText returns the long help for a named command.
func longHelpText(name string) string {
	var sb strings.Builder
	printCommandHelp(&sb, name)
	return sb.String()
}

// The help listing is derived from the commands slice.
func TestHelpContainsAllCommands(t *testing.T) {
	help := helpText()
	for _, cmd := range commands {
		assert.Contains(t, help, cmd.name)
		assert.Contains(t, help, cmd.short)
	}
}

func TestHelpContainsUsageHeader(t *testing.T) {
	help := helpText()

	assert.Contains(t, help, "Usage:")
	assert.Contains(t, help, "flowcalc")
}

func TestLongHelpForKnownCommands(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.name, func(t *testing.T) {
			out := longHelpText(cmd.name)
			require.NotEmpty(t, out)
			assert.Contains(t, out, cmd.usage)
		})
	}
}

func TestLongHelpUnknownCommand(t *testing.T) {
	out := longHelpText("no-such-command")

	assert.Contains(t, out, "unknown command")
	assert.Contains(t, out, "no-such-command")
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestDispatch_HelpReturnsNil(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}, {"help"}, {"help", "run"}, {"help", "nope"}} {
		assert.NoError(t, dispatch(args), "%v", args)
	}
}

func TestDispatch_UnknownCommandIsUsageError(t *testing.T) {
	// WHEN: Dispatching a name that is not in the command table
	err := dispatch([]string{"frobnicate"})

	// THEN: It is a usage error naming the command
	require.Error(t, err)
	var ue *usageError
	assert.True(t, errors.As(err, &ue))
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestDispatch_BadFlagIsUsageError(t *testing.T) {
	err := dispatch([]string{"group", "-bogus"})

	var ue *usageError
	assert.True(t, errors.As(err, &ue), "%v", err)
}

func TestDispatch_GroupRejectsLevel(t *testing.T) {
	err := dispatch([]string{"group", "-level", "9"})

	var ue *usageError
	assert.True(t, errors.As(err, &ue), "%v", err)
}

func TestDispatch_RunWithoutBaseline(t *testing.T) {
	err := dispatch([]string{"run", "-level", "2"})

	var ue *usageError
	require.True(t, errors.As(err, &ue), "%v", err)
	assert.Contains(t, err.Error(), "baseline")
}

// =============================================================================
// INPUT FLAGS
// =============================================================================

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a.csv", "b.csv"}, splitList(" a.csv, ,b.csv,"))
	assert.Nil(t, splitList(""))
}

func TestResolve_FlagsOverrideConfig(t *testing.T) {
	// GIVEN: A config file naming a baseline, tables and a level
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	yaml := "baseline: baseline.csv\nregion_columns: 3\nlevel: 4\ntables:\n  collect: [collect.csv]\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var in inputFlags
	in.bind(fs)

	// WHEN: Parsing flags that set the level and the intensity tables
	require.NoError(t, fs.Parse([]string{"-config", path, "-level", "2", "-intensity", "w.csv,e.csv"}))
	cfg, err := in.resolve(fs)

	// THEN: Set flags win, unset flags keep the file's values
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Level)
	assert.Equal(t, []string{"w.csv", "e.csv"}, cfg.Tables.Intensity)
	assert.Equal(t, 3, cfg.RegionColumns)
	assert.Equal(t, filepath.Join(dir, "baseline.csv"), cfg.Baseline)
	assert.Equal(t, []string{filepath.Join(dir, "collect.csv")}, cfg.Tables.Collect)
}

func TestResolve_NoConfig(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var in inputFlags
	in.bind(fs)

	require.NoError(t, fs.Parse([]string{"-baseline", "b.csv"}))
	cfg, err := in.resolve(fs)

	require.NoError(t, err)
	assert.Equal(t, "b.csv", cfg.Baseline)
	assert.Equal(t, 1, cfg.RegionColumns)
	assert.Equal(t, 5, cfg.Level)
}

func TestResolve_MissingConfig(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var in inputFlags
	in.bind(fs)

	require.NoError(t, fs.Parse([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")}))
	_, err := in.resolve(fs)

	assert.ErrorIs(t, err, os.ErrNotExist)
}
