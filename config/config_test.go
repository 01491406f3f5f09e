package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	// GIVEN: A config with relative and absolute paths
	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "split.csv")
	path := writeFile(t, dir, "run.yaml", `
baseline: inputs/baseline.csv
region_columns: 2
tables:
  collect: [params/collect.csv]
  split: [`+abs+`]
output: out/flows.db
workers: 4
`)

	// WHEN: Loading it
	cfg, err := Load(path)

	// THEN: Relative paths are joined to the file's directory
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "inputs/baseline.csv"), cfg.Baseline)
	assert.Equal(t, []string{filepath.Join(dir, "params/collect.csv")}, cfg.Tables.Collect)
	assert.Equal(t, []string{abs}, cfg.Tables.Split)
	assert.Equal(t, filepath.Join(dir, "out/flows.db"), cfg.Output)
	assert.Equal(t, 2, cfg.RegionColumns)
	assert.Equal(t, 4, cfg.Workers)

	// AND: Unset values keep their defaults
	assert.Equal(t, 5, cfg.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, t.TempDir(), "bad.yaml", "level: [1\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no baseline", func(c *Config) { c.Baseline = "" }, false},
		{"no region columns", func(c *Config) { c.RegionColumns = 0 }, false},
		{"level zero", func(c *Config) { c.Level = 0 }, false},
		{"level six", func(c *Config) { c.Level = 6 }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Baseline = "baseline.csv"
			tt.mutate(c)

			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSources(t *testing.T) {
	c := Default()
	c.Tables = Tables{Collect: []string{"c"}, Intensity: []string{"w", "e"}, Split: []string{"s"}, Update: []string{"u"}}

	src := c.Sources()

	assert.Equal(t, []string{"c"}, src.Collect)
	assert.Equal(t, []string{"w", "e"}, src.Intensity)
	assert.Equal(t, []string{"s"}, src.Split)
	assert.Equal(t, []string{"u"}, src.Update)
}
