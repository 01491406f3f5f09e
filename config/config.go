// Package config loads flowcalc run configuration from a YAML file.
//
// A run configuration names the baseline, the parameter tables of each kind,
// and the output options. Relative paths are resolved against the directory
// of the configuration file. Command-line flags override file values.
//
//	baseline: inputs/baseline.csv
//	region_columns: 3
//	tables:
//	  collect:   [params/collect.csv]
//	  intensity: [params/withdrawal.csv, params/energy.csv]
//	  split:     [params/split.csv]
//	  update:    [params/update.csv]
//	level: 5
//	output: out/flows.csv
//	workers: 8
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/factory"
	"github.com/warp/flow-engine/generic"
)

// Config is one flowcalc run.
type Config struct {
	Baseline      string `yaml:"baseline"`
	RegionColumns int    `yaml:"region_columns"`
	Tables        Tables `yaml:"tables"`
	Level         int    `yaml:"level"`
	Region        string `yaml:"region"`
	Output        string `yaml:"output"`
	Workers       int    `yaml:"workers"`
}

// Tables lists parameter files by kind, in application order.
type Tables struct {
	Collect   []string `yaml:"collect"`
	Intensity []string `yaml:"intensity"`
	Split     []string `yaml:"split"`
	Update    []string `yaml:"update"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{RegionColumns: 1, Level: generic.Levels}
}

// Load reads the YAML file at path over Default. Relative paths inside the
// file are made relative to the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	c.resolve(filepath.Dir(path))
	return c, nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	all := func(ps []string) []string {
		for i := range ps {
			ps[i] = abs(ps[i])
		}
		return ps
	}
	c.Baseline = abs(c.Baseline)
	c.Output = abs(c.Output)
	c.Tables.Collect = all(c.Tables.Collect)
	c.Tables.Intensity = all(c.Tables.Intensity)
	c.Tables.Split = all(c.Tables.Split)
	c.Tables.Update = all(c.Tables.Update)
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	if c.Baseline == "" {
		return fmt.Errorf("no baseline configured")
	}
	if c.RegionColumns < 1 {
		return fmt.Errorf("region_columns must be at least 1, got %d", c.RegionColumns)
	}
	if err := generic.ValidateLevel(c.Level); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Sources returns the parameter files in the form the factory reads.
func (c *Config) Sources() factory.Sources {
	return factory.Sources{
		Collect:   c.Tables.Collect,
		Intensity: c.Tables.Intensity,
		Split:     c.Tables.Split,
		Update:    c.Tables.Update,
	}
}

// Inputs reads every parameter table and the baseline.
func (c *Config) Inputs() (*calc.Parameters, *calc.Baseline, error) {
	params, err := factory.LoadParameters(c.Sources())
	if err != nil {
		return nil, nil, err
	}
	baseline, err := factory.LoadBaseline(c.Baseline, c.RegionColumns)
	if err != nil {
		return nil, nil, err
	}
	return params, baseline, nil
}
