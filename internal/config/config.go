// Package config holds the godeplete settings file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"godeplete/internal/chain"
)

// Config is the full settings tree, loaded from YAML.
type Config struct {
	Simulator SimulatorConfig `yaml:"simulator"`
	Run       RunConfig       `yaml:"run"`
	Depletion DepletionConfig `yaml:"depletion"`
	Paths     PathsConfig     `yaml:"paths"`
}

// SimulatorConfig describes how to launch the transport simulator.
type SimulatorConfig struct {
	// Executable is the simulator binary.
	Executable string `yaml:"executable"`
	// Launcher optionally prefixes the invocation, e.g. [mpiexec, -n, "8"].
	Launcher []string `yaml:"launcher,omitempty"`
}

// RunConfig carries the per-run transport parameters.
type RunConfig struct {
	Batches   int `yaml:"batches"`
	Inactive  int `yaml:"inactive"`
	Particles int `yaml:"particles"`

	LowerLeft        [3]float64 `yaml:"lower_left"`
	UpperRight       [3]float64 `yaml:"upper_right"`
	EntropyDimension [3]int     `yaml:"entropy_dimension"`

	// ConstantSeed pins the simulator seed for reproducible regression
	// runs. Leave unset to draw a fresh seed every step.
	ConstantSeed *int64 `yaml:"constant_seed,omitempty"`

	// RoundDensities snaps emitted densities to 8 significant digits,
	// which keeps regression comparisons stable against exact
	// reference runs.
	RoundDensities bool `yaml:"round_densities"`
}

// DepletionConfig carries the depletion-problem parameters.
type DepletionConfig struct {
	// Power is the target reactor power in MeV/s.
	Power float64 `yaml:"power"`
	// Ranks is the size of the coupling rank group.
	Ranks int `yaml:"ranks"`
}

// PathsConfig names external files. Chain and CrossSections fall back
// to the GODEPLETE_CHAIN and GODEPLETE_CROSS_SECTIONS environment
// variables when empty.
type PathsConfig struct {
	Chain         string `yaml:"chain,omitempty"`
	CrossSections string `yaml:"cross_sections,omitempty"`
	// Output is the directory holding input documents and the result
	// artifact for each step.
	Output string `yaml:"output"`
	// History is the step-ledger database path. Empty disables the ledger.
	History string `yaml:"history,omitempty"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Batches:          120,
			Inactive:         40,
			Particles:        10000,
			EntropyDimension: [3]int{10, 10, 10},
		},
		Depletion: DepletionConfig{
			Ranks: 1,
		},
		Paths: PathsConfig{
			Output: ".",
		},
	}
}

// Load reads a YAML settings file over the defaults and applies
// environment fallbacks for the external data paths.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills unset external paths from the environment.
func (c *Config) ApplyEnv() {
	if c.Paths.Chain == "" {
		c.Paths.Chain = os.Getenv(chain.EnvChain)
	}
	if c.Paths.CrossSections == "" {
		c.Paths.CrossSections = os.Getenv(chain.EnvCrossSections)
	}
}

// Validate rejects configurations no step can run with.
func (c *Config) Validate() error {
	if c.Depletion.Ranks < 1 {
		return fmt.Errorf("config: ranks must be positive, got %d", c.Depletion.Ranks)
	}
	if c.Depletion.Power <= 0 {
		return fmt.Errorf("config: target power must be positive, got %g", c.Depletion.Power)
	}
	if c.Run.Batches <= c.Run.Inactive {
		return fmt.Errorf("config: batches (%d) must exceed inactive batches (%d)", c.Run.Batches, c.Run.Inactive)
	}
	return nil
}
