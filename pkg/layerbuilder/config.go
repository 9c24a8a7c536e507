package layerbuilder

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/chazu/strata/pkg/parser"
	"github.com/chazu/strata/pkg/protolayer"
	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("invalid layer configuration")

// Strategy names the clustering applied to a layer configuration's
// surfaces when split configs are present.
type Strategy string

const (
	// StrategyCluster clusters on the first split config.
	StrategyCluster Strategy = "cluster"
	// StrategyMulti refines over every split config in order.
	StrategyMulti Strategy = "multi"
	// StrategyPitch bins by radius (central) or |z| (sides) with the first
	// split config's tolerance as pitch.
	StrategyPitch Strategy = "pitch"
)

// Config is the layer builder configuration file.
type Config struct {
	// Unit is mm per geometry unit; zero uses the geometry's own unit.
	Unit   float64  `yaml:"unit,omitempty"`
	Layers LayerSet `yaml:"layers"`
}

// LayerSet holds the layer configurations of each detector side.
type LayerSet struct {
	Negative []LayerConfig `yaml:"negative,omitempty"`
	Central  []LayerConfig `yaml:"central,omitempty"`
	Positive []LayerConfig `yaml:"positive,omitempty"`
}

// For returns the configurations of one side.
func (s LayerSet) For(side Side) []LayerConfig {
	switch side {
	case Negative:
		return s.Negative
	case Positive:
		return s.Positive
	default:
		return s.Central
	}
}

// LayerConfig describes how one sub-volume is turned into layers.
type LayerConfig struct {
	Volume       string                     `yaml:"volume"`
	Sensors      []string                   `yaml:"sensors"`
	// Envelope is the (r, z) padding added around each layer.
	Envelope     [2]float64                 `yaml:"envelope"`
	ParseRanges  []parser.ParseRange        `yaml:"parseRanges,omitempty"`
	SplitConfigs []protolayer.SortingConfig `yaml:"splitConfigs,omitempty"`
	Strategy     Strategy                   `yaml:"strategy,omitempty"`
	// Binning0 and Binning1 carry one bin count per resulting layer, or a
	// single value <= 0 for automatic binning.
	Binning0     []int                      `yaml:"binning0,omitempty"`
	Binning1     []int                      `yaml:"binning1,omitempty"`
}

// strategy returns the configured strategy, defaulting to pitch binning.
func (c LayerConfig) strategy() Strategy {
	if c.Strategy == "" {
		return StrategyPitch
	}
	return c.Strategy
}

// LoadConfig loads and validates a layer configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a layer configuration.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks every layer configuration and names the first offending
// field.
func (c *Config) Validate() error {
	if c.Unit < 0 || math.IsNaN(c.Unit) {
		return fmt.Errorf("%w: unit must not be negative", ErrConfig)
	}
	for _, side := range []Side{Negative, Central, Positive} {
		for i, lc := range c.Layers.For(side) {
			if err := lc.validate(); err != nil {
				return fmt.Errorf("%w: layers.%s[%d].%s", ErrConfig, side, i, err)
			}
		}
	}
	return nil
}

func (c LayerConfig) validate() error {
	if c.Volume == "" {
		return errors.New("volume is required")
	}
	if c.Envelope[0] < 0 || c.Envelope[1] < 0 {
		return fmt.Errorf("envelope %v must not be negative", c.Envelope)
	}
	for i, r := range c.ParseRanges {
		if !r.Axis.Valid() {
			return fmt.Errorf("parseRanges[%d].axis is invalid", i)
		}
		if r.Min > r.Max {
			return fmt.Errorf("parseRanges[%d] has min %g above max %g", i, r.Min, r.Max)
		}
	}
	for i, s := range c.SplitConfigs {
		if !s.Axis.Valid() {
			return fmt.Errorf("splitConfigs[%d].axis is invalid", i)
		}
		if s.Tolerance <= 0 || math.IsNaN(s.Tolerance) || math.IsInf(s.Tolerance, 0) {
			return fmt.Errorf("splitConfigs[%d].tolerance %v must be finite and positive", i, s.Tolerance)
		}
	}
	switch c.strategy() {
	case StrategyMulti:
	case StrategyCluster, StrategyPitch:
		if len(c.SplitConfigs) > 1 {
			return fmt.Errorf("splitConfigs has %d entries but strategy %s uses one; use multi to refine over several",
				len(c.SplitConfigs), c.strategy())
		}
	default:
		return fmt.Errorf("strategy %q is not one of cluster, multi, pitch", c.Strategy)
	}
	return nil
}
