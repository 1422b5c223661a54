package main

import (
	"fmt"
	"os"

	"github.com/ChizhovVadim/HistLoss/internal/bias"
	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"gopkg.in/yaml.v3"
)

type CurveConfig struct {
	Steps int `yaml:"steps"`
	// FitPoints limits the fit to the leading points of the curve, 0 uses all of them.
	FitPoints int    `yaml:"fit_points"`
	Output    string `yaml:"output"`
	Surface   string `yaml:"surface"`
}

type Config struct {
	// Workers is the number of parameter values simulated in parallel, 0 means NumCPU.
	Workers  int              `yaml:"workers"`
	Geometry histogram.Config `yaml:"geometry"`

	Discretization struct {
		CurveConfig `yaml:",inline"`
		PadBins     int       `yaml:"pad_bins"`
		SigRatios   []float64 `yaml:"sig_ratios"`
	} `yaml:"discretization"`

	Truncation struct {
		CurveConfig `yaml:",inline"`
		SigRatio    float64   `yaml:"sig_ratio"`
		PadRatios   []float64 `yaml:"pad_ratios"`
	} `yaml:"truncation"`

	Sweep struct {
		CurveConfig `yaml:",inline"`
		Parameter   string    `yaml:"parameter"`
		Values      []float64 `yaml:"values"`
	} `yaml:"sweep"`

	Quality struct {
		Encoder string  `yaml:"encoder"`
		Eps     float64 `yaml:"eps"`
		Targets string  `yaml:"targets"`
		// FitRange takes low and high of every dimension from the targets.
		FitRange bool `yaml:"fit_range"`
	} `yaml:"quality"`
}

func defaultConfig() *Config {
	var c = &Config{
		Geometry: histogram.Config{NBins: 100, PadRatio: 3, SigRatio: 1},
	}

	c.Discretization.PadBins = 100
	c.Discretization.SigRatios = bias.DefaultSigRatios()
	c.Discretization.Steps = 10001
	c.Discretization.FitPoints = 72
	c.Discretization.Output = "discretization.bin"

	c.Truncation.SigRatio = 2
	c.Truncation.PadRatios = bias.DefaultPadRatios()
	c.Truncation.Steps = 100001
	c.Truncation.FitPoints = 16
	c.Truncation.Output = "truncation.bin"

	c.Sweep.Parameter = "sig_ratio"
	c.Sweep.Values = bias.DefaultSigRatios()
	c.Sweep.Steps = 10001

	c.Quality.Encoder = "gaussian"
	c.Quality.Eps = 1e-3
	return c
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	var c = defaultConfig()
	if path == "" {
		return c, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return nil, fmt.Errorf("config %v: %w", path, err)
	}
	return c, nil
}
