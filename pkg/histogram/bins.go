// Package histogram converts continuous targets into probability vectors over fixed bins
// and recovers estimates as the expectation over bin centers.
package histogram

import (
	"fmt"
	"math"
	"slices"

	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
)

// Config describes the bins of every output dimension.
//
// The bin width is (high - low) / (NBins - 2*SigRatio*PadRatio), so that
// PadRatio*SigRatio bin widths of padding are added on both sides of [low, high]
// and sigma equals SigRatio bin widths.
//
// Shape is the per-sample target shape (nil for scalar targets). Low and High hold
// one bound per element of Shape in row-major order; a single value applies to all
// elements and nil means 0 and 1.
type Config struct {
	NBins    int       `yaml:"n_bins"`
	PadRatio float64   `yaml:"pad_ratio"`
	SigRatio float64   `yaml:"sig_ratio"`
	Low      []float64 `yaml:"low"`
	High     []float64 `yaml:"high"`
	Shape    []int     `yaml:"shape"`
}

func (c *Config) Validate() error {
	var err error
	if c.NBins <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: n_bins must be positive, got %v", ErrInvalidConfig, c.NBins))
	}
	if !(c.PadRatio >= 0) || math.IsInf(c.PadRatio, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: pad_ratio must be finite and non-negative, got %v", ErrInvalidConfig, c.PadRatio))
	}
	if !(c.SigRatio > 0) || math.IsInf(c.SigRatio, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: sig_ratio must be finite and positive, got %v", ErrInvalidConfig, c.SigRatio))
	}
	if c.NBins > 0 && float64(c.NBins) <= 2*c.SigRatio*c.PadRatio {
		err = multierr.Append(err, fmt.Errorf("%w: n_bins %v must exceed 2*sig_ratio*pad_ratio = %v",
			ErrInvalidConfig, c.NBins, 2*c.SigRatio*c.PadRatio))
	}
	for _, d := range c.Shape {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%w: shape %v has a non-positive dimension", ErrInvalidConfig, c.Shape))
			break
		}
	}
	var dims = tensor.Size(c.Shape)
	if !boundsFit(len(c.Low), dims) || !boundsFit(len(c.High), dims) {
		err = multierr.Append(err, fmt.Errorf("%w: %v low and %v high bounds for shape %v",
			ErrInvalidConfig, len(c.Low), len(c.High), c.Shape))
		return err
	}
	for i := 0; i < dims; i++ {
		var low, high = bound(c.Low, i, 0), bound(c.High, i, 1)
		if math.IsNaN(low) || math.IsInf(low, 0) || math.IsNaN(high) || math.IsInf(high, 0) || !(low < high) {
			err = multierr.Append(err, fmt.Errorf("%w: dimension %v needs finite low < high, got [%v, %v]",
				ErrInvalidConfig, i, low, high))
		}
	}
	return err
}

func boundsFit(n, dims int) bool {
	return n == 0 || n == 1 || n == dims
}

func bound(values []float64, i int, def float64) float64 {
	switch len(values) {
	case 0:
		return def
	case 1:
		return values[0]
	}
	return values[i]
}

// Geometry is an immutable set of bins per output dimension.
type Geometry struct {
	nBins    int
	padRatio float64
	sigRatio float64
	shape    []int
	low      []float64
	high     []float64
	binWidth []float64
	sigma    []float64
	borders  [][]float64
	centers  [][]float64
}

func NewGeometry(config Config) (*Geometry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var dims = tensor.Size(config.Shape)
	var g = &Geometry{
		nBins:    config.NBins,
		padRatio: config.PadRatio,
		sigRatio: config.SigRatio,
		shape:    slices.Clone(config.Shape),
		low:      make([]float64, dims),
		high:     make([]float64, dims),
		binWidth: make([]float64, dims),
		sigma:    make([]float64, dims),
		borders:  make([][]float64, dims),
		centers:  make([][]float64, dims),
	}
	for dim := 0; dim < dims; dim++ {
		var low, high = bound(config.Low, dim, 0), bound(config.High, dim, 1)
		var binWidth = (high - low) / (float64(config.NBins) - 2*config.SigRatio*config.PadRatio)
		var padWidth = config.SigRatio * config.PadRatio * binWidth
		var borders = floats.Span(make([]float64, config.NBins+1), low-padWidth, high+padWidth)
		for i := 1; i < len(borders); i++ {
			if !(borders[i] > borders[i-1]) {
				return nil, fmt.Errorf("%w: borders of dimension %v are not strictly increasing (bin width %v)",
					ErrInvalidConfig, dim, binWidth)
			}
		}
		var centers = make([]float64, config.NBins)
		for i := range centers {
			centers[i] = (borders[i] + borders[i+1]) / 2
		}
		g.low[dim] = low
		g.high[dim] = high
		g.binWidth[dim] = binWidth
		g.sigma[dim] = binWidth * config.SigRatio
		g.borders[dim] = borders
		g.centers[dim] = centers
	}
	return g, nil
}

func (g *Geometry) NBins() int            { return g.nBins }
func (g *Geometry) PadRatio() float64     { return g.padRatio }
func (g *Geometry) SigRatio() float64     { return g.sigRatio }
func (g *Geometry) Shape() []int          { return slices.Clone(g.shape) }
func (g *Geometry) Dims() int             { return len(g.borders) }
func (g *Geometry) Low(dim int) float64   { return g.low[dim] }
func (g *Geometry) High(dim int) float64  { return g.high[dim] }
func (g *Geometry) Sigma(dim int) float64 { return g.sigma[dim] }

func (g *Geometry) BinWidth(dim int) float64 { return g.binWidth[dim] }

// Borders returns the NBins+1 borders of dimension dim. The slice must not be modified.
func (g *Geometry) Borders(dim int) []float64 { return g.borders[dim] }

// Centers returns the NBins midpoints of dimension dim. The slice must not be modified.
func (g *Geometry) Centers(dim int) []float64 { return g.centers[dim] }

func (g *Geometry) checkDim(dim int) error {
	if dim < 0 || dim >= len(g.borders) {
		return fmt.Errorf("%w: dimension %v of %v", ErrShapeMismatch, dim, len(g.borders))
	}
	return nil
}

// binIndex returns the bin containing target. The last border belongs to the last bin.
func (g *Geometry) binIndex(target float64, dim int) (int, error) {
	var borders = g.borders[dim]
	if math.IsNaN(target) || target < borders[0] || target > borders[g.nBins] {
		return 0, fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfSupport, target, borders[0], borders[g.nBins])
	}
	return min(locate(borders, target, g.binWidth[dim]), g.nBins-1), nil
}

// locate returns i with points[i] <= target < points[i+1] for evenly spaced points.
// The floor estimate can be one off near a point, so it is checked against the points.
func locate(points []float64, target, step float64) int {
	var last = len(points) - 1
	var index = min(max(int(math.Floor((target-points[0])/step)), 0), last)
	if index > 0 && target < points[index] {
		index--
	} else if index < last && target >= points[index+1] {
		index++
	}
	return index
}

// FitRange returns per-dimension minimum and maximum of targets whose trailing axes equal shape.
func FitRange(targets tensor.Tensor, shape []int) (low, high []float64, err error) {
	if !tensor.HasSuffix(targets.Shape, shape) || targets.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: targets %v for shape %v", ErrShapeMismatch, targets.Shape, shape)
	}
	var dims = tensor.Size(shape)
	low = make([]float64, dims)
	high = make([]float64, dims)
	for i := range low {
		low[i] = math.Inf(1)
		high[i] = math.Inf(-1)
	}
	for i, y := range targets.Data {
		var dim = i % dims
		low[dim] = math.Min(low[dim], y)
		high[dim] = math.Max(high[dim], y)
	}
	return low, high, nil
}
