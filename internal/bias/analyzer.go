// Package bias measures the systematic error of the histogram encode/decode round trip
// and fits an analytic approximation to it.
package bias

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

var ErrInvalidSweep = errors.New("bias: invalid sweep")

const defaultChunkSize = 4096

type Analyzer struct {
	logger    *zap.Logger
	workers   int
	chunkSize int
}

// NewAnalyzer creates an analyzer evaluating up to workers parameter values at once.
func NewAnalyzer(logger *zap.Logger, workers int) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		logger:    logger,
		workers:   max(workers, 1),
		chunkSize: defaultChunkSize,
	}
}

// Simulate returns the mean absolute difference between decode(encode(y)) and y over targets.
// The geometry of encoder must have a single output dimension. If biases is not nil it
// receives every signed difference and must have the length of targets.
func (a *Analyzer) Simulate(encoder histogram.IEncoder, targets, biases []float64) (float64, error) {
	var g = encoder.Geometry()
	if g.Dims() != 1 {
		return 0, fmt.Errorf("%w: simulation needs one output dimension, geometry shape %v",
			histogram.ErrShapeMismatch, g.Shape())
	}
	if len(targets) == 0 {
		return 0, fmt.Errorf("%w: empty target grid", ErrInvalidSweep)
	}
	if biases != nil && len(biases) != len(targets) {
		return 0, fmt.Errorf("%w: %v biases for %v targets", histogram.ErrShapeMismatch, len(biases), len(targets))
	}
	var decoder = histogram.NewDecoder(g)
	// Leading batch axis followed by the (all ones) geometry shape.
	var shape = append([]int{0}, g.Shape()...)
	var sum float64
	for start := 0; start < len(targets); start += a.chunkSize {
		var end = min(start+a.chunkSize, len(targets))
		shape[0] = end - start
		var chunk, err = tensor.FromData(targets[start:end], shape...)
		if err != nil {
			return 0, err
		}
		probs, err := histogram.Encode(encoder, chunk)
		if err != nil {
			return 0, err
		}
		estimates, err := decoder.Decode(probs)
		if err != nil {
			return 0, err
		}
		for i, estimate := range estimates.Data {
			var d = estimate - targets[start+i]
			sum += math.Abs(d)
			if biases != nil {
				biases[start+i] = d
			}
		}
	}
	return sum / float64(len(targets)), nil
}

// Sweep describes a family of geometries indexed by one parameter.
type Sweep struct {
	Name   string
	Values []float64
	// Geometry builds the bins for one parameter value. Encoding uses a truncated Gaussian.
	Geometry func(x float64) histogram.Config
	// Steps evenly spaced targets are simulated over [Low, High].
	Steps     int
	Low, High float64
	// KeepBiases retains the signed difference of every target for every parameter value.
	KeepBiases bool
}

func (s *Sweep) Validate() error {
	var err error
	if len(s.Values) == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: no parameter values", ErrInvalidSweep))
	}
	for _, x := range s.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: parameter value %v", ErrInvalidSweep, x))
			break
		}
	}
	if s.Geometry == nil {
		err = multierr.Append(err, fmt.Errorf("%w: no geometry builder", ErrInvalidSweep))
	}
	if s.Steps < 2 {
		err = multierr.Append(err, fmt.Errorf("%w: steps must be at least 2, got %v", ErrInvalidSweep, s.Steps))
	}
	if !(s.Low < s.High) || math.IsInf(s.Low, 0) || math.IsInf(s.High, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: target range [%v, %v]", ErrInvalidSweep, s.Low, s.High))
	}
	return err
}

// Result holds one mean absolute bias per parameter value.
type Result struct {
	Name    string
	Params  []float64
	MAE     []float64
	Targets []float64
	// Biases[i][j] is decode(encode(Targets[j])) - Targets[j] for Params[i], if kept.
	Biases [][]float64
}

func (a *Analyzer) Run(ctx context.Context, sweep Sweep) (*Result, error) {
	if err := sweep.Validate(); err != nil {
		return nil, err
	}
	var result = &Result{
		Name:    sweep.Name,
		Params:  append([]float64(nil), sweep.Values...),
		MAE:     make([]float64, len(sweep.Values)),
		Targets: floats.Span(make([]float64, sweep.Steps), sweep.Low, sweep.High),
	}
	if sweep.KeepBiases {
		result.Biases = make([][]float64, len(sweep.Values))
	}
	a.logger.Info("sweep started",
		zap.String("name", sweep.Name),
		zap.Int("values", len(sweep.Values)),
		zap.Int("steps", sweep.Steps),
		zap.Int("workers", a.workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, x := range sweep.Values {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var geometry, err = histogram.NewGeometry(sweep.Geometry(x))
			if err != nil {
				return fmt.Errorf("%v %v: %w", sweep.Name, x, err)
			}
			var biases []float64
			if sweep.KeepBiases {
				biases = make([]float64, sweep.Steps)
			}
			mae, err := a.Simulate(histogram.NewTruncatedGaussian(geometry), result.Targets, biases)
			if err != nil {
				return fmt.Errorf("%v %v: %w", sweep.Name, x, err)
			}
			result.MAE[i] = mae
			if biases != nil {
				result.Biases[i] = biases
			}
			a.logger.Debug("sweep value",
				zap.String("name", sweep.Name),
				zap.Float64("param", x),
				zap.Int("n_bins", geometry.NBins()),
				zap.Float64("mae", mae))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best = floats.MinIdx(result.MAE)
	a.logger.Info("sweep finished",
		zap.String("name", sweep.Name),
		zap.Float64("min_mae", result.MAE[best]),
		zap.Float64("argmin", result.Params[best]))
	return result, nil
}
