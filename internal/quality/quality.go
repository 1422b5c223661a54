// Package quality reports how well an encoder and the expectation decoder reproduce
// a set of targets.
package quality

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ChizhovVadim/HistLoss/internal/ml"
	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"github.com/ChizhovVadim/HistLoss/pkg/tensor"
	"go.uber.org/zap"
)

var ErrBadTargets = errors.New("quality: bad targets file")

type Report struct {
	Count  int
	MAE    float64
	RMSE   float64
	MaxAbs float64
}

var (
	absCost ml.IModelCost = &ml.AbsCost{}
	mseCost ml.IModelCost = &ml.MSECost{}
)

// Evaluate decodes the encoding of every target and compares it with the target.
func Evaluate(encoder histogram.IEncoder, targets tensor.Tensor) (Report, error) {
	probs, err := histogram.Encode(encoder, targets)
	if err != nil {
		return Report{}, err
	}
	estimates, err := histogram.NewDecoder(encoder.Geometry()).Decode(probs)
	if err != nil {
		return Report{}, err
	}
	var report = Report{Count: len(targets.Data)}
	if report.Count == 0 {
		return report, nil
	}
	var sumAbs, sumSq float64
	for i, estimate := range estimates.Data {
		var abs = absCost.Cost(estimate, targets.Data[i])
		sumAbs += abs
		sumSq += mseCost.Cost(estimate, targets.Data[i])
		report.MaxAbs = math.Max(report.MaxAbs, abs)
	}
	report.MAE = sumAbs / float64(report.Count)
	report.RMSE = math.Sqrt(sumSq / float64(report.Count))
	return report, nil
}

// LoadTargets reads one sample per line as whitespace separated values filling shape.
// Empty lines and lines starting with # are skipped.
func LoadTargets(path string, shape []int) (tensor.Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return tensor.Tensor{}, err
	}
	defer file.Close()

	var size = tensor.Size(shape)
	var data []float64
	var lineNumber int
	var scanner = bufio.NewScanner(file)
	for scanner.Scan() {
		lineNumber++
		var s = strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		var fields = strings.Fields(s)
		if len(fields) != size {
			return tensor.Tensor{}, fmt.Errorf("%w: line %v has %v values, want %v", ErrBadTargets, lineNumber, len(fields), size)
		}
		for _, field := range fields {
			var y, err = strconv.ParseFloat(field, 64)
			if err != nil {
				return tensor.Tensor{}, fmt.Errorf("%w: line %v: %w", ErrBadTargets, lineNumber, err)
			}
			data = append(data, y)
		}
	}
	if err := scanner.Err(); err != nil {
		return tensor.Tensor{}, err
	}
	return tensor.FromData(data, append([]int{len(data) / size}, shape...)...)
}

// Run evaluates targets and logs the report.
func Run(logger *zap.Logger, encoder histogram.IEncoder, targets tensor.Tensor) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report, err = Evaluate(encoder, targets)
	if err != nil {
		return Report{}, err
	}
	var g = encoder.Geometry()
	logger.Info("round trip quality",
		zap.Int("count", report.Count),
		zap.Int("n_bins", g.NBins()),
		zap.Float64("sig_ratio", g.SigRatio()),
		zap.Float64("pad_ratio", g.PadRatio()),
		zap.Float64("mae", report.MAE),
		zap.Float64("rmse", report.RMSE),
		zap.Float64("max_abs", report.MaxAbs))
	return report, nil
}

// NewEncoder returns the encoder called name: gaussian, onehot, uniform or projection.
// eps is used by the uniform mixture only.
func NewEncoder(name string, g *histogram.Geometry, eps float64) (histogram.IEncoder, error) {
	switch name {
	case "gaussian":
		return histogram.NewTruncatedGaussian(g), nil
	case "onehot":
		return histogram.NewOneHot(g), nil
	case "uniform":
		var e, err = histogram.NewUniformMixture(g, eps)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "projection":
		return histogram.NewLinearProjection(g), nil
	}
	return nil, fmt.Errorf("%w: unknown encoder %q", histogram.ErrInvalidConfig, name)
}
