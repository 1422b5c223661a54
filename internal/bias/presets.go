package bias

import (
	"fmt"
	"math"

	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"gonum.org/v1/gonum/floats"
)

// DefaultSigRatios are exp(t) for 101 evenly spaced t in [-4, 2].
func DefaultSigRatios() []float64 {
	var values = floats.Span(make([]float64, 101), -4, 2)
	for i, t := range values {
		values[i] = math.Exp(t)
	}
	return values
}

// DefaultPadRatios are 1, 1.5, ..., 20.5.
func DefaultPadRatios() []float64 {
	return floats.Span(make([]float64, 40), 1, 20.5)
}

// Discretization sweeps the sigma ratio with bins of width 1 over [0, 1] and padBins
// padding bins on each side. The padding ratio follows sigma so that the bins stay fixed.
func Discretization(padBins int, sigRatios []float64, steps int) Sweep {
	return Sweep{
		Name:   "discretization",
		Values: sigRatios,
		Geometry: func(x float64) histogram.Config {
			return histogram.Config{
				NBins:    1 + 2*padBins,
				SigRatio: x,
				PadRatio: float64(padBins) / x,
			}
		},
		Steps: steps,
		Low:   0,
		High:  1,
	}
}

// TruncationBins is the smallest bin count giving a bin width of at most 1 over [0, 1]
// padded by padRatio*sigRatio on each side.
func TruncationBins(sigRatio, padRatio float64) int {
	return 1 + int(math.Ceil(2*sigRatio*padRatio-1e-9))
}

// Truncation sweeps the padding ratio at a fixed sigma ratio.
func Truncation(sigRatio float64, padRatios []float64, steps int) Sweep {
	return Sweep{
		Name:   "truncation",
		Values: padRatios,
		Geometry: func(x float64) histogram.Config {
			return histogram.Config{
				NBins:    TruncationBins(sigRatio, x),
				SigRatio: sigRatio,
				PadRatio: x,
			}
		},
		Steps: steps,
		Low:   0,
		High:  1,
	}
}

type Parameter int

const (
	SigRatio Parameter = iota
	PadRatio
)

func (p Parameter) String() string {
	switch p {
	case SigRatio:
		return "sig_ratio"
	case PadRatio:
		return "pad_ratio"
	}
	return fmt.Sprintf("Parameter(%d)", int(p))
}

func ParseParameter(s string) (Parameter, error) {
	switch s {
	case "sig", "sig_ratio":
		return SigRatio, nil
	case "pad", "pad_ratio":
		return PadRatio, nil
	}
	return 0, fmt.Errorf("%w: unknown parameter %q", ErrInvalidSweep, s)
}

// RatioSweep varies one ratio of base and keeps its bin count. Targets span the first
// dimension of base.
func RatioSweep(parameter Parameter, values []float64, base histogram.Config, steps int) Sweep {
	var low, high = 0.0, 1.0
	if len(base.Low) > 0 {
		low = base.Low[0]
	}
	if len(base.High) > 0 {
		high = base.High[0]
	}
	return Sweep{
		Name:   parameter.String(),
		Values: values,
		Geometry: func(x float64) histogram.Config {
			var config = histogram.Config{
				NBins:    base.NBins,
				SigRatio: base.SigRatio,
				PadRatio: base.PadRatio,
				Low:      []float64{low},
				High:     []float64{high},
			}
			if parameter == SigRatio {
				config.SigRatio = x
			} else {
				config.PadRatio = x
			}
			return config
		},
		Steps: steps,
		Low:   low,
		High:  high,
	}
}
