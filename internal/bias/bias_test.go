package bias

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	return NewAnalyzer(zaptest.NewLogger(t), 4)
}

func TestPresets(t *testing.T) {
	var sigs = DefaultSigRatios()
	require.Len(t, sigs, 101)
	assert.InDelta(t, math.Exp(-4), sigs[0], 1e-15)
	assert.InDelta(t, math.Exp(2), sigs[100], 1e-12)

	var pads = DefaultPadRatios()
	require.Len(t, pads, 40)
	assert.Equal(t, 1.0, pads[0])
	assert.InDelta(t, 1.5, pads[1], 1e-12)
	assert.Equal(t, 20.5, pads[39])

	var disc = Discretization(100, sigs, 11)
	for _, x := range []float64{sigs[0], 1, sigs[100]} {
		g, err := histogram.NewGeometry(disc.Geometry(x))
		require.NoError(t, err)
		assert.Equal(t, 201, g.NBins())
		assert.InDelta(t, 1, g.BinWidth(0), 1e-9)
		assert.InDelta(t, -100, g.Borders(0)[0], 1e-6)
		assert.InDelta(t, x, g.Sigma(0), 1e-9)
	}

	assert.Equal(t, 7, TruncationBins(2, 1.5))
	assert.Equal(t, 5, TruncationBins(2, 1))
	var trunc = Truncation(2, pads, 11)
	for _, p := range pads {
		g, err := histogram.NewGeometry(trunc.Geometry(p))
		require.NoError(t, err)
		assert.InDelta(t, 1, g.BinWidth(0), 1e-9, "pad %v", p)
		assert.InDelta(t, -2*p, g.Borders(0)[0], 1e-9)
	}

	parameter, err := ParseParameter("pad")
	require.NoError(t, err)
	assert.Equal(t, PadRatio, parameter)
	_, err = ParseParameter("width")
	assert.ErrorIs(t, err, ErrInvalidSweep)
}

func TestSimulate(t *testing.T) {
	var a = newTestAnalyzer(t)
	a.chunkSize = 7

	g, err := histogram.NewGeometry(histogram.Config{NBins: 10, PadRatio: 2, SigRatio: 1})
	require.NoError(t, err)
	var centers = g.Centers(0)
	var targets = floats.Span(make([]float64, 101), centers[0], centers[9])
	var biases = make([]float64, len(targets))
	mae, err := a.Simulate(histogram.NewLinearProjection(g), targets, biases)
	require.NoError(t, err)
	assert.Less(t, mae, 1e-12)
	for _, d := range biases {
		assert.InDelta(t, 0, d, 1e-12)
	}

	// Chunking does not change the result.
	var gaussian = histogram.NewTruncatedGaussian(g)
	first, err := a.Simulate(gaussian, targets, nil)
	require.NoError(t, err)
	a.chunkSize = defaultChunkSize
	second, err := a.Simulate(gaussian, targets, nil)
	require.NoError(t, err)
	assert.InDelta(t, first, second, 1e-15)

	_, err = a.Simulate(gaussian, targets, make([]float64, 3))
	assert.ErrorIs(t, err, histogram.ErrShapeMismatch)
	_, err = a.Simulate(gaussian, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSweep)

	multi, err := histogram.NewGeometry(histogram.Config{NBins: 10, PadRatio: 2, SigRatio: 1, Shape: []int{2}})
	require.NoError(t, err)
	_, err = a.Simulate(histogram.NewTruncatedGaussian(multi), targets, nil)
	assert.ErrorIs(t, err, histogram.ErrShapeMismatch)

	ones, err := histogram.NewGeometry(histogram.Config{NBins: 10, PadRatio: 2, SigRatio: 1, Shape: []int{1, 1}})
	require.NoError(t, err)
	third, err := a.Simulate(histogram.NewTruncatedGaussian(ones), targets, nil)
	require.NoError(t, err)
	assert.InDelta(t, first, third, 1e-15)
}

func TestBiasDecreasesWithBins(t *testing.T) {
	var sweep = Sweep{
		Name:   "n_bins",
		Values: []float64{10, 20, 40, 80},
		Geometry: func(x float64) histogram.Config {
			return histogram.Config{NBins: int(x), SigRatio: 1, PadRatio: 2}
		},
		Steps: 2001,
		Low:   0,
		High:  1,
	}
	result, err := newTestAnalyzer(t).Run(context.Background(), sweep)
	require.NoError(t, err)
	require.Len(t, result.MAE, 4)
	for i := 1; i < len(result.MAE); i++ {
		assert.Less(t, result.MAE[i], result.MAE[i-1], "n_bins %v", result.Params[i])
	}
}

func TestBiasOverSigmaRatio(t *testing.T) {
	var sweep = RatioSweep(SigRatio, []float64{0.05, 1, 8}, histogram.Config{NBins: 50, PadRatio: 2}, 2001)
	result, err := newTestAnalyzer(t).Run(context.Background(), sweep)
	require.NoError(t, err)
	assert.Equal(t, "sig_ratio", result.Name)
	assert.Greater(t, result.MAE[0], result.MAE[1])
	assert.Greater(t, result.MAE[2], result.MAE[1])
	assert.Less(t, result.MAE[1], 1e-3)
}

func TestDiscretizationSmallSigma(t *testing.T) {
	var sigma = math.Exp(-4)
	result, err := newTestAnalyzer(t).Run(context.Background(), Discretization(5, []float64{sigma}, 1001))
	require.NoError(t, err)
	// Nearest-bin quantization of a uniform target gives w/4, smoothed within a few sigma of
	// each border.
	assert.InDelta(t, 0.25-2*sigma/math.Sqrt(2*math.Pi), result.MAE[0], 2e-3)
}

func TestTruncationDecreasesWithPadding(t *testing.T) {
	result, err := newTestAnalyzer(t).Run(context.Background(), Truncation(2, []float64{1, 2, 3, 4}, 1001))
	require.NoError(t, err)
	for i := 1; i < len(result.MAE); i++ {
		assert.Less(t, result.MAE[i], result.MAE[i-1])
	}
	assert.Nil(t, result.Biases)
}

func TestKeepBiases(t *testing.T) {
	var sweep = Truncation(2, []float64{1, 2}, 11)
	sweep.KeepBiases = true
	result, err := newTestAnalyzer(t).Run(context.Background(), sweep)
	require.NoError(t, err)
	require.Len(t, result.Biases, 2)
	require.Len(t, result.Targets, 11)
	for i, row := range result.Biases {
		require.Len(t, row, 11)
		var mae float64
		for _, d := range row {
			mae += math.Abs(d)
		}
		assert.InDelta(t, result.MAE[i], mae/11, 1e-15)
	}
	// Symmetric support: bias is odd around the middle of the range.
	assert.InDelta(t, -result.Biases[0][0], result.Biases[0][10], 1e-9)

	var buf bytes.Buffer
	require.NoError(t, WriteSurface(&buf, result))
	var lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "truncation\t0\t0.1\t"))
	assert.True(t, strings.HasPrefix(lines[2], "2\t"))
	assert.Len(t, strings.Split(lines[1], "\t"), 12)

	result.Biases = nil
	assert.ErrorIs(t, WriteSurface(&buf, result), ErrInvalidData)
}

func TestSweepValidation(t *testing.T) {
	var a = newTestAnalyzer(t)
	_, err := a.Run(context.Background(), Sweep{Low: 1, High: 0})
	require.ErrorIs(t, err, ErrInvalidSweep)
	assert.Contains(t, err.Error(), "no parameter values")
	assert.Contains(t, err.Error(), "no geometry builder")
	assert.Contains(t, err.Error(), "steps")
	assert.Contains(t, err.Error(), "target range")

	_, err = a.Run(context.Background(), Truncation(2, []float64{1, math.NaN()}, 11))
	assert.ErrorIs(t, err, ErrInvalidSweep)

	// 2*sig_ratio*pad_ratio reaches n_bins.
	_, err = a.Run(context.Background(), RatioSweep(PadRatio, []float64{1, 30}, histogram.Config{NBins: 50, SigRatio: 1}, 11))
	assert.ErrorIs(t, err, histogram.ErrInvalidConfig)

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = a.Run(ctx, Truncation(2, []float64{1, 2}, 11))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitCurveRecoversParameters(t *testing.T) {
	var x = floats.Span(make([]float64, 25), 0.02, 0.5)
	var y = make([]float64, len(x))
	for i := range x {
		y[i] = 0.2 * math.Exp(-20*x[i]*x[i])
	}
	curve, err := FitCurve(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, curve.A, 1e-9)
	assert.InDelta(t, -20, curve.B, 1e-8)
	assert.Less(t, curve.MAE, 1e-9)
	assert.Less(t, curve.RMSE, 1e-9)
	assert.InDelta(t, 0.2*math.Exp(-20*0.09), curve.Eval(0.3), 1e-9)
}

// assertLogLinear compares the fit with the regression of ln(y) on x^2.
func assertLogLinear(t *testing.T, x, y []float64, curve Curve) {
	t.Helper()
	var u = make([]float64, len(x))
	var ly = make([]float64, len(x))
	for i := range x {
		u[i] = x[i] * x[i]
		ly[i] = math.Log(y[i])
	}
	var alpha, beta = stat.LinearRegression(u, ly, nil, false)
	assert.InDelta(t, alpha, math.Log(curve.A), 1e-6)
	assert.InDelta(t, beta, curve.B, 1e-6)
}

func TestFitCurveMatchesLogLinearRegression(t *testing.T) {
	var x = DefaultPadRatios()[:16]
	var y = make([]float64, len(x))
	for i := range x {
		y[i] = 0.25 * math.Exp(-0.5*x[i]*x[i]+0.1*math.Sin(7*x[i]))
	}
	curve, err := FitCurve(x, y)
	require.NoError(t, err)
	assertLogLinear(t, x, y, curve)
	assert.Greater(t, curve.MAE, 0.0)
	assert.GreaterOrEqual(t, curve.RMSE, curve.MAE)
}

func TestFitSimulatedCurves(t *testing.T) {
	var tests = []struct {
		sweep  func(steps int) Sweep
		points int
		steps  []int
	}{
		{func(steps int) Sweep { return Truncation(2, DefaultPadRatios(), steps) }, 16, []int{1001, 2001, 4001}},
		{func(steps int) Sweep { return Discretization(100, DefaultSigRatios()[:72], steps) }, 72, []int{1001, 2001}},
	}
	var a = newTestAnalyzer(t)
	for _, test := range tests {
		for _, steps := range test.steps {
			var sweep = test.sweep(steps)
			result, err := a.Run(context.Background(), sweep)
			require.NoError(t, err)
			var x, y = result.Params[:test.points], result.MAE[:test.points]
			curve, err := FitCurve(x, y)
			require.NoError(t, err, "%v steps %v", sweep.Name, steps)
			assertLogLinear(t, x, y, curve)
			assert.Less(t, curve.B, 0.0, "%v steps %v", sweep.Name, steps)
		}
	}
}

func TestFitCurveFailures(t *testing.T) {
	var x = floats.Span(make([]float64, 20), 0.05, 1)
	var y = make([]float64, len(x))
	for i := range x {
		y[i] = 0.3 * math.Exp(-4*x[i]*x[i])
	}
	_, err := FitCurve([]float64{0.5, -0.5, 0.5}, []float64{0.1, 0.2, 0.3})
	assert.ErrorIs(t, err, ErrFitNotConverged)

	_, err = FitCurve(x, y[:5])
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = FitCurve(x[:1], y[:1])
	assert.ErrorIs(t, err, ErrInvalidData)
	y[3] = 0
	_, err = FitCurve(x, y)
	assert.ErrorIs(t, err, ErrInvalidData)
	y[3] = 1
	x[5] = math.NaN()
	_, err = FitCurve(x, y)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestCurveFile(t *testing.T) {
	var dir = t.TempDir()
	var path = filepath.Join(dir, "truncation.bin")
	var file = &CurveFile{
		Name:   "truncation",
		Params: []float64{1, 1.5, 2},
		Biases: []float64{0.1, 0.01, 1e-5},
		Fit:    &Curve{A: 0.25, B: -0.5, MAE: 0.1, RMSE: 0.2},
	}
	require.NoError(t, file.Save(path))
	loaded, err := LoadCurve(path)
	require.NoError(t, err)
	assert.Equal(t, file, loaded)

	file.Fit = nil
	file.Name = ""
	require.NoError(t, file.Save(path))
	loaded, err = LoadCurve(path)
	require.NoError(t, err)
	assert.Equal(t, "", loaded.Name)
	assert.Nil(t, loaded.Fit)
	assert.Equal(t, file.Biases, loaded.Biases)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = readCurve(bytes.NewReader(data[:len(data)-3]))
	assert.ErrorIs(t, err, ErrBadCurveFile)

	var corrupted = bytes.Clone(data)
	corrupted[0] = 'X'
	_, err = readCurve(bytes.NewReader(corrupted))
	assert.ErrorIs(t, err, ErrBadCurveFile)

	corrupted = bytes.Clone(data)
	corrupted[2] = 9
	_, err = readCurve(bytes.NewReader(corrupted))
	assert.ErrorIs(t, err, ErrBadCurveFile)

	assert.ErrorIs(t, (&CurveFile{Params: []float64{1}}).Save(path), ErrInvalidData)

	_, err = LoadCurve(filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
