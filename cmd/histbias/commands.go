package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChizhovVadim/HistLoss/internal/bias"
	"github.com/ChizhovVadim/HistLoss/internal/quality"
	"github.com/ChizhovVadim/HistLoss/pkg/histogram"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type App struct {
	logger *zap.Logger
	args   *CommandArgs
	config *Config
	stdout io.Writer
}

func (a *App) geometryConfig() histogram.Config {
	var c = a.config.Geometry
	c.NBins = a.args.GetInt("n", c.NBins)
	c.PadRatio = a.args.GetFloat("pad", c.PadRatio)
	c.SigRatio = a.args.GetFloat("sig", c.SigRatio)
	c.Low = a.args.GetFloats("low", c.Low)
	c.High = a.args.GetFloats("high", c.High)
	return c
}

func (a *App) curveConfig(c CurveConfig) CurveConfig {
	c.Steps = a.args.GetInt("steps", c.Steps)
	c.FitPoints = a.args.GetInt("points", c.FitPoints)
	c.Output = a.args.GetString("out", c.Output)
	c.Surface = a.args.GetString("surface", c.Surface)
	return c
}

func (a *App) runBins() error {
	var config = a.geometryConfig()
	if err := a.args.Err(); err != nil {
		return err
	}
	g, err := histogram.NewGeometry(config)
	if err != nil {
		return err
	}
	for dim := 0; dim < g.Dims(); dim++ {
		fmt.Fprintf(a.stdout, "dim %v: range [%v, %v] bin width %v sigma %v\n",
			dim, g.Low(dim), g.High(dim), g.BinWidth(dim), g.Sigma(dim))
		fmt.Fprintf(a.stdout, "borders %v\n", g.Borders(dim))
		fmt.Fprintf(a.stdout, "centers %v\n", g.Centers(dim))
	}
	return nil
}

func (a *App) runDiscretization(ctx context.Context) error {
	var c = a.config.Discretization
	var padBins = a.args.GetInt("padbins", c.PadBins)
	var values = a.args.GetFloats("values", c.SigRatios)
	var curve = a.curveConfig(c.CurveConfig)
	if err := a.args.Err(); err != nil {
		return err
	}
	return a.runCurve(ctx, bias.Discretization(padBins, values, curve.Steps), curve, true)
}

func (a *App) runTruncation(ctx context.Context) error {
	var c = a.config.Truncation
	var sigRatio = a.args.GetFloat("sig", c.SigRatio)
	var values = a.args.GetFloats("values", c.PadRatios)
	var curve = a.curveConfig(c.CurveConfig)
	if err := a.args.Err(); err != nil {
		return err
	}
	return a.runCurve(ctx, bias.Truncation(sigRatio, values, curve.Steps), curve, true)
}

func (a *App) runSweep(ctx context.Context) error {
	var c = a.config.Sweep
	var base = a.geometryConfig()
	var values = a.args.GetFloats("values", c.Values)
	var curve = a.curveConfig(c.CurveConfig)
	parameter, err := bias.ParseParameter(a.args.GetString("param", c.Parameter))
	if err = multierr.Append(a.args.Err(), err); err != nil {
		return err
	}
	return a.runCurve(ctx, bias.RatioSweep(parameter, values, base, curve.Steps), curve, false)
}

func (a *App) runCurve(ctx context.Context, sweep bias.Sweep, c CurveConfig, fitByDefault bool) error {
	var fit = a.args.GetBool("fit", fitByDefault)
	if err := a.args.Err(); err != nil {
		return err
	}
	sweep.KeepBiases = c.Surface != ""
	var analyzer = bias.NewAnalyzer(a.logger, parallelism(a.config.Workers))
	result, err := analyzer.Run(ctx, sweep)
	if err != nil {
		return err
	}
	for i, x := range result.Params {
		fmt.Fprintf(a.stdout, "%v\t%.6g\n", x, result.MAE[i])
	}

	var file = &bias.CurveFile{Name: result.Name, Params: result.Params, Biases: result.MAE}
	if fit {
		curve, err := a.fit(result.Params, result.MAE, c)
		if err != nil {
			return err
		}
		file.Fit = &curve
	}
	if c.Surface != "" {
		if err := writeSurface(mapPath(c.Surface), result); err != nil {
			return err
		}
		a.logger.Info("surface saved", zap.String("path", c.Surface))
	}
	if c.Output != "" {
		if err := file.Save(mapPath(c.Output)); err != nil {
			return err
		}
		a.logger.Info("curve saved", zap.String("path", c.Output))
	}
	return nil
}

func (a *App) fit(params, biases []float64, c CurveConfig) (bias.Curve, error) {
	var n = len(params)
	if c.FitPoints > 0 && c.FitPoints < n {
		n = c.FitPoints
	}
	curve, err := bias.FitCurve(params[:n], biases[:n])
	if err != nil {
		return bias.Curve{}, err
	}
	a.logger.Info("curve fitted",
		zap.Int("points", n),
		zap.Float64("a", curve.A),
		zap.Float64("b", curve.B),
		zap.Float64("mae", curve.MAE),
		zap.Float64("rmse", curve.RMSE))
	fmt.Fprintf(a.stdout, "bias(x) = %.6g * exp(%.6g * x^2)\tMAE %.4g\tRMSE %.4g\n", curve.A, curve.B, curve.MAE, curve.RMSE)
	return curve, nil
}

func writeSurface(path string, result *bias.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = bias.WriteSurface(f, result)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// runFit fits a saved curve again, for example on fewer points.
// Defaults follow the sweep that produced the file.
func (a *App) runFit() error {
	var path = mapPath(a.args.GetString("in", a.config.Discretization.Output))
	file, err := bias.LoadCurve(path)
	if err != nil {
		return err
	}
	var base = a.config.Discretization.CurveConfig
	switch file.Name {
	case "truncation":
		base = a.config.Truncation.CurveConfig
	case bias.SigRatio.String(), bias.PadRatio.String():
		base = a.config.Sweep.CurveConfig
	}
	var c = a.curveConfig(base)
	if err := a.args.Err(); err != nil {
		return err
	}
	curve, err := a.fit(file.Params, file.Biases, c)
	if err != nil {
		return err
	}
	file.Fit = &curve
	var out = path
	if a.args.Has("out") {
		out = mapPath(c.Output)
	}
	if err := file.Save(out); err != nil {
		return err
	}
	a.logger.Info("curve saved", zap.String("path", out))
	return nil
}

func (a *App) runQuality() error {
	var c = a.config.Quality
	var config = a.geometryConfig()
	var path = mapPath(a.args.GetString("targets", c.Targets))
	var encoderName = a.args.GetString("encoder", c.Encoder)
	var eps = a.args.GetFloat("eps", c.Eps)
	var fitRange = a.args.GetBool("fitrange", c.FitRange)
	if err := a.args.Err(); err != nil {
		return err
	}
	if path == "" {
		return errors.New("quality: no targets file, use -targets")
	}
	targets, err := quality.LoadTargets(path, config.Shape)
	if err != nil {
		return err
	}
	if fitRange {
		config.Low, config.High, err = histogram.FitRange(targets, config.Shape)
		if err != nil {
			return err
		}
	}
	g, err := histogram.NewGeometry(config)
	if err != nil {
		return err
	}
	encoder, err := quality.NewEncoder(encoderName, g, eps)
	if err != nil {
		return err
	}
	report, err := quality.Run(a.logger, encoder, targets)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%v\tcount %v\tMAE %.6g\tRMSE %.6g\tmax %.6g\n",
		encoderName, report.Count, report.MAE, report.RMSE, report.MaxAbs)
	return nil
}
