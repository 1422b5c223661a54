package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"

	"go.uber.org/zap"
)

const name = "histbias"

var (
	versionName = "dev"
	buildDate   = "(null)"
	gitRevision = "(null)"
)

func main() {
	var args = NewCommandArgs(os.Args)
	var logger, err = newLogger(args.GetBool("verbose", false))
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info(name,
		zap.String("VersionName", versionName),
		zap.String("BuildDate", buildDate),
		zap.String("GitRevision", gitRevision),
		zap.String("RuntimeVersion", runtime.Version()),
		zap.String("GOARCH", runtime.GOARCH),
		zap.String("GOOS", runtime.GOOS),
		zap.Int("NumCPU", runtime.NumCPU()),
	)

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, logger, args)
	stop()
	if err != nil {
		logger.Error("command failed", zap.String("command", args.CommandName()), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	var config = zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return config.Build()
}

func run(ctx context.Context, logger *zap.Logger, args *CommandArgs) error {
	config, err := loadConfig(mapPath(args.GetString("config", "")))
	if err != nil {
		return err
	}
	var app = &App{
		logger: logger,
		args:   args,
		config: config,
		stdout: os.Stdout,
	}
	var commands = NewCommandHandler()
	commands.Add("bins", app.runBins)
	commands.Add("discretization", func() error { return app.runDiscretization(ctx) })
	commands.Add("truncation", func() error { return app.runTruncation(ctx) })
	commands.Add("sweep", func() error { return app.runSweep(ctx) })
	commands.Add("fit", app.runFit)
	commands.Add("quality", app.runQuality)
	return commands.Execute(args.CommandName())
}
