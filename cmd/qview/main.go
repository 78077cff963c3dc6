package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qview/internal/launch"
	"github.com/samcharles93/qview/internal/logger"
	"github.com/samcharles93/qview/internal/quantized"
	"github.com/samcharles93/qview/internal/version"
)

// cfg is loaded once in the root Before hook.
var cfg Config

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "qview",
		Usage:   "Per-tensor quantized views over safetensors files",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			quantizeCmd(),
			dequantizeCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	loaded, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	cfg = loaded
	applyLoggingConfig(cmd, cfg)
	if debug {
		logLevel = "debug"
	}
	log, err := logger.Setup(os.Stderr, logFormat, logLevel)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

// newEngine builds the kernel engine from the launcher flags. The returned
// func releases the launcher.
func newEngine(ctx context.Context, cmd *cli.Command) (*quantized.Engine, func(), error) {
	applyLaunchConfig(cmd, cfg)
	l, err := launch.New(backend, launch.Options{Workers: int(workers), Grain: int(grain)})
	if err != nil {
		return nil, nil, err
	}
	log := logger.FromContext(ctx)
	log.Debug("launcher ready", "backend", l.Name(), "workers", workers, "grain", grain)
	return quantized.NewEngine(l, log), func() { launch.Close(l) }, nil
}
