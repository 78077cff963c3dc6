package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qview/internal/api"
	"github.com/samcharles93/qview/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr          string
		readTimeout   time.Duration
		rateLimit     float64
		storeCapacity int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Float64Flag{
			Name:        "rate-limit",
			Usage:       "requests per second across all clients (0 = unlimited)",
			Destination: &rateLimit,
		},
		&cli.Int64Flag{
			Name:        "store-capacity",
			Usage:       "quantized results kept for lookup by id",
			Value:       api.DefaultStoreCapacity,
			Destination: &storeCapacity,
		},
	}
	flags = append(flags, launchFlags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the quantization REST API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, cfg, &addr, &rateLimit, &storeCapacity)

			engine, release, err := newEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer release()

			server := api.NewServer(engine, api.NewTensorStore(int(storeCapacity)), log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RateLimit(rateLimit, 0))
			server.Register(e)
			log.Info("starting server",
				"address", addr,
				"launcher", engine.Launcher().Name(),
				"rate_limit", rateLimit,
			)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
