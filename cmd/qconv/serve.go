package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/api"
	"github.com/samcharles93/qconv/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxTrials   int64
		seed        uint64
		workers     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the quantization REST API and Prometheus metrics",
		Flags: []cli.Flag{
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
			&cli.Int64Flag{
				Name:        "max-trials",
				Usage:       "largest trial count one /v1/check request may ask for",
				Value:       int64(api.DefaultConfig().MaxTrials),
				Destination: &maxTrials,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "seed for check requests that omit one",
				Value:       1,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "module-path GEMM workers (0 = GOMAXPROCS)",
				Destination: &workers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			applyServeConfig(cmd, cfg, &addr, &maxTrials)

			apiCfg := api.DefaultConfig()
			if err := cfg.Generator.apply(&apiCfg.Generator); err != nil {
				return err
			}
			apiCfg.MaxTrials = int(maxTrials)
			apiCfg.DefaultSeed = seed
			apiCfg.Workers = int(workers)

			server := api.NewServer(apiCfg, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			log.Info("starting server", "address", addr)
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
