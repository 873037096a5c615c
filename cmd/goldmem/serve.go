package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/goldmem/internal/api"
	"github.com/samcharles93/goldmem/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxEntries  int64
		maxWeights  int64
	)
	limits := api.DefaultLimits()

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve LUT and golden-vector generation over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{Name: "max-entries", Usage: "largest LUT per request", Value: int64(limits.MaxEntries), Destination: &maxEntries},
			&cli.Int64Flag{Name: "max-weights", Usage: "largest inputs*hidden per vectors request", Value: int64(limits.MaxWeights), Destination: &maxWeights},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, cfg, &addr)
			log := logger.FromContext(ctx)

			server := api.NewServer(log, api.Limits{
				MaxEntries: int(maxEntries),
				MaxWeights: int(maxWeights),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
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
