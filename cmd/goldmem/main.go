package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/goldmem/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "goldmem",
		Usage: "Fixed-point LUT and golden-vector generator",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			conf, err := loadConfig(configPath())
			if err != nil {
				return ctx, err
			}
			cfg = conf
			applyLoggingConfig(cmd, cfg)
			log, err := newLogger()
			if err != nil {
				return ctx, err
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			lutCmd(),
			vectorsCmd(),
			runCmd(),
			verifyCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (logger.Logger, error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logger.Open(os.Stderr, logger.Options{
		Format:  logFormat,
		Level:   level,
		NoColor: noColor,
	})
}
