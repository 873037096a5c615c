package main

import "github.com/urfave/cli/v3"

var (
	outDir    string
	seed      int64
	logLevel  string
	logFormat string
	noColor   bool
	debug     bool
)

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "output directory (default $" + envOutDir + " or ./out)",
			Destination: &outDir,
		},
	}
}

func seedFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:        "seed",
		Aliases:     []string{"s"},
		Usage:       "random seed for generated inputs",
		Destination: &seed,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "no-color",
			Usage:       "disable coloured pretty logs",
			Destination: &noColor,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
