package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/logger"
	"github.com/samcharles93/goldmem/internal/plan"
	"github.com/samcharles93/goldmem/internal/sampler"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

func lutCmd() *cli.Command {
	var (
		name     string
		function string
		format   string
		xMin     float64
		xMax     float64
		count    int64
	)

	return &cli.Command{
		Name:  "lut",
		Usage: "Generate a quantised lookup table as a hex memory image",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:        "function",
				Aliases:     []string{"f"},
				Usage:       "function to tabulate (softplus, sigmoid)",
				Required:    true,
				Destination: &function,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "artifact name (default: the function name)",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "fixed-point format, e.g. Q4.11 or UQ0.16 (default per function)",
				Destination: &format,
			},
			&cli.FloatFlag{Name: "x-min", Usage: "domain lower bound", Destination: &xMin},
			&cli.FloatFlag{Name: "x-max", Usage: "domain upper bound", Destination: &xMax},
			&cli.Int64Flag{Name: "count", Aliases: []string{"n"}, Usage: "number of entries", Destination: &count},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOutputConfig(cmd, cfg)

			fn, err := sampler.ParseFunction(function)
			if err != nil {
				return err
			}
			f, d := fn.Defaults()
			if format != "" {
				if f, err = fixed.ParseFormat(format); err != nil {
					return err
				}
			}
			if cmd.IsSet("x-min") {
				d.XMin = xMin
			}
			if cmd.IsSet("x-max") {
				d.XMax = xMax
			}
			if cmd.IsSet("count") {
				d.Count = int(count)
			}
			if name == "" {
				name = fn.String()
			}

			p := &plan.Plan{LUTs: []plan.LUTSpec{{Name: name, Function: fn, Format: &f, Domain: &d}}}
			return runPlan(ctx, p, plan.Options{Concurrency: 1, Manifest: itemManifest(name)})
		},
	}
}

func vectorsCmd() *cli.Command {
	var (
		name    string
		inputs  int64
		hidden  int64
		shift   uint64
		bias    string
		biasMin int64
		biasMax int64
		output  string
		layout  string
	)

	return &cli.Command{
		Name:  "vectors",
		Usage: "Generate golden accumulator vectors (v, W, b, acc)",
		Flags: append(outputFlags(),
			seedFlag(),
			&cli.StringFlag{Name: "name", Value: "golden", Usage: "artifact name prefix", Destination: &name},
			&cli.Int64Flag{Name: "inputs", Aliases: []string{"i"}, Value: 256, Usage: "visible vector length", Destination: &inputs},
			&cli.Int64Flag{Name: "hidden", Value: 1, Usage: "output units (1 = single column)", Destination: &hidden},
			&cli.Uint64Flag{Name: "shift", Usage: "arithmetic right shift before narrowing (default: none)", Destination: &shift},
			&cli.StringFlag{Name: "bias", Value: string(accum.BiasZero), Usage: "bias mode (zero, random)", Destination: &bias},
			&cli.Int64Flag{Name: "bias-min", Value: accum.DefaultConfig(0).BiasMin, Usage: "random bias lower bound", Destination: &biasMin},
			&cli.Int64Flag{Name: "bias-max", Value: accum.DefaultConfig(0).BiasMax, Usage: "random bias upper bound", Destination: &biasMax},
			&cli.StringFlag{Name: "output", Value: "i32", Usage: "output format, e.g. i32 or Q7.8", Destination: &output},
			&cli.StringFlag{Name: "layout", Value: string(plan.LayoutHex), Usage: "artifact layout (hex, bundle, both)", Destination: &layout},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOutputConfig(cmd, cfg)

			out, err := fixed.ParseFormat(output)
			if err != nil {
				return err
			}
			item := plan.VectorSpec{
				Name:    name,
				Seed:    &seed,
				Inputs:  int(inputs),
				Hidden:  int(hidden),
				Bias:    accum.BiasMode(bias),
				BiasMin: &biasMin,
				BiasMax: &biasMax,
				Output:  &out,
				Layout:  plan.Layout(layout),
			}
			if cmd.IsSet("shift") {
				s := uint(shift)
				item.Shift = &s
			}
			p := &plan.Plan{Seed: seed, Vectors: []plan.VectorSpec{item}}
			return runPlan(ctx, p, plan.Options{Concurrency: 1, Manifest: itemManifest(name)})
		},
	}
}

func runCmd() *cli.Command {
	var (
		planPath    string
		concurrency int64
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Execute a YAML generation plan",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:        "plan",
				Aliases:     []string{"p"},
				Usage:       "path to plan YAML",
				Required:    true,
				Destination: &planPath,
			},
			&cli.Int64Flag{
				Name:        "concurrency",
				Aliases:     []string{"j"},
				Usage:       "items generated in parallel",
				Value:       int64(runtime.GOMAXPROCS(0)),
				Destination: &concurrency,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOutputConfig(cmd, cfg)
			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}
			return runPlan(ctx, p, plan.Options{Concurrency: int(concurrency)})
		},
	}
}

// itemManifest names the manifest of a single-item command so that
// successive commands sharing an output directory keep their own manifests.
func itemManifest(name string) string {
	return name + ".manifest.json"
}

// runPlan executes p into the resolved output directory and prints the
// artifact list.
func runPlan(ctx context.Context, p *plan.Plan, opts plan.Options) error {
	log := logger.FromContext(ctx)
	dir, err := resolveOutDir(outDir)
	if err != nil {
		return err
	}
	m, err := plan.Run(ctx, p, dir, opts)
	if err != nil {
		return err
	}
	sats := 0
	for _, a := range m.Artifacts {
		if a.Kind != "bundle" {
			sats += a.Saturations
		}
		fmt.Printf("%s  %s\n", a.SHA256[:12], a.File)
	}
	log.Info("artifacts written", "dir", dir, "count", len(m.Artifacts), "saturations", sats, "run_id", m.RunID)
	return nil
}
