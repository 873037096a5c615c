package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/memimage"
)

func inspectCmd() *cli.Command {
	var (
		bundlePath string
		values     int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the arrays and metadata of a golden-vector bundle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "bundle",
				Aliases:     []string{"b"},
				Usage:       "path to .safetensors bundle",
				Required:    true,
				Destination: &bundlePath,
			},
			&cli.Int64Flag{
				Name:        "values",
				Usage:       "leading values to print per array",
				Value:       8,
				Destination: &values,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			arrays, meta, err := memimage.ReadBundle(bundlePath)
			if err != nil {
				return err
			}
			writeBundleSummary(cmd.Root().Writer, bundlePath, arrays, meta, int(values))
			return nil
		},
	}
}

func writeBundleSummary(w io.Writer, path string, arrays []accum.Tensor, meta map[string]string, values int) {
	_, _ = fmt.Fprintf(w, "%s: %d arrays\n", path, len(arrays))
	if len(meta) > 0 {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		_, _ = fmt.Fprintln(w, "metadata:")
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "  %s = %s\n", k, meta[k])
		}
	}
	for _, a := range arrays {
		_, _ = fmt.Fprintf(w, "%-4s %-4s %v", a.Name, a.DType, a.Shape)
		if values > 0 {
			n := min(values, a.Len())
			parts := make([]string, n)
			for i, v := range a.Data[:n] {
				parts[i] = fmt.Sprint(v)
			}
			more := ""
			if n < a.Len() {
				more = " ..."
			}
			_, _ = fmt.Fprintf(w, " [%s%s]", strings.Join(parts, " "), more)
		}
		_, _ = fmt.Fprintln(w)
	}
}
