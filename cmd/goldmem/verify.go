package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/goldmem/internal/logger"
	"github.com/samcharles93/goldmem/internal/memimage"
	"github.com/samcharles93/goldmem/internal/plan"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

var errNotMonotonic = errors.New("image is not monotonically non-decreasing")

type imageSummary struct {
	Entries int
	Min     fixed.Scalar
	Max     fixed.Scalar
}

// checkImage decodes a hex image strictly and applies the optional count
// and monotonicity checks.
func checkImage(path string, f fixed.Format, count int, monotonic bool) (imageSummary, error) {
	scalars, err := memimage.ReadScalars(path, f)
	if err != nil {
		return imageSummary{}, err
	}
	if count > 0 && len(scalars) != count {
		return imageSummary{}, fmt.Errorf("%s: %d entries, want %d", path, len(scalars), count)
	}
	if len(scalars) == 0 {
		return imageSummary{}, fmt.Errorf("%s: empty image", path)
	}
	sum := imageSummary{Entries: len(scalars), Min: scalars[0], Max: scalars[0]}
	for i, s := range scalars {
		if s.Raw < sum.Min.Raw {
			sum.Min = s
		}
		if s.Raw > sum.Max.Raw {
			sum.Max = s
		}
		if monotonic && i > 0 && s.Raw < scalars[i-1].Raw {
			return sum, fmt.Errorf("%s: %w at line %d", path, errNotMonotonic, i+1)
		}
	}
	return sum, nil
}

func printSummary(w io.Writer, path string, f fixed.Format, s imageSummary) {
	_, _ = fmt.Fprintf(w, "%s: %d entries, %s\n", path, s.Entries, f)
	_, _ = fmt.Fprintf(w, "  min %s (%g)\n", s.Min.Hex(), s.Min.Float())
	_, _ = fmt.Fprintf(w, "  max %s (%g)\n", s.Max.Hex(), s.Max.Float())
}

func verifyCmd() *cli.Command {
	var (
		file         string
		format       string
		count        int64
		monotonic    bool
		manifestPath string
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check a hex memory image or every artifact of a manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "hex image to check", Destination: &file},
			&cli.StringFlag{Name: "format", Usage: "fixed-point format of the image, e.g. Q4.11", Destination: &format},
			&cli.Int64Flag{Name: "count", Usage: "expected number of entries", Destination: &count},
			&cli.BoolFlag{Name: "monotonic", Usage: "require non-decreasing entries", Destination: &monotonic},
			&cli.StringFlag{Name: "manifest", Usage: "manifest.json whose artifacts are re-hashed", Destination: &manifestPath},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			w := cmd.Root().Writer

			if manifestPath != "" {
				m, err := plan.ReadManifest(manifestPath)
				if err != nil {
					return err
				}
				if err := plan.Verify(filepath.Dir(manifestPath), m); err != nil {
					return err
				}
				log.Info("manifest verified", "run_id", m.RunID, "artifacts", len(m.Artifacts))
				_, _ = fmt.Fprintf(w, "%s: %d artifacts ok\n", manifestPath, len(m.Artifacts))
			}
			if file == "" {
				if manifestPath == "" {
					return errors.New("verify: --file or --manifest is required")
				}
				return nil
			}
			if format == "" {
				return errors.New("verify: --format is required with --file")
			}
			f, err := fixed.ParseFormat(format)
			if err != nil {
				return err
			}
			sum, err := checkImage(file, f, int(count), monotonic)
			if err != nil {
				return err
			}
			printSummary(w, file, f, sum)
			return nil
		},
	}
}
