package plan

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/logger"
	"github.com/samcharles93/goldmem/internal/lut"
	"github.com/samcharles93/goldmem/internal/memimage"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

// ManifestName is the file written next to the artifacts of a run.
const ManifestName = "manifest.json"

// runNamespace scopes run IDs: a run ID is the UUIDv5 of the canonical plan.
var runNamespace = uuid.MustParse("9f4a3c2e-5d1b-4e8f-a6c7-2b0d9e1f3a54")

// Manifest records what a run produced.
type Manifest struct {
	RunID     string     `json:"run_id"`
	Plan      *Plan      `json:"plan"`
	Artifacts []Artifact `json:"artifacts"`
}

// Artifact is one emitted file.
type Artifact struct {
	Item        string `json:"item"`
	Kind        string `json:"kind"`
	File        string `json:"file"`
	Array       string `json:"array,omitempty"`
	Format      string `json:"format,omitempty"`
	Bits        int    `json:"bits,omitempty"`
	Elements    int    `json:"elements"`
	Saturations int    `json:"saturations"`
	SHA256      string `json:"sha256"`
}

// Options tunes execution. Artifact contents do not depend on them.
type Options struct {
	// Concurrency bounds how many items are generated at once; 0 means GOMAXPROCS.
	Concurrency int
	// Manifest is the manifest file name inside outDir; empty means ManifestName.
	Manifest string
}

// RunID derives the deterministic identifier of a plan.
func RunID(p *Plan) (string, error) {
	canon, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(runNamespace, canon).String(), nil
}

// Run generates every item of p into outDir and writes the manifest last.
// Items are independent and write distinct files, so they run concurrently.
func Run(ctx context.Context, p *Plan, outDir string, opts Options) (*Manifest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	manifest := opts.Manifest
	if manifest == "" {
		manifest = ManifestName
	}
	if err := p.checkFiles(manifest); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("component", "plan")

	runID, err := RunID(p)
	if err != nil {
		return nil, err
	}
	log.Info("starting run", "run_id", runID, "luts", len(p.LUTs), "vectors", len(p.Vectors), "out", outDir)

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	// One result slot per item keeps the manifest order independent of scheduling.
	results := make([][]Artifact, len(p.LUTs)+len(p.Vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range p.LUTs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			arts, err := runLUT(item, outDir)
			if err != nil {
				return fmt.Errorf("lut %s: %w", item.Name, err)
			}
			logArtifacts(log, arts)
			results[i] = arts
			return nil
		})
	}
	for i, item := range p.Vectors {
		slot := len(p.LUTs) + i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			arts, err := runVectors(item, outDir)
			if err != nil {
				return fmt.Errorf("vectors %s: %w", item.Name, err)
			}
			logArtifacts(log, arts)
			results[slot] = arts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{RunID: runID, Plan: p}
	for _, arts := range results {
		m.Artifacts = append(m.Artifacts, arts...)
	}
	if err := WriteManifest(filepath.Join(outDir, manifest), m); err != nil {
		return nil, err
	}
	log.Info("run complete", "run_id", runID, "artifacts", len(m.Artifacts), "manifest", manifest)
	return m, nil
}

func logArtifacts(log logger.Logger, arts []Artifact) {
	for _, a := range arts {
		if a.Saturations > 0 {
			log.Warn("values saturated", "file", a.File, "count", a.Saturations, "format", a.Format)
		}
		log.Debug("wrote artifact", "file", a.File, "elements", a.Elements, "sha256", a.SHA256)
	}
}

func runLUT(item LUTSpec, outDir string) ([]Artifact, error) {
	tbl, err := lut.Build(item.Function, *item.Domain, *item.Format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := memimage.EncodeHex(&buf, tbl.Raw(), tbl.Format.TotalBits); err != nil {
		return nil, err
	}
	file := item.Files()[0]
	sum, err := writeFile(filepath.Join(outDir, file), buf.Bytes())
	if err != nil {
		return nil, err
	}
	return []Artifact{{
		Item:        item.Name,
		Kind:        "lut",
		File:        file,
		Format:      tbl.Format.String(),
		Bits:        tbl.Format.TotalBits,
		Elements:    tbl.Len(),
		Saturations: tbl.Saturations,
		SHA256:      sum,
	}}, nil
}

func runVectors(item VectorSpec, outDir string) ([]Artifact, error) {
	cfg, err := item.Config()
	if err != nil {
		return nil, err
	}
	res, err := accum.Simulate(cfg)
	if err != nil {
		return nil, err
	}

	var arts []Artifact
	if item.Layout.hex() {
		images := []struct {
			values []int64
			format fixed.Format
			sats   int
		}{
			{res.Inputs.V.Data, res.Inputs.V.DType.Format(), 0},
			{res.Inputs.W.Data, res.Inputs.W.DType.Format(), 0},
			{res.Inputs.B.Data, res.Inputs.B.DType.Format(), 0},
			{res.OutRaw(), cfg.Output, res.Saturations},
		}
		for i, img := range images {
			array := vectorArrays[i]
			var buf bytes.Buffer
			if err := memimage.EncodeHex(&buf, img.values, img.format.TotalBits); err != nil {
				return nil, err
			}
			file := item.hexFile(array)
			sum, err := writeFile(filepath.Join(outDir, file), buf.Bytes())
			if err != nil {
				return nil, err
			}
			arts = append(arts, Artifact{
				Item:        item.Name,
				Kind:        "vectors",
				File:        file,
				Array:       array,
				Format:      img.format.String(),
				Bits:        img.format.TotalBits,
				Elements:    len(img.values),
				Saturations: img.sats,
				SHA256:      sum,
			})
		}
	}

	if item.Layout.bundle() {
		acc, err := res.OutTensor()
		if err != nil {
			return nil, err
		}
		arrays := []accum.Tensor{res.Inputs.V, res.Inputs.W, res.Inputs.B, acc}
		elements := 0
		for _, a := range arrays {
			elements += a.Len()
		}
		var buf bytes.Buffer
		if err := memimage.EncodeBundle(&buf, arrays, bundleMetadata(item, cfg)); err != nil {
			return nil, err
		}
		file := item.bundleFile()
		sum, err := writeFile(filepath.Join(outDir, file), buf.Bytes())
		if err != nil {
			return nil, err
		}
		arts = append(arts, Artifact{
			Item:        item.Name,
			Kind:        "bundle",
			File:        file,
			Elements:    elements,
			Saturations: res.Saturations,
			SHA256:      sum,
		})
	}
	return arts, nil
}

func bundleMetadata(item VectorSpec, cfg accum.Config) map[string]string {
	meta := map[string]string{
		"name":   item.Name,
		"seed":   strconv.FormatInt(cfg.Seed, 10),
		"inputs": strconv.Itoa(cfg.Inputs),
		"hidden": strconv.Itoa(cfg.Hidden),
		"bias":   string(cfg.Bias),
		"output": cfg.Output.String(),
	}
	if cfg.Shift != nil {
		meta["shift"] = strconv.FormatUint(uint64(*cfg.Shift), 10)
	}
	return meta
}

// writeFile writes data atomically and returns its hex SHA-256.
func writeFile(path string, data []byte) (string, error) {
	err := memimage.WriteAtomic(path, func(w *bufio.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	_, err = writeFile(path, append(data, '\n'))
	return err
}

// ReadManifest loads a manifest written by Run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// ErrChecksum reports an artifact whose contents no longer match its manifest.
var ErrChecksum = errors.New("plan: checksum mismatch")

// Verify recomputes the SHA-256 of every artifact listed in m under dir.
func Verify(dir string, m *Manifest) error {
	var errs []error
	for _, a := range m.Artifacts {
		data, err := os.ReadFile(filepath.Join(dir, a.File))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != a.SHA256 {
			errs = append(errs, fmt.Errorf("%w: %s: got %s, want %s", ErrChecksum, a.File, got, a.SHA256))
		}
	}
	return errors.Join(errs...)
}
