// Package plan describes and executes multi-artifact generation runs.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/sampler"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

var ErrInvalidPlan = errors.New("plan: invalid plan")

// Layout selects the artifact files emitted for a golden-vector item.
type Layout string

const (
	LayoutHex    Layout = "hex"
	LayoutBundle Layout = "bundle"
	LayoutBoth   Layout = "both"
)

func (l Layout) hex() bool    { return l == LayoutHex || l == LayoutBoth }
func (l Layout) bundle() bool { return l == LayoutBundle || l == LayoutBoth }

// Plan is the declarative description of one generation run.
type Plan struct {
	Seed    int64        `yaml:"seed" json:"seed"`
	LUTs    []LUTSpec    `yaml:"luts" json:"luts"`
	Vectors []VectorSpec `yaml:"vectors" json:"vectors"`
}

// LUTSpec describes one lookup table. Unset format and domain fall back to
// the function defaults.
type LUTSpec struct {
	Name     string           `yaml:"name" json:"name"`
	Function sampler.Function `yaml:"function" json:"function"`
	Format   *fixed.Format    `yaml:"format,omitempty" json:"format,omitempty"`
	Domain   *sampler.Domain  `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// VectorSpec describes one golden-vector set.
type VectorSpec struct {
	Name    string         `yaml:"name" json:"name"`
	Seed    *int64         `yaml:"seed,omitempty" json:"seed,omitempty"`
	Inputs  int            `yaml:"inputs" json:"inputs"`
	Hidden  int            `yaml:"hidden" json:"hidden"`
	Shift   *uint          `yaml:"shift,omitempty" json:"shift,omitempty"`
	Bias    accum.BiasMode `yaml:"bias" json:"bias"`
	BiasMin *int64         `yaml:"bias_min,omitempty" json:"bias_min,omitempty"`
	BiasMax *int64         `yaml:"bias_max,omitempty" json:"bias_max,omitempty"`
	Output  *fixed.Format  `yaml:"output,omitempty" json:"output,omitempty"`
	Layout  Layout         `yaml:"layout" json:"layout"`
}

// Load reads a YAML plan from path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML plan, rejecting unknown fields, and validates it.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyDefaults fills every optional field so the plan is fully explicit.
func (p *Plan) applyDefaults() {
	for i := range p.LUTs {
		l := &p.LUTs[i]
		f, d := l.Function.Defaults()
		if l.Format == nil {
			l.Format = &f
		}
		if l.Domain == nil {
			l.Domain = &d
		}
	}
	for i := range p.Vectors {
		v := &p.Vectors[i]
		def := accum.DefaultConfig(p.Seed)
		if v.Seed == nil {
			s := p.Seed
			v.Seed = &s
		}
		if v.Inputs == 0 {
			v.Inputs = def.Inputs
		}
		if v.Hidden == 0 {
			v.Hidden = def.Hidden
		}
		if v.Bias == "" {
			v.Bias = def.Bias
		}
		if v.BiasMin == nil {
			v.BiasMin = &def.BiasMin
		}
		if v.BiasMax == nil {
			v.BiasMax = &def.BiasMax
		}
		if v.Output == nil {
			v.Output = &def.Output
		}
		if v.Layout == "" {
			v.Layout = LayoutHex
		}
	}
}

// Validate checks every item before anything is generated.
func (p *Plan) Validate() error {
	if len(p.LUTs) == 0 && len(p.Vectors) == 0 {
		return fmt.Errorf("%w: no luts or vectors", ErrInvalidPlan)
	}
	seen := make(map[string]struct{})
	checkName := func(name string) error {
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || name == "manifest" {
			return fmt.Errorf("%w: invalid name %q", ErrInvalidPlan, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidPlan, name)
		}
		seen[name] = struct{}{}
		return nil
	}

	for _, l := range p.LUTs {
		if err := checkName(l.Name); err != nil {
			return err
		}
		if _, err := sampler.ParseFunction(l.Function.String()); err != nil {
			return fmt.Errorf("%w: lut %s: %w", ErrInvalidPlan, l.Name, err)
		}
		if l.Format == nil || l.Domain == nil {
			return fmt.Errorf("%w: lut %s: missing format or domain", ErrInvalidPlan, l.Name)
		}
		if err := l.Format.Validate(); err != nil {
			return fmt.Errorf("%w: lut %s: %w", ErrInvalidPlan, l.Name, err)
		}
		if err := l.Domain.Validate(); err != nil {
			return fmt.Errorf("%w: lut %s: %w", ErrInvalidPlan, l.Name, err)
		}
	}

	for _, v := range p.Vectors {
		if err := checkName(v.Name); err != nil {
			return err
		}
		switch v.Layout {
		case LayoutHex, LayoutBundle, LayoutBoth:
		default:
			return fmt.Errorf("%w: vectors %s: unknown layout %q", ErrInvalidPlan, v.Name, v.Layout)
		}
		cfg, err := v.Config()
		if err != nil {
			return fmt.Errorf("%w: vectors %s: %w", ErrInvalidPlan, v.Name, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: vectors %s: %w", ErrInvalidPlan, v.Name, err)
		}
		if v.Layout.bundle() {
			if _, err := accum.DTypeFor(cfg.Output); err != nil {
				return fmt.Errorf("%w: vectors %s: bundle output: %w", ErrInvalidPlan, v.Name, err)
			}
		}
	}
	return p.checkFiles(ManifestName)
}

// checkFiles rejects plans in which two artifacts, or an artifact and the
// manifest, would be written to the same file.
func (p *Plan) checkFiles(manifest string) error {
	if manifest == "" || filepath.Base(manifest) != manifest {
		return fmt.Errorf("%w: invalid manifest name %q", ErrInvalidPlan, manifest)
	}
	owner := map[string]string{manifest: "manifest"}
	claim := func(item string, files []string) error {
		for _, f := range files {
			if prev, dup := owner[f]; dup {
				return fmt.Errorf("%w: %s and %s both write %s", ErrInvalidPlan, prev, item, f)
			}
			owner[f] = item
		}
		return nil
	}
	for _, l := range p.LUTs {
		if err := claim("lut "+l.Name, l.Files()); err != nil {
			return err
		}
	}
	for _, v := range p.Vectors {
		if err := claim("vectors "+v.Name, v.Files()); err != nil {
			return err
		}
	}
	return nil
}

// Files lists the artifact file names the item writes.
func (l LUTSpec) Files() []string {
	return []string{l.Name + ".mem"}
}

// vectorArrays are the hex images of a vectors item, in emission order.
var vectorArrays = []string{"v", "w", "b", "acc"}

func (v VectorSpec) hexFile(array string) string { return v.Name + "_" + array + ".mem" }
func (v VectorSpec) bundleFile() string          { return v.Name + ".safetensors" }

// Files lists the artifact file names the item writes for its layout.
func (v VectorSpec) Files() []string {
	var files []string
	if v.Layout.hex() {
		for _, a := range vectorArrays {
			files = append(files, v.hexFile(a))
		}
	}
	if v.Layout.bundle() {
		files = append(files, v.bundleFile())
	}
	return files
}

// Config resolves a defaulted item into a simulator configuration.
func (v VectorSpec) Config() (accum.Config, error) {
	if v.Seed == nil || v.BiasMin == nil || v.BiasMax == nil || v.Output == nil {
		return accum.Config{}, errors.New("vectors item has unresolved defaults")
	}
	return accum.Config{
		Seed:    *v.Seed,
		Inputs:  v.Inputs,
		Hidden:  v.Hidden,
		Shift:   v.Shift,
		Bias:    v.Bias,
		BiasMin: *v.BiasMin,
		BiasMax: *v.BiasMax,
		Output:  *v.Output,
	}, nil
}
