// Package lut builds quantised activation lookup tables.
package lut

import (
	"fmt"
	"math"

	"github.com/samcharles93/goldmem/internal/sampler"
	"github.com/samcharles93/goldmem/pkg/fixed"
)

// Table is a sampled function quantised into a fixed-point format.
// Entries[k] corresponds to domain point k.
type Table struct {
	Function    sampler.Function
	Domain      sampler.Domain
	Format      fixed.Format
	Entries     []fixed.Scalar
	Saturations int
}

// Build validates the format and domain, samples fn and quantises every
// sample through a single codec.
func Build(fn sampler.Function, d sampler.Domain, f fixed.Format) (*Table, error) {
	codec, err := fixed.NewCodec(f)
	if err != nil {
		return nil, fmt.Errorf("lut %s: %w", fn, err)
	}
	ys, err := sampler.Sample(fn, d)
	if err != nil {
		return nil, fmt.Errorf("lut %s: %w", fn, err)
	}

	entries := make([]fixed.Scalar, len(ys))
	for i, y := range ys {
		s, err := codec.Encode(y)
		if err != nil {
			return nil, fmt.Errorf("lut %s: entry %d: %w", fn, i, err)
		}
		entries[i] = s
	}
	return &Table{
		Function:    fn,
		Domain:      d,
		Format:      f,
		Entries:     entries,
		Saturations: codec.Saturations(),
	}, nil
}

// BuildDefault builds fn with its accelerator default format and domain.
func BuildDefault(fn sampler.Function) (*Table, error) {
	f, d := fn.Defaults()
	return Build(fn, d, f)
}

func (t *Table) Len() int { return len(t.Entries) }

// Nearest returns the index and entry whose domain point is closest to x.
// x outside the domain maps to the nearest endpoint.
func (t *Table) Nearest(x float64) (int, fixed.Scalar) {
	k := int(math.Round((x - t.Domain.XMin) / t.Domain.Step()))
	k = max(0, min(k, len(t.Entries)-1))
	return k, t.Entries[k]
}

// Raw returns the signed raw values in table order.
func (t *Table) Raw() []int64 {
	out := make([]int64, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Raw
	}
	return out
}

// Bits returns the memory words in table order.
func (t *Table) Bits() []uint64 {
	out := make([]uint64, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Bits()
	}
	return out
}

// Monotonic reports whether raw entries never decrease.
func (t *Table) Monotonic() bool {
	for i := 1; i < len(t.Entries); i++ {
		if t.Entries[i].Raw < t.Entries[i-1].Raw {
			return false
		}
	}
	return true
}
