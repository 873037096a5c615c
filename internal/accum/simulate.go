package accum

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/samcharles93/goldmem/pkg/fixed"
)

// BiasMode selects how the per-unit bias is produced.
type BiasMode string

const (
	BiasZero   BiasMode = "zero"
	BiasRandom BiasMode = "random"
)

// Operand ranges of the accelerator datapath.
const (
	VisibleMin = math.MinInt8
	VisibleMax = math.MaxInt8
	WeightMin  = math.MinInt16
	WeightMax  = math.MaxInt16
)

// Config parameterises one golden-vector run.
type Config struct {
	Seed   int64
	Inputs int // I
	Hidden int // H, 1 selects single-column mode

	// Shift, if set, arithmetic-shifts each accumulator before narrowing
	// (hardware rescale ahead of the LUT address).
	Shift *uint

	Bias    BiasMode
	BiasMin int64
	BiasMax int64

	// Output is the narrowed width of the emitted accumulators.
	Output fixed.Format
}

// DefaultConfig is the single-column bring-up configuration with zero bias
// and no shift.
func DefaultConfig(seed int64) Config {
	return Config{
		Seed:    seed,
		Inputs:  256,
		Hidden:  1,
		Bias:    BiasZero,
		BiasMin: math.MinInt16,
		BiasMax: math.MaxInt16,
		Output:  fixed.Int32,
	}
}

// ShiftBy is a helper for the optional shift field.
func ShiftBy(n uint) *uint { return &n }

func (c Config) Validate() error {
	switch {
	case c.Inputs < 1:
		return fmt.Errorf("%w: inputs %d < 1", ErrConfig, c.Inputs)
	case c.Hidden < 1:
		return fmt.Errorf("%w: hidden %d < 1", ErrConfig, c.Hidden)
	case c.Shift != nil && *c.Shift > 63:
		return fmt.Errorf("%w: shift %d > 63", ErrConfig, *c.Shift)
	case c.Bias != BiasZero && c.Bias != BiasRandom:
		return fmt.Errorf("%w: bias mode %q", ErrConfig, c.Bias)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("%w: output: %w", ErrConfig, err)
	}
	if !c.Output.Signed {
		return fmt.Errorf("%w: output format %s must be signed", ErrConfig, c.Output)
	}
	if c.Bias == BiasRandom {
		if c.BiasMin > c.BiasMax {
			return fmt.Errorf("%w: bias range [%d, %d] is empty", ErrConfig, c.BiasMin, c.BiasMax)
		}
		if !fixed.Int32.Contains(c.BiasMin) || !fixed.Int32.Contains(c.BiasMax) {
			return fmt.Errorf("%w: bias range [%d, %d] exceeds I32", ErrOutOfRange, c.BiasMin, c.BiasMax)
		}
	}
	return nil
}

// Inputs are the operands of one run: v is [I] I8, W is [I] (single
// column) or [I, H] I16, b is [H] I32.
type Inputs struct {
	V Tensor
	W Tensor
	B Tensor
}

// GenerateInputs draws v, then W (row-major), then b from cfg.Seed.
func GenerateInputs(cfg Config) (Inputs, error) {
	if err := cfg.Validate(); err != nil {
		return Inputs{}, err
	}
	g := NewGenerator(cfg.Seed)

	v, err := g.Tensor("v", I8, VisibleMin, VisibleMax, cfg.Inputs)
	if err != nil {
		return Inputs{}, err
	}
	wShape := []int{cfg.Inputs, cfg.Hidden}
	if cfg.Hidden == 1 {
		wShape = []int{cfg.Inputs}
	}
	w, err := g.Tensor("W", I16, WeightMin, WeightMax, wShape...)
	if err != nil {
		return Inputs{}, err
	}

	var b Tensor
	if cfg.Bias == BiasRandom {
		b, err = g.Tensor("b", I32, cfg.BiasMin, cfg.BiasMax, cfg.Hidden)
	} else {
		b, err = NewTensor("b", I32, []int{cfg.Hidden}, make([]int64, cfg.Hidden))
	}
	if err != nil {
		return Inputs{}, err
	}
	return Inputs{V: v, W: w, B: b}, nil
}

// DotProducts computes acc_j = b_j + sum_i v_i*W_ij in 64-bit arithmetic.
// Shapes whose worst case could leave int64 are rejected up front.
func DotProducts(v, w, b Tensor) ([]int64, error) {
	if len(v.Shape) != 1 {
		return nil, fmt.Errorf("%w: v must be 1-D, got %v", ErrShape, v.Shape)
	}
	if len(w.Shape) != 1 && len(w.Shape) != 2 {
		return nil, fmt.Errorf("%w: W must be 1-D or 2-D, got %v", ErrShape, w.Shape)
	}
	in, hidden := w.Rows(), w.Cols()
	if v.Len() != in {
		return nil, fmt.Errorf("%w: v has %d elements, W has %d rows", ErrShape, v.Len(), in)
	}
	if len(b.Shape) != 1 || b.Len() != hidden {
		return nil, fmt.Errorf("%w: b shape %v, want [%d]", ErrShape, b.Shape, hidden)
	}
	if !fitsInt64(in, v.DType, w.DType, b.DType) {
		return nil, fmt.Errorf("%w: %d x %s*%s + %s", ErrOverflow, in, v.DType, w.DType, b.DType)
	}

	acc := make([]int64, hidden)
	for j := range hidden {
		s := b.Data[j]
		for i := range in {
			s += v.Data[i] * w.At(i, j)
		}
		acc[j] = s
	}
	return acc, nil
}

// fitsInt64 reports whether n*|v|max*|w|max + |b|max < 2^63.
func fitsInt64(n int, v, w, b DType) bool {
	mag := func(d DType) uint64 { return uint64(1) << (d.Bits() - 1) }
	hi, prod := bits.Mul64(mag(v), mag(w))
	if hi != 0 {
		return false
	}
	hi, prod = bits.Mul64(prod, uint64(n))
	if hi != 0 {
		return false
	}
	sum, carry := bits.Add64(prod, mag(b), 0)
	return carry == 0 && sum <= math.MaxInt64
}

// Rescale arithmetic-shifts acc and saturates it into the codec's format.
func Rescale(acc int64, shift uint, c *fixed.Codec) fixed.Scalar {
	return c.Narrow(fixed.ShiftRight(acc, shift))
}

// Result is the reference output of one run.
type Result struct {
	Config Config
	Inputs Inputs

	// Acc holds the unshifted 64-bit accumulators, one per hidden unit.
	Acc []int64
	// Out holds the emitted values: Acc optionally shifted, then
	// saturated to Config.Output.
	Out         []fixed.Scalar
	Saturations int
}

// Simulate generates inputs from cfg.Seed and evaluates the datapath.
func Simulate(cfg Config) (*Result, error) {
	in, err := GenerateInputs(cfg)
	if err != nil {
		return nil, err
	}
	return Evaluate(cfg, in)
}

// Evaluate runs the datapath over caller-supplied inputs.
func Evaluate(cfg Config, in Inputs) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acc, err := DotProducts(in.V, in.W, in.B)
	if err != nil {
		return nil, err
	}
	codec, err := fixed.NewCodec(cfg.Output)
	if err != nil {
		return nil, err
	}

	var shift uint
	if cfg.Shift != nil {
		shift = *cfg.Shift
	}
	out := make([]fixed.Scalar, len(acc))
	for j, a := range acc {
		out[j] = Rescale(a, shift, codec)
	}
	return &Result{
		Config:      cfg,
		Inputs:      in,
		Acc:         acc,
		Out:         out,
		Saturations: codec.Saturations(),
	}, nil
}

// Scalar returns the single output of a single-column run.
func (r *Result) Scalar() (fixed.Scalar, error) {
	if len(r.Out) != 1 {
		return fixed.Scalar{}, fmt.Errorf("%w: %d outputs, want 1", ErrShape, len(r.Out))
	}
	return r.Out[0], nil
}

// OutRaw returns the emitted values as raw integers.
func (r *Result) OutRaw() []int64 {
	out := make([]int64, len(r.Out))
	for i, s := range r.Out {
		out[i] = s.Raw
	}
	return out
}

// OutTensor wraps the emitted values as a tensor named "acc".
func (r *Result) OutTensor() (Tensor, error) {
	dt, err := DTypeFor(r.Config.Output)
	if err != nil {
		return Tensor{}, err
	}
	return NewTensor("acc", dt, []int{len(r.Out)}, r.OutRaw())
}
