package accum

import (
	"errors"
	"math"
	"math/big"
	"slices"
	"testing"

	"github.com/samcharles93/goldmem/pkg/fixed"
)

func mustTensor(t *testing.T, name string, dt DType, shape []int, data []int64) Tensor {
	t.Helper()
	tt, err := NewTensor(name, dt, shape, data)
	if err != nil {
		t.Fatalf("NewTensor %s: %v", name, err)
	}
	return tt
}

// bigDot recomputes one accumulator with arbitrary precision.
func bigDot(in Inputs, j int) *big.Int {
	sum := big.NewInt(in.B.Data[j])
	var p big.Int
	for i := range in.V.Len() {
		p.Mul(big.NewInt(in.V.Data[i]), big.NewInt(in.W.At(i, j)))
		sum.Add(sum, &p)
	}
	return sum
}

func TestDotProductsSmall(t *testing.T) {
	t.Parallel()

	v := mustTensor(t, "v", I8, []int{3}, []int64{1, -2, 3})
	w := mustTensor(t, "W", I16, []int{3, 2}, []int64{1, 2, 3, 4, 5, 6})
	b := mustTensor(t, "b", I32, []int{2}, []int64{10, -10})

	acc, err := DotProducts(v, w, b)
	if err != nil {
		t.Fatalf("DotProducts: %v", err)
	}
	if want := []int64{20, 2}; !slices.Equal(acc, want) {
		t.Fatalf("acc = %v, want %v", acc, want)
	}
}

func TestDotProductsShapeErrors(t *testing.T) {
	t.Parallel()

	v := mustTensor(t, "v", I8, []int{3}, []int64{1, 2, 3})
	w2 := mustTensor(t, "W", I16, []int{2, 2}, []int64{1, 2, 3, 4})
	b2 := mustTensor(t, "b", I32, []int{2}, []int64{0, 0})
	if _, err := DotProducts(v, w2, b2); !errors.Is(err, ErrShape) {
		t.Fatalf("row mismatch err = %v", err)
	}

	w := mustTensor(t, "W", I16, []int{3, 2}, []int64{1, 2, 3, 4, 5, 6})
	b1 := mustTensor(t, "b", I32, []int{1}, []int64{0})
	if _, err := DotProducts(v, w, b1); !errors.Is(err, ErrShape) {
		t.Fatalf("bias mismatch err = %v", err)
	}
}

func TestDotProductsRejectsOverflowingShapes(t *testing.T) {
	t.Parallel()

	v := mustTensor(t, "v", I64, []int{1}, []int64{1})
	w := mustTensor(t, "W", I16, []int{1}, []int64{1})
	b := mustTensor(t, "b", I32, []int{1}, []int64{0})
	if _, err := DotProducts(v, w, b); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestNewTensorRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := NewTensor("v", I8, []int{2}, []int64{0, 128}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := NewTensor("w", I16, []int{1}, []int64{-32769}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := NewTensor("w", I16, []int{3}, []int64{1}); !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
}

func TestGeneratorRejectsRangeOutsideDType(t *testing.T) {
	t.Parallel()

	g := NewGenerator(1)
	if _, err := g.Tensor("v", I8, -200, 0, 4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := g.Tensor("v", I8, 5, 4, 4); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestGeneratorDeterministicAndInRange(t *testing.T) {
	t.Parallel()

	a, err := NewGenerator(42).Tensor("w", I16, WeightMin, WeightMax, 1000)
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	b, err := NewGenerator(42).Tensor("w", I16, WeightMin, WeightMax, 1000)
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if !slices.Equal(a.Data, b.Data) {
		t.Fatal("same seed produced different data")
	}
	c, err := NewGenerator(43).Tensor("w", I16, WeightMin, WeightMax, 1000)
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if slices.Equal(a.Data, c.Data) {
		t.Fatal("different seeds produced identical data")
	}
	for i, x := range a.Data {
		if x < WeightMin || x > WeightMax {
			t.Fatalf("a[%d] = %d out of range", i, x)
		}
	}
}

func TestSimulateMultiUnitMatchesBigInt(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(1)
	cfg.Hidden = 64
	cfg.Bias = BiasRandom

	res, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := res.Inputs.W.Shape; !slices.Equal(got, []int{256, 64}) {
		t.Fatalf("W shape = %v", got)
	}
	if len(res.Acc) != 64 || len(res.Out) != 64 {
		t.Fatalf("outputs: %d acc, %d out", len(res.Acc), len(res.Out))
	}
	codec, _ := fixed.NewCodec(fixed.Int32)
	for j := range 64 {
		want := bigDot(res.Inputs, j)
		if !want.IsInt64() || want.Int64() != res.Acc[j] {
			t.Fatalf("acc[%d] = %d, big = %s", j, res.Acc[j], want)
		}
		if got, exp := res.Out[j].Raw, codec.Narrow(want.Int64()).Raw; got != exp {
			t.Fatalf("out[%d] = %d, want %d", j, got, exp)
		}
	}
	// 256 * 128 * 32768 + 32768 < 2^31, so nothing clamps.
	if res.Saturations != 0 {
		t.Fatalf("Saturations = %d", res.Saturations)
	}
}

func TestSimulateSingleColumnShift(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(7)
	cfg.Shift = ShiftBy(10)

	res, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := res.Inputs.W.Shape; !slices.Equal(got, []int{256}) {
		t.Fatalf("W shape = %v", got)
	}
	for _, b := range res.Inputs.B.Data {
		if b != 0 {
			t.Fatalf("zero bias mode produced %d", b)
		}
	}
	s, err := res.Scalar()
	if err != nil {
		t.Fatalf("Scalar: %v", err)
	}
	want := bigDot(res.Inputs, 0)
	want.Rsh(want, 10) // big.Int Rsh rounds toward -inf, like an arithmetic shift
	if s.Raw != want.Int64() {
		t.Fatalf("shifted scalar = %d, want %s", s.Raw, want)
	}
	if s.Format != fixed.Int32 {
		t.Fatalf("output format = %s", s.Format)
	}
}

func TestEvaluateSaturatesNarrowOutput(t *testing.T) {
	t.Parallel()

	in := Inputs{
		V: mustTensor(t, "v", I8, []int{2}, []int64{127, -128}),
		W: mustTensor(t, "W", I16, []int{2, 2}, []int64{32767, -32768, -32768, 32767}),
		B: mustTensor(t, "b", I32, []int{2}, []int64{0, 0}),
	}
	cfg := DefaultConfig(0)
	cfg.Hidden = 2
	cfg.Output = fixed.Int16

	res, err := Evaluate(cfg, in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// acc0 = 127*32767 + 128*32768 > 0, acc1 = -127*32768 - 128*32767 < 0
	if res.Out[0].Raw != math.MaxInt16 || res.Out[1].Raw != math.MinInt16 {
		t.Fatalf("out = %v", res.OutRaw())
	}
	if res.Saturations != 2 {
		t.Fatalf("Saturations = %d, want 2", res.Saturations)
	}
	if res.Acc[0] != 127*32767+128*32768 {
		t.Fatalf("wide acc0 = %d", res.Acc[0])
	}

	tensor, err := res.OutTensor()
	if err != nil {
		t.Fatalf("OutTensor: %v", err)
	}
	if tensor.DType != I16 || tensor.Name != "acc" {
		t.Fatalf("OutTensor = %s %s", tensor.Name, tensor.DType)
	}
}

func TestRescale(t *testing.T) {
	t.Parallel()

	c, _ := fixed.NewCodec(fixed.Int32)
	tests := []struct {
		acc   int64
		shift uint
		want  int64
	}{
		{-1025, 10, -2},
		{1 << 40, 10, math.MaxInt32},
		{-(1 << 50), 10, math.MinInt32},
		{1 << 40, 20, 1 << 20},
		{123, 0, 123},
	}
	for _, tc := range tests {
		if got := Rescale(tc.acc, tc.shift, c).Raw; got != tc.want {
			t.Errorf("Rescale(%d, %d) = %d, want %d", tc.acc, tc.shift, got, tc.want)
		}
	}
}

func TestSimulateDeterministic(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(1234)
	cfg.Hidden = 8
	cfg.Bias = BiasRandom
	a, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	b, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !slices.Equal(a.Acc, b.Acc) || !slices.Equal(a.Inputs.V.Data, b.Inputs.V.Data) || !slices.Equal(a.Inputs.B.Data, b.Inputs.B.Data) {
		t.Fatal("identical configs produced different results")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := DefaultConfig(1)
	mutate := []func(*Config){
		func(c *Config) { c.Inputs = 0 },
		func(c *Config) { c.Hidden = 0 },
		func(c *Config) { c.Shift = ShiftBy(64) },
		func(c *Config) { c.Bias = "gaussian" },
		func(c *Config) { c.Output = fixed.UQ(0, 16) },
		func(c *Config) { c.Bias = BiasRandom; c.BiasMin, c.BiasMax = 10, 0 },
	}
	for i, m := range mutate {
		cfg := base
		m(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: err = %v, want ErrConfig", i, err)
		}
	}

	cfg := base
	cfg.Shift = ShiftBy(63)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("shift 63: %v", err)
	}

	cfg = base
	cfg.Bias = BiasRandom
	cfg.BiasMax = 1 << 40
	if err := cfg.Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("wide bias err = %v, want ErrOutOfRange", err)
	}
}

func TestParseDType(t *testing.T) {
	t.Parallel()

	for _, d := range []DType{I8, I16, I32, I64} {
		got, err := ParseDType(d.String())
		if err != nil || got != d {
			t.Fatalf("ParseDType(%s) = %v, %v", d, got, err)
		}
		back, err := DTypeFor(d.Format())
		if err != nil || back != d {
			t.Fatalf("DTypeFor(%s) = %v, %v", d, back, err)
		}
	}
	if got, err := DTypeFor(fixed.Q(4, 11)); err != nil || got != I16 {
		t.Fatalf("DTypeFor(Q4.11) = %v, %v", got, err)
	}
	for _, f := range []fixed.Format{fixed.Q(4, 5), fixed.UQ(8, 8)} {
		if _, err := DTypeFor(f); err == nil {
			t.Fatalf("DTypeFor(%s): expected error", f)
		}
	}
}
