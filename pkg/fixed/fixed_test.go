package fixed

import (
	"errors"
	"math"
	"testing"
)

func TestFormatDerivedBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		format   Format
		min, max int64
		scale    float64
		digits   int
	}{
		{"softplus Q4.11", Q(4, 11), -32768, 32767, 2048, 4},
		{"sigmoid UQ0.16", UQ(0, 16), 0, 65535, 65536, 4},
		{"int8", Int8, -128, 127, 1, 2},
		{"int32", Int32, math.MinInt32, math.MaxInt32, 1, 8},
		{"int64", Int64, math.MinInt64, math.MaxInt64, 1, 16},
		{"odd width", Format{TotalBits: 10, FracBits: 3, Signed: true}, -512, 511, 8, 3},
	}

	for _, tc := range tests {
		if err := tc.format.Validate(); err != nil {
			t.Fatalf("%s: Validate: %v", tc.name, err)
		}
		if got := tc.format.Min(); got != tc.min {
			t.Errorf("%s: Min = %d, want %d", tc.name, got, tc.min)
		}
		if got := tc.format.Max(); got != tc.max {
			t.Errorf("%s: Max = %d, want %d", tc.name, got, tc.max)
		}
		if got := tc.format.Scale(); got != tc.scale {
			t.Errorf("%s: Scale = %v, want %v", tc.name, got, tc.scale)
		}
		if got := tc.format.HexDigits(); got != tc.digits {
			t.Errorf("%s: HexDigits = %d, want %d", tc.name, got, tc.digits)
		}
	}
}

func TestFormatValidateRejects(t *testing.T) {
	t.Parallel()

	bad := []Format{
		{TotalBits: 0},
		{TotalBits: 65, Signed: true},
		{TotalBits: 64},
		{TotalBits: 16, FracBits: 16, Signed: true},
		{TotalBits: 16, FracBits: 17},
		{TotalBits: 16, FracBits: -1, Signed: true},
	}
	for _, f := range bad {
		if err := f.Validate(); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidFormat", f, err)
		}
	}
}

func TestQuantizeRoundsHalfToEven(t *testing.T) {
	t.Parallel()

	f := Q(4, 11)
	lsb := f.LSB()
	tests := []struct {
		x    float64
		want int64
	}{
		{0.5 * lsb, 0},
		{1.5 * lsb, 2},
		{2.5 * lsb, 2},
		{-0.5 * lsb, 0},
		{-1.5 * lsb, -2},
		{-2.5 * lsb, -2},
		{0.75 * lsb, 1},
		{math.Ln2, 1420},
	}
	for _, tc := range tests {
		got, sat := f.Quantize(tc.x)
		if sat {
			t.Errorf("Quantize(%v) reported saturation", tc.x)
		}
		if got != tc.want {
			t.Errorf("Quantize(%v) = %d, want %d", tc.x, got, tc.want)
		}
	}
}

func TestQuantizeSaturatesAtBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		x      float64
		want   int64
		sat    bool
	}{
		{"max exact", Q(4, 11), 32767.0 / 2048, 32767, false},
		{"above max", Q(4, 11), 16, 32767, true},
		{"far above max", Q(4, 11), 1e9, 32767, true},
		{"min exact", Q(4, 11), -16, -32768, false},
		{"below min", Q(4, 11), -16.001, -32768, true},
		{"+inf", Q(4, 11), math.Inf(1), 32767, true},
		{"-inf", Q(4, 11), math.Inf(-1), -32768, true},
		{"unsigned one", UQ(0, 16), 1.0, 65535, true},
		{"unsigned negative", UQ(0, 16), -0.1, 0, true},
		{"int64 huge", Int64, 1e30, math.MaxInt64, true},
		{"int64 tiny", Int64, -1e30, math.MinInt64, true},
		{"int64 pow63", Int64, math.Ldexp(1, 63), math.MaxInt64, true},
	}
	for _, tc := range tests {
		got, sat := tc.format.Quantize(tc.x)
		if got != tc.want || sat != tc.sat {
			t.Errorf("%s: Quantize(%v) = (%d, %v), want (%d, %v)", tc.name, tc.x, got, sat, tc.want, tc.sat)
		}
	}
}

func TestRoundTripWithinHalfLSB(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{Q(4, 11), UQ(0, 16), Q(1, 6), Q(5, 10)} {
		c, err := NewCodec(f)
		if err != nil {
			t.Fatalf("NewCodec(%s): %v", f, err)
		}
		lo := float64(f.Min()) / f.Scale()
		hi := float64(f.Max()) / f.Scale()
		bound := 1 / (2 * f.Scale())
		const n = 10007
		for k := 0; k <= n; k++ {
			x := lo + (hi-lo)*float64(k)/n
			s, err := c.Encode(x)
			if err != nil {
				t.Fatalf("Encode(%v): %v", x, err)
			}
			if diff := math.Abs(Decode(s) - x); diff > bound {
				t.Fatalf("%s: |decode(encode(%v)) - x| = %v > %v", f, x, diff, bound)
			}
		}
	}
}

func TestCodecCountsSaturations(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(Q(4, 11))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	var hooked []int64
	c.OnSaturate = func(_ float64, clamped int64) { hooked = append(hooked, clamped) }

	for _, x := range []float64{0, 20, -20, 1, 15.9} {
		if _, err := c.Encode(x); err != nil {
			t.Fatalf("Encode(%v): %v", x, err)
		}
	}
	if got := c.Saturations(); got != 2 {
		t.Fatalf("Saturations = %d, want 2", got)
	}
	if len(hooked) != 2 || hooked[0] != 32767 || hooked[1] != -32768 {
		t.Fatalf("unexpected hook values: %v", hooked)
	}

	if _, err := c.Encode(math.NaN()); !errors.Is(err, ErrNotFinite) {
		t.Fatalf("Encode(NaN) err = %v, want ErrNotFinite", err)
	}
}

func TestCodecNarrow(t *testing.T) {
	t.Parallel()

	c, err := NewCodec(Int32)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if s := c.Narrow(1 << 40); s.Raw != math.MaxInt32 {
		t.Fatalf("Narrow(2^40) = %d", s.Raw)
	}
	if s := c.Narrow(-1 << 40); s.Raw != math.MinInt32 {
		t.Fatalf("Narrow(-2^40) = %d", s.Raw)
	}
	if s := c.Narrow(-5); s.Raw != -5 {
		t.Fatalf("Narrow(-5) = %d", s.Raw)
	}
	if c.Saturations() != 2 {
		t.Fatalf("Saturations = %d, want 2", c.Saturations())
	}
}

func TestBitsTwosComplement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		raw    int64
		bits   uint64
		hex    string
	}{
		{Int16, -1, 0xffff, "ffff"},
		{Int16, -32768, 0x8000, "8000"},
		{Int16, 32767, 0x7fff, "7fff"},
		{Int8, -128, 0x80, "80"},
		{Int8, 5, 0x05, "05"},
		{Int32, -2, 0xfffffffe, "fffffffe"},
		{UQ(0, 16), 65535, 0xffff, "ffff"},
		{Int64, -1, ^uint64(0), "ffffffffffffffff"},
		{Format{TotalBits: 10, Signed: true}, -1, 0x3ff, "3ff"},
	}
	for _, tc := range tests {
		s := Scalar{Raw: tc.raw, Format: tc.format}
		if got := s.Bits(); got != tc.bits {
			t.Errorf("%s Bits(%d) = %#x, want %#x", tc.format, tc.raw, got, tc.bits)
		}
		if got := s.Hex(); got != tc.hex {
			t.Errorf("%s Hex(%d) = %q, want %q", tc.format, tc.raw, got, tc.hex)
		}
		if got := tc.format.FromBits(tc.bits); got != tc.raw {
			t.Errorf("%s FromBits(%#x) = %d, want %d", tc.format, tc.bits, got, tc.raw)
		}
	}
}

func TestDecodeBits(t *testing.T) {
	t.Parallel()

	if got := DecodeBits(0xf800, Q(4, 11)); got != -1 {
		t.Fatalf("DecodeBits(0xf800, Q4.11) = %v, want -1", got)
	}
	if got := DecodeBits(0x8000, UQ(0, 16)); got != 0.5 {
		t.Fatalf("DecodeBits(0x8000, UQ0.16) = %v, want 0.5", got)
	}
}

func TestShiftRightIsArithmetic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    int64
		n    uint
		want int64
	}{
		{1023, 10, 0},
		{1024, 10, 1},
		{-1, 10, -1},
		{-1024, 10, -1},
		{-1025, 10, -2},
		{math.MinInt64, 63, -1},
		{math.MinInt64, 100, -1},
		{12345, 0, 12345},
	}
	for _, tc := range tests {
		if got := ShiftRight(tc.v, tc.n); got != tc.want {
			t.Errorf("ShiftRight(%d, %d) = %d, want %d", tc.v, tc.n, got, tc.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Format
	}{
		{"Q4.11", Format{TotalBits: 16, FracBits: 11, Signed: true}},
		{"UQ0.16", Format{TotalBits: 16, FracBits: 16}},
		{"q6.10", Format{TotalBits: 17, FracBits: 10, Signed: true}},
		{"i32", Int32},
		{" int8 ", Int8},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if back, err := ParseFormat(got.String()); err != nil || back != got {
			t.Errorf("String round trip for %q: %+v, %v", tc.in, back, err)
		}
	}

	for _, bad := range []string{"", "X1.2", "Q4", "Q-1.3", "UQ0.64", "Q4.x"} {
		if _, err := ParseFormat(bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseFormat(%q) err = %v, want ErrInvalidFormat", bad, err)
		}
	}
}

func TestFormatTextRoundTrip(t *testing.T) {
	t.Parallel()

	f := Q(4, 11)
	text, err := f.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "Q4.11" {
		t.Fatalf("MarshalText = %q", text)
	}
	var back Format
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != f {
		t.Fatalf("round trip = %+v, want %+v", back, f)
	}
}
