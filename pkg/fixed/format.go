package fixed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat = errors.New("fixed: invalid format")
	ErrNotFinite     = errors.New("fixed: value is not a number")
)

// Format describes a two's-complement (or unsigned) fixed-point word.
//
// Scale, Min and Max are always derived from the three fields; nothing
// else is stored, so a Format cannot drift out of sync with its bounds.
type Format struct {
	TotalBits int  `json:"total_bits" yaml:"total_bits"`
	FracBits  int  `json:"frac_bits" yaml:"frac_bits"`
	Signed    bool `json:"signed" yaml:"signed"`
}

// Common formats used by the accelerator datapath.
var (
	Int8  = Format{TotalBits: 8, Signed: true}
	Int16 = Format{TotalBits: 16, Signed: true}
	Int32 = Format{TotalBits: 32, Signed: true}
	Int64 = Format{TotalBits: 64, Signed: true}
)

// Q returns a signed Qm.n format (one sign bit, m integer bits, n fraction bits).
func Q(intBits, fracBits int) Format {
	return Format{TotalBits: 1 + intBits + fracBits, FracBits: fracBits, Signed: true}
}

// UQ returns an unsigned UQm.n format.
func UQ(intBits, fracBits int) Format {
	return Format{TotalBits: intBits + fracBits, FracBits: fracBits}
}

func (f Format) Validate() error {
	maxBits := 64
	if !f.Signed {
		// Max must stay representable as int64.
		maxBits = 63
	}
	switch {
	case f.TotalBits < 1 || f.TotalBits > maxBits:
		return fmt.Errorf("%w: total bits %d out of [1,%d]", ErrInvalidFormat, f.TotalBits, maxBits)
	case f.FracBits < 0:
		return fmt.Errorf("%w: negative fraction bits %d", ErrInvalidFormat, f.FracBits)
	case f.Signed && f.FracBits >= f.TotalBits:
		return fmt.Errorf("%w: signed format needs frac bits < total bits (%d >= %d)", ErrInvalidFormat, f.FracBits, f.TotalBits)
	case !f.Signed && f.FracBits > f.TotalBits:
		return fmt.Errorf("%w: frac bits %d exceed total bits %d", ErrInvalidFormat, f.FracBits, f.TotalBits)
	}
	return nil
}

// IntBits is the number of integer bits, excluding the sign bit.
func (f Format) IntBits() int {
	if f.Signed {
		return f.TotalBits - 1 - f.FracBits
	}
	return f.TotalBits - f.FracBits
}

func (f Format) Scale() float64 {
	return math.Ldexp(1, f.FracBits)
}

func (f Format) Min() int64 {
	if !f.Signed {
		return 0
	}
	return -1 << (f.TotalBits - 1)
}

func (f Format) Max() int64 {
	if f.Signed {
		return 1<<(f.TotalBits-1) - 1
	}
	return 1<<f.TotalBits - 1
}

// LSB is the real value of one least-significant step.
func (f Format) LSB() float64 {
	return 1 / f.Scale()
}

// HexDigits is the number of hex digits needed for one word.
func (f Format) HexDigits() int {
	return (f.TotalBits + 3) / 4
}

func (f Format) mask() uint64 {
	if f.TotalBits >= 64 {
		return ^uint64(0)
	}
	return 1<<f.TotalBits - 1
}

// Contains reports whether raw lies in [Min, Max].
func (f Format) Contains(raw int64) bool {
	return raw >= f.Min() && raw <= f.Max()
}

// Clamp saturates raw into [Min, Max].
func (f Format) Clamp(raw int64) (int64, bool) {
	if lo := f.Min(); raw < lo {
		return lo, true
	}
	if hi := f.Max(); raw > hi {
		return hi, true
	}
	return raw, false
}

// Quantize scales x, rounds half to even and saturates.
// NaN quantises to zero and reports saturation; use Codec.Encode to reject it.
func (f Format) Quantize(x float64) (int64, bool) {
	if math.IsNaN(x) {
		return 0, true
	}
	v := math.RoundToEven(x * f.Scale())
	// Both bounds are exact powers of two (or zero) in float64, so the
	// comparisons are exact and the int64 conversion below cannot overflow.
	if v < float64(f.Min()) {
		return f.Min(), true
	}
	if v >= f.upperBound() {
		return f.Max(), true
	}
	return int64(v), false
}

// upperBound is Max+1 as a float64.
func (f Format) upperBound() float64 {
	if f.Signed {
		return math.Ldexp(1, f.TotalBits-1)
	}
	return math.Ldexp(1, f.TotalBits)
}

// Bits returns the two's-complement bit pattern of raw in TotalBits width.
func (f Format) Bits(raw int64) uint64 {
	return uint64(raw) & f.mask()
}

// FromBits reinterprets a TotalBits-wide pattern as a raw value,
// sign-extending for signed formats.
func (f Format) FromBits(u uint64) int64 {
	u &= f.mask()
	if f.Signed && f.TotalBits < 64 && u&(1<<(f.TotalBits-1)) != 0 {
		return int64(u) - int64(1)<<f.TotalBits
	}
	return int64(u)
}

// String renders the format as Qm.n or UQm.n.
func (f Format) String() string {
	if f.Signed {
		return fmt.Sprintf("Q%d.%d", f.IntBits(), f.FracBits)
	}
	return fmt.Sprintf("UQ%d.%d", f.IntBits(), f.FracBits)
}

func (f Format) MarshalText() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat parses Qm.n, UQm.n, or the integer shorthands i8/i16/i32/i64.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "i8", "int8":
		return Int8, nil
	case "i16", "int16":
		return Int16, nil
	case "i32", "int32":
		return Int32, nil
	case "i64", "int64":
		return Int64, nil
	}

	signed := true
	rest := s
	switch {
	case strings.HasPrefix(rest, "UQ"), strings.HasPrefix(rest, "uq"):
		signed = false
		rest = rest[2:]
	case strings.HasPrefix(rest, "Q"), strings.HasPrefix(rest, "q"):
		rest = rest[1:]
	default:
		return Format{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	intPart, fracPart, ok := strings.Cut(rest, ".")
	if !ok {
		return Format{}, fmt.Errorf("%w: %q missing '.'", ErrInvalidFormat, s)
	}
	m, err := strconv.Atoi(intPart)
	if err != nil || m < 0 {
		return Format{}, fmt.Errorf("%w: %q bad integer bits", ErrInvalidFormat, s)
	}
	n, err := strconv.Atoi(fracPart)
	if err != nil || n < 0 {
		return Format{}, fmt.Errorf("%w: %q bad fraction bits", ErrInvalidFormat, s)
	}

	var f Format
	if signed {
		f = Q(m, n)
	} else {
		f = UQ(m, n)
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}
