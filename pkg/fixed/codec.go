package fixed

import (
	"fmt"
	"math"
)

// Scalar is a raw fixed-point value paired with the format that produced it.
type Scalar struct {
	Raw    int64
	Format Format
}

// Bits returns the two's-complement word as it appears in hardware memory.
func (s Scalar) Bits() uint64 {
	return s.Format.Bits(s.Raw)
}

// Float decodes the scalar to its real value.
func (s Scalar) Float() float64 {
	return Decode(s)
}

// Hex renders Bits as lowercase, zero-padded hex.
func (s Scalar) Hex() string {
	return fmt.Sprintf("%0*x", s.Format.HexDigits(), s.Bits())
}

// Decode returns raw / scale.
func Decode(s Scalar) float64 {
	return float64(s.Raw) / s.Format.Scale()
}

// DecodeBits reinterprets a memory word in format f and returns its real value.
func DecodeBits(u uint64, f Format) float64 {
	return Decode(Scalar{Raw: f.FromBits(u), Format: f})
}

// ShiftRight is an arithmetic right shift: the sign bit is replicated
// into the vacated high bits.
func ShiftRight(v int64, n uint) int64 {
	if n > 63 {
		n = 63
	}
	return v >> n
}

// Codec quantises values into a single format and keeps a running count
// of saturation events. A Codec is not safe for concurrent use; create one
// per generation run.
type Codec struct {
	format      Format
	saturations int

	// OnSaturate, if set, is called for every clamped value with the
	// unclamped input and the value it was clamped to.
	OnSaturate func(in float64, clamped int64)
}

// NewCodec validates f and returns a codec for it.
func NewCodec(f Format) (*Codec, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Codec{format: f}, nil
}

func (c *Codec) Format() Format { return c.format }

// Saturations returns the number of clamped values seen so far.
func (c *Codec) Saturations() int { return c.saturations }

// Encode quantises x with round-half-to-even and saturates to the format range.
// Saturation is not an error; NaN is.
func (c *Codec) Encode(x float64) (Scalar, error) {
	if math.IsNaN(x) {
		return Scalar{}, fmt.Errorf("%w: %v", ErrNotFinite, x)
	}
	raw, saturated := c.format.Quantize(x)
	if saturated {
		c.saturated(x, raw)
	}
	return Scalar{Raw: raw, Format: c.format}, nil
}

// Narrow clamps an integer into the format range. Used for accumulator outputs
// where the value is already in raw units.
func (c *Codec) Narrow(v int64) Scalar {
	raw, saturated := c.format.Clamp(v)
	if saturated {
		c.saturated(float64(v), raw)
	}
	return Scalar{Raw: raw, Format: c.format}
}

func (c *Codec) saturated(in float64, raw int64) {
	c.saturations++
	if c.OnSaturate != nil {
		c.OnSaturate(in, raw)
	}
}
