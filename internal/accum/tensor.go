package accum

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/samcharles93/goldmem/pkg/fixed"
)

var (
	ErrOutOfRange = errors.New("accum: value out of range")
	ErrShape      = errors.New("accum: shape mismatch")
	ErrOverflow   = errors.New("accum: accumulator may overflow 64 bits")
	ErrConfig     = errors.New("accum: invalid config")
)

// DType is the element type of an integer tensor.
type DType int

const (
	I8 DType = iota + 1
	I16
	I32
	I64
)

var dtypeNames = map[DType]string{
	I8:  "I8",
	I16: "I16",
	I32: "I32",
	I64: "I64",
}

func (d DType) String() string {
	if n, ok := dtypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

func ParseDType(s string) (DType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for d, n := range dtypeNames {
		if n == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("accum: unknown dtype %q", s)
}

// Bits is the element width.
func (d DType) Bits() int {
	switch d {
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	default:
		return 0
	}
}

// Format is the integer fixed-point format of the dtype.
func (d DType) Format() fixed.Format {
	return fixed.Format{TotalBits: d.Bits(), Signed: true}
}

// DTypeFor returns the integer dtype that stores raw values of a signed
// format. Fraction bits are not part of the dtype.
func DTypeFor(f fixed.Format) (DType, error) {
	if f.Signed {
		switch f.TotalBits {
		case 8:
			return I8, nil
		case 16:
			return I16, nil
		case 32:
			return I32, nil
		case 64:
			return I64, nil
		}
	}
	return 0, fmt.Errorf("accum: no dtype for format %s", f)
}

// Tensor is a row-major integer tensor tagged with its dtype. Every
// element is checked against the dtype when the tensor is built.
type Tensor struct {
	Name  string
	DType DType
	Shape []int
	Data  []int64
}

func NewTensor(name string, dt DType, shape []int, data []int64) (Tensor, error) {
	if dt.Bits() == 0 {
		return Tensor{}, fmt.Errorf("%w: tensor %s: unknown dtype", ErrConfig, name)
	}
	n, err := numElements(shape)
	if err != nil {
		return Tensor{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	if n != len(data) {
		return Tensor{}, fmt.Errorf("%w: tensor %s: shape %v holds %d elements, got %d", ErrShape, name, shape, n, len(data))
	}
	f := dt.Format()
	for i, v := range data {
		if !f.Contains(v) {
			return Tensor{}, fmt.Errorf("%w: tensor %s[%d] = %d not representable as %s", ErrOutOfRange, name, i, v, dt)
		}
	}
	return Tensor{Name: name, DType: dt, Shape: append([]int(nil), shape...), Data: data}, nil
}

func (t Tensor) Len() int { return len(t.Data) }

// Rows and Cols treat a 1-D tensor as a single column.
func (t Tensor) Rows() int { return t.Shape[0] }

func (t Tensor) Cols() int {
	if len(t.Shape) == 1 {
		return 1
	}
	return t.Shape[1]
}

func (t Tensor) At(i, j int) int64 {
	return t.Data[i*t.Cols()+j]
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShape)
	}
	n := 1
	maxInt := int(^uint(0) >> 1)
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: invalid dim %d", ErrShape, d)
		}
		if n > maxInt/d {
			return 0, fmt.Errorf("%w: tensor too large", ErrShape)
		}
		n *= d
	}
	return n, nil
}

// Generator draws integer tensors from a seeded pseudorandom sequence.
// The same seed and the same sequence of calls always yield the same data.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Tensor fills a tensor of the given shape with values drawn uniformly from
// [lo, hi]. A range that does not fit the dtype is a configuration error.
func (g *Generator) Tensor(name string, dt DType, lo, hi int64, shape ...int) (Tensor, error) {
	f := dt.Format()
	if dt.Bits() == 0 || !f.Contains(lo) || !f.Contains(hi) {
		return Tensor{}, fmt.Errorf("%w: tensor %s range [%d, %d] exceeds %s", ErrOutOfRange, name, lo, hi, dt)
	}
	if lo > hi {
		return Tensor{}, fmt.Errorf("%w: tensor %s range [%d, %d] is empty", ErrConfig, name, lo, hi)
	}
	span := uint64(hi - lo)
	if span >= 1<<63-1 {
		return Tensor{}, fmt.Errorf("%w: tensor %s range too wide", ErrConfig, name)
	}
	n, err := numElements(shape)
	if err != nil {
		return Tensor{}, fmt.Errorf("tensor %s: %w", name, err)
	}

	data := make([]int64, n)
	for i := range data {
		data[i] = lo + g.rng.Int63n(int64(span)+1)
	}
	return NewTensor(name, dt, shape, data)
}
