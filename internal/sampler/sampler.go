package sampler

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/samcharles93/goldmem/pkg/fixed"
)

var (
	ErrInvalidDomain   = errors.New("sampler: invalid domain")
	ErrUnknownFunction = errors.New("sampler: unknown function")
)

// softplusCutoff is where log1p(e^x) collapses to x (or e^x) in float64.
const softplusCutoff = 20.0

// Domain is a closed interval sampled at Count evenly spaced points,
// both endpoints included.
type Domain struct {
	XMin  float64 `json:"x_min" yaml:"x_min"`
	XMax  float64 `json:"x_max" yaml:"x_max"`
	Count int     `json:"count" yaml:"count"`
}

func (d Domain) Validate() error {
	switch {
	case math.IsNaN(d.XMin) || math.IsInf(d.XMin, 0) || math.IsNaN(d.XMax) || math.IsInf(d.XMax, 0):
		return fmt.Errorf("%w: bounds must be finite (%v, %v)", ErrInvalidDomain, d.XMin, d.XMax)
	case d.Count < 2:
		return fmt.Errorf("%w: count %d < 2", ErrInvalidDomain, d.Count)
	case d.XMin >= d.XMax:
		return fmt.Errorf("%w: x_min %v >= x_max %v", ErrInvalidDomain, d.XMin, d.XMax)
	}
	return nil
}

// Step is the spacing between adjacent points.
func (d Domain) Step() float64 {
	return (d.XMax - d.XMin) / float64(d.Count-1)
}

// Points returns XMin + k*Step for k in [0, Count). The last point is XMax exactly.
func Points(d Domain) ([]float64, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	xs := floats.Span(make([]float64, d.Count), d.XMin, d.XMax)
	xs[len(xs)-1] = d.XMax
	return xs, nil
}

// Function identifies a LUT activation.
type Function int

const (
	Softplus Function = iota + 1
	Sigmoid
)

var functionNames = map[Function]string{
	Softplus: "softplus",
	Sigmoid:  "sigmoid",
}

// Functions lists every supported function in a stable order.
func Functions() []Function {
	return []Function{Softplus, Sigmoid}
}

func ParseFunction(name string) (Function, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for fn, n := range functionNames {
		if n == name {
			return fn, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
}

func (f Function) String() string {
	if n, ok := functionNames[f]; ok {
		return n
	}
	return fmt.Sprintf("function(%d)", int(f))
}

func (f Function) MarshalText() ([]byte, error) {
	if _, ok := functionNames[f]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFunction, int(f))
	}
	return []byte(f.String()), nil
}

func (f *Function) UnmarshalText(text []byte) error {
	fn, err := ParseFunction(string(text))
	if err != nil {
		return err
	}
	*f = fn
	return nil
}

// Eval evaluates the function at x.
func (f Function) Eval(x float64) float64 {
	switch f {
	case Softplus:
		return SoftplusAt(x)
	case Sigmoid:
		return SigmoidAt(x)
	default:
		return math.NaN()
	}
}

// Defaults returns the output format and domain the accelerator LUTs use.
func (f Function) Defaults() (fixed.Format, Domain) {
	switch f {
	case Softplus:
		// 16-bit signed Q4.11, 256 entries over [-8, 8].
		return fixed.Q(4, 11), Domain{XMin: -8, XMax: 8, Count: 256}
	case Sigmoid:
		// Q6.10 input addresses over [-6, 6], UQ0.16 output.
		return fixed.UQ(0, 16), Domain{XMin: -6, XMax: 6, Count: 1024}
	default:
		return fixed.Format{}, Domain{}
	}
}

// SoftplusAt computes log(1+e^x) without overflow at the extremes.
func SoftplusAt(x float64) float64 {
	if x > softplusCutoff {
		return x
	}
	if x < -softplusCutoff {
		return math.Exp(x)
	}
	return math.Log1p(math.Exp(x))
}

// SigmoidAt computes 1/(1+e^-x). The direct form is exact enough on the
// bounded LUT domains.
func SigmoidAt(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Sample validates d and evaluates fn at every domain point.
func Sample(fn Function, d Domain) ([]float64, error) {
	if _, ok := functionNames[fn]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFunction, int(fn))
	}
	xs, err := Points(d)
	if err != nil {
		return nil, err
	}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = fn.Eval(x)
	}
	return ys, nil
}
