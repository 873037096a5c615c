// Package memimage writes integer arrays as hex-per-line memory images.
package memimage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/samcharles93/goldmem/pkg/fixed"
)

var (
	ErrValueRange = errors.New("memimage: value not representable")
	ErrBadWidth   = errors.New("memimage: invalid bit width")
	ErrMalformed  = errors.New("memimage: malformed image")
)

// Digits is the number of hex digits per line for a bit width.
func Digits(bits int) int {
	return (bits + 3) / 4
}

// Word returns the unsigned bit pattern of v in the given width. v must be
// representable either as a signed or as an unsigned bits-wide integer.
func Word(v int64, bits int) (uint64, error) {
	if bits < 1 || bits > 64 {
		return 0, fmt.Errorf("%w: %d", ErrBadWidth, bits)
	}
	if bits == 64 {
		return uint64(v), nil
	}
	lo := int64(-1) << (bits - 1)
	hi := int64(1)<<bits - 1
	if v < lo || v > hi {
		return 0, fmt.Errorf("%w: %d in %d bits", ErrValueRange, v, bits)
	}
	return uint64(v) & (1<<bits - 1), nil
}

// EncodeHex writes one lowercase, zero-padded hex word per line.
func EncodeHex(w io.Writer, values []int64, bits int) error {
	if bits < 1 || bits > 64 {
		return fmt.Errorf("%w: %d", ErrBadWidth, bits)
	}
	line := make([]byte, 0, 17)
	for i, v := range values {
		var err error
		line, err = AppendWord(line[:0], v, bits)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// AppendWord appends the bit pattern of v as Digits(bits) lowercase,
// zero-padded hex digits. This is the text of one image line.
func AppendWord(dst []byte, v int64, bits int) ([]byte, error) {
	u, err := Word(v, bits)
	if err != nil {
		return dst, err
	}
	s := strconv.FormatUint(u, 16)
	for range Digits(bits) - len(s) {
		dst = append(dst, '0')
	}
	return append(dst, s...), nil
}

// WriteHexLines atomically writes values as a memory image at path.
func WriteHexLines(path string, values []int64, bits int) error {
	// Reject bad input before touching the filesystem.
	for i, v := range values {
		if _, err := Word(v, bits); err != nil {
			return fmt.Errorf("memimage: %s element %d: %w", path, i, err)
		}
	}
	return WriteAtomic(path, func(w *bufio.Writer) error {
		return EncodeHex(w, values, bits)
	})
}

// WriteScalars writes fixed-point scalars in their format's width. All
// scalars must share one format.
func WriteScalars(path string, scalars []fixed.Scalar) error {
	if len(scalars) == 0 {
		return WriteAtomic(path, func(*bufio.Writer) error { return nil })
	}
	f := scalars[0].Format
	values := make([]int64, len(scalars))
	for i, s := range scalars {
		if s.Format != f {
			return fmt.Errorf("memimage: %s element %d: mixed formats %s and %s", path, i, f, s.Format)
		}
		values[i] = s.Raw
	}
	return WriteHexLines(path, values, f.TotalBits)
}

// DecodeHex parses an image and checks that every line has exactly
// Digits(bits) lowercase hex digits and ends in a bare '\n'.
func DecodeHex(r io.Reader, bits int) ([]uint64, error) {
	if bits < 1 || bits > 64 {
		return nil, fmt.Errorf("%w: %d", ErrBadWidth, bits)
	}
	digits := Digits(bits)
	var limit uint64 = ^uint64(0)
	if bits < 64 {
		limit = 1<<bits - 1
	}

	var out []uint64
	sc := bufio.NewScanner(r)
	sc.Split(scanImageLines)
	for n := 1; sc.Scan(); n++ {
		line := sc.Bytes()
		if bytes.IndexByte(line, '\r') >= 0 {
			return nil, fmt.Errorf("%w: line %d contains a carriage return", ErrMalformed, n)
		}
		if len(line) != digits {
			return nil, fmt.Errorf("%w: line %d has %d digits, want %d", ErrMalformed, n, len(line), digits)
		}
		for _, c := range line {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				return nil, fmt.Errorf("%w: line %d: %q is not lowercase hex", ErrMalformed, n, line)
			}
		}
		u, err := strconv.ParseUint(string(line), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, n, err)
		}
		if u > limit {
			return nil, fmt.Errorf("%w: line %d: %#x exceeds %d bits", ErrMalformed, n, u, bits)
		}
		out = append(out, u)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanImageLines splits on '\n' only. Unlike bufio.ScanLines it keeps a
// trailing '\r' and fails on a final line with no terminator.
func scanImageLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, fmt.Errorf("%w: missing newline after last line", ErrMalformed)
	}
	return 0, nil, nil
}

// ReadHexLines reads and validates the image at path.
func ReadHexLines(path string, bits int) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	words, err := DecodeHex(f, bits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return words, nil
}

// ReadScalars reads an image and reinterprets every word in format f.
func ReadScalars(path string, f fixed.Format) ([]fixed.Scalar, error) {
	words, err := ReadHexLines(path, f.TotalBits)
	if err != nil {
		return nil, err
	}
	out := make([]fixed.Scalar, len(words))
	for i, u := range words {
		out[i] = fixed.Scalar{Raw: f.FromBits(u), Format: f}
	}
	return out, nil
}
