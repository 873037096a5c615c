package memimage

import (
	"bufio"
	"fmt"
	"io"

	"github.com/samcharles93/goldmem/internal/accum"
	"github.com/samcharles93/goldmem/internal/safetensors"
)

// WriteBundle atomically writes several dtype-tagged arrays into a single
// safetensors file, in the given order.
func WriteBundle(path string, arrays []accum.Tensor, metadata map[string]string) error {
	return WriteAtomic(path, func(w *bufio.Writer) error {
		return EncodeBundle(w, arrays, metadata)
	})
}

// EncodeBundle serializes arrays as a safetensors stream.
func EncodeBundle(w io.Writer, arrays []accum.Tensor, metadata map[string]string) error {
	entries := make([]safetensors.Entry, len(arrays))
	for i, a := range arrays {
		entries[i] = safetensors.Entry{
			Name:  a.Name,
			DType: a.DType.String(),
			Shape: a.Shape,
			Data:  a.Data,
		}
	}
	return safetensors.Encode(w, entries, metadata)
}

// ReadBundle loads every array of a bundle written by WriteBundle, in
// payload order, with dtypes re-checked on construction.
func ReadBundle(path string) ([]accum.Tensor, map[string]string, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	names := f.Names()
	out := make([]accum.Tensor, 0, len(names))
	for _, name := range names {
		data, info, err := f.ReadTensorInt64(name)
		if err != nil {
			return nil, nil, err
		}
		dt, err := accum.ParseDType(info.DType)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: tensor %s: %w", path, name, err)
		}
		t, err := accum.NewTensor(name, dt, info.Shape, data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, t)
	}
	return out, f.Metadata, nil
}
