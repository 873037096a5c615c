package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"
)

const (
	metadataKey = "__metadata__"
	headerAlign = 8
	// maxHeaderLen guards against absurd header lengths in corrupt files.
	maxHeaderLen = 100 << 20
)

var ErrCorruptFile = errors.New("safetensors: corrupt file")

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an opened safetensors container. The payload is memory-mapped
// where the platform allows it.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string

	data    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < 8 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: size %d", ErrCorruptFile, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	mmapped := err == nil
	if !mmapped {
		data = make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
	}

	sf, err := parse(path, data)
	if err != nil {
		if mmapped {
			_ = unix.Munmap(data)
		}
		return nil, err
	}
	sf.data = data
	sf.mmapped = mmapped
	return sf, nil
}

func parse(path string, data []byte) (*File, error) {
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > maxHeaderLen || headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptFile, headerLen)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}

	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptFile, err)
		}
		delete(raw, metadataKey)
	}

	dataStart := int64(8 + headerLen)
	payload := int64(len(data)) - dataStart
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > payload {
			return nil, fmt.Errorf("%w: tensor %s offsets [%d, %d) outside payload of %d bytes", ErrCorruptFile, name, start, end, payload)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: start,
			End:   end,
		}
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
		Metadata:  meta,
	}, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.mmapped = false
	return err
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// Names returns tensor names in payload order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := f.Tensors[names[i]], f.Tensors[names[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return names[i] < names[j]
	})
	return names
}

// ReadTensor returns the raw little-endian bytes of a tensor. The slice
// aliases the mapping and is only valid until Close.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	if f.data == nil {
		return nil, TensorInfo{}, errors.New("safetensors: file closed")
	}
	off := f.DataStart
	return f.data[off+t.Start : off+t.End], t, nil
}

// ReadTensorInt64 decodes an integer tensor into int64 values.
func (f *File) ReadTensorInt64(name string) ([]int64, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	size, err := elemSize(info.DType)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	if len(raw) != n*size {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid %s data size %d for %d elements", name, info.DType, len(raw), n)
	}

	out := make([]int64, n)
	for i := range n {
		switch info.DType {
		case "I8":
			out[i] = int64(int8(raw[i]))
		case "U8":
			out[i] = int64(raw[i])
		case "I16":
			out[i] = int64(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		case "U16":
			out[i] = int64(binary.LittleEndian.Uint16(raw[i*2:]))
		case "I32":
			out[i] = int64(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		case "U32":
			out[i] = int64(binary.LittleEndian.Uint32(raw[i*4:]))
		case "I64":
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return out, info, nil
}

// Entry is one tensor to be written.
type Entry struct {
	Name  string
	DType string
	Shape []int
	Data  []int64
}

// Encode writes entries in the given order, with a header padded to an
// 8-byte boundary. Map keys in the header are emitted sorted, so equal
// inputs always produce identical bytes.
func Encode(w io.Writer, entries []Entry, metadata map[string]string) error {
	header := make(map[string]any, len(entries)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	payloads := make([][]byte, len(entries))
	var off int64
	for i, e := range entries {
		if e.Name == "" || e.Name == metadataKey {
			return fmt.Errorf("safetensors: invalid tensor name %q", e.Name)
		}
		if _, dup := header[e.Name]; dup {
			return fmt.Errorf("safetensors: duplicate tensor %q", e.Name)
		}
		n, err := numElements(e.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		if n != len(e.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d elements, got %d", e.Name, e.Shape, n, len(e.Data))
		}
		buf, err := EncodeInts(e.DType, e.Data)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", e.Name, err)
		}
		payloads[i] = buf
		header[e.Name] = tensorHeader{
			DType:       e.DType,
			Shape:       e.Shape,
			DataOffsets: []int64{off, off + int64(len(buf))},
		}
		off += int64(len(buf))
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	for len(hdr)%headerAlign != 0 {
		hdr = append(hdr, ' ')
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// EncodeInts packs values little-endian in dtype, rejecting values the
// dtype cannot represent.
func EncodeInts(dtype string, values []int64) ([]byte, error) {
	size, err := elemSize(dtype)
	if err != nil {
		return nil, err
	}
	lo, hi, err := dtypeRange(dtype)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(values)*size)
	for i, v := range values {
		if v < lo || v > hi {
			return nil, fmt.Errorf("safetensors: element %d = %d out of %s range", i, v, dtype)
		}
		switch size {
		case 1:
			buf[i] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
		}
	}
	return buf, nil
}

func elemSize(dtype string) (int, error) {
	switch dtype {
	case "I8", "U8":
		return 1, nil
	case "I16", "U16":
		return 2, nil
	case "I32", "U32":
		return 4, nil
	case "I64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

func dtypeRange(dtype string) (int64, int64, error) {
	switch dtype {
	case "I8":
		return math.MinInt8, math.MaxInt8, nil
	case "U8":
		return 0, math.MaxUint8, nil
	case "I16":
		return math.MinInt16, math.MaxInt16, nil
	case "U16":
		return 0, math.MaxUint16, nil
	case "I32":
		return math.MinInt32, math.MaxInt32, nil
	case "U32":
		return 0, math.MaxUint32, nil
	case "I64":
		return math.MinInt64, math.MaxInt64, nil
	default:
		return 0, 0, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}
