// Package safetensors reads and writes safetensors files.
//
// Quantized tensors are stored under their raw integer dtype. Their
// quantization parameters live in the header's __metadata__ map under the
// keys "<name>.qscheme", "<name>.scale" and "<name>.zero_point", so files stay
// readable by any safetensors consumer.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	json "github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

const (
	metadataKey = "__metadata__"

	// maxHeaderSize bounds the JSON header read from untrusted files.
	maxHeaderSize = 100 << 20
)

var (
	ErrCorruptFile    = errors.New("safetensors: corrupt file")
	ErrTensorNotFound = errors.New("safetensors: tensor not found")
	ErrClosed         = errors.New("safetensors: file closed")
)

// QuantParams are the per-tensor quantization parameters recorded in the
// header metadata.
type QuantParams struct {
	Scheme    tensor.QScheme
	Scale     float64
	ZeroPoint int64
}

// TensorInfo describes one tensor entry. Start and End are offsets into the
// data region that follows the header.
type TensorInfo struct {
	DType dtype.ScalarType
	Shape []int
	Start int64
	End   int64
	Quant *QuantParams
}

// File is an opened safetensors file. Tensors returned by File.Tensor share
// the file's memory: they are read-only and must not be used after Close.
type File struct {
	Path     string
	Metadata map[string]string

	tensors map[string]TensorInfo
	mapped  []byte
	data    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps a safetensors file read-only and parses its header.
// If mmap is unavailable, it falls back to reading the file into memory.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 8 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: size %d", ErrCorruptFile, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		sf, parseErr := parse(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return sf, nil
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return parse(path, data, false)
}

// Parse reads a safetensors image held in memory.
func Parse(data []byte) (*File, error) {
	return parse("", data, false)
}

func parse(path string, data []byte, mmapped bool) (*File, error) {
	if len(data) < 8 {
		return nil, ErrCorruptFile
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > maxHeaderSize || headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptFile, headerLen)
	}
	headerEnd := 8 + int(headerLen)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &raw); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}

	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptFile, err)
		}
		delete(raw, metadataKey)
	}

	body := data[headerEnd:]
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		info, err := th.info(name, int64(len(body)))
		if err != nil {
			return nil, err
		}
		q, err := quantParams(meta, name)
		if err != nil {
			return nil, err
		}
		info.Quant = q
		tensors[name] = info
	}

	return &File{
		Path:     path,
		Metadata: meta,
		tensors:  tensors,
		mapped:   data,
		data:     body,
		mmapped:  mmapped,
	}, nil
}

func (th tensorHeader) info(name string, bodyLen int64) (TensorInfo, error) {
	dt, err := dtype.ParseSafetensors(th.DType)
	if err != nil {
		return TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	if len(th.DataOffsets) != 2 {
		return TensorInfo{}, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrCorruptFile, name)
	}
	start, end := th.DataOffsets[0], th.DataOffsets[1]
	if start < 0 || end < start || end > bodyLen {
		return TensorInfo{}, fmt.Errorf("%w: tensor %s: offsets [%d,%d) outside data of %d bytes", ErrCorruptFile, name, start, end, bodyLen)
	}
	n := int64(1)
	for _, d := range th.Shape {
		if d < 0 {
			return TensorInfo{}, fmt.Errorf("%w: tensor %s: negative dim", ErrCorruptFile, name)
		}
		n *= int64(d)
	}
	if n*int64(dt.ElementSize()) != end-start {
		return TensorInfo{}, fmt.Errorf("%w: tensor %s: %d bytes for shape %v of %s", ErrCorruptFile, name, end-start, th.Shape, dt)
	}
	return TensorInfo{DType: dt, Shape: th.Shape, Start: start, End: end}, nil
}

func quantParams(meta map[string]string, name string) (*QuantParams, error) {
	scheme, ok := meta[name+".qscheme"]
	if !ok {
		return nil, nil
	}
	if tensor.QScheme(scheme) != tensor.PerTensorAffine {
		return nil, fmt.Errorf("tensor %s: unsupported qscheme %q", name, scheme)
	}
	scale, err := strconv.ParseFloat(meta[name+".scale"], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %s: scale: %v", ErrCorruptFile, name, err)
	}
	zp, err := strconv.ParseInt(meta[name+".zero_point"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %s: zero_point: %v", ErrCorruptFile, name, err)
	}
	return &QuantParams{Scheme: tensor.PerTensorAffine, Scale: scale, ZeroPoint: zp}, nil
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.tensors))
	for name := range f.tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Info returns the header entry for name.
func (f *File) Info(name string) (TensorInfo, bool) {
	t, ok := f.tensors[name]
	return t, ok
}

// Tensor returns a zero-copy tensor over name's data. Tensors with
// quantization metadata come back quantized.
func (f *File) Tensor(name string) (*tensor.Tensor, error) {
	if f.mapped == nil {
		return nil, ErrClosed
	}
	info, ok := f.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	raw := f.data[info.Start:info.End:info.End]
	if info.Quant == nil {
		return tensor.FromBytes(info.Shape, info.DType, raw)
	}
	qtype, err := dtype.ToQIntType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	q := tensor.NewPerTensorAffine(info.Quant.Scale, info.Quant.ZeroPoint)
	return tensor.FromBytesQuantized(info.Shape, qtype, q, raw)
}

// Close releases the file's memory, unmapping it when it was mapped.
func (f *File) Close() error {
	if f == nil || f.mapped == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.mapped)
	}
	f.mapped = nil
	f.data = nil
	f.mmapped = false
	return err
}
