package tensor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/qview/pkg/dtype"
)

// Tensor is a strided n-dimensional view over little-endian byte storage.
//
// Shape and strides are in elements. A tensor created by Empty or FromSlice
// owns its storage; a tensor created by FromBytes or Permute shares it with
// the caller or the parent tensor. Quantized tensors carry a Quantizer whose
// parameters are metadata only: the storage holds the quantized integers.
type Tensor struct {
	shape   []int
	strides []int
	offset  int // in elements

	dtype     dtype.ScalarType
	storage   []byte
	quantizer Quantizer
}

// Empty allocates a zeroed contiguous tensor.
func Empty(shape []int, dt dtype.ScalarType) (*Tensor, error) {
	if dt.IsQuantized() {
		return nil, fmt.Errorf("tensor: %s requires a quantizer, use EmptyQuantized", dt)
	}
	return alloc(shape, dt)
}

// EmptyQuantized allocates a zeroed contiguous quantized tensor tagged with q.
func EmptyQuantized(shape []int, qtype dtype.ScalarType, q Quantizer) (*Tensor, error) {
	if !qtype.IsQuantized() {
		return nil, fmt.Errorf("tensor: %w: %s", ErrNotQuantized, qtype)
	}
	if q == nil {
		return nil, errNilQuantizer
	}
	t, err := alloc(shape, qtype)
	if err != nil {
		return nil, err
	}
	t.quantizer = q
	return t, nil
}

func alloc(shape []int, dt dtype.ScalarType) (*Tensor, error) {
	elemSize := dt.ElementSize()
	if elemSize == 0 {
		return nil, fmt.Errorf("tensor: %w: %s", dtype.ErrUnsupportedType, dt)
	}
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	nbytes := n * elemSize
	if n != 0 && nbytes/n != elemSize {
		return nil, ErrTooLarge
	}
	return &Tensor{
		shape:   slices.Clone(shape),
		strides: contiguousStrides(shape),
		dtype:   dt,
		storage: make([]byte, nbytes),
	}, nil
}

// FromBytes wraps raw little-endian storage without copying.
// raw must hold exactly numel(shape) elements of dt.
func FromBytes(shape []int, dt dtype.ScalarType, raw []byte) (*Tensor, error) {
	if dt.IsQuantized() {
		return nil, fmt.Errorf("tensor: %s requires a quantizer, use FromBytesQuantized", dt)
	}
	return wrap(shape, dt, raw)
}

// FromBytesQuantized wraps raw quantized storage without copying.
func FromBytesQuantized(shape []int, qtype dtype.ScalarType, q Quantizer, raw []byte) (*Tensor, error) {
	if !qtype.IsQuantized() {
		return nil, fmt.Errorf("tensor: %w: %s", ErrNotQuantized, qtype)
	}
	if q == nil {
		return nil, errNilQuantizer
	}
	t, err := wrap(shape, qtype, raw)
	if err != nil {
		return nil, err
	}
	t.quantizer = q
	return t, nil
}

func wrap(shape []int, dt dtype.ScalarType, raw []byte) (*Tensor, error) {
	elemSize := dt.ElementSize()
	if elemSize == 0 {
		return nil, fmt.Errorf("tensor: %w: %s", dtype.ErrUnsupportedType, dt)
	}
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	nbytes := n * elemSize
	if n != 0 && nbytes/n != elemSize {
		return nil, ErrTooLarge
	}
	if len(raw) != nbytes {
		return nil, fmt.Errorf("tensor: %w: want %d bytes, got %d", ErrRawSizeMismatch, nbytes, len(raw))
	}
	return &Tensor{
		shape:   slices.Clone(shape),
		strides: contiguousStrides(shape),
		dtype:   dt,
		storage: raw,
	}, nil
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Strides returns a copy of the element strides.
func (t *Tensor) Strides() []int { return slices.Clone(t.strides) }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// DType returns the element encoding.
func (t *Tensor) DType() dtype.ScalarType { return t.dtype }

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// Bytes returns the underlying storage. For non-contiguous views this is the
// whole shared buffer, not the logical elements in order.
func (t *Tensor) Bytes() []byte { return t.storage }

// IsContiguous reports whether the tensor is laid out row-major with no gaps.
func (t *Tensor) IsContiguous() bool {
	if t.offset != 0 {
		return false
	}
	expected := 1
	for i := len(t.shape) - 1; i >= 0; i-- {
		if t.shape[i] == 1 {
			continue
		}
		if t.strides[i] != expected {
			return false
		}
		expected *= t.shape[i]
	}
	return true
}

// ElementOffset returns the byte offset in Bytes() of the element at the
// given row-major logical index.
func (t *Tensor) ElementOffset(index int) int {
	off := t.offset
	for d := len(t.shape) - 1; d >= 0; d-- {
		dim := t.shape[d]
		off += (index % dim) * t.strides[d]
		index /= dim
	}
	return off * t.dtype.ElementSize()
}

// Element returns the bytes of the element at the given logical index.
func (t *Tensor) Element(index int) []byte {
	off := t.ElementOffset(index)
	return t.storage[off : off+t.dtype.ElementSize()]
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.shape, o.shape)
}

// Permute returns a view with dimensions reordered. The view shares storage
// and quantizer with t.
func (t *Tensor) Permute(dims ...int) (*Tensor, error) {
	if len(dims) != len(t.shape) {
		return nil, fmt.Errorf("tensor: permute: got %d dims for rank %d", len(dims), len(t.shape))
	}
	seen := make([]bool, len(dims))
	shape := make([]int, len(dims))
	strides := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 || d >= len(dims) || seen[d] {
			return nil, fmt.Errorf("tensor: permute: invalid dims %v", dims)
		}
		seen[d] = true
		shape[i] = t.shape[d]
		strides[i] = t.strides[d]
	}
	return &Tensor{
		shape:     shape,
		strides:   strides,
		offset:    t.offset,
		dtype:     t.dtype,
		storage:   t.storage,
		quantizer: t.quantizer,
	}, nil
}

// Contiguous returns t if it is already contiguous, otherwise a contiguous
// copy of its logical elements.
func (t *Tensor) Contiguous() *Tensor {
	if t.IsContiguous() && len(t.storage) == t.Numel()*t.dtype.ElementSize() {
		return t
	}
	elemSize := t.dtype.ElementSize()
	n := t.Numel()
	out := &Tensor{
		shape:     slices.Clone(t.shape),
		strides:   contiguousStrides(t.shape),
		dtype:     t.dtype,
		storage:   make([]byte, n*elemSize),
		quantizer: t.quantizer,
	}
	for i := range n {
		copy(out.storage[i*elemSize:(i+1)*elemSize], t.Element(i))
	}
	return out
}

func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor(dtype=%s, shape=%v", t.dtype, t.shape)
	if t.quantizer != nil {
		sb.WriteString(", ")
		sb.WriteString(t.quantizer.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func numel(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, ErrNegativeDim
		}
		if d != 0 && n > maxInt/d {
			return 0, ErrTooLarge
		}
		n *= d
	}
	return n, nil
}

func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= max(shape[i], 1)
	}
	return strides
}

const maxInt = int(^uint(0) >> 1)

var (
	ErrNegativeDim     = fmtError("tensor: negative dimension")
	ErrTooLarge        = fmtError("tensor: too large")
	ErrRawSizeMismatch = fmtError("raw data length mismatch")
	ErrShapeMismatch   = fmtError("shape mismatch")
	ErrNotQuantized    = fmtError("tensor is not quantized")
	ErrDTypeMismatch   = fmtError("dtype mismatch")

	errNilQuantizer = fmtError("tensor: nil quantizer")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
