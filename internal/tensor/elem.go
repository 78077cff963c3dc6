package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/qview/pkg/dtype"
)

// Number is the set of Go element types that can be loaded from and stored
// into tensor storage.
type Number interface {
	~uint8 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Load decodes one element of encoding dt from b and converts it to T.
// Quantized encodings decode their stored integer. Half and BFloat16 widen
// through float32.
func Load[T Number](dt dtype.ScalarType, b []byte) T {
	switch dt {
	case dtype.Byte, dtype.QUInt8, dtype.Bool:
		return T(b[0])
	case dtype.Char, dtype.QInt8:
		return T(int8(b[0]))
	case dtype.Short:
		return T(int16(binary.LittleEndian.Uint16(b)))
	case dtype.Int, dtype.QInt32:
		return T(int32(binary.LittleEndian.Uint32(b)))
	case dtype.Long:
		return T(int64(binary.LittleEndian.Uint64(b)))
	case dtype.Half:
		return T(fp16ToF32(binary.LittleEndian.Uint16(b)))
	case dtype.BFloat16:
		return T(math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16))
	case dtype.Float:
		return T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case dtype.Double:
		return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		panic(fmt.Sprintf("tensor: load from unsupported dtype %s", dt))
	}
}

// Store converts v to encoding dt and writes it to b. Integer targets
// truncate; Half and BFloat16 targets are not writable.
func Store[T Number](dt dtype.ScalarType, b []byte, v T) {
	switch dt {
	case dtype.Byte, dtype.QUInt8:
		b[0] = uint8(v)
	case dtype.Bool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case dtype.Char, dtype.QInt8:
		b[0] = byte(int8(v))
	case dtype.Short:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case dtype.Int, dtype.QInt32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case dtype.Long:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case dtype.Float:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case dtype.Double:
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
	default:
		panic(fmt.Sprintf("tensor: store to unsupported dtype %s", dt))
	}
}

// FromSlice allocates a contiguous tensor of T's scalar type and copies data
// into it.
func FromSlice[T Number](shape []int, data []T) (*Tensor, error) {
	dt := dtype.Of[T]()
	if dt == dtype.Unknown || dt.IsQuantized() {
		return nil, fmt.Errorf("tensor: %w: %T", dtype.ErrUnsupportedType, *new(T))
	}
	if err := checkCount(shape, len(data)); err != nil {
		return nil, err
	}
	t, err := Empty(shape, dt)
	if err != nil {
		return nil, err
	}
	size := dt.ElementSize()
	for i, v := range data {
		Store(dt, t.storage[i*size:], v)
	}
	return t, nil
}

// FromValues allocates a contiguous tensor of encoding dt and stores each
// value converted to dt. It is the untyped counterpart of FromSlice used by
// loaders that only know the dtype at runtime.
func FromValues[T Number](shape []int, dt dtype.ScalarType, data []T) (*Tensor, error) {
	if err := checkCount(shape, len(data)); err != nil {
		return nil, err
	}
	t, err := Empty(shape, dt)
	if err != nil {
		return nil, err
	}
	size := dt.ElementSize()
	for i, v := range data {
		Store(dt, t.storage[i*size:], v)
	}
	return t, nil
}

// checkCount fails before allocation when the element count of shape
// differs from n.
func checkCount(shape []int, n int) error {
	want, err := numel(shape)
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("tensor: %w: want %d elements, got %d", ErrRawSizeMismatch, want, n)
	}
	return nil
}

// Values copies the logical elements of t, in row-major order, converted to T.
func Values[T Number](t *Tensor) []T {
	n := t.Numel()
	out := make([]T, n)
	for i := range n {
		out[i] = Load[T](t.dtype, t.Element(i))
	}
	return out
}

func fp16ToF32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
