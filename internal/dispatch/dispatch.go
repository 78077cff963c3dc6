// Package dispatch selects element kernels for a concrete scalar type.
//
// Each supported quantized type maps to one generic instantiation over its
// Go raw and quantized scalar types; callers receive the instantiated
// element functions and never switch on dtypes themselves.
package dispatch

import (
	"fmt"

	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

// UnsupportedError reports a dispatch-table miss.
type UnsupportedError struct {
	Op   string
	Type dtype.ScalarType
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%q not implemented for %s", e.Op, e.Type)
}

func (e *UnsupportedError) Unwrap() error { return dtype.ErrUnsupportedType }

// QInt holds the element functions for one quantized type.
type QInt struct {
	QType      dtype.ScalarType
	Underlying dtype.ScalarType
	Min, Max   int64

	// Reinterpret stores one raw element as the quantized type, bit for bit.
	Reinterpret func(dst, src []byte)
	// IntRepr stores one quantized element as its raw storage type.
	IntRepr func(dst, src []byte)
	// Load reads a quantized element as int64.
	Load func(b []byte) int64
	// Store writes v, which must lie in [Min, Max], as a quantized element.
	Store func(b []byte, v int64)
}

// QIntTypes calls fn with the element functions for qtype.
func QIntTypes(qtype dtype.ScalarType, op string, fn func(k QInt) error) error {
	switch qtype {
	case dtype.QUInt8:
		return fn(qint[uint8, dtype.Quint8](qtype))
	case dtype.QInt8:
		return fn(qint[int8, dtype.Qint8](qtype))
	case dtype.QInt32:
		return fn(qint[int32, dtype.Qint32](qtype))
	default:
		return &UnsupportedError{Op: op, Type: qtype}
	}
}

// RawTypes resolves the quantized counterpart of raw and dispatches on it.
func RawTypes(raw dtype.ScalarType, op string, fn func(k QInt) error) error {
	qtype, err := dtype.ToQIntType(raw)
	if err != nil {
		return &UnsupportedError{Op: op, Type: raw}
	}
	return QIntTypes(qtype, op, fn)
}

func qint[R dtype.Raw, Q dtype.QInt](qtype dtype.ScalarType) QInt {
	raw := dtype.Of[R]()
	lo, hi, _ := dtype.QRange(qtype)
	return QInt{
		QType:      qtype,
		Underlying: raw,
		Min:        lo,
		Max:        hi,
		Reinterpret: func(dst, src []byte) {
			r := tensor.Load[R](raw, src)
			tensor.Store(qtype, dst, Q(r))
		},
		IntRepr: func(dst, src []byte) {
			q := tensor.Load[Q](qtype, src)
			tensor.Store(raw, dst, R(q))
		},
		Load: func(b []byte) int64 {
			return int64(tensor.Load[Q](qtype, b))
		},
		Store: func(b []byte, v int64) {
			tensor.Store(qtype, b, Q(v))
		},
	}
}
