// Package dtype describes tensor element encodings, including the quantized
// integer encodings that pair raw storage with an external scale and
// zero-point.
package dtype

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ScalarType identifies the tensor element encoding.
// Keep these stable forever; add new values only.
type ScalarType uint32

const (
	Unknown ScalarType = iota
	Bool
	Byte  // uint8
	Char  // int8
	Short // int16
	Int   // int32
	Long  // int64
	Half
	BFloat16
	Float
	Double

	// Quantized encodings live in a higher range.
	QUInt8 ScalarType = 0x100
	QInt8  ScalarType = 0x101
	QInt32 ScalarType = 0x102
)

// ErrUnsupportedType is returned when a scalar type has no counterpart for
// the requested mapping.
var ErrUnsupportedType = errors.New("unsupported scalar type")

// ElementSize returns the number of bytes per element, or 0 for Unknown.
func (t ScalarType) ElementSize() int {
	switch t {
	case Bool, Byte, Char, QUInt8, QInt8:
		return 1
	case Short, Half, BFloat16:
		return 2
	case Int, Float, QInt32:
		return 4
	case Long, Double:
		return 8
	default:
		return 0
	}
}

func (t ScalarType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Byte:
		return "uint8"
	case Char:
		return "int8"
	case Short:
		return "int16"
	case Int:
		return "int32"
	case Long:
		return "int64"
	case Half:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float:
		return "float32"
	case Double:
		return "float64"
	case QUInt8:
		return "quint8"
	case QInt8:
		return "qint8"
	case QInt32:
		return "qint32"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Parse resolves a name produced by String.
func Parse(name string) (ScalarType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, t := range All() {
		if t.String() == n {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

// All lists every known scalar type in declaration order.
func All() []ScalarType {
	return []ScalarType{
		Bool, Byte, Char, Short, Int, Long, Half, BFloat16, Float, Double,
		QUInt8, QInt8, QInt32,
	}
}

// IsQuantized reports whether t is one of the quantized encodings.
func (t ScalarType) IsQuantized() bool {
	switch t {
	case QUInt8, QInt8, QInt32:
		return true
	default:
		return false
	}
}

// IsInteger reports whether t is a plain (non-quantized) integer encoding.
func (t ScalarType) IsInteger() bool {
	switch t {
	case Byte, Char, Short, Int, Long:
		return true
	default:
		return false
	}
}

// IsFloating reports whether t is a floating point encoding.
func (t ScalarType) IsFloating() bool {
	switch t {
	case Half, BFloat16, Float, Double:
		return true
	default:
		return false
	}
}

// ToQIntType maps a raw storage type to its quantized counterpart.
func ToQIntType(raw ScalarType) (ScalarType, error) {
	switch raw {
	case Byte:
		return QUInt8, nil
	case Char:
		return QInt8, nil
	case Int:
		return QInt32, nil
	default:
		return Unknown, fmt.Errorf("%w: no quantized counterpart for %s", ErrUnsupportedType, raw)
	}
}

// ToUnderlying maps a quantized type back to its raw storage type.
func ToUnderlying(q ScalarType) (ScalarType, error) {
	switch q {
	case QUInt8:
		return Byte, nil
	case QInt8:
		return Char, nil
	case QInt32:
		return Int, nil
	default:
		return Unknown, fmt.Errorf("%w: %s is not quantized", ErrUnsupportedType, q)
	}
}

// QRange returns the inclusive range of values representable by q.
func QRange(q ScalarType) (lo, hi int64, err error) {
	switch q {
	case QUInt8:
		return 0, math.MaxUint8, nil
	case QInt8:
		return math.MinInt8, math.MaxInt8, nil
	case QInt32:
		return math.MinInt32, math.MaxInt32, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s is not quantized", ErrUnsupportedType, q)
	}
}
