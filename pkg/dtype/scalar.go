package dtype

// Quint8 is an unsigned 8-bit quantized value. The represented real value is
// (v - zero_point) * scale, with scale and zero_point stored on the tensor.
type Quint8 uint8

// Qint8 is a signed 8-bit quantized value.
type Qint8 int8

// Qint32 is a signed 32-bit quantized value.
type Qint32 int32

// Raw is the set of raw storage types that have a quantized counterpart.
type Raw interface {
	uint8 | int8 | int32
}

// QInt is the set of quantized scalar types.
type QInt interface {
	Quint8 | Qint8 | Qint32
}

// Of returns the ScalarType for a Go element type, or Unknown.
func Of[T any]() ScalarType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return Bool
	case uint8:
		return Byte
	case int8:
		return Char
	case int16:
		return Short
	case int32:
		return Int
	case int64:
		return Long
	case float32:
		return Float
	case float64:
		return Double
	case Quint8:
		return QUInt8
	case Qint8:
		return QInt8
	case Qint32:
		return QInt32
	default:
		return Unknown
	}
}
