package dtype

import "fmt"

// SafetensorsName returns the dtype string used in safetensors headers.
// Quantized types are stored under their raw storage name.
func (t ScalarType) SafetensorsName() (string, error) {
	if t.IsQuantized() {
		raw, err := ToUnderlying(t)
		if err != nil {
			return "", err
		}
		t = raw
	}
	switch t {
	case Bool:
		return "BOOL", nil
	case Byte:
		return "U8", nil
	case Char:
		return "I8", nil
	case Short:
		return "I16", nil
	case Int:
		return "I32", nil
	case Long:
		return "I64", nil
	case Half:
		return "F16", nil
	case BFloat16:
		return "BF16", nil
	case Float:
		return "F32", nil
	case Double:
		return "F64", nil
	default:
		return "", fmt.Errorf("%w: %s has no safetensors name", ErrUnsupportedType, t)
	}
}

// ParseSafetensors resolves a safetensors header dtype string.
func ParseSafetensors(name string) (ScalarType, error) {
	switch name {
	case "BOOL":
		return Bool, nil
	case "U8":
		return Byte, nil
	case "I8":
		return Char, nil
	case "I16":
		return Short, nil
	case "I32":
		return Int, nil
	case "I64":
		return Long, nil
	case "F16":
		return Half, nil
	case "BF16":
		return BFloat16, nil
	case "F32":
		return Float, nil
	case "F64":
		return Double, nil
	default:
		return Unknown, fmt.Errorf("%w: safetensors dtype %q", ErrUnsupportedType, name)
	}
}
