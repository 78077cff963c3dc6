package api

import (
	"fmt"
	"math"

	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

// PerTensorRequest carries raw integer data to be viewed as a quantized
// tensor.
type PerTensorRequest struct {
	DType     string    `json:"dtype"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	Scale     float64   `json:"scale"`
	ZeroPoint int64     `json:"zero_point"`
}

// QuantizedInput names a quantized tensor either by the id of a stored
// result or inline, by quantized dtype, shape, stored integers and
// parameters.
type QuantizedInput struct {
	ID        string    `json:"id,omitempty"`
	DType     string    `json:"dtype,omitempty"`
	Shape     []int     `json:"shape,omitempty"`
	Data      []float64 `json:"data,omitempty"`
	Scale     float64   `json:"scale,omitempty"`
	ZeroPoint int64     `json:"zero_point,omitempty"`
}

// QuantizeRequest carries real values to be quantized.
type QuantizeRequest struct {
	DType     string    `json:"dtype"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	Scale     float64   `json:"scale"`
	ZeroPoint int64     `json:"zero_point"`
}

// TensorObject is the wire form of a tensor. Quantized tensors carry their
// scale and zero-point and report their stored integers as data.
type TensorObject struct {
	ID        string    `json:"id,omitempty"`
	Object    string    `json:"object"`
	CreatedAt int64     `json:"created_at,omitempty"`
	DType     string    `json:"dtype"`
	Shape     []int     `json:"shape"`
	QScheme   string    `json:"qscheme,omitempty"`
	Scale     *float64  `json:"scale,omitempty"`
	ZeroPoint *int64    `json:"zero_point,omitempty"`
	Data      []float64 `json:"data"`
}

type DTypeInfo struct {
	Name       string `json:"name"`
	Size       int    `json:"size"`
	Quantized  bool   `json:"quantized"`
	Underlying string `json:"underlying,omitempty"`
	QuantType  string `json:"quantized_type,omitempty"`
	Min        *int64 `json:"min,omitempty"`
	Max        *int64 `json:"max,omitempty"`
}

type DeleteTensorResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// tensorObject renders t for the wire. NaN and Inf have no JSON encoding
// and are reported against scale.
func tensorObject(t *tensor.Tensor) (TensorObject, error) {
	obj := TensorObject{
		Object: "tensor",
		DType:  t.DType().String(),
		Shape:  t.Shape(),
		Data:   tensor.Values[float64](t),
	}
	if obj.Shape == nil {
		obj.Shape = []int{}
	}
	for i, v := range obj.Data {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return TensorObject{}, newInvalidRequest("scale",
				fmt.Sprintf("element %d of the %s result is %v; scale overflows the output type", i, obj.DType, v))
		}
	}
	if q, ok := t.Quantizer().(*tensor.PerTensorAffineQuantizer); ok {
		scale, zp := q.Scale, q.ZeroPoint
		obj.QScheme = string(q.QScheme())
		obj.Scale = &scale
		obj.ZeroPoint = &zp
	}
	return obj, nil
}

func recordObject(rec *tensorRecord) (TensorObject, error) {
	obj, err := tensorObject(rec.Tensor)
	if err != nil {
		return obj, err
	}
	obj.ID = rec.ID
	obj.CreatedAt = rec.CreatedAt.Unix()
	return obj, nil
}

// tensorFromData builds a contiguous tensor of dt from JSON numbers. Integer
// targets reject fractional and out-of-range values rather than truncating.
func tensorFromData(name string, shape []int, data []float64) (*tensor.Tensor, error) {
	dt, err := dtype.Parse(name)
	if err != nil {
		return nil, err
	}
	switch dt {
	case dtype.Half, dtype.BFloat16:
		return nil, newInvalidRequest("dtype", fmt.Sprintf("dtype %s cannot be built from request data", dt))
	}
	if dt.IsQuantized() {
		return nil, newInvalidRequest("dtype", fmt.Sprintf("dtype %s is quantized; send its integer type", dt))
	}
	if shape == nil {
		return nil, newInvalidRequest("shape", "shape is required")
	}
	if lo, hi, ok := intRange(dt); ok {
		for i, v := range data {
			if v != math.Trunc(v) || v < lo || v > hi {
				return nil, newInvalidRequest("data", fmt.Sprintf("data[%d] = %v is not a valid %s", i, v, dt))
			}
		}
	}
	t, err := tensor.FromValues(shape, dt, data)
	if err != nil {
		return nil, newInvalidRequest("data", err.Error())
	}
	return t, nil
}

func intRange(dt dtype.ScalarType) (lo, hi float64, ok bool) {
	switch dt {
	case dtype.Bool:
		return 0, 1, true
	case dtype.Byte:
		return 0, math.MaxUint8, true
	case dtype.Char:
		return math.MinInt8, math.MaxInt8, true
	case dtype.Short:
		return math.MinInt16, math.MaxInt16, true
	case dtype.Int:
		return math.MinInt32, math.MaxInt32, true
	case dtype.Long:
		// float64 cannot represent MaxInt64 exactly; 2^63 itself is out of range.
		return math.MinInt64, math.Nextafter(math.MaxInt64, 0), true
	default:
		return 0, 0, false
	}
}

func dtypeInfo(t dtype.ScalarType) DTypeInfo {
	info := DTypeInfo{
		Name:      t.String(),
		Size:      t.ElementSize(),
		Quantized: t.IsQuantized(),
	}
	if raw, err := dtype.ToUnderlying(t); err == nil {
		info.Underlying = raw.String()
	}
	if q, err := dtype.ToQIntType(t); err == nil {
		info.QuantType = q.String()
	}
	if lo, hi, err := dtype.QRange(t); err == nil {
		info.Min, info.Max = &lo, &hi
	}
	return info
}
