// Package quantized builds per-tensor affine quantized tensors.
//
// MakePerTensorQuantized is the core operation: it tags raw integer data with
// a scale and zero-point and reinterprets each stored integer as the matching
// quantized scalar type. No arithmetic is applied to the values; the scale
// and zero-point only become meaningful in Dequantize.
package quantized

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samcharles93/qview/internal/dispatch"
	"github.com/samcharles93/qview/internal/iter"
	"github.com/samcharles93/qview/internal/launch"
	"github.com/samcharles93/qview/internal/logger"
	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

const (
	opMakePerTensor = "make_per_tensor_quantized_tensor"
	opIntRepr       = "int_repr"
	opDequantize    = "dequantize"
	opQuantize      = "quantize_per_tensor"
)

var (
	ErrNilTensor           = errors.New("quantized: nil tensor")
	ErrInvalidScale        = errors.New("quantized: scale must be finite and positive")
	ErrZeroPointOutOfRange = errors.New("quantized: zero point out of range")
	ErrNotFloating         = errors.New("quantized: input must be floating point")
)

// Engine runs quantization kernels on a launcher.
type Engine struct {
	launcher launch.Launcher
	log      logger.Logger
}

// NewEngine returns an Engine. A nil launcher runs kernels serially and a
// nil logger discards output.
func NewEngine(l launch.Launcher, log logger.Logger) *Engine {
	if l == nil {
		l = launch.NewSerial(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{launcher: l, log: log}
}

// Launcher returns the launcher kernels run on.
func (e *Engine) Launcher() launch.Launcher { return e.launcher }

// MakePerTensorQuantized returns a new contiguous quantized tensor with src's
// shape whose elements hold src's raw integers unchanged. The quantized type
// is determined by src's dtype (uint8 -> quint8, int8 -> qint8,
// int32 -> qint32); any other dtype is a dispatch error. scale and zeroPoint
// are recorded as given.
func (e *Engine) MakePerTensorQuantized(ctx context.Context, src *tensor.Tensor, scale float64, zeroPoint int64) (*tensor.Tensor, error) {
	if src == nil {
		return nil, ErrNilTensor
	}
	start := time.Now()
	qtype, err := dtype.ToQIntType(src.DType())
	if err != nil {
		return nil, &dispatch.UnsupportedError{Op: opMakePerTensor, Type: src.DType()}
	}
	dst, err := tensor.EmptyQuantized(src.Shape(), qtype, tensor.NewPerTensorAffine(scale, zeroPoint))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opMakePerTensor, err)
	}
	err = dispatch.QIntTypes(qtype, opMakePerTensor, func(k dispatch.QInt) error {
		return e.unary(ctx, dst, src, k.Reinterpret)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opMakePerTensor, err)
	}
	e.log.Debug("quantized view",
		"dtype", qtype.String(),
		"shape", dst.Shape(),
		"scale", scale,
		"zero_point", zeroPoint,
		"launcher", e.launcher.Name(),
		"elapsed", time.Since(start),
	)
	return dst, nil
}

// IntRepr returns a plain integer tensor holding q's stored values.
func (e *Engine) IntRepr(ctx context.Context, q *tensor.Tensor) (*tensor.Tensor, error) {
	if q == nil {
		return nil, ErrNilTensor
	}
	raw, err := dtype.ToUnderlying(q.DType())
	if err != nil || !q.IsQuantized() {
		return nil, fmt.Errorf("%s: %w", opIntRepr, tensor.ErrNotQuantized)
	}
	dst, err := tensor.Empty(q.Shape(), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opIntRepr, err)
	}
	err = dispatch.QIntTypes(q.DType(), opIntRepr, func(k dispatch.QInt) error {
		return e.unary(ctx, dst, q, k.IntRepr)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opIntRepr, err)
	}
	return dst, nil
}

// Dequantize returns a float32 tensor with (q - zero_point) * scale.
func (e *Engine) Dequantize(ctx context.Context, q *tensor.Tensor) (*tensor.Tensor, error) {
	if q == nil {
		return nil, ErrNilTensor
	}
	scale, err := q.QScale()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opDequantize, err)
	}
	zp, err := q.QZeroPoint()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opDequantize, err)
	}
	dst, err := tensor.Empty(q.Shape(), dtype.Float)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opDequantize, err)
	}
	err = dispatch.QIntTypes(q.DType(), opDequantize, func(k dispatch.QInt) error {
		return e.unary(ctx, dst, q, func(out, in []byte) {
			tensor.Store(dtype.Float, out, DequantizeValue(k.Load(in), scale, zp))
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opDequantize, err)
	}
	return dst, nil
}

// QuantizePerTensor rounds x / scale to the nearest integer (ties to even),
// adds zeroPoint, and clamps to qtype's range.
func (e *Engine) QuantizePerTensor(ctx context.Context, x *tensor.Tensor, scale float64, zeroPoint int64, qtype dtype.ScalarType) (*tensor.Tensor, error) {
	if x == nil {
		return nil, ErrNilTensor
	}
	if !x.DType().IsFloating() {
		return nil, fmt.Errorf("%s: %w: got %s", opQuantize, ErrNotFloating, x.DType())
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%s: %w: %v", opQuantize, ErrInvalidScale, scale)
	}
	err := dispatch.QIntTypes(qtype, opQuantize, func(k dispatch.QInt) error {
		if zeroPoint < k.Min || zeroPoint > k.Max {
			return fmt.Errorf("%w: %d not in [%d, %d] for %s", ErrZeroPointOutOfRange, zeroPoint, k.Min, k.Max, qtype)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opQuantize, err)
	}
	dst, err := tensor.EmptyQuantized(x.Shape(), qtype, tensor.NewPerTensorAffine(scale, zeroPoint))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opQuantize, err)
	}
	inv := 1 / scale
	src := x.DType()
	err = dispatch.QIntTypes(qtype, opQuantize, func(k dispatch.QInt) error {
		return e.unary(ctx, dst, x, func(out, in []byte) {
			k.Store(out, QuantizeValue(tensor.Load[float64](src, in), inv, zeroPoint, k.Min, k.Max))
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opQuantize, err)
	}
	return dst, nil
}

// unary runs fn(dstElem, srcElem) for every position of dst and src.
func (e *Engine) unary(ctx context.Context, dst, src *tensor.Tensor, fn func(out, in []byte)) error {
	it, err := iter.NewConfig().
		AddOutput(dst).
		AddInput(src).
		CheckAllSameDType(false).
		Build()
	if err != nil {
		return err
	}
	return e.launcher.Launch(ctx, it.Numel(), func(begin, end int) {
		it.ForRange(begin, end, func(elems [][]byte) {
			fn(elems[0], elems[1])
		})
	})
}

// DequantizeValue maps one stored integer to its real value.
func DequantizeValue(q int64, scale float64, zeroPoint int64) float32 {
	return float32(float64(q-zeroPoint) * scale)
}

// QuantizeValue maps one real value to a stored integer in [lo, hi].
// NaN maps to the zero point.
func QuantizeValue(x, invScale float64, zeroPoint, lo, hi int64) int64 {
	v := float64(zeroPoint) + math.RoundToEven(x*invScale)
	switch {
	case math.IsNaN(v):
		return min(max(zeroPoint, lo), hi)
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	default:
		return int64(v)
	}
}
