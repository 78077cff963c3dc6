package tensor

import (
	"fmt"
	"strconv"
)

// QScheme names a quantization scheme.
type QScheme string

const (
	PerTensorAffine QScheme = "per_tensor_affine"
)

// Quantizer describes how stored quantized integers map to real values.
type Quantizer interface {
	QScheme() QScheme
	String() string
}

// PerTensorAffineQuantizer applies one scale and zero-point to every element:
// real = (q - ZeroPoint) * Scale.
type PerTensorAffineQuantizer struct {
	Scale     float64
	ZeroPoint int64
}

// NewPerTensorAffine returns a per-tensor affine quantizer.
func NewPerTensorAffine(scale float64, zeroPoint int64) *PerTensorAffineQuantizer {
	return &PerTensorAffineQuantizer{Scale: scale, ZeroPoint: zeroPoint}
}

func (q *PerTensorAffineQuantizer) QScheme() QScheme { return PerTensorAffine }

func (q *PerTensorAffineQuantizer) String() string {
	return "scale=" + strconv.FormatFloat(q.Scale, 'g', -1, 64) +
		", zero_point=" + strconv.FormatInt(q.ZeroPoint, 10)
}

// IsQuantized reports whether t carries a quantizer.
func (t *Tensor) IsQuantized() bool { return t.quantizer != nil }

// Quantizer returns the quantizer, or nil for plain tensors.
func (t *Tensor) Quantizer() Quantizer { return t.quantizer }

// QScale returns the per-tensor scale.
func (t *Tensor) QScale() (float64, error) {
	q, err := t.perTensor()
	if err != nil {
		return 0, err
	}
	return q.Scale, nil
}

// QZeroPoint returns the per-tensor zero-point.
func (t *Tensor) QZeroPoint() (int64, error) {
	q, err := t.perTensor()
	if err != nil {
		return 0, err
	}
	return q.ZeroPoint, nil
}

func (t *Tensor) perTensor() (*PerTensorAffineQuantizer, error) {
	if t.quantizer == nil {
		return nil, ErrNotQuantized
	}
	q, ok := t.quantizer.(*PerTensorAffineQuantizer)
	if !ok {
		return nil, fmt.Errorf("tensor: expected %s quantizer, got %s", PerTensorAffine, t.quantizer.QScheme())
	}
	return q, nil
}
