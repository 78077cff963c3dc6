// Package iter walks equally shaped tensors element by element.
//
// It is the narrow iteration layer kernels run on: operands are declared on a
// Config, validated once by Build, and the resulting Iterator hands each
// element's bytes to a per-element function over any index range. There is
// no broadcasting; every operand must have exactly the same shape.
package iter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/qview/internal/tensor"
)

var (
	ErrUndefinedOperand = errors.New("iter: undefined operand")
	ErrNoOperands       = errors.New("iter: no operands")
)

// Config collects operands before building an Iterator.
// Outputs are always ordered before inputs.
type Config struct {
	outputs       []*tensor.Tensor
	inputs        []*tensor.Tensor
	checkSameType bool
}

// NewConfig returns a Config that requires all operands to share a dtype.
func NewConfig() *Config {
	return &Config{checkSameType: true}
}

// AddOutput declares an output operand. Outputs must be preallocated.
func (c *Config) AddOutput(t *tensor.Tensor) *Config {
	c.outputs = append(c.outputs, t)
	return c
}

// AddInput declares an input operand.
func (c *Config) AddInput(t *tensor.Tensor) *Config {
	c.inputs = append(c.inputs, t)
	return c
}

// CheckAllSameDType toggles the dtype equality check. Kernels that read one
// encoding and write another must disable it.
func (c *Config) CheckAllSameDType(check bool) *Config {
	c.checkSameType = check
	return c
}

// Iterator visits the elements of its operands in row-major order.
type Iterator struct {
	operands []*tensor.Tensor
	nOutputs int
	shape    []int
	numel    int
}

// Build validates the declared operands.
func (c *Config) Build() (*Iterator, error) {
	ops := make([]*tensor.Tensor, 0, len(c.outputs)+len(c.inputs))
	ops = append(ops, c.outputs...)
	ops = append(ops, c.inputs...)
	if len(ops) == 0 {
		return nil, ErrNoOperands
	}
	for i, op := range ops {
		if op == nil {
			return nil, fmt.Errorf("%w: operand %d", ErrUndefinedOperand, i)
		}
	}
	first := ops[0]
	for i, op := range ops[1:] {
		if !first.SameShape(op) {
			return nil, fmt.Errorf("iter: operand %d: %w: %v vs %v", i+1, tensor.ErrShapeMismatch, op.Shape(), first.Shape())
		}
		if c.checkSameType && op.DType() != first.DType() {
			return nil, fmt.Errorf("iter: operand %d: %w: %s vs %s", i+1, tensor.ErrDTypeMismatch, op.DType(), first.DType())
		}
	}
	return &Iterator{
		operands: ops,
		nOutputs: len(c.outputs),
		shape:    first.Shape(),
		numel:    first.Numel(),
	}, nil
}

// Numel returns the number of element positions.
func (it *Iterator) Numel() int { return it.numel }

// Shape returns the common operand shape.
func (it *Iterator) Shape() []int { return slices.Clone(it.shape) }

// NumOutputs returns how many leading operands are outputs.
func (it *Iterator) NumOutputs() int { return it.nOutputs }

// Operand returns the i-th operand, outputs first.
func (it *Iterator) Operand(i int) *tensor.Tensor { return it.operands[i] }

// ForRange calls fn for each element index in [begin, end). elems holds the
// bytes of that element for every operand, outputs first. The slice is
// reused between calls and must not be retained.
func (it *Iterator) ForRange(begin, end int, fn func(elems [][]byte)) {
	if begin < 0 {
		begin = 0
	}
	end = min(end, it.numel)
	elems := make([][]byte, len(it.operands))
	for i := begin; i < end; i++ {
		for k, op := range it.operands {
			elems[k] = op.Element(i)
		}
		fn(elems)
	}
}
