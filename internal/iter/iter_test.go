package iter

import (
	"errors"
	"testing"

	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

func mustSlice[T tensor.Number](t *testing.T, shape []int, data []T) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(shape, data)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	return x
}

func TestBuildRejectsShapeMismatch(t *testing.T) {
	t.Parallel()
	a := mustSlice(t, []int{2, 3}, make([]uint8, 6))
	b := mustSlice(t, []int{3, 2}, make([]uint8, 6))
	_, err := NewConfig().AddOutput(a).AddInput(b).Build()
	if !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestBuildDTypeCheck(t *testing.T) {
	t.Parallel()
	a := mustSlice(t, []int{4}, make([]uint8, 4))
	b := mustSlice(t, []int{4}, make([]int8, 4))
	if _, err := NewConfig().AddOutput(a).AddInput(b).Build(); !errors.Is(err, tensor.ErrDTypeMismatch) {
		t.Fatalf("expected ErrDTypeMismatch, got %v", err)
	}
	it, err := NewConfig().AddOutput(a).AddInput(b).CheckAllSameDType(false).Build()
	if err != nil {
		t.Fatalf("Build with dtype check disabled: %v", err)
	}
	if it.Numel() != 4 || it.NumOutputs() != 1 {
		t.Fatalf("numel=%d outputs=%d", it.Numel(), it.NumOutputs())
	}
}

func TestBuildRejectsNilAndEmpty(t *testing.T) {
	t.Parallel()
	if _, err := NewConfig().Build(); !errors.Is(err, ErrNoOperands) {
		t.Fatalf("expected ErrNoOperands, got %v", err)
	}
	a := mustSlice(t, []int{1}, []uint8{1})
	if _, err := NewConfig().AddOutput(nil).AddInput(a).Build(); !errors.Is(err, ErrUndefinedOperand) {
		t.Fatalf("expected ErrUndefinedOperand, got %v", err)
	}
}

func TestForRangeFollowsLogicalOrder(t *testing.T) {
	t.Parallel()
	src := mustSlice(t, []int{2, 3}, []uint8{0, 1, 2, 3, 4, 5})
	view, err := src.Permute(1, 0)
	if err != nil {
		t.Fatalf("Permute: %v", err)
	}
	dst, err := tensor.Empty([]int{3, 2}, dtype.Byte)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	it, err := NewConfig().AddOutput(dst).AddInput(view).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Split the range to mimic chunked launches.
	copyElem := func(elems [][]byte) { elems[0][0] = elems[1][0] }
	it.ForRange(0, 4, copyElem)
	it.ForRange(4, 100, copyElem)

	want := []byte{0, 3, 1, 4, 2, 5}
	got := dst.Bytes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dst = %v, want %v", got, want)
		}
	}
}
