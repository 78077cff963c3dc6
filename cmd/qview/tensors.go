package main

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/qview/internal/safetensors"
	"github.com/samcharles93/qview/internal/tensor"
)

// selectTensors returns names verbatim when given, otherwise every tensor in
// f that eligible accepts, in sorted order.
func selectTensors(f *safetensors.File, names []string, eligible func(safetensors.TensorInfo) bool) ([]string, error) {
	if len(names) > 0 {
		for _, name := range names {
			if _, ok := f.Info(name); !ok {
				return nil, fmt.Errorf("%w: %s", safetensors.ErrTensorNotFound, name)
			}
		}
		return names, nil
	}
	var out []string
	for _, name := range f.Names() {
		info, _ := f.Info(name)
		if eligible(info) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no eligible tensors in %s", f.Path)
	}
	return out, nil
}

// transformAll runs fn over the selected tensors concurrently. Results keep
// the order of names.
func transformAll(ctx context.Context, f *safetensors.File, names []string, fn func(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error)) ([]*tensor.Tensor, error) {
	results := make([]*tensor.Tensor, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			x, err := f.Tensor(name)
			if err != nil {
				return err
			}
			out, err := fn(gctx, x)
			if err != nil {
				return fmt.Errorf("tensor %s: %w", name, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// outputEntries pairs the transformed tensors with the untouched rest of f,
// unless only is set.
func outputEntries(f *safetensors.File, names []string, results []*tensor.Tensor, only bool) ([]safetensors.Entry, error) {
	replaced := make(map[string]*tensor.Tensor, len(names))
	for i, name := range names {
		replaced[name] = results[i]
	}
	var entries []safetensors.Entry
	for _, name := range f.Names() {
		if t, ok := replaced[name]; ok {
			entries = append(entries, safetensors.Entry{Name: name, Tensor: t})
			continue
		}
		if only {
			continue
		}
		t, err := f.Tensor(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, safetensors.Entry{Name: name, Tensor: t})
	}
	return entries, nil
}
