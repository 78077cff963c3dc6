// Package launch runs element-wise kernels across CPU workers.
package launch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const (
	Auto   = "auto"
	CPU    = "cpu"
	Serial = "serial"
)

// DefaultGrain is the number of elements handed to a worker at a time.
const DefaultGrain = 32 * 1024

var (
	ErrClosed = errors.New("launch: launcher closed")
)

// Launcher executes body over [0, n) split into disjoint ranges. Ranges may
// run concurrently and in any order; body must only write elements inside
// the range it is given.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, n int, body func(begin, end int)) error
}

// Options configures New.
type Options struct {
	// Workers is the pool size. Zero means GOMAXPROCS.
	Workers int
	// Grain is the chunk size in elements. Zero means DefaultGrain.
	Grain int
}

// Normalize validates and canonicalises a launcher name.
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Auto, nil
	}
	switch n {
	case Auto, CPU, Serial:
		return n, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, or serial)", name)
	}
}

// New returns the launcher registered under name.
func New(name string, opts Options) (Launcher, error) {
	n, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	switch n {
	case Serial:
		return NewSerial(opts.Grain), nil
	case Auto:
		if workers <= 1 {
			return NewSerial(opts.Grain), nil
		}
	}
	return NewPool(workers, opts.Grain), nil
}

// Close releases launcher resources when the launcher holds any.
func Close(l Launcher) {
	if c, ok := l.(interface{ Close() }); ok {
		c.Close()
	}
}

// chunks returns the number of grain-sized ranges covering n.
func chunks(n, grain int) int {
	return (n + grain - 1) / grain
}

// runChunk calls body and converts a panic into an error.
func runChunk(body func(begin, end int), begin, end int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("launch: kernel panic in [%d,%d): %v", begin, end, r)
		}
	}()
	body(begin, end)
	return nil
}
