package launch

import (
	"context"
	"errors"
	"sync"
)

type task struct {
	body       func(begin, end int)
	begin, end int
	done       chan error
}

// Pool is a fixed set of goroutines fed through a task channel.
type Pool struct {
	size  int
	grain int

	mu     sync.RWMutex
	closed bool
	tasks  chan task
}

// NewPool starts size workers. size < 1 is treated as 1.
func NewPool(size, grain int) *Pool {
	if size < 1 {
		size = 1
	}
	if grain <= 0 {
		grain = DefaultGrain
	}
	p := &Pool{
		size:  size,
		grain: grain,
		tasks: make(chan task, size*2),
	}
	for i := 0; i < size; i++ {
		go func() {
			for t := range p.tasks {
				t.done <- runChunk(t.body, t.begin, t.end)
			}
		}()
	}
	return p
}

func (p *Pool) Name() string { return CPU }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Launch splits [0, n) into grain-sized ranges and blocks until every
// dispatched range has finished. Cancellation stops further dispatch; ranges
// already handed to workers still complete.
func (p *Pool) Launch(ctx context.Context, n int, body func(begin, end int)) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	total := chunks(n, p.grain)
	if total == 1 || p.size == 1 {
		return launchSerial(ctx, n, p.grain, body)
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	done := make(chan error, total)
	dispatched := 0
	var stopErr error
dispatch:
	for c := 0; c < total; c++ {
		begin := c * p.grain
		end := min(begin+p.grain, n)
		select {
		case <-ctx.Done():
			stopErr = ctx.Err()
			break dispatch
		case p.tasks <- task{body: body, begin: begin, end: end, done: done}:
			dispatched++
		}
	}
	p.mu.RUnlock()

	var errs []error
	if stopErr != nil {
		errs = append(errs, stopErr)
	}
	for i := 0; i < dispatched; i++ {
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the workers once queued tasks drain. Launch returns ErrClosed
// afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}
