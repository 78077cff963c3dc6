package launch

import "context"

// SerialLauncher runs every range on the calling goroutine.
type SerialLauncher struct {
	grain int
}

func NewSerial(grain int) *SerialLauncher {
	if grain <= 0 {
		grain = DefaultGrain
	}
	return &SerialLauncher{grain: grain}
}

func (s *SerialLauncher) Name() string { return Serial }

func (s *SerialLauncher) Launch(ctx context.Context, n int, body func(begin, end int)) error {
	return launchSerial(ctx, n, s.grain, body)
}

func launchSerial(ctx context.Context, n, grain int, body func(begin, end int)) error {
	for begin := 0; begin < n; begin += grain {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runChunk(body, begin, min(begin+grain, n)); err != nil {
			return err
		}
	}
	return nil
}
