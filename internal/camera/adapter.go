package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Adapter holds at most one stream for a scan session
type Adapter struct {
	provider Provider

	mu        sync.Mutex
	stream    Stream
	acquiring bool
	// generation is bumped by Release so an in-flight Acquire can tell it was cancelled
	generation uint64
}

// NewAdapter creates an Adapter over the given provider
func NewAdapter(provider Provider) *Adapter {
	return &Adapter{provider: provider}
}

// fallbackChain returns the constraint sets to try, most specific first
func fallbackChain(preferred *Constraints) []Constraints {
	chain := make([]Constraints, 0, 4)
	if preferred != nil {
		chain = append(chain, *preferred)
	}
	return append(chain,
		Constraints{Facing: FacingEnvironment, Exact: true},
		Constraints{Facing: FacingEnvironment},
		Constraints{},
	)
}

// Acquire opens a stream, walking the fallback chain until one succeeds.
// If a stream is already held it is returned as is.
func (a *Adapter) Acquire(ctx context.Context, preferred *Constraints) (Stream, error) {
	a.mu.Lock()
	if a.stream != nil {
		s := a.stream
		a.mu.Unlock()
		return s, nil
	}
	if a.acquiring {
		a.mu.Unlock()
		return nil, ErrAcquireInProgress
	}
	a.acquiring = true
	gen := a.generation
	a.mu.Unlock()

	stream, err := a.open(ctx, preferred)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.acquiring = false
	if err != nil {
		return nil, err
	}
	if gen != a.generation {
		stream.Close()
		return nil, ErrReleased
	}
	a.stream = stream
	return stream, nil
}

func (a *Adapter) open(ctx context.Context, preferred *Constraints) (Stream, error) {
	chain := fallbackChain(preferred)
	var lastErr error
	for i, c := range chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("acquiring camera: %w", err)
		}
		stream, err := a.provider.Open(ctx, c)
		if err == nil {
			slog.Debug("Camera stream opened", "constraints", c.String(), "attempt", i+1)
			return stream, nil
		}
		slog.Debug("Camera open failed", "constraints", c.String(), "attempt", i+1, "error", err)
		lastErr = err
	}
	return nil, &UnavailableError{
		Kind:     Classify(lastErr),
		Attempts: len(chain),
		Err:      lastErr,
	}
}

// Release stops the held stream. Safe to call any number of times.
func (a *Adapter) Release() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.generation++
	a.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		slog.Warn("Failed to close camera stream", "error", err)
	}
}

// Held reports whether a stream is currently held
func (a *Adapter) Held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream != nil
}
