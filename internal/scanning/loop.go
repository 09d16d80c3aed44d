package scanning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultFrameInterval paces the loop when the source does not report a frame rate
const DefaultFrameInterval = time.Second / 30

// Loop polls a frame source until a code is decoded or it is stopped.
// At most one poll runs per Loop; starting a new one stops the previous.
type Loop struct {
	decoder Decoder

	mu      sync.Mutex
	current *run
}

// run is the state of one Start call
type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	fired   bool
}

// NewLoop creates a decode loop
func NewLoop(decoder Decoder) *Loop {
	return &Loop{decoder: decoder}
}

// Start begins decoding frames from src. onResult is called at most once,
// from the loop goroutine, after which the loop ends. The returned channel
// is closed when this run ends, with or without a result.
func (l *Loop) Start(ctx context.Context, src FrameSource, onResult func(text string)) <-chan struct{} {
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}

	l.mu.Lock()
	prev := l.current
	l.current = r
	l.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	go l.poll(ctx, r, src, onResult)
	return r.done
}

// Stop cancels the running loop, if any. Once Stop returns, the result
// callback of a loop that had not yet detected a code will never be called.
func (l *Loop) Stop() {
	l.mu.Lock()
	r := l.current
	l.current = nil
	l.mu.Unlock()

	if r != nil {
		r.stop()
	}
}

// Running reports whether a loop is still polling
func (l *Loop) Running() bool {
	l.mu.Lock()
	r := l.current
	l.mu.Unlock()
	if r == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *run) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
}

// commit claims the single result slot. It fails once the run was stopped.
func (r *run) commit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.fired {
		return false
	}
	r.fired = true
	return true
}

func (l *Loop) poll(ctx context.Context, r *run, src FrameSource, onResult func(string)) {
	defer close(r.done)
	defer r.cancel()

	interval := src.FrameInterval()
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// cancellation is observed once per iteration, never mid-frame
		if ctx.Err() != nil {
			return
		}

		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("Frame source closed, stopping decode loop")
				return
			}
			if ctx.Err() != nil {
				return
			}
			slog.Debug("Failed to read frame", "error", err)
			continue
		}

		text, err := l.decoder.Decode(frame)
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				slog.Debug("Decoder error", "error", err)
			}
			continue
		}

		if r.commit() {
			onResult(text)
		}
		return
	}
}
