package scanning

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrNoCode means a frame held no readable code
var ErrNoCode = errors.New("no code detected")

// Decoder defines the interface for extracting a code payload from a frame
type Decoder interface {
	// Decode returns the payload of the first code found, or ErrNoCode
	Decode(img image.Image) (string, error)
}

// FrameSource supplies live frames to the decode loop
type FrameSource interface {
	// ReadFrame returns the current frame. io.EOF means the source is gone.
	ReadFrame(ctx context.Context) (image.Image, error)
	// FrameInterval is the natural frame spacing, zero if unknown
	FrameInterval() time.Duration
}
