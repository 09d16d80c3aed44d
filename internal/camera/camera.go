package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// Facing describes which way a camera points
type Facing string

const (
	FacingAny         Facing = ""
	FacingEnvironment Facing = "environment" // rear camera
	FacingUser        Facing = "user"        // front camera
)

// Constraints describe the stream a caller wants
type Constraints struct {
	DeviceID string `json:"device_id,omitempty" yaml:"device_id"`
	Facing   Facing `json:"facing,omitempty" yaml:"facing"`
	// Exact requires the facing to match instead of merely preferring it
	Exact  bool   `json:"exact,omitempty" yaml:"exact"`
	Width  uint32 `json:"width,omitempty" yaml:"width"`
	Height uint32 `json:"height,omitempty" yaml:"height"`
}

func (c Constraints) String() string {
	switch {
	case c.DeviceID != "":
		return fmt.Sprintf("device=%s", c.DeviceID)
	case c.Facing != FacingAny && c.Exact:
		return fmt.Sprintf("facing=%s (exact)", c.Facing)
	case c.Facing != FacingAny:
		return fmt.Sprintf("facing=%s", c.Facing)
	default:
		return "any"
	}
}

// Stream is a live video stream held by one scan session
type Stream interface {
	// ReadFrame returns the next frame. It returns io.EOF once the stream is closed.
	ReadFrame(ctx context.Context) (image.Image, error)
	// FrameInterval is the natural spacing between frames, zero if unknown
	FrameInterval() time.Duration
	// Close stops every track of the stream
	Close() error
}

// Provider opens camera streams. Implementations return errors matching
// ErrPermissionDenied, ErrNoDevice or ErrConstraintsUnsupported where they can.
type Provider interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

var (
	ErrPermissionDenied       = errors.New("camera permission denied")
	ErrNoDevice               = errors.New("no camera found")
	ErrConstraintsUnsupported = errors.New("camera constraints unsupported")
	ErrCameraUnavailable      = errors.New("camera unavailable")
	ErrAcquireInProgress      = errors.New("camera acquisition already in progress")
	ErrReleased               = errors.New("camera released during acquisition")
)

// Kind classifies why a camera could not be opened
type Kind string

const (
	KindPermissionDenied Kind = "permission-denied"
	KindNotFound         Kind = "not-found"
	KindOverconstrained  Kind = "overconstrained"
	KindOther            Kind = "other"
)

// Classify maps a provider error to a Kind
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNoDevice):
		return KindNotFound
	case errors.Is(err, ErrConstraintsUnsupported):
		return KindOverconstrained
	default:
		return KindOther
	}
}

// UnavailableError is returned when every constraint set in the fallback chain failed
type UnavailableError struct {
	Kind     Kind
	Attempts int
	Err      error // last underlying error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("camera unavailable after %d attempts (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCameraUnavailable
}

// Remedy returns a message telling the user what to do about a camera error
func Remedy(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAcquireInProgress) {
		return "The camera is already starting. Please wait."
	}
	switch Classify(err) {
	case KindPermissionDenied:
		return "Camera permission was denied. Grant camera access and retry, or enter the printer address manually."
	case KindNotFound:
		return "No camera was found on this device. Enter the printer address manually."
	case KindOverconstrained:
		return "The requested camera settings are not supported on this device. Enter the printer address manually."
	default:
		return "Failed to start camera. Retry, or enter the printer address manually."
	}
}
