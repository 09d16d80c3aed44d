package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"
)

// frameWaitSeconds bounds how long a single ReadFrame blocks on the driver
const frameWaitSeconds = 1

// ErrNoFrame is returned when the driver had no frame ready in time
var ErrNoFrame = errors.New("no frame available")

// V4L2Provider opens Linux video devices
type V4L2Provider struct {
	config DeviceConfig
}

// NewV4L2Provider creates a provider. With a nil config the devices are
// discovered from /dev/video* on every Open.
func NewV4L2Provider(cfg *DeviceConfig) *V4L2Provider {
	p := &V4L2Provider{}
	if cfg != nil {
		p.config = *cfg
	}
	p.config.applyDefaults()
	return p
}

func (p *V4L2Provider) devices() ([]Device, error) {
	if len(p.config.Devices) > 0 {
		return p.config.Devices, nil
	}
	return DiscoverDevices()
}

// Open opens the first device satisfying the constraints
func (p *V4L2Provider) Open(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := p.devices()
	if err != nil {
		return nil, err
	}
	list, err := candidates(devices, c)
	if err != nil {
		return nil, err
	}

	width, height := c.Width, c.Height
	if width == 0 || height == 0 {
		width, height = p.config.Width, p.config.Height
	}

	var lastErr error
	for _, d := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stream, err := p.openDevice(d, width, height)
		if err == nil {
			return stream, nil
		}
		slog.Debug("Video device rejected", "device", d.Path, "error", err)
		lastErr = err
	}
	return nil, lastErr
}

func (p *V4L2Provider) openDevice(d Device, width, height uint32) (*v4l2Stream, error) {
	cam, err := webcam.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", d.Path, classifyOpenError(err))
	}

	format, ok := pickFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, fmt.Errorf("%s has no MJPEG or YUYV format: %w", d.Path, ErrConstraintsUnsupported)
	}

	f, w, h, err := cam.SetImageFormat(format, width, height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("setting format on %s: %w", d.Path, ErrConstraintsUnsupported)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("starting stream on %s: %w", d.Path, classifyOpenError(err))
	}

	slog.Info("Camera started", "device", d.Path, "label", d.Label, "width", w, "height", h)
	return &v4l2Stream{
		cam:      cam,
		device:   d.Path,
		format:   uint32(f),
		width:    int(w),
		height:   int(h),
		interval: time.Second / time.Duration(p.config.FPS),
	}, nil
}

func pickFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for _, want := range []uint32{pixelFormatMJPEG, pixelFormatYUYV} {
		if _, ok := formats[webcam.PixelFormat(want)]; ok {
			return webcam.PixelFormat(want), true
		}
	}
	return 0, false
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	default:
		return err
	}
}

type v4l2Stream struct {
	cam      *webcam.Webcam
	device   string
	format   uint32
	width    int
	height   int
	interval time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *v4l2Stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}

	err := s.cam.WaitForFrame(frameWaitSeconds)
	var timeout *webcam.Timeout
	if errors.As(err, &timeout) {
		return nil, ErrNoFrame
	}
	if err != nil {
		return nil, fmt.Errorf("waiting for frame: %w", err)
	}

	data, err := s.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	return decodeFrame(s.format, data, s.width, s.height)
}

func (s *v4l2Stream) FrameInterval() time.Duration {
	return s.interval
}

func (s *v4l2Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.cam.StopStreaming(); err != nil {
		slog.Warn("Failed to stop streaming", "device", s.device, "error", err)
	}
	if err := s.cam.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.device, err)
	}
	slog.Info("Camera stopped", "device", s.device)
	return nil
}
