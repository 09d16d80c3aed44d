package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Device is a video device the kiosk may use
type Device struct {
	Path   string `yaml:"path"`
	Label  string `yaml:"label"`
	Facing Facing `yaml:"facing"`
}

// DeviceConfig is the on-disk camera configuration
type DeviceConfig struct {
	Devices []Device `yaml:"devices"`
	// Width and Height are used when the caller does not ask for a size
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	// FPS paces the decode loop; zero means the default
	FPS int `yaml:"fps"`
}

// LoadDevices reads a camera configuration file
func LoadDevices(path string) (*DeviceConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening camera config: %w", err)
	}
	defer f.Close()

	var cfg DeviceConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding camera config: %w", err)
	}

	for i, d := range cfg.Devices {
		if d.Path == "" {
			return nil, fmt.Errorf("camera config: device %d has no path", i)
		}
		switch d.Facing {
		case FacingAny, FacingEnvironment, FacingUser:
		default:
			return nil, fmt.Errorf("camera config: device %s has invalid facing %q", d.Path, d.Facing)
		}
		if d.Label == "" {
			cfg.Devices[i].Label = filepath.Base(d.Path)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *DeviceConfig) applyDefaults() {
	if c.Width == 0 || c.Height == 0 {
		c.Width, c.Height = 640, 480
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
}

// DiscoverDevices lists /dev/video* nodes. Their facing is unknown.
func DiscoverDevices() ([]Device, error) {
	return discoverDevices("/dev/video*")
}

func discoverDevices(pattern string) ([]Device, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing video devices: %w", err)
	}
	sort.Strings(paths)
	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, Device{Path: p, Label: filepath.Base(p)})
	}
	return devices, nil
}

// candidates orders devices for a constraint set. An empty result with a nil
// error means no device exists at all.
func candidates(devices []Device, c Constraints) ([]Device, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}

	if c.DeviceID != "" {
		for _, d := range devices {
			if d.Path == c.DeviceID || d.Label == c.DeviceID {
				return []Device{d}, nil
			}
		}
		return nil, fmt.Errorf("device %s: %w", c.DeviceID, ErrConstraintsUnsupported)
	}

	if c.Facing == FacingAny {
		return devices, nil
	}

	var matching, rest []Device
	for _, d := range devices {
		if d.Facing == c.Facing {
			matching = append(matching, d)
		} else {
			rest = append(rest, d)
		}
	}
	if c.Exact {
		if len(matching) == 0 {
			return nil, fmt.Errorf("no %s-facing camera: %w", c.Facing, ErrConstraintsUnsupported)
		}
		return matching, nil
	}
	return append(matching, rest...), nil
}
