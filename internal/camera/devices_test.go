package camera

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadDevices", func() {
	var (
		path string
		cfg  *DeviceConfig
		err  error
	)

	writeConfig := func(content string) {
		path = filepath.Join(GinkgoT().TempDir(), "cameras.yaml")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	}

	JustBeforeEach(func() {
		cfg, err = LoadDevices(path)
	})

	When("the file is valid", func() {
		BeforeEach(func() {
			writeConfig(`
devices:
  - path: /dev/video0
    label: rear
    facing: environment
  - path: /dev/video2
    facing: user
fps: 15
`)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the devices", func() {
			Expect(cfg.Devices).To(Equal([]Device{
				{Path: "/dev/video0", Label: "rear", Facing: FacingEnvironment},
				{Path: "/dev/video2", Label: "video2", Facing: FacingUser},
			}))
		})

		It("should apply size defaults", func() {
			Expect(cfg.Width).To(Equal(uint32(640)))
			Expect(cfg.Height).To(Equal(uint32(480)))
			Expect(cfg.FPS).To(Equal(15))
		})
	})

	When("a device has an invalid facing", func() {
		BeforeEach(func() {
			writeConfig("devices:\n  - path: /dev/video0\n    facing: sideways\n")
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("invalid facing")))
		})
	})

	When("a device has no path", func() {
		BeforeEach(func() {
			writeConfig("devices:\n  - label: rear\n")
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("has no path")))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "missing.yaml")
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("discoverDevices", func() {
	It("lists matching nodes in order", func() {
		dir := GinkgoT().TempDir()
		for _, name := range []string{"video2", "video0"} {
			Expect(os.WriteFile(filepath.Join(dir, name), nil, 0644)).To(Succeed())
		}
		devices, err := discoverDevices(filepath.Join(dir, "video*"))
		Expect(err).NotTo(HaveOccurred())
		Expect(devices).To(HaveLen(2))
		Expect(devices[0].Label).To(Equal("video0"))
		Expect(devices[0].Facing).To(Equal(FacingAny))
	})
})

var _ = Describe("candidates", func() {
	var (
		rear  = Device{Path: "/dev/video0", Label: "rear", Facing: FacingEnvironment}
		front = Device{Path: "/dev/video1", Label: "front", Facing: FacingUser}
		usb   = Device{Path: "/dev/video2", Label: "usb"}
	)

	It("fails with ErrNoDevice when there are no devices", func() {
		_, err := candidates(nil, Constraints{})
		Expect(err).To(MatchError(ErrNoDevice))
	})

	It("restricts exact facing to matching devices", func() {
		list, err := candidates([]Device{front, rear, usb}, Constraints{Facing: FacingEnvironment, Exact: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(Equal([]Device{rear}))
	})

	It("is overconstrained when no device has the exact facing", func() {
		_, err := candidates([]Device{front, usb}, Constraints{Facing: FacingEnvironment, Exact: true})
		Expect(err).To(MatchError(ErrConstraintsUnsupported))
	})

	It("prefers matching devices for loose facing", func() {
		list, err := candidates([]Device{front, usb, rear}, Constraints{Facing: FacingEnvironment})
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(Equal([]Device{rear, front, usb}))
	})

	It("selects a device by path or label", func() {
		list, err := candidates([]Device{front, usb}, Constraints{DeviceID: "usb"})
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(Equal([]Device{usb}))
	})

	It("is overconstrained for an unknown device", func() {
		_, err := candidates([]Device{front}, Constraints{DeviceID: "/dev/video7"})
		Expect(err).To(MatchError(ErrConstraintsUnsupported))
	})
})
