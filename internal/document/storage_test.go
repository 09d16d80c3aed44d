package document

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			key    string
			data   []byte
			handle string
			err    error
		)

		BeforeEach(func() {
			key = "abc_report.pdf"
			data = []byte("%PDF-1.4")
		})

		JustBeforeEach(func() {
			handle, err = storage.Save(key, data)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the key as handle", func() {
				Expect(handle).To(Equal(key))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, key)).To(BeAnExistingFile())
			})
		})

		When("the key escapes the spool directory", func() {
			BeforeEach(func() {
				key = "../escape.pdf"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid payload handle")))
			})

			It("should not write outside the spool", func() {
				Expect(filepath.Join(filepath.Dir(tmpDir), "escape.pdf")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the payload exists", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(filepath.Join(tmpDir, "doc.pdf"), []byte("content"), 0600)).To(Succeed())
			})

			It("should return its bytes", func() {
				data, err := storage.Get("doc.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("content")))
			})
		})

		When("the payload does not exist", func() {
			It("returns an error", func() {
				_, err := storage.Get("missing.pdf")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		When("the payload exists", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(filepath.Join(tmpDir, "doc.pdf"), []byte("content"), 0600)).To(Succeed())
			})

			It("should remove it from disk", func() {
				Expect(storage.Delete("doc.pdf")).To(Succeed())
				Expect(filepath.Join(tmpDir, "doc.pdf")).NotTo(BeAnExistingFile())
			})
		})

		When("the payload does not exist", func() {
			It("returns an error", func() {
				Expect(storage.Delete("missing.pdf")).NotTo(Succeed())
			})
		})
	})
})

var _ = DescribeTable("sanitizeFilename",
	func(input, expected string) {
		Expect(sanitizeFilename(input)).To(Equal(expected))
	},
	Entry("keeps simple names", "report.pdf", "report.pdf"),
	Entry("collapses spaces", "my   big report.pdf", "my_big_report.pdf"),
	Entry("drops special characters", "inv#oice(1).PDF", "invoice1.pdf"),
	Entry("strips directories", "../../etc/passwd", "passwd"),
	Entry("strips windows directories", `C:\Users\me\scan.pdf`, "scan.pdf"),
	Entry("defaults empty names", "", "document"),
	Entry("defaults names with only symbols", "%%%.pdf", "document.pdf"),
)
