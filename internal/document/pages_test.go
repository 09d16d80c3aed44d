package document

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// buildPDF writes a minimal well-formed PDF with the given number of blank pages
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func pngBytes() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("FitzCounter", func() {
	var counter FitzCounter

	BeforeEach(func() {
		counter = FitzCounter{}
	})

	Describe("CountPages", func() {
		It("counts the pages of a PDF", func() {
			pages, err := counter.CountPages(buildPDF(3), "application/pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(Equal(3))
		})

		It("rejects data that is not a PDF", func() {
			_, err := counter.CountPages([]byte("definitely not a pdf"), "application/pdf")
			Expect(err).To(HaveOccurred())
		})

		It("rejects images unless enabled", func() {
			_, err := counter.CountPages(pngBytes(), "image/png")
			Expect(err).To(MatchError(ErrUnsupportedType))
		})

		When("images are accepted", func() {
			BeforeEach(func() {
				counter.AcceptImages = true
			})

			It("counts a PNG as one page", func() {
				pages, err := counter.CountPages(pngBytes(), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(Equal(1))
			})

			It("rejects a corrupt JPEG", func() {
				_, err := counter.CountPages([]byte("nope"), "image/jpeg")
				Expect(err).To(HaveOccurred())
			})

			It("rejects a corrupt HEIC", func() {
				_, err := counter.CountPages([]byte("nope"), "image/heic")
				Expect(err).To(MatchError(ContainSubstring("HEIC")))
			})
		})
	})

	Describe("Accepts", func() {
		It("accepts PDFs", func() {
			Expect(counter.Accepts("application/pdf")).To(BeTrue())
		})

		It("refuses images by default", func() {
			Expect(counter.Accepts("image/jpeg")).To(BeFalse())
		})

		It("accepts images when enabled", func() {
			counter.AcceptImages = true
			Expect(counter.Accepts("image/heic")).To(BeTrue())
			Expect(counter.Accepts("text/plain")).To(BeFalse())
		})
	})
})

var _ = Describe("ResolveType", func() {
	It("prefers the declared type", func() {
		Expect(ResolveType("scan.bin", "Application/PDF; charset=binary", nil)).To(Equal("application/pdf"))
	})

	It("falls back to the extension", func() {
		Expect(ResolveType("IMG_0001.HEIC", "application/octet-stream", nil)).To(Equal("image/heic"))
	})

	It("sniffs the content last", func() {
		Expect(ResolveType("upload", "", buildPDF(1))).To(Equal("application/pdf"))
	})

	It("sniffs plain text as unsupported content", func() {
		Expect(ResolveType("upload", "", []byte("hello there"))).To(Equal("text/plain"))
	})
})

var _ = Describe("Staging with FitzCounter", func() {
	It("stages real PDFs and totals their pages", func() {
		staging := NewStaging(newMockStorage(), FitzCounter{}, DefaultPricePerPage)

		_, err := staging.Stage("three.pdf", "application/pdf", buildPDF(3))
		Expect(err).NotTo(HaveOccurred())
		_, err = staging.Stage("two.pdf", "", buildPDF(2))
		Expect(err).NotTo(HaveOccurred())

		Expect(staging.TotalPages()).To(Equal(5))
		Expect(staging.TotalPrice()).To(Equal(10))
	})

	It("rejects a corrupt PDF as invalid", func() {
		staging := NewStaging(newMockStorage(), FitzCounter{}, DefaultPricePerPage)
		_, err := staging.Stage("broken.pdf", "application/pdf", []byte("%PDF-1.4 garbage"))
		Expect(err).To(MatchError(ErrInvalidDocument))
		Expect(staging.Documents()).To(BeEmpty())
	})
})
