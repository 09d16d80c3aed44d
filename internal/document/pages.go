package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const contentTypePDF = "application/pdf"

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// PageCounter defines the interface for counting printable pages in a file
type PageCounter interface {
	// Accepts reports whether the content type may be staged at all
	Accepts(contentType string) bool
	// CountPages parses data and returns its page count
	CountPages(data []byte, contentType string) (int, error)
}

// FitzCounter counts PDF pages with MuPDF. With AcceptImages, photos are
// staged as single-page documents.
type FitzCounter struct {
	AcceptImages bool
}

// Accepts reports whether the content type is printable
func (c FitzCounter) Accepts(contentType string) bool {
	if contentType == contentTypePDF {
		return true
	}
	return c.AcceptImages && imageTypes[contentType]
}

// CountPages returns the number of pages in a PDF, or 1 for a decodable image
func (c FitzCounter) CountPages(data []byte, contentType string) (int, error) {
	switch {
	case contentType == contentTypePDF:
		return countPDFPages(data)
	case c.AcceptImages && isHEICMimeType(contentType):
		if _, err := heic.Decode(bytes.NewReader(data)); err != nil {
			return 0, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return 1, nil
	case c.AcceptImages && imageTypes[contentType]:
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return 0, fmt.Errorf("decoding image: %w", err)
		}
		return 1, nil
	default:
		return 0, ErrUnsupportedType
	}
}

func countPDFPages(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return n, nil
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return mimeType == "image/heic" || mimeType == "image/heif"
}

// ResolveType works out a file's content type from the declared type, the
// file extension, and finally the file content
func ResolveType(filename, declared string, data []byte) string {
	contentType := normalizeType(declared)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return contentTypePDF
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}

	return normalizeType(mimetype.Detect(data).String())
}

// normalizeType lowercases a MIME type and drops its parameters
func normalizeType(contentType string) string {
	contentType, _, _ = strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}
