package scanning

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QRDecoder decodes QR codes using gozxing
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder creates a QR decoder. tryHarder trades speed for accuracy on blurry frames.
func NewQRDecoder(tryHarder bool) *QRDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &QRDecoder{hints: hints}
}

// Decode extracts the QR payload from an image
func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarizing frame: %w", err)
	}

	// QRCodeReader keeps no useful state between frames, a fresh one avoids sharing across goroutines
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		if isNoDetection(err) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decoding QR code: %w", err)
	}

	text := normalizePayload(result.GetText())
	if text == "" {
		return "", ErrNoCode
	}
	return text, nil
}

// isNoDetection reports whether err means the frame simply had no usable code
func isNoDetection(err error) bool {
	var (
		notFound gozxing.NotFoundException
		format   gozxing.FormatException
		checksum gozxing.ChecksumException
	)
	return errors.As(err, &notFound) || errors.As(err, &format) || errors.As(err, &checksum)
}

// normalizePayload trims whitespace and control characters printers sometimes pad codes with
func normalizePayload(text string) string {
	return strings.TrimFunc(text, func(r rune) bool {
		return r <= ' ' || r == 0x7f
	})
}
