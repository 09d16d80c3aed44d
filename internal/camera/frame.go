package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// fourcc builds a V4L2 pixel format code
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	pixelFormatMJPEG = fourcc('M', 'J', 'P', 'G')
	pixelFormatYUYV  = fourcc('Y', 'U', 'Y', 'V')
)

// decodeFrame converts a raw frame buffer to an image
func decodeFrame(format uint32, data []byte, width, height int) (image.Image, error) {
	switch format {
	case pixelFormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding MJPEG frame: %w", err)
		}
		return img, nil
	case pixelFormatYUYV:
		return yuyvToImage(data, width, height)
	default:
		return nil, fmt.Errorf("unsupported pixel format %#x", format)
	}
}

// yuyvToImage converts packed YUYV 4:2:2 into an image.YCbCr.
// Each 4 bytes hold two pixels: Y0 U Y1 V.
func yuyvToImage(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid YUYV frame size %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("short YUYV frame: got %d bytes, want %d", len(data), width*height*2)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			c := y*img.CStride + x/2
			img.Cb[c] = row[i+1]
			img.Cr[c] = row[i+3]
		}
	}
	return img, nil
}
