// Package imaging decodes, validates and resizes the images that enter the system
// through the HTTP API, the CLI and the capture loop.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/kozaktomas/attendance/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for payloads that are not a decodable image.
var ErrInvalidImage = errors.New("invalid image")

// Info describes a validated image.
type Info struct {
	Format string
	Width  int
	Height int
}

// DecodeDataURL decodes a base64 image payload. The "data:<mime>;base64," header
// is optional.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, fmt.Errorf("%w: data URL has no payload", ErrInvalidImage)
		}
		s = s[idx+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed base64: %v", ErrInvalidImage, err)
		}
	}
	return data, nil
}

// Validate checks that data is an image in a registered format and returns its header info.
func Validate(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ToJPEG re-encodes any supported image as JPEG.
func ToJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return encodeJPEG(img)
}

// Downscale shrinks an image to fit within maxSize (width or height) while keeping
// aspect ratio. It returns the bytes to use and the factor that maps coordinates on the
// returned image back to the original. Images that already fit are returned untouched
// with factor 1.
func Downscale(data []byte, maxSize int) ([]byte, float64, error) {
	info, err := Validate(data)
	if err != nil {
		return nil, 0, err
	}
	if maxSize <= 0 || (info.Width <= maxSize && info.Height <= maxSize) {
		return data, 1, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	var factor float64
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		factor = float64(width) / float64(newWidth)
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		factor = float64(height) / float64(newHeight)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	out, err := encodeJPEG(resized)
	if err != nil {
		return nil, 0, err
	}
	return out, factor, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
