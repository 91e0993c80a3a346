//go:build !gocv

package capture

import "errors"

// WebcamSupported reports whether this binary can open local cameras.
const WebcamSupported = false

// ErrWebcamUnavailable is returned when the binary was built without OpenCV support.
var ErrWebcamUnavailable = errors.New("webcam support not compiled in (build with -tags gocv)")

// OpenWebcam always fails without the gocv build tag.
func OpenWebcam(device string) (Source, error) {
	return nil, ErrWebcamUnavailable
}
