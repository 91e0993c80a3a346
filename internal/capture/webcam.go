//go:build gocv

package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// WebcamSupported reports whether this binary can open local cameras.
const WebcamSupported = true

// Webcam reads frames from a local camera through OpenCV.
type Webcam struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenWebcam opens a camera by index ("0") or by device path / stream URL.
func OpenWebcam(device string) (Source, error) {
	if device == "" {
		device = "0"
	}

	var id interface{} = device
	if n, err := strconv.Atoi(device); err == nil {
		id = n
	}

	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open webcam %q: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("webcam %q is not available", device)
	}

	return &Webcam{capture: capture, frame: gocv.NewMat()}, nil
}

// Next grabs one frame and encodes it as JPEG.
func (w *Webcam) Next(ctx context.Context) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ok := w.capture.Read(&w.frame); !ok {
		return nil, ErrEndOfStream
	}
	if w.frame.Empty() {
		return nil, fmt.Errorf("webcam returned an empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, w.frame)
	if err != nil {
		return nil, fmt.Errorf("IMEncode failed: %w", err)
	}
	defer buf.Close()

	// buf is released on return, copy the bytes out
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.frame.Close()
	return w.capture.Close()
}
