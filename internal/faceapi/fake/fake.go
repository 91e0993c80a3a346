// Package fake provides an in-memory face embedding service for tests.
//
// Images are rows of square tiles. Every tile is one face and its embedding is
// derived from the tile's center color, so two tiles of the same color are the
// same person.
package fake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/kozaktomas/attendance/internal/faceapi"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// TileSize is the edge length of one face tile in pixels.
const TileSize = 100

// Service answers /embed/face requests.
type Service struct {
	mu    sync.Mutex
	calls int
	err   error
	hold  chan struct{}
}

// New creates a fake service.
func New() *Service {
	return &Service{}
}

// Calls returns how many embedding requests were served.
func (s *Service) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FailWith makes every following request fail with err. Pass nil to recover.
func (s *Service) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Hold makes every following request wait until release is called or the
// request's context ends, like a stalled service.
func (s *Service) Hold() (release func()) {
	hold := make(chan struct{})
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == hold {
				s.hold = nil
			}
			s.mu.Unlock()
			close(hold)
		})
	}
}

// EmbedFaces implements the embedder used by the recognition searcher.
func (s *Service) EmbedFaces(ctx context.Context, data []byte) (*faceapi.FaceResponse, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	hold := s.hold
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Embed(data)
}

// DetectFaces implements the detection source used by the frame pipeline.
func (s *Service) DetectFaces(ctx context.Context, data []byte) ([]facematch.Detection, error) {
	resp, err := s.EmbedFaces(ctx, data)
	if err != nil {
		return nil, err
	}
	detections := make([]facematch.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if box, ok := f.Box(); ok {
			detections = append(detections, facematch.Detection{Box: box, Confidence: f.DetScore})
		}
	}
	return detections, nil
}

// Embed computes the fake response for an image.
func Embed(data []byte) (*faceapi.FaceResponse, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	tiles := b.Dx() / TileSize
	resp := &faceapi.FaceResponse{Model: "fake"}
	for i := 0; i < tiles && b.Dy() >= TileSize; i++ {
		r, g, bl, _ := img.At(b.Min.X+i*TileSize+TileSize/2, b.Min.Y+TileSize/2).RGBA()
		x1 := float64(i*TileSize + 20)
		resp.Faces = append(resp.Faces, faceapi.Face{
			FaceIndex: i,
			Dim:       4,
			Embedding: []float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(bl) / 0xffff, 0.05},
			BBox:      []float64{x1, 20, x1 + 60, 80},
			DetScore:  0.99,
		})
	}
	resp.FacesCount = len(resp.Faces)
	return resp, nil
}

// Handler serves POST /embed/face like the real service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := s.EmbedFaces(r.Context(), data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

// NewServer starts an httptest server backed by s.
func NewServer(s *Service) *httptest.Server {
	return httptest.NewServer(s.Handler())
}

// Tiles renders one TileSize square per color, left to right, as PNG.
func Tiles(colors ...color.RGBA) []byte {
	if len(colors) == 0 {
		colors = []color.RGBA{{255, 255, 255, 255}}
	}
	img := image.NewRGBA(image.Rect(0, 0, TileSize*len(colors), TileSize))
	for i, c := range colors {
		for x := i * TileSize; x < (i+1)*TileSize; x++ {
			for y := 0; y < TileSize; y++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Blank renders an image too small to contain a face tile.
func Blank() []byte {
	img := image.NewRGBA(image.Rect(0, 0, TileSize/2, TileSize/2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ErrUnavailable is a ready-made failure for FailWith.
var ErrUnavailable = errors.New("embedding service unavailable")

// Common tile colors.
var (
	Red   = color.RGBA{220, 30, 30, 255}
	Green = color.RGBA{30, 200, 30, 255}
	Blue  = color.RGBA{30, 30, 220, 255}
)
