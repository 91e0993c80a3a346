package faceapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/facematch"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

func newFaceServer(t *testing.T, resp FaceResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/face" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			http.Error(w, "unexpected content type "+ct, http.StatusBadRequest)
			return
		}
		if _, err := io.ReadAll(file); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedFaces(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{
		FacesCount: 1,
		Model:      "Facenet512",
		Faces: []Face{{
			FaceIndex: 0,
			Dim:       3,
			Embedding: []float32{0.1, 0.2, 0.3},
			BBox:      []float64{10, 20, 110, 140},
			DetScore:  0.97,
		}},
	}, http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.EmbedFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("EmbedFaces error: %v", err)
	}
	if resp.FacesCount != 1 || len(resp.Faces) != 1 {
		t.Fatalf("expected 1 face, got %+v", resp)
	}
	if resp.Model != "Facenet512" {
		t.Errorf("expected model Facenet512, got %q", resp.Model)
	}
	if len(resp.Faces[0].Embedding) != 3 {
		t.Errorf("expected 3-dim embedding, got %d", len(resp.Faces[0].Embedding))
	}
}

func TestDetectFaces(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{
		FacesCount: 3,
		Faces: []Face{
			{BBox: []float64{10, 20, 110, 140}, DetScore: 0.97},
			{BBox: []float64{1, 2, 3}, DetScore: 0.9},
			{BBox: []float64{200, 50, 260, 130}, DetScore: 0.5},
		},
	}, http.StatusOK)
	defer srv.Close()

	detections, err := NewClient(srv.URL).DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces error: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(detections))
	}
	want := facematch.BoundingBox{X: 10, Y: 20, W: 100, H: 120}
	if detections[0].Box != want || detections[0].Confidence != 0.97 {
		t.Errorf("unexpected first detection: %+v", detections[0])
	}
	if detections[1].Box.X != 200 {
		t.Errorf("unexpected second detection: %+v", detections[1])
	}
}

func TestDetectFaces_NoFaces(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{}, http.StatusOK)
	defer srv.Close()

	detections, err := NewClient(srv.URL).DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces error: %v", err)
	}
	if detections == nil || len(detections) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", detections)
	}
}

func TestEmbedFaces_ServerError(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{}, http.StatusInternalServerError)
	defer srv.Close()

	_, err := NewClient(srv.URL).EmbedFaces(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestEmbedFaces_ContextCanceled(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{}, http.StatusOK)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(srv.URL).EmbedFaces(ctx, jpegHeader); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewClient_BoundsEveryCall(t *testing.T) {
	c := NewClient("")
	if c.client.Timeout != constants.EmbeddingRequestTimeout {
		t.Errorf("expected request timeout %v, got %v", constants.EmbeddingRequestTimeout, c.client.Timeout)
	}
	if c.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %s", c.baseURL)
	}
}

func TestBest(t *testing.T) {
	resp := &FaceResponse{Faces: []Face{{FaceIndex: 0, DetScore: 0.5}, {FaceIndex: 1, DetScore: 0.9}, {FaceIndex: 2, DetScore: 0.7}}}
	best, ok := resp.Best()
	if !ok || best.FaceIndex != 1 {
		t.Errorf("expected face 1, got %+v ok=%v", best, ok)
	}

	if _, ok := (&FaceResponse{}).Best(); ok {
		t.Error("expected no best face for empty response")
	}
	var nilResp *FaceResponse
	if _, ok := nilResp.Best(); ok {
		t.Error("expected no best face for nil response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plain text data"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType = %q, want %q", got, tt.want)
			}
		})
	}
}
