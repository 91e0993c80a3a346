// Package capture runs the continuous camera loop: frames are pulled from a
// source at a fixed cadence and every few frames go through the recognition pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/imaging"
)

// ErrEndOfStream is returned by a Source that has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Source yields encoded frames one at a time.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// SnapshotSource polls an HTTP camera that serves a still image per request.
type SnapshotSource struct {
	url    string
	client *http.Client
}

// NewSnapshotSource creates a source reading from a snapshot URL.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	return &SnapshotSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Next fetches one snapshot.
func (s *SnapshotSource) Next(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// DirectorySource replays the images of a directory in name order, once.
type DirectorySource struct {
	paths []string
	pos   int
}

// NewDirectorySource lists the images in dir. Files that do not decode are skipped at read time.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	return &DirectorySource{paths: paths}, nil
}

// Len returns the number of frames in the directory.
func (d *DirectorySource) Len() int {
	return len(d.paths)
}

func (d *DirectorySource) Next(ctx context.Context) ([]byte, error) {
	for d.pos < len(d.paths) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := d.paths[d.pos]
		d.pos++

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", path, err)
		}
		if _, err := imaging.Validate(data); err != nil {
			continue
		}
		return data, nil
	}
	return nil, ErrEndOfStream
}

func (d *DirectorySource) Close() error {
	return nil
}

// Open picks a source for the given device string: an http(s) URL is a snapshot
// camera, an existing directory is replayed, anything else is a webcam device.
func Open(device string, timeout time.Duration) (Source, error) {
	if strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://") {
		return NewSnapshotSource(device, timeout), nil
	}
	if info, err := os.Stat(device); err == nil && info.IsDir() {
		return NewDirectorySource(device)
	}
	return OpenWebcam(device)
}
