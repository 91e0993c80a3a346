// Package enrollment owns the on-disk store of reference face images and the
// invalidation of the recognition index built from it.
//
// Layout: <root>/<person>/face_<unix>_<id>.jpg. Flat images directly in <root>
// are also recognized, with the file name standing in for the person name.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/imaging"
)

// ErrInvalidName is returned for names that cannot be enrolled.
var ErrInvalidName = errors.New("invalid name")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// Store writes and lists enrollment images.
type Store struct {
	root        string
	invalidator *Invalidator
	now         func() time.Time
	logger      *slog.Logger
}

// NewStore creates a store. Writes go through inv so every save invalidates the index.
func NewStore(inv *Invalidator, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:        inv.Root(),
		invalidator: inv,
		now:         time.Now,
		logger:      logger,
	}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// Invalidator returns the invalidator guarding this store.
func (s *Store) Invalidator() *Invalidator {
	return s.invalidator
}

// Exists reports whether the root directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// CleanName validates an enrollment name and returns its display form.
func CleanName(name string) (string, error) {
	name = facematch.CleanName(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	case strings.EqualFold(name, facematch.Unknown):
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: name must not contain path separators", ErrInvalidName)
	case strings.Trim(name, ".") == "":
		return "", fmt.Errorf("%w: %q is not a valid name", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: name must not start with a dot", ErrInvalidName)
	}
	return name, nil
}

// Save stores a reference image for name and invalidates the index.
// The image is re-encoded as JPEG. Returns the canonical name and the written path.
func (s *Store) Save(ctx context.Context, name string, image []byte) (string, string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", "", err
	}

	jpegData, err := imaging.ToJPEG(image)
	if err != nil {
		return "", "", err
	}

	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	name = s.canonicalName(name)
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create enrollment directory: %w", err)
	}

	fileName := fmt.Sprintf("face_%d_%s.jpg", s.now().Unix(), uuid.NewString()[:8])
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, jpegData, 0o644); err != nil {
		return "", "", fmt.Errorf("write enrollment image: %w", err)
	}

	removed := s.invalidator.Invalidate()
	s.logger.Info("enrolled face", "name", name, "path", path, "artifacts_removed", removed)
	return name, path, nil
}

// canonicalName reuses an existing person directory whose name matches after
// normalization, so "jan novak" lands next to "Jan Novák".
func (s *Store) canonicalName(name string) string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return name
	}
	want := facematch.NormalizePersonName(name)
	for _, e := range entries {
		if e.IsDir() && facematch.NormalizePersonName(e.Name()) == want {
			return e.Name()
		}
	}
	return name
}

// Images returns every reference image path, sorted. A missing root yields no images.
func (s *Store) Images() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read enrollment root: %w", err)
	}

	var images []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if !e.IsDir() {
			if isImage(e.Name()) {
				images = append(images, path)
			}
			continue
		}

		sub, err := os.ReadDir(path)
		if err != nil {
			s.logger.Warn("skipping unreadable person directory", "path", path, "error", err)
			continue
		}
		for _, f := range sub {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !isImage(f.Name()) {
				continue
			}
			images = append(images, filepath.Join(path, f.Name()))
		}
	}

	sort.Strings(images)
	return images, nil
}

// IsEmpty reports whether the store holds no reference images.
func (s *Store) IsEmpty() (bool, error) {
	images, err := s.Images()
	if err != nil {
		return false, err
	}
	return len(images) == 0, nil
}

func isImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
