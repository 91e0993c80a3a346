package enrollment

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/kozaktomas/attendance/internal/constants"
)

// Invalidator tracks enrollment changes. Every change bumps a generation counter
// and removes the persisted index artifacts from the store root, so both in-process
// and on-disk indexes are known to be stale before the change is acknowledged.
type Invalidator struct {
	root    string
	pattern string
	gen     atomic.Uint64
	logger  *slog.Logger
}

// NewInvalidator creates an invalidator for the store rooted at root.
func NewInvalidator(root string, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		root:    root,
		pattern: constants.IndexArtifactPattern,
		logger:  logger,
	}
}

// Invalidate marks every index as stale and removes persisted artifacts.
// It returns the number of artifacts removed. Failures are logged and skipped.
func (i *Invalidator) Invalidate() int {
	gen := i.gen.Add(1)

	matches, err := filepath.Glob(filepath.Join(i.root, i.pattern))
	if err != nil {
		i.logger.Warn("index artifact glob failed", "root", i.root, "error", err)
		return 0
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			i.logger.Warn("failed to remove index artifact", "path", path, "error", err)
			continue
		}
		removed++
	}
	i.logger.Debug("enrollment index invalidated", "generation", gen, "removed", removed)
	return removed
}

// Generation returns the current enrollment generation.
func (i *Invalidator) Generation() uint64 {
	return i.gen.Load()
}

// Root returns the enrollment store root.
func (i *Invalidator) Root() string {
	return i.root
}
