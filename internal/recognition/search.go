// Package recognition finds the enrolled identities closest to the faces in a frame.
//
// The Searcher keeps an HNSW index over one embedding per reference image. The index
// is derived data: it is rebuilt whenever the enrollment generation moves, and it is
// persisted next to the images so a restart can skip re-embedding the whole store.
package recognition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/enrollment"
	"github.com/kozaktomas/attendance/internal/faceapi"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/imaging"
)

// ErrIndexEmpty is returned when there is nothing to search against.
var ErrIndexEmpty = errors.New("recognition index is empty")

var errNoFace = errors.New("no face found")

// Embedder detects faces and returns one embedding per face.
type Embedder interface {
	EmbedFaces(ctx context.Context, image []byte) (*faceapi.FaceResponse, error)
}

// ProgressFunc is called after each reference image is processed during a rebuild.
type ProgressFunc func(done, total int)

// Searcher is the identity search source used by the frame pipeline.
type Searcher struct {
	store    *enrollment.Store
	inv      *enrollment.Invalidator
	embedder Embedder
	model    string
	topK     int
	logger   *slog.Logger
	progress ProgressFunc

	rebuildTimeout time.Duration
	retryBackoff   time.Duration
	now            func() time.Time

	// sem serializes rebuilds and guards the fields below. Waiting on it honors
	// the caller's context.
	sem       chan struct{}
	index     *Index
	built     bool
	builtGen  uint64
	persisted bool
	retryAt   time.Time // set while a partial index is served
}

type rebuildResult struct {
	idx *Index
	err error
}

// NewSearcher creates a searcher over store. Nothing is built until the first search.
func NewSearcher(store *enrollment.Store, embedder Embedder, model string, topK int, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = constants.DefaultModel
	}
	if topK <= 0 {
		topK = constants.DefaultTopK
	}
	return &Searcher{
		store:    store,
		inv:      store.Invalidator(),
		embedder: embedder,
		model:    model,
		topK:     topK,
		logger:   logger,
		index:    NewIndex(),

		rebuildTimeout: constants.IndexRebuildTimeout,
		retryBackoff:   constants.IndexRetryBackoff,
		now:            time.Now,
		sem:            make(chan struct{}, 1),
	}
}

func (s *Searcher) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Searcher) unlock() {
	<-s.sem
}

// SetProgress installs a callback reporting rebuild progress.
func (s *Searcher) SetProgress(fn ProgressFunc) {
	_ = s.lock(context.Background())
	defer s.unlock()
	s.progress = fn
}

// Model returns the model whose distance columns are emitted.
func (s *Searcher) Model() string {
	return s.model
}

// ArtifactPath is where the index graph is persisted. The .meta and .entries
// files share this prefix.
func (s *Searcher) ArtifactPath() string {
	return filepath.Join(s.store.Root(), "faces_"+sanitizeModel(s.model)+".hnsw")
}

// Count returns the number of entries in the current index without rebuilding.
func (s *Searcher) Count() int {
	_ = s.lock(context.Background())
	defer s.unlock()
	return s.index.Len()
}

// Search embeds every face in frame and returns the topK nearest reference images
// per face. Candidates are grouped by face in detection order, best first within a face.
func (s *Searcher) Search(ctx context.Context, frame []byte) ([]facematch.CandidateMatch, error) {
	idx, err := s.ensureFresh(ctx)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		return nil, ErrIndexEmpty
	}

	resp, err := s.embedder.EmbedFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("embed frame: %w", err)
	}

	cosineKey := s.model + "_cosine"
	euclideanKey := s.model + "_euclidean"

	var candidates []facematch.CandidateMatch
	for _, face := range resp.Faces {
		box, ok := face.Box()
		if !ok || len(face.Embedding) == 0 {
			continue
		}
		neighbors, err := idx.Search(face.Embedding, s.topK)
		if err != nil {
			s.logger.Warn("face search failed", "face_index", face.FaceIndex, "error", err)
			continue
		}
		for _, n := range neighbors {
			candidates = append(candidates, facematch.CandidateMatch{
				IdentityPath: n.Entry.Path,
				SourceBox:    box,
				Distances: map[string]float64{
					cosineKey:    n.Cosine,
					euclideanKey: n.Euclidean,
				},
			})
		}
	}
	return candidates, nil
}

// Warm builds the index if it is missing or stale. Used at startup so the first
// frame does not pay for the build.
func (s *Searcher) Warm(ctx context.Context) (int, error) {
	idx, err := s.ensureFresh(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Len(), nil
}

// Rebuild re-embeds the whole enrollment store, ignoring persisted artifacts.
// It returns the number of indexed reference images.
func (s *Searcher) Rebuild(ctx context.Context) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	idx, err := s.rebuildLocked(ctx, s.inv.Generation(), false)
	if err != nil {
		return 0, err
	}
	return idx.Len(), nil
}

// ensureFresh returns an index that reflects the current enrollment generation.
//
// A caller whose context ends while waiting for a rebuild gets the context error.
// The rebuild itself keeps running in the background, bounded by rebuildTimeout,
// and holds the lock until it finishes.
func (s *Searcher) ensureFresh(ctx context.Context) (*Index, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}

	gen := s.inv.Generation()
	if s.fresh(gen) {
		idx := s.index
		s.unlock()
		return idx, nil
	}
	if s.built && s.builtGen == gen && s.retryAt.IsZero() {
		s.logger.Info("index artifacts removed externally, rebuilding", "path", s.ArtifactPath())
	}

	done := make(chan rebuildResult, 1)
	go func() {
		defer s.unlock()
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rebuildTimeout)
		defer cancel()
		idx, err := s.rebuildLocked(buildCtx, gen, true)
		done <- rebuildResult{idx: idx, err: err}
	}()

	select {
	case r := <-done:
		return r.idx, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fresh reports whether the current index can serve generation gen. Callers hold the lock.
func (s *Searcher) fresh(gen uint64) bool {
	if !s.built || s.builtGen != gen {
		return false
	}
	if !s.retryAt.IsZero() {
		return s.now().Before(s.retryAt)
	}
	return !s.persisted || s.artifactsPresent()
}

func (s *Searcher) artifactsPresent() bool {
	_, err := os.Stat(s.ArtifactPath())
	return err == nil
}

// rebuildLocked builds the index for generation gen. Callers hold the lock.
func (s *Searcher) rebuildLocked(ctx context.Context, gen uint64, allowLoad bool) (*Index, error) {
	images, err := s.store.Images()
	if err != nil {
		return nil, fmt.Errorf("list enrollment images: %w", err)
	}

	if len(images) == 0 {
		s.setIndex(NewIndex(), gen, false)
		return s.index, nil
	}

	path := s.ArtifactPath()
	digest := imagesDigest(images)

	if allowLoad {
		if idx, ok := s.loadArtifacts(path, len(images), digest); ok {
			s.setIndex(idx, gen, true)
			return idx, nil
		}
	}

	start := time.Now()
	entries := make([]Entry, 0, len(images))
	failures := 0
	for i, p := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := s.embedReference(ctx, p)
		switch {
		case err == nil:
			entries = append(entries, Entry{ID: int64(i + 1), Path: p, Embedding: emb})
		case errors.Is(err, errNoFace), errors.Is(err, imaging.ErrInvalidImage):
			s.logger.Warn("skipping reference image", "path", p, "error", err)
		default:
			failures++
			s.logger.Warn("failed to embed reference image", "path", p, "error", err)
		}
		if s.progress != nil {
			s.progress(i+1, len(images))
		}
	}

	idx := NewIndex()
	idx.Build(entries)
	s.logger.Info("recognition index built",
		"images", len(images), "entries", idx.Len(), "duration", time.Since(start).Round(time.Millisecond))

	// Partial index: served but not persisted. The failed images are retried after
	// retryBackoff or on the next enrollment change, whichever comes first.
	if failures > 0 {
		s.setIndex(idx, gen, false)
		s.retryAt = s.now().Add(s.retryBackoff)
		s.logger.Warn("recognition index incomplete, retrying later",
			"failed", failures, "retry_in", s.retryBackoff)
		return idx, nil
	}

	persisted := false
	if s.inv.Generation() != gen {
		s.logger.Info("enrollment changed during rebuild, not persisting index")
	} else if err := idx.SaveWithMetadata(path, Metadata{
		Model:        s.model,
		ImageCount:   len(images),
		ImagesDigest: digest,
		BuildTime:    time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to persist index", "path", path, "error", err)
	} else {
		persisted = idx.Len() > 0
	}

	s.setIndex(idx, gen, persisted)
	return idx, nil
}

func (s *Searcher) setIndex(idx *Index, gen uint64, persisted bool) {
	s.index = idx
	s.built = true
	s.builtGen = gen
	s.persisted = persisted
	s.retryAt = time.Time{}
}

func (s *Searcher) loadArtifacts(path string, imageCount int, digest string) (*Index, bool) {
	meta, err := LoadMetadata(path)
	if err != nil {
		return nil, false
	}
	if meta.Model != s.model || meta.ImageCount != imageCount || meta.ImagesDigest != digest {
		s.logger.Debug("persisted index is stale", "path", path)
		return nil, false
	}

	idx := NewIndex()
	if _, err := idx.LoadWithMetadata(path); err != nil {
		s.logger.Warn("failed to load persisted index", "path", path, "error", err)
		return nil, false
	}
	s.logger.Info("recognition index loaded", "path", path, "entries", idx.Len())
	return idx, true
}

// embedReference returns the embedding of the most confident face in a reference image.
func (s *Searcher) embedReference(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the enrollment store listing
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	data, _, err = imaging.Downscale(data, constants.MaxImageSize)
	if err != nil {
		return nil, err
	}

	resp, err := s.embedder.EmbedFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	best, ok := resp.Best()
	if !ok || len(best.Embedding) == 0 {
		return nil, errNoFace
	}
	return best.Embedding, nil
}

func imagesDigest(images []string) string {
	h := sha256.New()
	for _, p := range images {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sanitizeModel(model string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, model)
}
