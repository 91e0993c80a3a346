package recognition

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW parameters for face embeddings.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16
	// hnswEfSearch is the search candidate pool size.
	hnswEfSearch = 100
)

const indexMetadataVersion = 1

// Entry is one reference embedding in the index.
type Entry struct {
	ID        int64
	Path      string
	Embedding []float32
}

// Neighbor is a search hit with both distance measures.
type Neighbor struct {
	Entry     Entry
	Cosine    float64
	Euclidean float64
}

// Metadata is stored next to the graph to decide whether persisted artifacts
// still describe the enrollment store.
type Metadata struct {
	Model        string    `json:"model"`
	ImageCount   int       `json:"image_count"`
	ImagesDigest string    `json:"images_digest"`
	EntryCount   int       `json:"entry_count"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

// Index wraps an HNSW graph over enrollment embeddings.
type Index struct {
	graph   *hnsw.Graph[int64]
	entries map[int64]*Entry
	dim     int
	mu      sync.RWMutex
}

// NewIndex creates a new empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[int64]*Entry)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents. Entries without an embedding, or whose
// dimension differs from the first usable entry, are skipped.
func (x *Index) Build(entries []Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.entries = make(map[int64]*Entry, len(entries))
	x.graph = nil
	x.dim = 0

	g := newGraph()
	for i := range entries {
		e := &entries[i]
		if len(e.Embedding) == 0 {
			continue
		}
		if x.dim == 0 {
			x.dim = len(e.Embedding)
		}
		if len(e.Embedding) != x.dim {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		x.entries[e.ID] = e
	}
	if len(x.entries) > 0 {
		x.graph = g
	}
}

// Dim returns the embedding dimension, or 0 for an empty index.
func (x *Index) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Search finds the k nearest entries to query, best first.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.entries) == 0 {
		return nil, ErrIndexEmpty
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), x.dim)
	}
	if k <= 0 {
		k = 1
	}

	nodes := x.graph.Search(query, k)
	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		e, ok := x.entries[n.Key]
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Entry:     *e,
			Cosine:    CosineDistance(query, n.Value),
			Euclidean: EuclideanDistance(query, n.Value),
		})
	}
	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].Cosine < neighbors[j].Cosine })
	return neighbors, nil
}

// SaveWithMetadata persists the graph, its metadata (.meta JSON) and entries (.entries gob).
// An empty index removes any existing files instead.
func (x *Index) SaveWithMetadata(path string, metadata Metadata) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".entries")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is derived from configuration
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	entries := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := os.WriteFile(path+".entries", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write entries file: %w", err)
	}

	// Metadata goes last: a complete .meta implies the other files are complete.
	metadata.Version = indexMetadataVersion
	metadata.EntryCount = len(entries)
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadMetadata reads the .meta file stored next to an index.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is derived from configuration
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.Version != indexMetadataVersion {
		return metadata, fmt.Errorf("unsupported index metadata version %d", metadata.Version)
	}
	return metadata, nil
}

// LoadWithMetadata replaces the index contents with a persisted graph and its entries.
func (x *Index) LoadWithMetadata(path string) (Metadata, error) {
	metadata, err := LoadMetadata(path)
	if err != nil {
		return metadata, err
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return metadata, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".entries") //nolint:gosec // path is derived from configuration
	if err != nil {
		return metadata, fmt.Errorf("failed to read entries file: %w", err)
	}
	var entries []Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return metadata, fmt.Errorf("failed to decode entries: %w", err)
	}
	if len(entries) != metadata.EntryCount {
		return metadata, errors.New("entries file does not match metadata")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = saved.Graph
	x.entries = make(map[int64]*Entry, len(entries))
	x.dim = 0
	for i := range entries {
		x.entries[entries[i].ID] = &entries[i]
		if x.dim == 0 {
			x.dim = len(entries[i].Embedding)
		}
	}
	return metadata, nil
}
