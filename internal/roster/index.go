package roster

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/coder/hnsw"
	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// IndexMetadata stores metadata for validating a persisted index.
type IndexMetadata struct {
	RecordCount int       `json:"record_count"`
	MaxIndex    int       `json:"max_index"`
	Fingerprint string    `json:"fingerprint"` // xxhash of every index and encoding
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

const indexMetadataVersion = 2

// describeEncodings returns the metadata an index built from records would
// carry. Records without an encoding are left out, like in Build.
func describeEncodings(records []Record) IndexMetadata {
	encoded := make([]*Record, 0, len(records))
	for i := range records {
		if len(records[i].Encoding) > 0 {
			encoded = append(encoded, &records[i])
		}
	}
	slices.SortFunc(encoded, func(a, b *Record) int { return a.Index - b.Index })

	meta := IndexMetadata{Version: indexMetadataVersion}
	h := xxhash.New()
	var buf [8]byte
	for _, rec := range encoded {
		binary.LittleEndian.PutUint64(buf[:], uint64(rec.Index)) //nolint:gosec // indices are non-negative
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(len(rec.Encoding)))
		_, _ = h.Write(buf[:])
		for _, v := range rec.Encoding {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			_, _ = h.Write(buf[:4])
		}
		meta.RecordCount++
		meta.MaxIndex = max(meta.MaxIndex, rec.Index)
	}
	meta.Fingerprint = fmt.Sprintf("%016x", h.Sum64())
	return meta
}

// matches reports whether an index saved with m was built from the encodings described by want.
func (m IndexMetadata) matches(want IndexMetadata) bool {
	return m.Version == indexMetadataVersion &&
		m.RecordCount == want.RecordCount &&
		m.MaxIndex == want.MaxIndex &&
		m.Fingerprint == want.Fingerprint
}

// Index is an approximate nearest-neighbour graph over roster encodings, keyed by record index.
type Index struct {
	graph *hnsw.Graph[int]
	mu    sync.RWMutex
	meta  IndexMetadata
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the graph with one built from records. Records without an encoding are skipped.
func (x *Index) Build(records []Record) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(records) == 0 {
		x.graph = nil
		x.meta = IndexMetadata{}
		return
	}

	g := newGraph()
	meta := describeEncodings(records)
	meta.BuildTime = time.Now()
	for i := range records {
		if len(records[i].Encoding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(records[i].Index, records[i].Encoding))
	}

	x.graph = g
	x.meta = meta
}

// Search returns the indices of the k nearest encodings.
func (x *Index) Search(query []float32, k int) ([]int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := x.graph.Search(query, k)
	ids := make([]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids, nil
}

// Len returns the number of indexed encodings.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}

// Metadata returns what the graph was built from.
func (x *Index) Metadata() IndexMetadata {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.meta
}

// Save writes the graph to path and its metadata to path.meta, each
// replaced atomically. The old metadata goes first and the new one is written
// last, so an interrupted save leaves an index that Load refuses.
// An empty index removes both files.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if path == "" {
		return nil
	}

	metaPath := path + ".meta"
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old metadata file: %w", err)
	}
	if x.graph == nil {
		_ = os.Remove(path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	f, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace
	if err := x.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace HNSW index file: %w", err)
	}

	metaData, err := json.Marshal(x.meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := renameio.WriteFile(metaPath, metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a graph saved by Save. It reports false, without error, when no
// index exists at path or when its metadata does not match want.
func (x *Index) Load(path string, want IndexMetadata) (bool, error) {
	if path == "" {
		return false, nil
	}

	meta, err := loadIndexMetadata(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !meta.matches(want) {
		return false, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(f); err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = g
	x.meta = meta
	return true, nil
}

func loadIndexMetadata(path string) (IndexMetadata, error) {
	var meta IndexMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}
