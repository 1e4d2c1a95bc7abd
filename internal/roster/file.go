package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/renameio"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("roster: cbor encoder: %v", err))
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("roster: cbor decoder: %v", err))
	}
}

// FileStore keeps the whole roster in a single CBOR file keyed by index.
// Every mutation rewrites the file and atomically renames it into place.
// The mutex serializes writers inside one process only.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed roster at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the roster file location.
func (s *FileStore) Path() string {
	return s.path
}

// load reads the roster. A missing or unreadable file is an empty roster.
func (s *FileStore) load() map[int]Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("roster: cannot read %s, treating as empty: %v", s.path, err)
		}
		return make(map[int]Record)
	}

	records := make(map[int]Record)
	if err := cborDec.Unmarshal(data, &records); err != nil {
		log.Printf("roster: cannot decode %s, treating as empty: %v", s.path, err)
		return make(map[int]Record)
	}
	return records
}

func (s *FileStore) save(records map[int]Record) error {
	data, err := cborEnc.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create roster directory: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}

func sortedRecords(records map[int]Record) []Record {
	out := make([]Record, 0, len(records))
	for idx, rec := range records {
		rec.Index = idx
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// All returns every record ordered by index
func (s *FileStore) All(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRecords(s.load()), nil
}

// Get retrieves a record by index
func (s *FileStore) Get(ctx context.Context, index int) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.load()[index]
	if !ok {
		return nil, nil
	}
	rec.Index = index
	return &rec, nil
}

// FindByID retrieves the lowest-index record with the given student ID
func (s *FileStore) FindByID(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range sortedRecords(s.load()) {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, nil
}

// Count returns the number of records
func (s *FileStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load()), nil
}

// Put inserts or replaces the record at rec.Index
func (s *FileStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.load()
	records[rec.Index] = rec
	return s.save(records)
}

// Delete removes the record at index
func (s *FileStore) Delete(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.load()
	if _, ok := records[index]; !ok {
		return nil
	}
	delete(records, index)
	return s.save(records)
}

// Replace overwrites the roster with records
func (s *FileStore) Replace(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[int]Record, len(records))
	for _, rec := range records {
		m[rec.Index] = rec
	}
	return s.save(m)
}
