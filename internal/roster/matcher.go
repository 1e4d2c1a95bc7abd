package roster

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Match is the outcome of comparing one face against the roster.
type Match struct {
	Record   *Record // closest record, nil when the roster is empty
	Distance float64 // distance to Record, +Inf when the roster is empty
	Matched  bool    // Distance is within tolerance
}

// Label returns the student's name, or "Unknown" when the face did not match.
func (m Match) Label() string {
	if !m.Matched || m.Record == nil {
		return constants.UnknownLabel
	}
	return m.Record.Name
}

// StudentID returns the matched student ID, or "Unknown".
func (m Match) StudentID() string {
	if !m.Matched || m.Record == nil {
		return constants.UnknownLabel
	}
	return m.Record.ID
}

// Matcher keeps an in-memory snapshot of roster encodings for matching.
// Call Refresh after every roster mutation.
type Matcher struct {
	store     Reader
	indexPath string

	mu      sync.RWMutex
	records map[int]*Record
	index   *Index // nil while the roster is below HNSWMinRoster
}

// NewMatcher creates a matcher over store. indexPath may be empty to keep the index in memory only.
func NewMatcher(store Reader, indexPath string) *Matcher {
	return &Matcher{
		store:     store,
		indexPath: indexPath,
		records:   make(map[int]*Record),
	}
}

// Refresh reloads encodings from the store and rebuilds the index when the roster is large enough.
func (m *Matcher) Refresh(ctx context.Context) error {
	all, err := m.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	records := make(map[int]*Record, len(all))
	var encoded []Record
	for i := range all {
		rec := all[i]
		rec.Image = nil
		records[rec.Index] = &rec
		if len(rec.Encoding) > 0 {
			encoded = append(encoded, rec)
		}
	}
	want := describeEncodings(encoded)

	var index *Index
	if len(encoded) > constants.HNSWMinRoster {
		index = NewIndex()
		m.mu.RLock()
		previous := m.index
		m.mu.RUnlock()
		loaded := false
		if previous == nil {
			loaded, err = index.Load(m.indexPath, want)
			if err != nil {
				log.Printf("roster: ignoring saved index: %v", err)
			}
		}
		if !loaded {
			index.Build(encoded)
		}
	}

	m.mu.Lock()
	m.records = records
	m.index = index
	m.mu.Unlock()
	return nil
}

// Match finds the closest record to encoding. The match counts when its
// distance is within tolerance.
func (m *Matcher) Match(encoding []float32, tolerance float64) Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := Match{Distance: math.Inf(1)}
	consider := func(rec *Record) {
		d := recognition.EuclideanDistance(rec.Encoding, encoding)
		if d < best.Distance || (d == best.Distance && best.Record != nil && rec.Index < best.Record.Index) {
			best.Record = rec
			best.Distance = d
		}
	}

	if m.index != nil {
		ids, err := m.index.Search(encoding, constants.HNSWCandidates)
		if err == nil && len(ids) > 0 {
			for _, id := range ids {
				if rec, ok := m.records[id]; ok {
					consider(rec)
				}
			}
			best.Matched = best.Record != nil && best.Distance <= tolerance
			return best
		}
	}

	for _, rec := range m.records {
		consider(rec)
	}
	best.Matched = best.Record != nil && best.Distance <= tolerance
	return best
}

// Len returns the number of records in the snapshot.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Indexed reports whether matching goes through the HNSW index.
func (m *Matcher) Indexed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index != nil
}

// Save persists the index when an index path is configured.
func (m *Matcher) Save() error {
	m.mu.RLock()
	index := m.index
	m.mu.RUnlock()
	if index == nil {
		if m.indexPath != "" {
			return NewIndex().Save(m.indexPath)
		}
		return nil
	}
	return index.Save(m.indexPath)
}
