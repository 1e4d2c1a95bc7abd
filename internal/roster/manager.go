package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Manager implements the enrollment workflow on top of a Store.
type Manager struct {
	store      Store
	recognizer recognition.Recognizer
	matcher    *Matcher
	now        func() time.Time

	// mu serializes roster writes so the duplicate check, index allocation
	// and Put of one submission cannot interleave with another.
	mu sync.Mutex
}

// NewManager creates a manager. matcher may be nil when nothing matches against the roster.
func NewManager(store Store, recognizer recognition.Recognizer, matcher *Matcher) *Manager {
	return &Manager{
		store:      store,
		recognizer: recognizer,
		matcher:    matcher,
		now:        time.Now,
	}
}

// Store returns the underlying roster store.
func (m *Manager) Store() Store {
	return m.store
}

// Matcher returns the matcher kept in sync with the roster, may be nil.
func (m *Manager) Matcher() *Matcher {
	return m.matcher
}

// SubmitRequest adds a student, or updates the one at OldIndex.
type SubmitRequest struct {
	Name     string
	ID       string
	Image    []byte // required when adding, optional when updating
	OldIndex *int
}

// SubmitResult describes a successful submission.
type SubmitResult struct {
	Record  *Record
	Created bool
}

// Submit enrolls a new student or updates an existing one.
// It returns recognition.ErrNoFace when the image has no face and
// ErrDuplicateID when the ID belongs to another record.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.ID = strings.TrimSpace(req.ID)
	if req.Name == "" || req.ID == "" {
		return nil, fmt.Errorf("%w: name and ID are required", ErrInvalid)
	}
	if req.OldIndex == nil && len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalid)
	}

	var image []byte
	var encoding []float32
	if len(req.Image) > 0 {
		normalized, _, err := recognition.NormalizeImage(req.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		encoding, err = recognition.FirstEncoding(ctx, m.recognizer, normalized)
		if err != nil {
			return nil, err
		}
		image = normalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	holder, err := m.store.FindByID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}

	now := m.now()
	var rec Record
	created := req.OldIndex == nil
	if created {
		if holder != nil {
			return nil, ErrDuplicateID
		}
		index, err := m.nextIndex(ctx)
		if err != nil {
			return nil, err
		}
		rec = Record{Index: index, CreatedAt: now}
	} else {
		existing, err := m.store.Get(ctx, *req.OldIndex)
		if err != nil {
			return nil, fmt.Errorf("get student: %w", err)
		}
		if existing == nil {
			return nil, ErrNotFound
		}
		if holder != nil && holder.Index != existing.Index {
			return nil, ErrDuplicateID
		}
		rec = *existing
		if image == nil {
			image = existing.Image
			encoding = existing.Encoding
		}
	}

	rec.ID = req.ID
	rec.Name = req.Name
	rec.Image = image
	rec.Encoding = encoding
	rec.UpdatedAt = now

	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("save student: %w", err)
	}
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	return &SubmitResult{Record: &rec, Created: created}, nil
}

// nextIndex returns one past the highest index in use.
func (m *Manager) nextIndex(ctx context.Context) (int, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}
	next := 0
	for _, rec := range all {
		next = max(next, rec.Index+1)
	}
	return next, nil
}

func (m *Manager) refresh(ctx context.Context) error {
	if m.matcher == nil {
		return nil
	}
	if err := m.matcher.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh matcher: %w", err)
	}
	return nil
}

// InfoFromID returns the student with the given ID.
func (m *Manager) InfoFromID(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// DeleteByID removes the student with the given ID.
func (m *Manager) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.InfoFromID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, rec.Index); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return m.refresh(ctx)
}

// List returns students whose name or ID contains search, ignoring case and diacritics.
func (m *Manager) List(ctx context.Context, search string) ([]Record, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	query := NormalizeName(search)
	out := make([]Record, 0, len(all))
	for i := range all {
		if matchesSearch(&all[i], query) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// datasetExtensions are the image types picked up by BuildDataset.
var datasetExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ParseDatasetName splits "<id>_<name parts>.jpg" into ID and name.
// Name parts are joined by spaces.
func ParseDatasetName(filename string) (id, name string, ok bool) {
	ext := filepath.Ext(filename)
	if !datasetExtensions[strings.ToLower(ext)] {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(filename, ext), "_")
	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}
	name = strings.TrimSpace(strings.Join(parts[1:], " "))
	if name == "" {
		return "", "", false
	}
	return parts[0], name, true
}

// BuildProgress is called after each dataset file is processed.
type BuildProgress func(done, total int, file string)

// BuildResult summarizes a dataset rebuild.
type BuildResult struct {
	Total   int              `json:"total"`
	Added   int              `json:"added"`
	Skipped map[string]error `json:"-"`
}

// SkippedFiles returns the skipped file names with their reasons, sorted by name.
func (r *BuildResult) SkippedFiles() []string {
	out := make([]string, 0, len(r.Skipped))
	for file, err := range r.Skipped {
		out = append(out, fmt.Sprintf("%s: %v", file, err))
	}
	sort.Strings(out)
	return out
}

// ErrInvalidFileName is recorded for dataset files not named <id>_<name>.<ext>.
var ErrInvalidFileName = errors.New("file name is not <id>_<name>")

// BuildDataset replaces the roster with one student per image in dir.
// Images without a face, badly named files and repeated IDs are skipped.
// The roster is left untouched when ctx is cancelled.
func (m *Manager) BuildDataset(ctx context.Context, dir string, progress BuildProgress) (*BuildResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !datasetExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	result := &BuildResult{Total: len(files), Skipped: make(map[string]error)}
	records := make([]Record, 0, len(files))
	seen := make(map[string]bool, len(files))
	now := m.now()

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := m.datasetRecord(ctx, filepath.Join(dir, file), file, seen)
		if err != nil {
			result.Skipped[file] = err
		} else {
			rec.Index = len(records)
			rec.CreatedAt = now
			rec.UpdatedAt = now
			records = append(records, *rec)
			seen[rec.ID] = true
		}

		if progress != nil {
			progress(i+1, len(files), file)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Replace(ctx, records); err != nil {
		return result, fmt.Errorf("replace roster: %w", err)
	}
	result.Added = len(records)
	if err := m.refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

func (m *Manager) datasetRecord(ctx context.Context, path, file string, seen map[string]bool) (*Record, error) {
	id, name, ok := ParseDatasetName(file)
	if !ok {
		return nil, ErrInvalidFileName
	}
	if seen[id] {
		return nil, ErrDuplicateID
	}

	data, err := os.ReadFile(path) //nolint:gosec // dataset path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	normalized, _, err := recognition.NormalizeImage(data)
	if err != nil {
		return nil, err
	}
	encoding, err := recognition.FirstEncoding(ctx, m.recognizer, normalized)
	if err != nil {
		return nil, err
	}
	return &Record{ID: id, Name: name, Image: normalized, Encoding: encoding}, nil
}

// Enroll adds a single dataset image to the roster, as dropped into the dataset directory.
func (m *Manager) Enroll(ctx context.Context, path string) (*SubmitResult, error) {
	id, name, ok := ParseDatasetName(filepath.Base(path))
	if !ok {
		return nil, ErrInvalidFileName
	}
	data, err := os.ReadFile(path) //nolint:gosec // dataset path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return m.Submit(ctx, SubmitRequest{Name: name, ID: id, Image: data})
}
