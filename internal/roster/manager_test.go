package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func TestManager_SubmitAdd(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	res, err := m.Submit(ctx, SubmitRequest{Name: "Ada", ID: "S1", Image: testImage(t, 40, 40)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Created || res.Record.Index != 0 {
		t.Errorf("expected new record at index 0, got %+v", res)
	}

	res, err = m.Submit(ctx, SubmitRequest{Name: "Grace", ID: "S2", Image: testImage(t, 50, 40)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Record.Index != 1 {
		t.Errorf("expected index 1, got %d", res.Record.Index)
	}

	stored, _ := store.Get(ctx, 1)
	if stored == nil || recognition.DetectMIMEType(stored.Image) != "image/jpeg" {
		t.Error("expected stored image to be normalized to JPEG")
	}
	if m.Matcher().Len() != 2 {
		t.Errorf("expected matcher refreshed with 2 records, got %d", m.Matcher().Len())
	}
}

func TestManager_SubmitConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	m := NewManager(store, &widthRecognizer{delay: 20 * time.Millisecond}, NewMatcher(store, ""))

	const n = 5
	images := make([][]byte, n)
	for i := range images {
		images[i] = testImage(t, 40+i, 40)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Go(func() {
			_, errs[i] = m.Submit(ctx, SubmitRequest{
				Name:  fmt.Sprintf("Student %d", i),
				ID:    fmt.Sprintf("S%d", i),
				Image: images[i],
			})
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Fatalf("expected %d students after concurrent adds, got %d", n, len(all))
	}
	indices := make(map[int]bool, n)
	for _, rec := range all {
		if indices[rec.Index] {
			t.Errorf("index %d assigned twice", rec.Index)
		}
		indices[rec.Index] = true
	}
}

func TestManager_SubmitConcurrentDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	m := NewManager(store, &widthRecognizer{delay: 20 * time.Millisecond}, nil)

	img := testImage(t, 40, 40)
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Go(func() {
			_, errs[i] = m.Submit(ctx, SubmitRequest{Name: "Ada", ID: "S1", Image: img})
		})
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateID):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || duplicates != 2 {
		t.Errorf("expected 1 success and 2 duplicates, got %d and %d", succeeded, duplicates)
	}
}

func TestManager_SubmitErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Submit(ctx, SubmitRequest{Name: "Ada", ID: "S1", Image: testImage(t, 40, 40)}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr error
	}{
		{"duplicate id", SubmitRequest{Name: "Other", ID: "S1", Image: testImage(t, 60, 40)}, ErrDuplicateID},
		{"no face", SubmitRequest{Name: "Nobody", ID: "S9", Image: testImage(t, 60, 1)}, recognition.ErrNoFace},
		{"missing name", SubmitRequest{ID: "S9", Image: testImage(t, 60, 40)}, ErrInvalid},
		{"missing image", SubmitRequest{Name: "X", ID: "S9"}, ErrInvalid},
		{"undecodable image", SubmitRequest{Name: "X", ID: "S9", Image: []byte("nope")}, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Submit(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestManager_NewIndexAfterDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	for _, id := range []string{"A", "B", "C"} {
		if _, err := m.Submit(ctx, SubmitRequest{Name: id, ID: id, Image: testImage(t, 40, 40)}); err != nil {
			t.Fatalf("Submit %s failed: %v", id, err)
		}
	}
	if err := m.DeleteByID(ctx, "A"); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}

	res, err := m.Submit(ctx, SubmitRequest{Name: "D", ID: "D", Image: testImage(t, 40, 40)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Record.Index != 3 {
		t.Errorf("expected index 3 so C is not overwritten, got %d", res.Record.Index)
	}
	c, err := m.InfoFromID(ctx, "C")
	if err != nil || c.Index != 2 {
		t.Errorf("expected C to survive at index 2, got %+v (err %v)", c, err)
	}
}

func TestManager_SubmitUpdate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	first, _ := m.Submit(ctx, SubmitRequest{Name: "Ada", ID: "S1", Image: testImage(t, 40, 40)})
	second, _ := m.Submit(ctx, SubmitRequest{Name: "Grace", ID: "S2", Image: testImage(t, 80, 40)})

	idx := first.Record.Index
	res, err := m.Submit(ctx, SubmitRequest{Name: "Ada King", ID: "S1-new", OldIndex: &idx})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if res.Created || res.Record.Index != idx {
		t.Errorf("expected update in place, got %+v", res)
	}
	if len(res.Record.Encoding) == 0 || res.Record.Encoding[0] != 0.4 {
		t.Errorf("expected encoding kept when no image given, got %v", res.Record.Encoding)
	}
	if !res.Record.CreatedAt.Equal(first.Record.CreatedAt) {
		t.Error("expected created at to be preserved")
	}
	if _, err := m.InfoFromID(ctx, "S1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old ID to be gone, got %v", err)
	}

	// Taking another student's ID is rejected.
	if _, err := m.Submit(ctx, SubmitRequest{Name: "Ada", ID: second.Record.ID, OldIndex: &idx}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	missing := 99
	if _, err := m.Submit(ctx, SubmitRequest{Name: "X", ID: "X", OldIndex: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_InfoAndDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.InfoFromID(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.DeleteByID(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_List(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	for _, s := range []struct{ id, name string }{
		{"S1", "Jiří Novák"},
		{"S2", "Anna Svobodová"},
		{"X3", "Petr Dvořák"},
	} {
		if _, err := m.Submit(ctx, SubmitRequest{Name: s.name, ID: s.id, Image: testImage(t, 40, 40)}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"", []string{"S1", "S2", "X3"}},
		{"novak", []string{"S1"}},
		{"SVOBODOVA", []string{"S2"}},
		{"s", []string{"S1", "S2"}},
		{"zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			got, err := m.List(ctx, tt.search)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %d records", tt.want, len(got))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("record %d: expected %s, got %s", i, tt.want[i], got[i].ID)
				}
			}
		})
	}
}

func TestParseDatasetName(t *testing.T) {
	tests := []struct {
		file     string
		wantID   string
		wantName string
		wantOK   bool
	}{
		{"101_John_Smith.jpg", "101", "John Smith", true},
		{"7_Ada.PNG", "7", "Ada", true},
		{"S3_Mary_Ann_Lee.jpeg", "S3", "Mary Ann Lee", true},
		{"noname.jpg", "", "", false},
		{"_Ghost.jpg", "", "", false},
		{"42_.jpg", "", "", false},
		{"1_Doc.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			id, name, ok := ParseDatasetName(tt.file)
			if ok != tt.wantOK || id != tt.wantID || name != tt.wantName {
				t.Errorf("ParseDatasetName(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.file, id, name, ok, tt.wantID, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestManager_BuildDataset(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	// Existing students are replaced.
	if _, err := m.Submit(ctx, SubmitRequest{Name: "Old", ID: "OLD", Image: testImage(t, 40, 40)}); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	files := map[string][]byte{
		"1_Ada_Lovelace.png": testImage(t, 40, 40),
		"2_Grace_Hopper.png": testImage(t, 60, 40),
		"3_No_Face.png":      testImage(t, 60, 1),
		"badname.png":        testImage(t, 60, 40),
		"1_Ada_Again.png":    testImage(t, 70, 40),
		"notes.txt":          []byte("ignored"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			t.Fatal(err)
		}
	}

	var calls int
	res, err := m.BuildDataset(ctx, dir, func(done, total int, file string) {
		calls++
		if total != 5 {
			t.Errorf("expected 5 images, got %d", total)
		}
	})
	if err != nil {
		t.Fatalf("BuildDataset failed: %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 progress calls, got %d", calls)
	}
	if res.Added != 2 {
		t.Errorf("expected 2 students, got %d (skipped %v)", res.Added, res.SkippedFiles())
	}
	if !errors.Is(res.Skipped["3_No_Face.png"], recognition.ErrNoFace) {
		t.Errorf("expected no-face skip, got %v", res.Skipped["3_No_Face.png"])
	}
	if !errors.Is(res.Skipped["badname.png"], ErrInvalidFileName) {
		t.Errorf("expected invalid name skip, got %v", res.Skipped["badname.png"])
	}

	all, _ := store.All(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	// Files are processed in name order, so "1_Ada_Again" claims ID 1 first.
	if all[0].Index != 0 || all[0].ID != "1" || all[0].Name != "Ada Again" {
		t.Errorf("unexpected first record %+v", all[0])
	}
	if all[1].Index != 1 || all[1].Name != "Grace Hopper" {
		t.Errorf("unexpected second record %+v", all[1])
	}
	if _, err := m.InfoFromID(ctx, "OLD"); !errors.Is(err, ErrNotFound) {
		t.Error("expected previous roster to be replaced")
	}
}

func TestManager_BuildDatasetCancelled(t *testing.T) {
	m, store := newTestManager(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1_Ada.png"), testImage(t, 40, 40), 0600); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), Record{Index: 0, ID: "keep"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.BuildDataset(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rec, _ := store.FindByID(context.Background(), "keep"); rec == nil {
		t.Error("expected roster untouched after cancellation")
	}
}

func TestManager_Enroll(t *testing.T) {
	m, _ := newTestManager(t)
	path := filepath.Join(t.TempDir(), "55_Alan_Turing.png")
	if err := os.WriteFile(path, testImage(t, 40, 40), 0600); err != nil {
		t.Fatal(err)
	}

	res, err := m.Enroll(context.Background(), path)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if res.Record.ID != "55" || res.Record.Name != "Alan Turing" {
		t.Errorf("unexpected record %+v", res.Record)
	}
}
