package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/tracker/camera"
)

type fakeRecognizer struct {
	faces []recognition.Face
	err   error
}

func (f *fakeRecognizer) Detect(ctx context.Context, data []byte) ([]recognition.Face, error) {
	return f.faces, f.err
}

func frame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for y := range 120 {
		for x := range 160 {
			img.Set(x, y, color.Gray{Y: 40})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func setup(t *testing.T, faces ...recognition.Face) (*Tracker, *attendance.Log) {
	t.Helper()
	ctx := context.Background()
	store := roster.NewFileStore(filepath.Join(t.TempDir(), "roster.cbor"))
	if err := store.Replace(ctx, []roster.Record{
		{Index: 0, ID: "S1", Name: "Ada", Encoding: []float32{0, 0}},
		{Index: 1, ID: "S2", Name: "Grace", Encoding: []float32{1, 0}},
	}); err != nil {
		t.Fatal(err)
	}
	matcher := roster.NewMatcher(store, "")
	if err := matcher.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	log := attendance.New(filepath.Join(t.TempDir(), "attendance"))
	return New(&fakeRecognizer{faces: faces}, matcher, log), log
}

func TestProcess_RecognizesAndAnnotates(t *testing.T) {
	tr, _ := setup(t,
		recognition.Face{Box: image.Rect(10, 40, 50, 90), Encoding: []float32{0.05, 0}},
		recognition.Face{Box: image.Rect(90, 40, 130, 90), Encoding: []float32{9, 9}},
	)

	res, err := tr.Process(context.Background(), frame(t), Options{Tolerance: 0.5, ShowDistance: true})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(res.Faces))
	}
	if res.Faces[0].Name != "Ada" || !res.Faces[0].Matched || res.Faces[0].ID != "S1" {
		t.Errorf("unexpected first face %+v", res.Faces[0])
	}
	if res.Faces[1].Name != constants.UnknownLabel || res.Faces[1].Matched {
		t.Errorf("expected unknown second face, got %+v", res.Faces[1])
	}
	// The frame result reports the last face.
	if res.Name != constants.UnknownLabel || res.ID != constants.UnknownLabel {
		t.Errorf("expected last face to be Unknown, got %s/%s", res.Name, res.ID)
	}
	if res.Faces[0].Box != [4]int{10, 40, 50, 90} {
		t.Errorf("unexpected box %v", res.Faces[0].Box)
	}
	if recognition.DetectMIMEType(res.Annotated) != "image/jpeg" {
		t.Error("expected annotated JPEG")
	}
}

func TestProcess_NoFaces(t *testing.T) {
	tr, _ := setup(t)
	res, err := tr.Process(context.Background(), frame(t), Options{Tolerance: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Faces) != 0 || res.Name != constants.UnknownLabel {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProcess_EmptyRoster(t *testing.T) {
	ctx := context.Background()
	store := roster.NewFileStore(filepath.Join(t.TempDir(), "roster.cbor"))
	matcher := roster.NewMatcher(store, "")
	if err := matcher.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	face := recognition.Face{Box: image.Rect(10, 10, 60, 60), Encoding: []float32{0, 0}}
	tr := New(&fakeRecognizer{faces: []recognition.Face{face}}, matcher, nil)

	res, err := tr.Process(ctx, frame(t), Options{Tolerance: 0.5, AutoMark: true, ShowDistance: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Faces) != 1 || res.Faces[0].Matched || res.Faces[0].Distance != -1 {
		t.Errorf("expected one unmatched face with distance -1, got %+v", res.Faces)
	}
	if _, err := json.Marshal(res); err != nil {
		t.Errorf("result must be JSON encodable: %v", err)
	}
}

func TestProcess_AutoMarkOncePerDay(t *testing.T) {
	tr, log := setup(t, recognition.Face{Box: image.Rect(10, 10, 60, 60), Encoding: []float32{1, 0}})
	opts := Options{Tolerance: 0.5, AutoMark: true}

	first, err := tr.Process(context.Background(), frame(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Faces[0].Marked {
		t.Error("expected first sighting to mark attendance")
	}

	second, err := tr.Process(context.Background(), frame(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	if second.Faces[0].Marked {
		t.Error("expected second sighting on the same day not to mark")
	}

	entries, err := log.Report("", "S2")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "present" || entries[0].Name != "Grace" {
		t.Errorf("expected one present row for Grace, got %+v", entries)
	}
}

func TestProcess_AutoMarkRespectsExistingRows(t *testing.T) {
	tr, log := setup(t, recognition.Face{Box: image.Rect(10, 10, 60, 60), Encoding: []float32{0, 0}})
	if _, err := log.Mark("S1", "Ada", attendance.StatusLate); err != nil {
		t.Fatal(err)
	}

	res, err := tr.Process(context.Background(), frame(t), Options{Tolerance: 0.5, AutoMark: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Faces[0].Marked {
		t.Error("student already logged today must not be marked again")
	}
}

func TestProcess_NoAutoMark(t *testing.T) {
	tr, log := setup(t, recognition.Face{Box: image.Rect(10, 10, 60, 60), Encoding: []float32{0, 0}})
	if _, err := tr.Process(context.Background(), frame(t), Options{Tolerance: 0.5}); err != nil {
		t.Fatal(err)
	}
	dates, _ := log.Dates()
	if len(dates) != 0 {
		t.Errorf("expected no attendance written, got %v", dates)
	}
}

func TestProcess_Errors(t *testing.T) {
	tr, _ := setup(t)
	if _, err := tr.Process(context.Background(), []byte("not an image"), Options{}); err == nil {
		t.Error("expected decode error")
	}

	tr.recognizer = &fakeRecognizer{err: errors.New("backend down")}
	if _, err := tr.Process(context.Background(), frame(t), Options{}); err == nil {
		t.Error("expected backend error")
	}
}

func TestWatch_ReplaysDirectory(t *testing.T) {
	tr, _ := setup(t, recognition.Face{Box: image.Rect(10, 10, 60, 60), Encoding: []float32{0, 0}})
	dir := t.TempDir()
	for _, name := range []string{"1.png", "2.png", "3.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), frame(t), 0600); err != nil {
			t.Fatal(err)
		}
	}
	cam, err := camera.OpenDir(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	var frames int
	err = tr.Watch(context.Background(), cam, Options{Tolerance: 0.5, Interval: time.Millisecond}, func(r *Result) error {
		frames++
		if r.Name != "Ada" {
			t.Errorf("expected Ada, got %s", r.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if frames != 3 {
		t.Errorf("expected 3 frames, got %d", frames)
	}
}

type brokenCamera struct{}

func (brokenCamera) Read(ctx context.Context) ([]byte, error) { return nil, errors.New("device gone") }
func (brokenCamera) Close() error                             { return nil }

func TestWatch_CaptureFailure(t *testing.T) {
	tr, _ := setup(t)
	err := tr.Watch(context.Background(), brokenCamera{}, Options{}, nil)
	if err == nil || err.Error() != "failed to capture frame: device gone" {
		t.Errorf("expected capture failure, got %v", err)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	tr, _ := setup(t)
	cam, err := camera.OpenDir(writeOne(t, frame(t)), true)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var frames int
	err = tr.Watch(ctx, cam, Options{Interval: time.Millisecond}, func(r *Result) error {
		frames++
		if frames == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected clean stop on cancel, got %v", err)
	}
	if frames != 2 {
		t.Errorf("expected 2 frames before cancel, got %d", frames)
	}
}

func writeOne(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.png"), data, 0600); err != nil {
		t.Fatal(err)
	}
	return dir
}
