package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/roster/mock"
	"golang.org/x/crypto/bcrypt"
)

// testConfig creates a minimal config for testing
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			DatasetDir:    dir + "/dataset",
			RosterPath:    dir + "/dataset/database.cbor",
			AttendanceDir: dir + "/attendance",
			SettingsPath:  dir + "/config.yaml",
		},
		Admin: config.AdminConfig{Username: "admin"},
	}
}

// withAdminPassword enables authentication with the given password.
func withAdminPassword(t *testing.T, cfg *config.Config, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	cfg.Admin.PasswordHash = string(hash)
}

// widthRecognizer derives the encoding from the image width. Images one pixel
// tall have no face.
type widthRecognizer struct {
	err error
}

func (f *widthRecognizer) Detect(ctx context.Context, data []byte) ([]recognition.Face, error) {
	if f.err != nil {
		return nil, f.err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Height == 1 {
		return nil, nil
	}
	return []recognition.Face{{
		Box:      image.Rect(0, 0, cfg.Width, cfg.Height),
		Encoding: []float32{float32(cfg.Width) / 100, 0},
		Score:    1,
	}}, nil
}

// testImage returns a solid PNG of the given size.
func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: 120, G: 90, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// newTestManager creates a roster manager on an in-memory store.
func newTestManager(t *testing.T) (*roster.Manager, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	matcher := roster.NewMatcher(store, "")
	return roster.NewManager(store, &widthRecognizer{}, matcher), store
}

// enroll adds a student through the manager so the matcher sees it.
func enroll(t *testing.T, m *roster.Manager, id, name string, width int) *roster.Record {
	t.Helper()
	res, err := m.Submit(context.Background(), roster.SubmitRequest{Name: name, ID: id, Image: testImage(t, width, 20)})
	if err != nil {
		t.Fatalf("failed to enroll %s: %v", id, err)
	}
	return res.Record
}

// multipartFile is one file part of a multipart request.
type multipartFile struct {
	field, name string
	data        []byte
}

// multipartRequest builds a multipart/form-data request.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...multipartFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(f.data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
