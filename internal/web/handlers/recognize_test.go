package handlers

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/tracker"
)

func newRecognizeHandler(t *testing.T) (*RecognizeHandler, *attendance.Log) {
	t.Helper()
	manager, _ := newTestManager(t)
	enroll(t, manager, "S1", "Anna Smith", 100)
	enroll(t, manager, "S2", "Bob Brown", 300)

	log := attendance.New(t.TempDir())
	tr := tracker.New(&widthRecognizer{}, manager.Matcher(), log)
	settings := config.NewSettingsStore(t.TempDir()+"/config.yaml", nil)
	return NewRecognizeHandler(tr, settings), log
}

type recognizeResponse struct {
	Results   []RecognizeResult `json:"results"`
	Tolerance float64           `json:"tolerance"`
}

func TestRecognizeHandler_Recognize(t *testing.T) {
	handler, log := newRecognizeHandler(t)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", map[string]string{"mark": "true"},
		multipartFile{"files[]", "anna.png", testImage(t, 102, 40)},
		multipartFile{"files[]", "stranger.png", testImage(t, 200, 40)},
	)
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var response recognizeResponse
	parseJSONResponse(t, recorder, &response)

	if len(response.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(response.Results))
	}
	if response.Tolerance != 0.5 {
		t.Errorf("expected default tolerance 0.5, got %v", response.Tolerance)
	}

	anna := response.Results[0]
	if anna.Filename != "anna.png" || anna.ID != "S1" || anna.Name != "Anna Smith" {
		t.Errorf("unexpected first result %+v", anna)
	}
	if len(anna.Faces) != 1 || !anna.Faces[0].Matched || !anna.Faces[0].Marked {
		t.Errorf("expected one matched and marked face, got %+v", anna.Faces)
	}

	stranger := response.Results[1]
	if stranger.Name != "Unknown" || stranger.ID != "Unknown" {
		t.Errorf("expected Unknown for stranger, got %+v", stranger)
	}

	raw, err := base64.StdEncoding.DecodeString(anna.Annotated)
	if err != nil {
		t.Fatalf("annotated image is not base64: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		t.Errorf("annotated image is not a JPEG: %v", err)
	}

	entries, err := log.Report("", "S1")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != string(attendance.StatusPresent) {
		t.Errorf("expected S1 marked present once, got %+v", entries)
	}
}

func TestRecognizeHandler_MarkDisabled(t *testing.T) {
	handler, log := newRecognizeHandler(t)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", map[string]string{"mark": "false", "tolerance": "0.1"},
		multipartFile{"files[]", "anna.png", testImage(t, 100, 40)},
	)
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var response recognizeResponse
	parseJSONResponse(t, recorder, &response)
	if response.Tolerance != 0.1 {
		t.Errorf("expected tolerance 0.1, got %v", response.Tolerance)
	}
	if response.Results[0].ID != "S1" || response.Results[0].Faces[0].Marked {
		t.Errorf("expected unmarked match, got %+v", response.Results[0])
	}

	dates, err := log.Dates()
	if err != nil {
		t.Fatalf("Dates failed: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("expected no attendance files, got %v", dates)
	}
}

func TestRecognizeHandler_InvalidImage(t *testing.T) {
	handler, _ := newRecognizeHandler(t)

	req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", nil,
		multipartFile{"files[]", "notes.txt", []byte("not an image")},
	)
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var response recognizeResponse
	parseJSONResponse(t, recorder, &response)
	if response.Results[0].Error == "" {
		t.Error("expected per-file error for invalid image")
	}
}

func TestRecognizeHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		files     []multipartFile
		wantError string
	}{
		{"no files", nil, nil, "no files uploaded"},
		{"bad tolerance", map[string]string{"tolerance": "2"}, nil, errInvalidTolerance.Error()},
		{"bad mark", map[string]string{"mark": "maybe"}, nil, errInvalidMark.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newRecognizeHandler(t)
			req := multipartRequest(t, http.MethodPost, "/api/v1/recognize", tt.fields, tt.files...)
			recorder := httptest.NewRecorder()

			handler.Recognize(recorder, req)

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.wantError)
		})
	}
}
