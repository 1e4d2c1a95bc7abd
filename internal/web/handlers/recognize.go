package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/tracker"
)

var (
	errInvalidTolerance    = errors.New("tolerance must be a number between 0 and 1")
	errInvalidMark         = errors.New("mark must be true or false")
	errInvalidShowDistance = errors.New("show_distance must be true or false")
)

// RecognizeHandler handles face recognition on uploaded images
type RecognizeHandler struct {
	tracker  *tracker.Tracker
	settings *config.SettingsStore
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(t *tracker.Tracker, settings *config.SettingsStore) *RecognizeHandler {
	return &RecognizeHandler{tracker: t, settings: settings}
}

// RecognizeResult is the outcome for one uploaded image
type RecognizeResult struct {
	Filename  string               `json:"filename"`
	Faces     []tracker.FaceResult `json:"faces"`
	Name      string               `json:"name"`
	ID        string               `json:"id"`
	Annotated string               `json:"annotated,omitempty"` // base64 JPEG
	Error     string               `json:"error,omitempty"`
}

// Recognize runs recognition on every image in the files[] field.
// Form fields tolerance, mark and show_distance override the saved settings.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	opts, err := h.options(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	results := make([]RecognizeResult, 0, len(files))
	for _, fh := range files {
		results = append(results, h.recognizeFile(r, fh, opts))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"tolerance": opts.Tolerance,
	})
}

func (h *RecognizeHandler) recognizeFile(r *http.Request, fh *multipart.FileHeader, opts tracker.Options) RecognizeResult {
	result := RecognizeResult{
		Filename: fh.Filename,
		Faces:    []tracker.FaceResult{},
		Name:     constants.UnknownLabel,
		ID:       constants.UnknownLabel,
	}

	file, err := fh.Open()
	if err != nil {
		result.Error = "failed to open upload"
		return result
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		result.Error = "failed to read upload"
		return result
	}

	res, err := h.tracker.Process(r.Context(), data, opts)
	if err != nil {
		log.Printf("Recognition failed for %s: %v", sanitizeForLog(fh.Filename), err)
		result.Error = err.Error()
		return result
	}

	result.Faces = res.Faces
	result.Name = res.Name
	result.ID = res.ID
	result.Annotated = base64.StdEncoding.EncodeToString(res.Annotated)
	return result
}

// options merges request overrides onto the saved recognition settings.
func (h *RecognizeHandler) options(r *http.Request) (tracker.Options, error) {
	s := h.settings.Get()
	opts := tracker.Options{
		Tolerance:    s.Recognition.DefaultTolerance,
		AutoMark:     s.Recognition.AutoMark,
		ShowDistance: s.Recognition.ShowDistance,
	}

	if v := r.FormValue("tolerance"); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil || tol < 0 || tol > 1 {
			return opts, errInvalidTolerance
		}
		opts.Tolerance = tol
	}
	if v := r.FormValue("mark"); v != "" {
		mark, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errInvalidMark
		}
		opts.AutoMark = mark
	}
	if v := r.FormValue("show_distance"); v != "" {
		show, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errInvalidShowDistance
		}
		opts.ShowDistance = show
	}
	return opts, nil
}
