package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// StudentsHandler handles roster endpoints
type StudentsHandler struct {
	manager *roster.Manager
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(manager *roster.Manager) *StudentsHandler {
	return &StudentsHandler{manager: manager}
}

// StudentResponse is a roster record without its image and encoding
type StudentResponse struct {
	roster.Record
	HasImage    bool `json:"has_image"`
	HasEncoding bool `json:"has_encoding"`
}

func toStudentResponse(rec *roster.Record) StudentResponse {
	return StudentResponse{
		Record:      *rec,
		HasImage:    rec.HasImage(),
		HasEncoding: len(rec.Encoding) > 0,
	}
}

// List returns students, optionally filtered by ?search=
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondServiceError(w, "list students", err)
		return
	}

	students := make([]StudentResponse, len(records))
	for i := range records {
		students[i] = toStudentResponse(&records[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"students": students,
		"count":    len(students),
	})
}

// Get returns a single student by ID
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.InfoFromID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, "get student", err)
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(rec))
}

// Image serves the stored portrait
func (h *StudentsHandler) Image(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.InfoFromID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, "get student", err)
		return
	}
	if !rec.HasImage() {
		respondError(w, http.StatusNotFound, "student has no image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Image)
}

// Create enrolls a new student from a multipart form with name, id and image
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	id := strings.TrimSpace(r.FormValue("id"))
	if name == "" || id == "" {
		respondError(w, http.StatusBadRequest, "name and id are required")
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if image == nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	res, err := h.manager.Submit(r.Context(), roster.SubmitRequest{Name: name, ID: id, Image: image})
	if err != nil {
		respondServiceError(w, "create student", err)
		return
	}

	log.Printf("Enrolled student %s (%s) at index %d", sanitizeForLog(res.Record.Name), sanitizeForLog(res.Record.ID), res.Record.Index)
	respondJSON(w, http.StatusCreated, toStudentResponse(res.Record))
}

// Update changes a student's name, ID or image. Omitted fields keep their values.
func (h *StudentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.manager.InfoFromID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, "get student", err)
		return
	}

	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := roster.SubmitRequest{
		Name:     existing.Name,
		ID:       existing.ID,
		OldIndex: &existing.Index,
	}
	if name := strings.TrimSpace(r.FormValue("name")); name != "" {
		req.Name = name
	}
	if newID := strings.TrimSpace(r.FormValue("new_id")); newID != "" {
		req.ID = newID
	}
	if req.Image, err = readFormFile(r, "image"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.manager.Submit(r.Context(), req)
	if err != nil {
		respondServiceError(w, "update student", err)
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(res.Record))
}

// Delete removes a student by ID
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.DeleteByID(r.Context(), id); err != nil {
		respondServiceError(w, "delete student", err)
		return
	}
	log.Printf("Deleted student %s", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// readFormFile returns the contents of an uploaded file, or nil when the field is absent.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload", field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s", field)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
