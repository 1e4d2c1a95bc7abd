package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// AttendanceHandler handles attendance log endpoints
type AttendanceHandler struct {
	log     *attendance.Log
	manager *roster.Manager
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(l *attendance.Log, manager *roster.Manager) *AttendanceHandler {
	return &AttendanceHandler{log: l, manager: manager}
}

type markRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Mark appends a row to today's attendance file. The name is taken from the
// roster when the request leaves it out.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		respondServiceError(w, "mark attendance", err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		rec, err := h.manager.InfoFromID(r.Context(), req.ID)
		if err != nil {
			respondServiceError(w, "mark attendance", err)
			return
		}
		name = rec.Name
	}

	entry, err := h.log.Mark(req.ID, name, status)
	if err != nil {
		respondServiceError(w, "mark attendance", err)
		return
	}

	log.Printf("Marked %s (%s) %s", sanitizeForLog(name), sanitizeForLog(req.ID), status)
	respondJSON(w, http.StatusCreated, map[string]any{
		"date":  h.log.Today(),
		"entry": entry,
	})
}

// Report returns the rows of ?date= (default today), optionally filtered by ?id=
func (h *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.log.Today()
	}

	entries, err := h.log.Report(date, r.URL.Query().Get("id"))
	if err != nil {
		respondServiceError(w, "read attendance", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"entries": entries,
		"count":   len(entries),
	})
}

// Dates lists every date with attendance records
func (h *AttendanceHandler) Dates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.log.Dates()
	if err != nil {
		respondServiceError(w, "list attendance dates", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// Summary aggregates one student's attendance over ?start= and ?end=
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.log.Summary(chi.URLParam(r, "id"), r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		respondServiceError(w, "summarize attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Export downloads the raw CSV of one day
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	var buf bytes.Buffer
	if err := h.log.Export(date, &buf); err != nil {
		respondServiceError(w, "export attendance", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "attendance_"+date+".csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
