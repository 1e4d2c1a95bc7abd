package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

const statsCacheTTL = 30 * time.Second

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	manager *roster.Manager
	log     *attendance.Log
	cache   statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(manager *roster.Manager, l *attendance.Log) *StatsHandler {
	return &StatsHandler{manager: manager, log: l}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	TotalStudents   int    `json:"total_students"`
	EncodedStudents int    `json:"encoded_students"`
	IndexedMatching bool   `json:"indexed_matching"`
	AttendanceDays  int    `json:"attendance_days"`
	Today           string `json:"today"`
	PresentToday    int    `json:"present_today"`
	LateToday       int    `json:"late_today"`
	AbsentToday     int    `json:"absent_today"`
}

// Get returns roster and attendance statistics
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	records, err := h.manager.List(r.Context(), "")
	if err != nil {
		respondServiceError(w, "load stats", err)
		return
	}
	dates, err := h.log.Dates()
	if err != nil {
		respondServiceError(w, "load stats", err)
		return
	}
	today := h.log.Today()
	entries, err := h.log.Report(today, "")
	if err != nil {
		respondServiceError(w, "load stats", err)
		return
	}

	stats := &StatsResponse{
		TotalStudents:  len(records),
		AttendanceDays: len(dates),
		Today:          today,
	}
	for i := range records {
		if len(records[i].Encoding) > 0 {
			stats.EncodedStudents++
		}
	}
	if m := h.manager.Matcher(); m != nil {
		stats.IndexedMatching = m.Indexed()
	}

	// Count each student once, by their first row of the day.
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		switch attendance.Status(e.Status) {
		case attendance.StatusPresent:
			stats.PresentToday++
		case attendance.StatusLate:
			stats.LateToday++
		default:
			stats.AbsentToday++
		}
	}

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
