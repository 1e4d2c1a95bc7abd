package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// ConfigHandler handles configuration and settings endpoints
type ConfigHandler struct {
	config   *config.Config
	settings *config.SettingsStore
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, settings *config.SettingsStore) *ConfigHandler {
	return &ConfigHandler{
		config:   cfg,
		settings: settings,
	}
}

// ConfigResponse describes how the server is wired
type ConfigResponse struct {
	Recognizer    string `json:"recognizer"`
	RosterBackend string `json:"roster_backend"`
	AuthEnabled   bool   `json:"auth_enabled"`
	DatasetDir    string `json:"dataset_dir"`
	AttendanceDir string `json:"attendance_dir"`
}

// Get returns the runtime configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		Recognizer:    h.config.Recognizer.Backend,
		RosterBackend: h.config.Database.Driver(),
		AuthEnabled:   h.config.Admin.AuthEnabled(),
		DatasetDir:    h.config.Paths.DatasetDir,
		AttendanceDir: h.config.Paths.AttendanceDir,
	})
}

// GetSettings returns the editable settings
func (h *ConfigHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.settings.Get())
}

// UpdateSettings validates and saves the settings. Missing fields keep their current values.
func (h *ConfigHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	next := h.settings.Get()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := next.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settings.Update(&next); err != nil {
		log.Printf("Failed to save settings: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	respondJSON(w, http.StatusOK, next)
}
