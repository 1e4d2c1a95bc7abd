package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// DatasetHandler handles roster rebuilds from the dataset directory
type DatasetHandler struct {
	manager    *roster.Manager
	datasetDir string
	jobManager *JobManager
	onComplete func() // called after a successful rebuild
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(manager *roster.Manager, datasetDir string, jm *JobManager, onComplete func()) *DatasetHandler {
	return &DatasetHandler{
		manager:    manager,
		datasetDir: datasetDir,
		jobManager: jm,
		onComplete: onComplete,
	}
}

// Rebuild starts an async rebuild job. Only one rebuild runs at a time.
func (h *DatasetHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	job, active := h.jobManager.StartExclusive(uuid.New().String(), h.datasetDir, cancel)
	if active != nil {
		cancel()
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "a rebuild is already running",
			"job_id": active.ID,
		})
		return
	}

	go h.runRebuild(ctx, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// Status returns the status of a rebuild job
func (h *DatasetHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams rebuild progress via SSE
func (h *DatasetHandler) Events(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	streamJobEvents(w, r, job)
}

// Cancel cancels a running rebuild job
func (h *DatasetHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Cancel() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runRebuild runs the rebuild in the background
func (h *DatasetHandler) runRebuild(ctx context.Context, job *RebuildJob) {
	defer job.cancel()

	if !job.setStatus(JobStatusRunning) {
		return
	}
	job.SendEvent(JobEvent{Type: "started", Message: "Rebuilding roster from " + job.DatasetDir})
	log.Printf("Rebuilding roster from %s (job %s)", job.DatasetDir, job.ID)

	result, err := h.manager.BuildDataset(ctx, job.DatasetDir, func(done, total int, file string) {
		job.mu.Lock()
		job.Processed = done
		job.Total = total
		job.CurrentFile = file
		job.mu.Unlock()
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]any{"processed": done, "total": total, "file": file},
		})
	})

	if ctx.Err() != nil {
		// Cancel already set the status and notified listeners.
		log.Printf("Rebuild job %s cancelled", job.ID)
		return
	}
	if err != nil {
		log.Printf("Rebuild job %s failed: %v", job.ID, err)
		job.mu.Lock()
		job.Error = err.Error()
		job.mu.Unlock()
		job.setStatus(JobStatusFailed)
		job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
		return
	}

	res := &RebuildResult{Total: result.Total, Added: result.Added, Skipped: result.SkippedFiles()}
	job.mu.Lock()
	job.Result = res
	job.CurrentFile = ""
	job.mu.Unlock()
	if h.onComplete != nil {
		h.onComplete()
	}
	if !job.setStatus(JobStatusCompleted) {
		log.Printf("Rebuild job %s was cancelled after the roster was replaced", job.ID)
		return
	}

	log.Printf("Rebuild job %s added %d of %d images", job.ID, res.Added, res.Total)
	job.SendEvent(JobEvent{
		Type:    "completed",
		Message: fmt.Sprintf("Added %d of %d images", res.Added, res.Total),
		Data:    res,
	})
}
