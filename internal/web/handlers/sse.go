package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventStream writes server-sent events to one client.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventStream sets the SSE headers. It fails when the writer cannot flush.
func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &eventStream{w: w, flusher: flusher}, true
}

// send writes one event with a JSON payload and flushes it.
func (s *eventStream) send(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamJobEvents sends the job snapshot as a "status" event, then relays job
// events until the job finishes or the client goes away. A finished job gets
// its status event only.
func streamJobEvents(w http.ResponseWriter, r *http.Request, job *RebuildJob) {
	stream, ok := newEventStream(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := job.AddListener()
	defer job.RemoveListener(events)

	if err := stream.send("status", job.Snapshot()); err != nil || job.GetStatus().Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := stream.send(event.Type, event); err != nil {
				return
			}
			if job.GetStatus().Terminal() {
				return
			}
		}
	}
}
