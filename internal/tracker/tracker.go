// Package tracker recognizes faces in frames, annotates them and marks attendance.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/annotate"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/tracker/camera"
)

// Options control one recognition pass.
type Options struct {
	Tolerance    float64
	AutoMark     bool
	ShowDistance bool
	Interval     time.Duration // pause between live frames, defaults to constants.FrameInterval
}

// FaceResult is the outcome for one detected face.
type FaceResult struct {
	Box      [4]int  `json:"box"` // x1, y1, x2, y2
	Name     string  `json:"name"`
	ID       string  `json:"id"`
	Distance float64 `json:"distance"` // -1 when the roster is empty
	Matched  bool    `json:"matched"`
	Marked   bool    `json:"marked"` // attendance was written for this face
}

// Result is the outcome for one frame. Name and ID are those of the last
// face, or "Unknown" when no face was recognized.
type Result struct {
	Faces     []FaceResult `json:"faces"`
	Name      string       `json:"name"`
	ID        string       `json:"id"`
	Annotated []byte       `json:"-"` // JPEG
}

// Tracker ties the recognizer, the roster matcher and the attendance log together.
type Tracker struct {
	recognizer recognition.Recognizer
	matcher    *roster.Matcher
	log        *attendance.Log

	mu     sync.Mutex
	marked map[string]string // student ID -> date of last auto-mark
}

// New creates a tracker. log may be nil when attendance is never marked.
func New(recognizer recognition.Recognizer, matcher *roster.Matcher, log *attendance.Log) *Tracker {
	return &Tracker{
		recognizer: recognizer,
		matcher:    matcher,
		log:        log,
		marked:     make(map[string]string),
	}
}

// Process recognizes every face in frame and returns the annotated frame.
func (t *Tracker) Process(ctx context.Context, frame []byte, opts Options) (*Result, error) {
	normalized, img, err := recognition.NormalizeImage(frame)
	if err != nil {
		return nil, err
	}

	faces, err := t.recognizer.Detect(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	res := &Result{
		Faces: make([]FaceResult, 0, len(faces)),
		Name:  constants.UnknownLabel,
		ID:    constants.UnknownLabel,
	}
	boxes := make([]annotate.Face, 0, len(faces))

	for _, face := range faces {
		m := t.matcher.Match(face.Encoding, opts.Tolerance)
		fr := FaceResult{
			Box:      [4]int{face.Box.Min.X, face.Box.Min.Y, face.Box.Max.X, face.Box.Max.Y},
			Name:     m.Label(),
			ID:       m.StudentID(),
			Distance: m.Distance,
			Matched:  m.Matched,
		}
		if m.Record == nil {
			fr.Distance = -1
		}
		if m.Matched && opts.AutoMark {
			fr.Marked, err = t.autoMark(m.Record)
			if err != nil {
				return nil, err
			}
		}
		res.Faces = append(res.Faces, fr)
		res.Name, res.ID = fr.Name, fr.ID
		boxes = append(boxes, annotate.Face{Box: face.Box, Label: fr.Name, Distance: fr.Distance, Matched: fr.Matched})
	}

	annotated, err := recognition.EncodeJPEG(annotate.Draw(img, boxes, opts.ShowDistance))
	if err != nil {
		return nil, err
	}
	res.Annotated = annotated
	return res, nil
}

// autoMark marks the student present unless they already have a row today.
func (t *Tracker) autoMark(rec *roster.Record) (bool, error) {
	if t.log == nil {
		return false, nil
	}
	today := t.log.Today()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.marked[rec.ID] == today {
		return false, nil
	}
	already, err := t.log.Marked(today, rec.ID)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	if already {
		t.marked[rec.ID] = today
		return false, nil
	}
	if _, err := t.log.Mark(rec.ID, rec.Name, attendance.StatusPresent); err != nil {
		return false, fmt.Errorf("mark attendance: %w", err)
	}
	t.marked[rec.ID] = today
	log.Printf("Marked %s (%s) present", rec.Name, rec.ID)
	return true, nil
}

// Watch processes frames from cam until ctx is cancelled, the camera runs out
// of frames or onFrame returns an error.
func (t *Tracker) Watch(ctx context.Context, cam camera.Camera, opts Options, onFrame func(*Result) error) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = constants.FrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, err := cam.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to capture frame: %w", err)
		}

		res, err := t.Process(ctx, frame, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if onFrame != nil {
			if err := onFrame(res); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
