// Package recognition is the boundary to the external face-recognition backend.
// Detection and encoding happen in the backend; this package only moves images in
// and encodings out, and compares encodings the way the backend library does.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// ErrNoFace is returned when an image contains no detectable face.
var ErrNoFace = errors.New("no face in the picture")

// ErrBackendUnavailable is returned when the selected backend was not compiled in.
var ErrBackendUnavailable = errors.New("recognizer backend unavailable")

// Face is a single detected face.
type Face struct {
	Box      image.Rectangle // in pixel coordinates of the submitted image
	Encoding []float32
	Score    float64 // detection score, 1 when the backend does not report one
}

// Recognizer detects faces and computes their encodings.
type Recognizer interface {
	Detect(ctx context.Context, imageData []byte) ([]Face, error)
}

// Closer is implemented by backends holding native resources.
type Closer interface {
	Close() error
}

// New builds the recognizer selected in cfg.
func New(cfg *config.RecognizerConfig) (Recognizer, error) {
	switch cfg.Backend {
	case "", "http":
		return NewFaceClient(cfg.FaceServiceURL), nil
	case "dlib":
		return NewDlibRecognizer(cfg.ModelsDir)
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
	}
}

// HasFace reports whether the image contains at least one face.
func HasFace(ctx context.Context, r Recognizer, imageData []byte) (bool, error) {
	faces, err := r.Detect(ctx, imageData)
	if err != nil {
		return false, err
	}
	return len(faces) > 0, nil
}

// FirstEncoding returns the encoding of the first detected face, or ErrNoFace.
func FirstEncoding(ctx context.Context, r Recognizer, imageData []byte) ([]float32, error) {
	faces, err := r.Detect(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}
	return faces[0].Encoding, nil
}
