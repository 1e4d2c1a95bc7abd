//go:build dlib

package recognition

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
)

// DlibRecognizer detects and encodes faces in-process with dlib via go-face.
// The model directory must contain shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
type DlibRecognizer struct {
	rec *face.Recognizer
	mu  sync.Mutex // go-face recognizers are not safe for concurrent use
}

// NewDlibRecognizer loads the dlib models from modelsDir.
func NewDlibRecognizer(modelsDir string) (Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &DlibRecognizer{rec: rec}, nil
}

// Detect implements Recognizer.
func (r *DlibRecognizer) Detect(ctx context.Context, imageData []byte) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-face only decodes JPEG.
	if DetectMIMEType(imageData) != "image/jpeg" {
		img, err := DecodeImage(imageData)
		if err != nil {
			return nil, err
		}
		if imageData, err = EncodeJPEG(img); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	found, err := r.rec.Recognize(imageData)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	faces := make([]Face, len(found))
	for i, f := range found {
		enc := make([]float32, len(f.Descriptor))
		copy(enc, f.Descriptor[:])
		faces[i] = Face{
			Box:      f.Rectangle,
			Encoding: enc,
			Score:    1.0, // go-face doesn't provide confidence
		}
	}
	return faces, nil
}

// Close releases the native recognizer.
func (r *DlibRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
	return nil
}
