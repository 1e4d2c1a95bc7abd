//go:build !dlib

package recognition

import "fmt"

// NewDlibRecognizer reports that the binary was built without dlib support.
// Rebuild with -tags dlib (requires libdlib) to enable the in-process backend.
func NewDlibRecognizer(modelsDir string) (Recognizer, error) {
	return nil, fmt.Errorf("%w: dlib (rebuild with -tags dlib)", ErrBackendUnavailable)
}
