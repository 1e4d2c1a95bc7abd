//go:build !gocv

package camera

import "fmt"

// Open reports ErrCameraUnavailable. Build with -tags gocv for webcam support.
func Open(cfg Config) (Camera, error) {
	return nil, fmt.Errorf("%w: built without gocv support (device %d)", ErrCameraUnavailable, cfg.Index)
}
