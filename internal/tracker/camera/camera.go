// Package camera provides frame sources for live tracking.
package camera

import (
	"context"
	"errors"
)

// ErrCameraUnavailable is returned when no webcam backend was compiled in or the device cannot be opened.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera yields encoded frames. Read returns io.EOF when a finite source is exhausted.
type Camera interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Config selects and sizes a webcam.
type Config struct {
	Index  int
	Width  int
	Height int
}
