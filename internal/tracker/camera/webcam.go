//go:build gocv

package camera

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// Webcam reads frames from a local capture device through OpenCV.
type Webcam struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// Open opens the webcam at cfg.Index and requests cfg.Width x cfg.Height frames.
func Open(cfg Config) (Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, cfg.Index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrCameraUnavailable, cfg.Index)
	}
	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	return &Webcam{capture: capture, frame: gocv.NewMat()}, nil
}

// Read grabs one frame and encodes it as JPEG.
func (w *Webcam) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := w.capture.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("failed to capture frame")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, w.frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.frame.Close()
	if err := w.capture.Close(); err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	return nil
}
