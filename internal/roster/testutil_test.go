package roster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// widthRecognizer derives the encoding from the image width so tests can
// choose identities by image size. Images one pixel tall have no face.
type widthRecognizer struct {
	err   error
	delay time.Duration
}

func (f *widthRecognizer) Detect(ctx context.Context, data []byte) ([]recognition.Face, error) {
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Height == 1 {
		return nil, nil
	}
	return []recognition.Face{{
		Box:      image.Rect(0, 0, cfg.Width, cfg.Height),
		Encoding: []float32{float32(cfg.Width) / 100, 0},
		Score:    1,
	}}, nil
}

func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func newTestManager(t *testing.T) (*Manager, *FileStore) {
	t.Helper()
	store := newTestFileStore(t)
	matcher := NewMatcher(store, "")
	return NewManager(store, &widthRecognizer{}, matcher), store
}
