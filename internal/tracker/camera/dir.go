package camera

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var frameExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// DirCamera replays the images of a directory in name order.
type DirCamera struct {
	files []string
	loop  bool

	mu   sync.Mutex
	next int
}

// OpenDir creates a camera over the images in dir. With loop set it restarts after the last image.
func OpenDir(dir string, loop bool) (*DirCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrCameraUnavailable, dir)
	}
	sort.Strings(files)
	return &DirCamera{files: files, loop: loop}, nil
}

// Read returns the next image, or io.EOF after the last one when not looping.
func (c *DirCamera) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.next >= len(c.files) {
		if !c.loop {
			c.mu.Unlock()
			return nil, io.EOF
		}
		c.next = 0
	}
	path := c.files[c.next]
	c.next++
	c.mu.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // frame directory is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}

// Close is a no-op.
func (c *DirCamera) Close() error {
	return nil
}
