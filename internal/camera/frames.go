// Package camera holds live frames pushed by a client so a session can
// snapshot the latest one on capture.
package camera

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// FrameBuffer keeps the most recent frame. It is safe for concurrent use.
type FrameBuffer struct {
	mu      sync.RWMutex
	frame   image.Image
	format  string
	updated time.Time
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

func (b *FrameBuffer) Set(img image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = img
	b.updated = time.Now()
}

// Decode reads a jpeg, png, bmp or webp frame and makes it current.
func (b *FrameBuffer) Decode(r io.Reader) error {
	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = img
	b.format = format
	b.updated = time.Now()
	return nil
}

// CaptureFrame returns the current frame, nil if none was pushed yet.
func (b *FrameBuffer) CaptureFrame() image.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame
}

func (b *FrameBuffer) Format() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.format
}

func (b *FrameBuffer) Updated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
