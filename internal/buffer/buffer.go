// Package buffer manages the display buffers that hold processed images ready
// for presentation, one current buffer per lane.
package buffer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lane identifies an independent processing pipeline.
type Lane string

const (
	// LaneUpload carries results for the still image.
	LaneUpload Lane = "upload"
	// LaneWebcam carries results for live camera frames.
	LaneWebcam Lane = "webcam"
)

// Lanes lists every lane.
var Lanes = []Lane{LaneUpload, LaneWebcam}

// Buffer is an opaque handle to processed image bytes.
type Buffer struct {
	ID          string
	Lane        Lane
	Epoch       uint64
	ContentType string
	CreatedAt   time.Time

	mu       sync.Mutex
	data     []byte
	released bool
}

// New wraps data in a new Buffer with a fresh handle.
func New(lane Lane, epoch uint64, contentType string, data []byte) *Buffer {
	return &Buffer{
		ID:          uuid.NewString(),
		Lane:        lane,
		Epoch:       epoch,
		ContentType: contentType,
		CreatedAt:   time.Now(),
		data:        data,
	}
}

// Bytes returns a copy of the image bytes, or nil once released.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the size of the image in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Released reports whether the buffer has been released.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// release drops the image bytes. It returns false if already released.
func (b *Buffer) release() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return false
	}
	b.released = true
	b.data = nil
	return true
}
