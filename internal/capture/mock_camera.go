package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing.
type MockCamera struct {
	frames    []*gocv.Mat
	index     int
	loop      bool
	openErr   error
	skipReads int
	opens     int
	closes    int
	mu        sync.Mutex
	running   bool
}

// NewMockCamera creates a MockCamera that plays frames in order, looping if requested.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

// SetOpenError makes subsequent Open calls fail with err, as a denied or
// missing device would.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// SkipReads makes the next n reads report ErrFrameSkipped, like a device
// that is still warming up.
func (c *MockCamera) SkipReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipReads = n
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opens++
	if c.openErr != nil {
		return c.openErr
	}
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.closes++
	}
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if c.skipReads > 0 {
		c.skipReads--
		return nil, ErrFrameSkipped
	}

	if len(c.frames) == 0 {
		return nil, ErrFrameSkipped
	}

	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, ErrFrameSkipped
		}
		c.index = 0
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Opens returns how many times Open was called.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Closes returns how many times an open camera was closed.
func (c *MockCamera) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}
