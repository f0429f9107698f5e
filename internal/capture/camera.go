// Package capture provides live camera capture using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrCameraUnavailable is returned when the device cannot be opened, either
	// because it does not exist or because access was denied.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameSkipped means the source has no usable frame yet. It is not a failure.
	ErrFrameSkipped = errors.New("frame not ready")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID int
	width    int
	height   int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// NewCamera creates a new Camera with the given device ID at 640x480.
func NewCamera(deviceID int) Camera {
	return NewCameraWithSize(deviceID, DefaultWidth, DefaultHeight)
}

// NewCameraWithSize creates a new Camera that requests the given resolution.
// Non-positive sizes fall back to the defaults.
func NewCameraWithSize(deviceID, width, height int) Camera {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &cameraImpl{
		deviceID: deviceID,
		width:    width,
		height:   height,
	}
}

// Open opens the camera for capturing frames. A device that reports itself
// as not opened is closed again before returning, so a failed Open never
// leaves a half-acquired handle behind.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, c.deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d did not open", ErrCameraUnavailable, c.deviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources. It is safe to call on a
// camera that is not open.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, ErrFrameSkipped
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrFrameSkipped
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
