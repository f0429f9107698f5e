package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionDetector compares consecutive frames so the live loop can avoid
// re-sending a scene that has not changed.
type MotionDetector struct {
	threshold float64
	prevGray  gocv.Mat
	hasPrev   bool
	mu        sync.Mutex
}

// Motion detection constants
const (
	// BlurSize is the Gaussian kernel applied before differencing.
	BlurSize = 21
	// DiffThreshold is the per-pixel intensity delta counted as change.
	DiffThreshold = 25
)

// NewMotionDetector creates a detector. threshold is the percentage of pixels
// that must change for a frame to count as changed.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect reports whether frame differs from the previous one, and by what
// percentage of pixels. The first frame after creation or Reset always counts
// as changed, as does a frame whose size differs from the previous one.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !m.hasPrev || m.prevGray.Rows() != blurred.Rows() || m.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.hasPrev = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changed > m.threshold, changed
}

// Reset forgets the previous frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.hasPrev = false
}

// Close releases the stored frame.
func (m *MotionDetector) Close() {
	m.Reset()
}
