package capture

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func blackFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
}

func TestNewMotionDetector(t *testing.T) {
	for _, threshold := range []float64{0.5, 1.0, 5.0} {
		md := NewMotionDetector(threshold)
		if md.threshold != threshold {
			t.Errorf("threshold = %f, want %f", md.threshold, threshold)
		}
		if md.hasPrev {
			t.Error("new detector should have no previous frame")
		}
		md.Close()
	}
}

func TestMotionDetector_FirstFrameCountsAsChanged(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := blackFrame()
	defer frame.Close()

	if changed, _ := md.Detect(&frame); !changed {
		t.Error("first frame should count as changed")
	}
	if changed, pct := md.Detect(&frame); changed {
		t.Errorf("identical frame changed = true (%.2f%%)", pct)
	}
}

func TestMotionDetector_WithMotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame1 := blackFrame()
	defer frame1.Close()

	frame2 := blackFrame()
	defer frame2.Close()
	gocv.Rectangle(&frame2, image.Rect(100, 100, 400, 400), color.RGBA{255, 255, 255, 0}, -1)

	md.Detect(&frame1)
	changed, pct := md.Detect(&frame2)
	if !changed {
		t.Errorf("expected change, got %.2f%%", pct)
	}
}

func TestMotionDetector_ResetAndEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	frame := blackFrame()
	defer frame.Close()

	md.Detect(&frame)
	md.Reset()
	if changed, _ := md.Detect(&frame); !changed {
		t.Error("first frame after Reset should count as changed")
	}

	if changed, pct := md.Detect(nil); changed || pct != 0 {
		t.Errorf("nil frame = %v/%f, want false/0", changed, pct)
	}
}
