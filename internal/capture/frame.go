package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Frame is an encoded camera frame ready to send.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	// Changed is false only when a motion detector saw no change since the
	// previous grab.
	Changed bool
}

// EncodeFrame encodes mat as JPEG. Empty or zero-sized mats report
// ErrFrameSkipped.
func EncodeFrame(mat *gocv.Mat) (Frame, error) {
	if mat == nil || mat.Empty() || mat.Cols() == 0 || mat.Rows() == 0 {
		return Frame{}, ErrFrameSkipped
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *mat)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	data := make([]byte, len(src))
	copy(data, src)

	return Frame{Data: data, Width: mat.Cols(), Height: mat.Rows(), Changed: true}, nil
}

// Grab reads one frame from cam, encodes it and releases the Mat. motion may
// be nil; otherwise it decides Frame.Changed.
func Grab(cam Camera, motion *MotionDetector) (Frame, error) {
	mat, err := cam.ReadFrame()
	if err != nil {
		return Frame{}, err
	}
	defer mat.Close()

	frame, err := EncodeFrame(mat)
	if err != nil {
		return Frame{}, err
	}
	if motion != nil {
		frame.Changed, _ = motion.Detect(mat)
	}
	return frame, nil
}
