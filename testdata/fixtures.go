// Package testdata synthesizes camera frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// SolidFrame returns a BGR frame filled with a single gray level.
func SolidFrame(width, height int, level uint8) *gocv.Mat {
	v := float64(level)
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), height, width, gocv.MatTypeCV8UC3)
	return &mat
}

// MovingSquare returns n frames of a white square sliding across a black
// background, so consecutive frames always differ.
func MovingSquare(n, width, height int) []*gocv.Mat {
	side := height / 4
	if side < 1 {
		side = 1
	}

	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		frame := SolidFrame(width, height, 0)
		x := (i * side) % max(width-side, 1)
		rect := image.Rect(x, height/2-side/2, x+side, height/2+side/2)
		gocv.Rectangle(frame, rect, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
		frames = append(frames, frame)
	}
	return frames
}

// StillSequence returns n identical frames.
func StillSequence(n, width, height int, level uint8) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, SolidFrame(width, height, level))
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
