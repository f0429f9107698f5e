// Package params defines the edge-detection parameter set sent with every
// processing request.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Algorithm identifies an edge-detection algorithm understood by the remote service.
type Algorithm string

const (
	Canny         Algorithm = "canny"
	Sobel         Algorithm = "sobel"
	Laplacian     Algorithm = "laplacian"
	Scharr        Algorithm = "scharr"
	Prewitt       Algorithm = "prewitt"
	Morphological Algorithm = "morphological"
	Roberts       Algorithm = "roberts"
)

// Parameter limits.
const (
	MinThreshold  = 0
	MaxThreshold  = 500
	MinBlurKernel = 1
	MaxBlurKernel = 15

	DefaultThreshold1 = 100
	DefaultThreshold2 = 200
	DefaultKernelSize = 3
	DefaultBlurKernel = 5
)

// ErrUnknownAlgorithm is returned when an algorithm name is not recognized.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Algorithms lists every supported algorithm in display order.
var Algorithms = []Algorithm{Canny, Sobel, Laplacian, Scharr, Prewitt, Morphological, Roberts}

// kernelSizes are the aperture sizes accepted by the service.
var kernelSizes = []int{1, 3, 5, 7}

// ParseAlgorithm converts a name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// UsesThresholds reports whether the algorithm reads threshold1/threshold2.
func (a Algorithm) UsesThresholds() bool {
	return a == Canny
}

// UsesKernelSize reports whether the algorithm reads ksize.
func (a Algorithm) UsesKernelSize() bool {
	return a == Sobel || a == Laplacian || a == Morphological
}

// Set is an immutable parameter set. Edits go through the With* methods,
// which return a modified copy.
type Set struct {
	Algorithm  Algorithm
	Threshold1 int
	Threshold2 int
	KernelSize int
	Blur       bool
	BlurKernel int
	Grayscale  bool
	Invert     bool
}

// Default returns the parameter set used for a fresh session.
func Default() Set {
	return Set{
		Algorithm:  Canny,
		Threshold1: DefaultThreshold1,
		Threshold2: DefaultThreshold2,
		KernelSize: DefaultKernelSize,
		Blur:       false,
		BlurKernel: DefaultBlurKernel,
		Grayscale:  true,
		Invert:     false,
	}
}

// WithAlgorithm returns a copy with the algorithm replaced.
func (s Set) WithAlgorithm(a Algorithm) Set {
	s.Algorithm = a
	return s
}

// WithThresholds returns a copy with both thresholds replaced and clamped.
func (s Set) WithThresholds(t1, t2 int) Set {
	s.Threshold1 = t1
	s.Threshold2 = t2
	return s.Clamp()
}

// WithKernelSize returns a copy with ksize replaced and clamped.
func (s Set) WithKernelSize(k int) Set {
	s.KernelSize = k
	return s.Clamp()
}

// WithBlur returns a copy with blur settings replaced and clamped.
func (s Set) WithBlur(enabled bool, kernel int) Set {
	s.Blur = enabled
	s.BlurKernel = kernel
	return s.Clamp()
}

// WithGrayscale returns a copy with the grayscale flag replaced.
func (s Set) WithGrayscale(v bool) Set {
	s.Grayscale = v
	return s
}

// WithInvert returns a copy with the invert flag replaced.
func (s Set) WithInvert(v bool) Set {
	s.Invert = v
	return s
}

// Clamp returns a copy with every value forced into the range the service accepts.
// Even blur kernels are rounded up, matching the service's own correction.
func (s Set) Clamp() Set {
	if s.Algorithm == "" {
		s.Algorithm = Canny
	}
	s.Threshold1 = clampInt(s.Threshold1, MinThreshold, MaxThreshold)
	s.Threshold2 = clampInt(s.Threshold2, MinThreshold, MaxThreshold)
	s.KernelSize = nearestKernel(s.KernelSize)

	k := clampInt(s.BlurKernel, MinBlurKernel, MaxBlurKernel)
	if k%2 == 0 {
		k++
	}
	s.BlurKernel = k
	return s
}

// Values returns the flat key/value form of the set, without the algorithm.
func (s Set) Values() map[string]any {
	return map[string]any{
		"threshold1":  s.Threshold1,
		"threshold2":  s.Threshold2,
		"ksize":       s.KernelSize,
		"blur":        s.Blur,
		"blur_kernel": s.BlurKernel,
		"grayscale":   s.Grayscale,
		"invert":      s.Invert,
	}
}

// wire is the JSON form of the parameter options.
type wire struct {
	Threshold1 int  `json:"threshold1"`
	Threshold2 int  `json:"threshold2"`
	KernelSize int  `json:"ksize"`
	Blur       bool `json:"blur"`
	BlurKernel int  `json:"blur_kernel"`
	Grayscale  bool `json:"grayscale"`
	Invert     bool `json:"invert"`
}

// MarshalOptions encodes the options (not the algorithm) as the JSON object
// carried in the "params" form field.
func (s Set) MarshalOptions() ([]byte, error) {
	return json.Marshal(wire{
		Threshold1: s.Threshold1,
		Threshold2: s.Threshold2,
		KernelSize: s.KernelSize,
		Blur:       s.Blur,
		BlurKernel: s.BlurKernel,
		Grayscale:  s.Grayscale,
		Invert:     s.Invert,
	})
}

// UnmarshalOptions decodes a JSON options object on top of base. Keys absent
// from data keep base's values. The result is clamped.
func UnmarshalOptions(base Set, data []byte) (Set, error) {
	w := wire{
		Threshold1: base.Threshold1,
		Threshold2: base.Threshold2,
		KernelSize: base.KernelSize,
		Blur:       base.Blur,
		BlurKernel: base.BlurKernel,
		Grayscale:  base.Grayscale,
		Invert:     base.Invert,
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return base, fmt.Errorf("decode params: %w", err)
	}

	base.Threshold1 = w.Threshold1
	base.Threshold2 = w.Threshold2
	base.KernelSize = w.KernelSize
	base.Blur = w.Blur
	base.BlurKernel = w.BlurKernel
	base.Grayscale = w.Grayscale
	base.Invert = w.Invert
	return base.Clamp(), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nearestKernel snaps k to the closest accepted aperture size, preferring the
// larger one on ties.
func nearestKernel(k int) int {
	best := kernelSizes[0]
	for _, size := range kernelSizes {
		if abs(k-size) <= abs(k-best) {
			best = size
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
