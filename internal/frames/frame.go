// Package frames holds the camera frame type and the hub that hands the most
// recent frame to the analysis loops.
package frames

import (
	"image"
	"time"
)

// Frame is one captured image plus its sequence id. A Frame is never mutated
// after it has been published; consumers share it by pointer.
type Frame struct {
	ID       uint64
	Captured time.Time
	Image    *image.RGBA
}

// Empty reports whether the frame carries no usable pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Image == nil || f.Image.Bounds().Empty()
}

// Width returns the image width, or 0 for an empty frame.
func (f *Frame) Width() int {
	if f.Empty() {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the image height, or 0 for an empty frame.
func (f *Frame) Height() int {
	if f.Empty() {
		return 0
	}
	return f.Image.Bounds().Dy()
}
