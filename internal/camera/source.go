// Package camera provides frame sources for the drive pipeline.
package camera

import (
	"errors"
	"image"
)

// ErrEmptyFrame reports a read that produced no usable image. The caller
// skips the iteration and reads again.
var ErrEmptyFrame = errors.New("camera: empty frame")

// Source produces frames at the configured size.
type Source interface {
	Open() error
	Read() (*image.RGBA, error)
	Close() error
}
