// Package gocvcam reads frames from a V4L2 or GStreamer camera through gocv.
package gocvcam

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/camera"
)

// Capture is a camera.Source backed by gocv.VideoCapture. Frames are resized
// to Width x Height.
type Capture struct {
	// Device is a camera index ("0") or a GStreamer pipeline ending in
	// appsink.
	Device string
	Width  int
	Height int

	mu      sync.Mutex
	cap     *gocv.VideoCapture
	raw     gocv.Mat
	resized gocv.Mat
}

// New returns an unopened capture.
func New(device string, width, height int) *Capture {
	return &Capture{Device: device, Width: width, Height: height}
}

// Open starts the capture. Devices containing "appsink" are opened through
// the GStreamer backend.
func (c *Capture) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap != nil {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if strings.Contains(c.Device, "appsink") {
		vc, err = gocv.OpenVideoCaptureWithAPI(c.Device, gocv.VideoCaptureGstreamer)
	} else {
		vc, err = gocv.OpenVideoCapture(c.Device)
	}
	if err != nil {
		return fmt.Errorf("open camera %q: %w", c.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open camera %q: device not available", c.Device)
	}

	c.cap = vc
	c.raw = gocv.NewMat()
	c.resized = gocv.NewMat()
	return nil
}

// Read grabs one frame. An empty grab returns camera.ErrEmptyFrame.
func (c *Capture) Read() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil, errors.New("gocvcam: capture not open")
	}

	if ok := c.cap.Read(&c.raw); !ok || c.raw.Empty() {
		return nil, camera.ErrEmptyFrame
	}

	src := c.raw
	if c.raw.Cols() != c.Width || c.raw.Rows() != c.Height {
		gocv.Resize(c.raw, &c.resized, image.Pt(c.Width, c.Height), 0, 0, gocv.InterpolationLinear)
		src = c.resized
	}

	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	c.raw.Close()
	c.resized.Close()
	err := c.cap.Close()
	c.cap = nil
	return err
}

var _ camera.Source = (*Capture)(nil)
