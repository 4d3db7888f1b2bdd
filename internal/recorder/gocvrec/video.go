// Package gocvrec encodes frames to an MJPG AVI through gocv.
package gocvrec

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/recorder"
)

// VideoFile is a recorder.Writer. The encoder opens on the first frame so
// its size follows the camera.
type VideoFile struct {
	path string
	fps  float64

	mu     sync.Mutex
	vw     *gocv.VideoWriter
	width  int
	height int
}

// New returns a writer for path at fps.
func New(path string, fps int) *VideoFile {
	if fps <= 0 {
		fps = 30
	}
	return &VideoFile{path: path, fps: float64(fps)}
}

func (v *VideoFile) Write(f *frames.Frame) error {
	if f.Empty() {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.vw == nil {
		vw, err := gocv.VideoWriterFile(v.path, "MJPG", v.fps, f.Width(), f.Height(), true)
		if err != nil {
			return fmt.Errorf("open video %s: %w", v.path, err)
		}
		v.vw, v.width, v.height = vw, f.Width(), f.Height()
	}
	if f.Width() != v.width || f.Height() != v.height {
		return fmt.Errorf("frame %d is %dx%d, video is %dx%d", f.ID, f.Width(), f.Height(), v.width, v.height)
	}

	mat, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return fmt.Errorf("convert frame %d: %w", f.ID, err)
	}
	defer mat.Close()
	return v.vw.Write(mat)
}

func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vw == nil {
		return nil
	}
	err := v.vw.Close()
	v.vw = nil
	return err
}

var _ recorder.Writer = (*VideoFile)(nil)
