// Package recorder writes camera frames to video files.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Writer persists frames in order.
type Writer interface {
	Write(f *frames.Frame) error
	Close() error
}

// FileName returns the video name for a recording started at t,
// out_DDHHMMSS.avi.
func FileName(t time.Time) string {
	return t.Format("out_02150405.avi")
}

// NewPath creates dir if needed and returns the path for a recording
// started at t.
func NewPath(dir string, t time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}
	return filepath.Join(dir, FileName(t)), nil
}

// Paced drops frames that arrive faster than the target rate, so a camera
// running ahead of the video's nominal fps does not speed playback up.
type Paced struct {
	w        Writer
	interval time.Duration
	clock    timeutil.Clock

	mu      sync.Mutex
	last    time.Time
	written int
	skipped int
}

// NewPaced wraps w at fps frames per second. fps <= 0 passes every frame.
func NewPaced(w Writer, fps int, clock timeutil.Clock) *Paced {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	var interval time.Duration
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &Paced{w: w, interval: interval, clock: clock}
}

func (p *Paced) Write(f *frames.Frame) error {
	if f.Empty() {
		return nil
	}
	p.mu.Lock()
	now := p.clock.Now()
	if p.written > 0 && now.Sub(p.last) < p.interval {
		p.skipped++
		p.mu.Unlock()
		return nil
	}
	p.last = now
	p.written++
	p.mu.Unlock()
	return p.w.Write(f)
}

// Counts reports frames passed through and frames dropped.
func (p *Paced) Counts() (written, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written, p.skipped
}

func (p *Paced) Close() error { return p.w.Close() }
