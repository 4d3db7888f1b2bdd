package camera

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
)

// Paint colours used by the synthetic renderer.
var (
	Asphalt     = color.RGBA{R: 45, G: 45, B: 50, A: 255}
	WhitePaint  = color.RGBA{R: 245, G: 245, B: 245, A: 255}
	YellowPaint = color.RGBA{R: 240, G: 210, B: 30, A: 255}
)

// Marking is a painted feature across the lane.
type Marking int

const (
	NoMarking Marking = iota
	Stopline
	Crosswalk
	Startline
)

// Scene describes one synthetic view of the track. Edge positions are
// fractions of the frame width; zero leaves the line out.
type Scene struct {
	LeftWhite    float64
	RightWhite   float64
	YellowCentre float64
	Marking      Marking
}

// Step holds a scene for a number of frames.
type Step struct {
	Scene  Scene
	Frames int
}

// Tour is a lap of the track: white lane, crosswalk, right lane with a
// stopline, yellow section, and the start line.
func Tour() []Step {
	lane := Scene{LeftWhite: 0.2, RightWhite: 0.8}
	yellow := Scene{LeftWhite: 0.2, YellowCentre: 0.55}
	return []Step{
		{Scene: lane, Frames: 60},
		{Scene: Scene{LeftWhite: 0.2, RightWhite: 0.8, Marking: Crosswalk}, Frames: 20},
		{Scene: lane, Frames: 90},
		{Scene: Scene{LeftWhite: 0.2, RightWhite: 0.8, Marking: Stopline}, Frames: 10},
		{Scene: lane, Frames: 60},
		{Scene: Scene{LeftWhite: 0.2, RightWhite: 0.8, Marking: Stopline}, Frames: 10},
		{Scene: yellow, Frames: 120},
		{Scene: lane, Frames: 60},
		{Scene: Scene{LeftWhite: 0.2, RightWhite: 0.8, Marking: Startline}, Frames: 20},
	}
}

// Synthetic renders a scripted track scene. The lane drifts sideways on a
// slow sine so the steering loop has something to correct.
type Synthetic struct {
	width, height int
	steps         []Step
	// Drift is the peak sideways shift as a fraction of the width.
	Drift float64
	// DriftPeriod is the number of frames per drift cycle.
	DriftPeriod int

	mu     sync.Mutex
	open   bool
	frame  int
	cursor int
	held   int
}

// NewSynthetic returns a source that loops through steps. An empty script
// uses Tour.
func NewSynthetic(width, height int, steps []Step) *Synthetic {
	if len(steps) == 0 {
		steps = Tour()
	}
	return &Synthetic{
		width:       width,
		height:      height,
		steps:       steps,
		Drift:       0.03,
		DriftPeriod: 120,
	}
}

func (s *Synthetic) Open() error {
	if s.width <= 0 || s.height <= 0 {
		return errors.New("camera: synthetic frame size must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Read renders the next frame of the script.
func (s *Synthetic) Read() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, errors.New("camera: synthetic source not open")
	}

	step := s.steps[s.cursor]
	shift := 0.0
	if s.DriftPeriod > 0 {
		shift = s.Drift * math.Sin(2*math.Pi*float64(s.frame)/float64(s.DriftPeriod))
	}
	img := Render(s.width, s.height, step.Scene, shift)

	s.frame++
	s.held++
	if s.held >= step.Frames {
		s.held = 0
		s.cursor = (s.cursor + 1) % len(s.steps)
	}
	return img, nil
}

// Scene returns the scene the next Read will render.
func (s *Synthetic) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[s.cursor].Scene
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Render draws sc into a new w x h frame with every line shifted sideways by
// shift (a width fraction).
func Render(w, h int, sc Scene, shift float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), Asphalt)

	line := max(w/40, 3)
	bar := func(frac float64, c color.RGBA) {
		if frac <= 0 {
			return
		}
		x := int(math.Round((frac + shift) * float64(w)))
		fill(img, image.Rect(x-line/2, 0, x-line/2+line, h), c)
	}
	bar(sc.LeftWhite, WhitePaint)
	bar(sc.RightWhite, WhitePaint)
	bar(sc.YellowCentre, YellowPaint)

	switch sc.Marking {
	case Stopline:
		fill(img, image.Rect(0, h*78/100, w, h*92/100), WhitePaint)
	case Crosswalk:
		band := image.Rect(w/5, h*38/100, w*4/5, h*62/100)
		const bars = 6
		pitch := band.Dx() / bars
		for i := 0; i < bars; i++ {
			x0 := band.Min.X + i*pitch + pitch/4
			fill(img, image.Rect(x0, band.Min.Y, x0+pitch/2, band.Max.Y), WhitePaint)
		}
	case Startline:
		band := image.Rect(w/5, h/2, w*4/5, h*8/10)
		cell := max(w/40, 4)
		for y := band.Min.Y; y < band.Max.Y; y += cell {
			for x := band.Min.X; x < band.Max.X; x += cell {
				if ((x-band.Min.X)/cell+(y-band.Min.Y)/cell)%2 == 0 {
					fill(img, image.Rect(x, y, x+cell, y+cell).Intersect(band), WhitePaint)
				}
			}
		}
	}
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}
