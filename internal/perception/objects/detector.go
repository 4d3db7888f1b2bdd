// Package objects detects the three track markings that drive phase
// changes: the solid stop line, the zebra crosswalk and the chequered start
// line. The detector is stateless; "already seen" latches belong to the
// controller.
package objects

import (
	"image"
	"math"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// Flags is the object detector's output for one frame.
type Flags struct {
	FrameID   uint64
	Stopline  bool
	Crosswalk bool
	Startline bool
	Marks     Marks
}

// Marks locate what the detector saw, in frame coordinates.
type Marks struct {
	Stop    image.Rectangle   // largest accepted stop-line region, empty when none
	Bars    []image.Rectangle // crosswalk bars
	Corners []image.Point     // start-line corners
}

// Vision is the region toolkit the detector is built on. Each call works on
// r clipped to the mask and reports results in mask coordinates.
type Vision interface {
	// Components labels the 8-connected regions of class cls.
	Components(m *perception.Mask, r image.Rectangle, cls perception.Class) []perception.Component
	// ExternalBoxes bounds the outer outlines of all painted regions;
	// regions lying inside a hole of another region are not reported.
	ExternalBoxes(m *perception.Mask, r image.Rectangle) []image.Rectangle
	// Corners finds strong corners in the grey coding of the mask.
	Corners(m *perception.Mask, r image.Rectangle, p perception.CornerParams) []image.Point
}

// Band is a horizontal slice of the frame given as height fractions, with a
// left and right margin given as a width fraction.
type Band struct {
	Top, Bottom float64
	Margin      float64
}

// Rect returns the pixel rectangle of the band in a w x h frame.
func (b Band) Rect(w, h int) image.Rectangle {
	x0 := int(math.Round(b.Margin * float64(w)))
	x1 := w - x0
	return image.Rect(x0, int(b.Top*float64(h)), x1, int(b.Bottom*float64(h)))
}

// Config parametrises the detector.
type Config struct {
	Classifier perception.Classifier
	Vision     Vision

	StopBand           Band
	StopMaxTransitions int
	StopAreaRatio      float64

	CrosswalkBand      Band
	CrosswalkMinHeight int
	CrosswalkMaxWidth  int
	CrosswalkMinBars   int

	StartBand       Band
	StartCorners    perception.CornerParams
	StartMinCorners int
}

// Detector is the object detector.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Process classifies the frame and evaluates all three markings. An empty
// frame yields all flags false.
func (d *Detector) Process(f *frames.Frame, g perception.Guidance) Flags {
	if f.Empty() {
		var id uint64
		if f != nil {
			id = f.ID
		}
		return Flags{FrameID: id}
	}
	flags := d.ProcessMask(d.cfg.Classifier.Classify(f.Image), g)
	flags.FrameID = f.ID
	return flags
}

// ProcessMask evaluates all three markings on an already classified mask.
func (d *Detector) ProcessMask(m *perception.Mask, g perception.Guidance) Flags {
	var flags Flags
	if m.Width == 0 || m.Height == 0 {
		return flags
	}
	var ratio float64
	flags.Stopline, ratio, flags.Marks.Stop = d.Stopline(m, g.Channel)
	flags.Crosswalk, flags.Marks.Bars = d.Crosswalk(m)
	flags.Startline, flags.Marks.Corners = d.Startline(m)
	tracef("channel=%s stop=%v(%.2f) crosswalk=%v(%d bars) start=%v(%d corners)",
		g.Channel, flags.Stopline, ratio, flags.Crosswalk, len(flags.Marks.Bars),
		flags.Startline, len(flags.Marks.Corners))
	return flags
}

// Stopline reports whether a solid bar of the followed channel covers enough
// of the stop band. It also returns the covered ratio and the box of the
// largest region that is not comb-like.
func (d *Detector) Stopline(m *perception.Mask, ch perception.Channel) (bool, float64, image.Rectangle) {
	band := d.cfg.StopBand
	band.Margin = 0
	r := band.Rect(m.Width, m.Height).Intersect(m.Bounds())
	if r.Empty() {
		return false, 0, image.Rectangle{}
	}
	var best perception.Component
	for _, c := range d.cfg.Vision.Components(m, r, ch.Class()) {
		if c.MaxRowTransitions >= d.cfg.StopMaxTransitions {
			continue
		}
		if c.Area > best.Area {
			best = c
		}
	}
	ratio := float64(best.Area) / float64(r.Dx()*r.Dy())
	ok := ratio >= d.cfg.StopAreaRatio
	if !ok {
		return false, ratio, image.Rectangle{}
	}
	return true, ratio, best.Box
}

// Crosswalk reports whether enough tall narrow outlines of any paint sit in
// the crosswalk band, along with the bars it counted.
func (d *Detector) Crosswalk(m *perception.Mask) (bool, []image.Rectangle) {
	r := d.cfg.CrosswalkBand.Rect(m.Width, m.Height)
	var bars []image.Rectangle
	for _, b := range d.cfg.Vision.ExternalBoxes(m, r) {
		if b.Dy() > d.cfg.CrosswalkMinHeight && b.Dx() < d.cfg.CrosswalkMaxWidth {
			bars = append(bars, b)
		}
	}
	return len(bars) >= d.cfg.CrosswalkMinBars, bars
}

// Startline reports whether the start band is textured enough to be the
// chequered start marking, along with the corners it found.
func (d *Detector) Startline(m *perception.Mask) (bool, []image.Point) {
	r := d.cfg.StartBand.Rect(m.Width, m.Height)
	corners := d.cfg.Vision.Corners(m, r, d.cfg.StartCorners)
	return len(corners) >= d.cfg.StartMinCorners, corners
}
