package perception

import (
	"image"
	"math"
)

// Class is the per-pixel classification of a Mask.
type Class uint8

const (
	ClassBackground Class = iota
	ClassWhite
	ClassYellow
)

// Grey-level coding of the classes, used when a mask is treated as an image.
const (
	GreyWhite  = 255
	GreyYellow = 127
)

// Thresholds are the HSV gates for lane paint. A pixel is white when its
// saturation is below WhiteSMax and its value at least WhiteVMin; otherwise
// it is yellow when its hue lies in [YellowHMin, YellowHMax] and its
// saturation reaches YellowSMin. Anything darker than ValidVMin is
// background whatever its hue.
type Thresholds struct {
	ValidVMin  uint8
	WhiteSMax  uint8
	WhiteVMin  uint8
	YellowHMin uint8
	YellowHMax uint8
	YellowSMin uint8
}

// ROI is the trusted trapezoid: its bottom edge spans the whole frame, its
// top edge sits at HorizonFraction of the height with a half-width of
// TopHalfWidthFraction of the width. The left LeftBlankFraction of the frame
// can additionally be blanked.
type ROI struct {
	HorizonFraction      float64
	TopHalfWidthFraction float64
	LeftBlankFraction    float64
}

// Polygon returns the trapezoid corners for a w x h frame, bottom edge
// first. The bottom corners lie outside the frame on purpose: the bottom
// edge is twice the frame width.
func (r ROI) Polygon(w, h int) []image.Point {
	top := int(math.Round(r.HorizonFraction * float64(h)))
	c := w / 2
	short := int(math.Round(r.TopHalfWidthFraction * float64(w)))
	return []image.Point{
		{c - w, h},
		{c + w, h},
		{c + short, top},
		{c - short, top},
	}
}

// Blank returns the blanked strip on the left of a w x h frame, empty when
// nothing is blanked.
func (r ROI) Blank(w, h int) image.Rectangle {
	return image.Rect(0, 0, int(math.Round(r.LeftBlankFraction*float64(w))), h)
}

// Span returns the inclusive column range of row y inside the ROI, or ok
// false when the row lies above the horizon.
func (r ROI) Span(y, width, height int) (x0, x1 int, ok bool) {
	top := int(math.Round(r.HorizonFraction * float64(height)))
	if y < top || y >= height {
		return 0, 0, false
	}
	c := float64(width) / 2
	topHalf := r.TopHalfWidthFraction * float64(width)
	bottomHalf := float64(width)
	t := 1.0
	if height > top {
		t = float64(y-top) / float64(height-top)
	}
	half := topHalf + t*(bottomHalf-topHalf)

	x0 = int(math.Ceil(c - half))
	x1 = int(math.Floor(c + half))
	if blank := r.Blank(width, height).Dx(); x0 < blank {
		x0 = blank
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > width-1 {
		x1 = width - 1
	}
	return x0, x1, x0 <= x1
}

// Contains reports whether pixel (x, y) lies inside the ROI.
func (r ROI) Contains(x, y, width, height int) bool {
	x0, x1, ok := r.Span(y, width, height)
	return ok && x >= x0 && x <= x1
}

// Params is everything a classifier needs.
type Params struct {
	Thresholds Thresholds
	ROI        ROI
}

// Classifier turns frames into masks. Implementations must be safe for
// concurrent use; both detectors classify the same frame in parallel.
type Classifier interface {
	Classify(img *image.RGBA) *Mask
}

// Mask is the classified frame.
type Mask struct {
	Width, Height int
	Pix           []Class // row-major
	YellowCount   int
	WhiteCount    int
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]Class, width*height)}
}

// Bounds returns the mask rectangle.
func (m *Mask) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

// At returns the class at (x, y); out-of-bounds pixels are background.
func (m *Mask) At(x, y int) Class {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return ClassBackground
	}
	return m.Pix[y*m.Width+x]
}

// Set stores the class at (x, y) and keeps the counters current.
func (m *Mask) Set(x, y int, c Class) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	i := y*m.Width + x
	m.count(m.Pix[i], -1)
	m.Pix[i] = c
	m.count(c, 1)
}

func (m *Mask) count(c Class, d int) {
	switch c {
	case ClassWhite:
		m.WhiteCount += d
	case ClassYellow:
		m.YellowCount += d
	}
}

// Grey returns the grey-level coding of (x, y).
func (m *Mask) Grey(x, y int) uint8 {
	switch m.At(x, y) {
	case ClassWhite:
		return GreyWhite
	case ClassYellow:
		return GreyYellow
	default:
		return 0
	}
}

// Plane packs the pixels of r, clipped to the mask, into a row-major 8-bit
// plane. With a nil keep the plane holds the grey coding; otherwise kept
// pixels are 255 and the rest 0.
func (m *Mask) Plane(r image.Rectangle, keep func(Class) bool) (image.Rectangle, []byte) {
	r = r.Intersect(m.Bounds())
	out := make([]byte, r.Dx()*r.Dy())
	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			switch {
			case keep == nil:
				out[i] = m.Grey(x, y)
			case keep(m.Pix[y*m.Width+x]):
				out[i] = 255
			}
			i++
		}
	}
	return r, out
}

// Painted matches any lane paint.
func Painted(c Class) bool { return c != ClassBackground }

// Component is one 8-connected region of matching pixels.
type Component struct {
	Area int
	Box  image.Rectangle
	// MaxRowTransitions is the largest number of in/out changes along any
	// single row of the component. A solid bar has 2.
	MaxRowTransitions int
}

// CornerParams configures the corner detector.
type CornerParams struct {
	MaxCorners   int
	QualityLevel float64 // fraction of the strongest response a corner must reach
	MinDistance  float64 // pixels between accepted corners
}

// RowTransitions scans a packed w x h plane of component labels, 0 being
// background, and returns per label the largest number of in/out changes
// along one row. The result is indexed by label and sized n+1.
func RowTransitions(labels []int32, w, h, n int) []int {
	best := make([]int, n+1)
	row := make([]int, n+1)
	touched := make([]int32, 0, 8)
	for y := 0; y < h; y++ {
		var prev int32
		for x := 0; x <= w; x++ {
			var cur int32
			if x < w {
				cur = labels[y*w+x]
			}
			if cur == prev {
				continue
			}
			if prev > 0 && int(prev) <= n {
				row[prev]++
			}
			if cur > 0 && int(cur) <= n {
				if row[cur] == 0 {
					touched = append(touched, cur)
				}
				row[cur]++
			}
			prev = cur
		}
		for _, l := range touched {
			if row[l] > best[l] {
				best[l] = row[l]
			}
			row[l] = 0
		}
		touched = touched[:0]
	}
	return best
}
