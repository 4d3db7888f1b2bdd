package testutil

import (
	"image"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// HSV is a colour on the 8-bit scale: H in [0, 179], S and V in [0, 255].
type HSV struct {
	H, S, V uint8
}

// RGBToHSV converts an 8-bit RGB triple the way OpenCV's COLOR_BGR2HSV does.
func RGBToHSV(r, g, b uint8) HSV {
	hi, lo := max(r, g, b), min(r, g, b)
	if hi == 0 {
		return HSV{}
	}
	delta := int(hi) - int(lo)
	s := uint8((255*delta + int(hi)/2) / int(hi))
	if delta == 0 {
		return HSV{0, s, hi}
	}

	var h float64
	switch hi {
	case r:
		h = 60 * float64(int(g)-int(b)) / float64(delta)
	case g:
		h = 120 + 60*float64(int(b)-int(r))/float64(delta)
	default:
		h = 240 + 60*float64(int(r)-int(g))/float64(delta)
	}
	if h < 0 {
		h += 360
	}
	hh := int(h/2 + 0.5)
	if hh >= 180 {
		hh -= 180
	}
	return HSV{uint8(hh), s, hi}
}

// ClassifyHSV applies t to one colour. The validity gate dominates and white
// wins over yellow.
func ClassifyHSV(t perception.Thresholds, c HSV) perception.Class {
	if c.V < t.ValidVMin {
		return perception.ClassBackground
	}
	if c.S < t.WhiteSMax && c.V >= t.WhiteVMin {
		return perception.ClassWhite
	}
	if c.H >= t.YellowHMin && c.H <= t.YellowHMax && c.S >= t.YellowSMin {
		return perception.ClassYellow
	}
	return perception.ClassBackground
}

// Classifier is a pure-Go perception.Classifier. It follows the same gates
// as the OpenCV classifier so detector tests run without cgo.
type Classifier struct {
	perception.Params
}

// NewClassifier returns a classifier for p.
func NewClassifier(p perception.Params) Classifier {
	return Classifier{Params: p}
}

// FullFrameClassifier classifies every pixel, with no ROI narrowing.
func FullFrameClassifier() Classifier {
	return NewClassifier(perception.Params{
		Thresholds: DefaultThresholds,
		ROI:        perception.ROI{HorizonFraction: 0, TopHalfWidthFraction: 1},
	})
}

// Classify builds the mask for img. A nil or empty image yields an empty
// mask.
func (c Classifier) Classify(img *image.RGBA) *perception.Mask {
	if img == nil || img.Bounds().Empty() {
		return perception.NewMask(0, 0)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	m := perception.NewMask(w, h)
	for y := 0; y < h; y++ {
		x0, x1, ok := c.ROI.Span(y, w, h)
		if !ok {
			continue
		}
		for x := x0; x <= x1; x++ {
			p := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			if cls := ClassifyHSV(c.Thresholds, RGBToHSV(p.R, p.G, p.B)); cls != perception.ClassBackground {
				m.Set(x, y, cls)
			}
		}
	}
	return m
}

var _ perception.Classifier = Classifier{}
