// Package gocvvision runs the perception image operations through OpenCV:
// HSV classification into lane-paint masks, connected components, external
// contours and corner detection for the object detector, and the annotated
// debug overlay.
package gocvvision

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// Classifier is a perception.Classifier backed by OpenCV. Every call works
// on its own Mats, so one Classifier serves both detectors concurrently.
type Classifier struct {
	params perception.Params
}

// NewClassifier returns a classifier for p.
func NewClassifier(p perception.Params) *Classifier {
	return &Classifier{params: p}
}

// Classify converts img to HSV, applies the paint gates inside the ROI and
// returns the mask. White wins where both gates pass. A nil or empty image,
// or one OpenCV cannot convert, yields an empty mask.
func (c *Classifier) Classify(img *image.RGBA) *perception.Mask {
	if img == nil || img.Bounds().Empty() {
		return perception.NewMask(0, 0)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		opsf("convert frame: %v", err)
		return perception.NewMask(0, 0)
	}
	defer bgr.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	t := c.params.Thresholds
	white := gocv.NewMat()
	defer white.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 0, float64(max(t.WhiteVMin, t.ValidVMin)), 0),
		gocv.NewScalar(255, float64(t.WhiteSMax)-1, 255, 0),
		&white)

	yellow := gocv.NewMat()
	defer yellow.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(float64(t.YellowHMin), float64(t.YellowSMin), float64(t.ValidVMin), 0),
		gocv.NewScalar(float64(t.YellowHMax), 255, 255, 0),
		&yellow)

	roi := roiMask(c.params.ROI, w, h)
	defer roi.Close()
	gocv.BitwiseAnd(white, roi, &white)
	gocv.BitwiseAnd(yellow, roi, &yellow)

	wb, yb := white.ToBytes(), yellow.ToBytes()
	m := perception.NewMask(w, h)
	for i := range m.Pix {
		switch {
		case wb[i] != 0:
			m.Pix[i] = perception.ClassWhite
			m.WhiteCount++
		case yb[i] != 0:
			m.Pix[i] = perception.ClassYellow
			m.YellowCount++
		}
	}
	return m
}

// roiMask rasterises the trusted trapezoid, minus the blanked strip.
func roiMask(r perception.ROI, w, h int) gocv.Mat {
	mask := gocv.Zeros(h, w, gocv.MatTypeCV8UC1)
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{r.Polygon(w, h)})
	defer poly.Close()
	gocv.FillPoly(&mask, poly, color.RGBA{255, 255, 255, 0})
	if blank := r.Blank(w, h); !blank.Empty() {
		gocv.Rectangle(&mask, blank, color.RGBA{}, -1)
	}
	return mask
}

var errEmptyRegion = errors.New("gocvvision: empty region")

// plane wraps a packed 8-bit plane of r, clipped to m, in a Mat. The Mat
// borrows data; keep data alive until the Mat is closed.
func plane(m *perception.Mask, r image.Rectangle, keep func(perception.Class) bool) (gocv.Mat, image.Rectangle, []byte, error) {
	r, data := m.Plane(r, keep)
	if r.Empty() {
		return gocv.Mat{}, r, nil, errEmptyRegion
	}
	mat, err := gocv.NewMatFromBytes(r.Dy(), r.Dx(), gocv.MatTypeCV8UC1, data)
	return mat, r, data, err
}

var _ perception.Classifier = (*Classifier)(nil)
