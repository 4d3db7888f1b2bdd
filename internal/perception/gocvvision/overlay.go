package gocvvision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
)

var (
	leftEdge   = color.RGBA{R: 60, G: 140, B: 255}
	rightEdge  = color.RGBA{R: 255, G: 70, B: 70}
	stopColour = color.RGBA{B: 255}
	barColour  = color.RGBA{G: 255}
	cornerDot  = color.RGBA{R: 255, G: 255}
	caption    = color.RGBA{R: 255, G: 255, B: 255}
)

// Overlay renders the classified mask of a frame with the detections drawn
// on top, the way an operator checks thresholds on the bench.
type Overlay struct {
	classifier perception.Classifier
}

// NewOverlay returns an overlay that classifies frames with c.
func NewOverlay(c perception.Classifier) *Overlay {
	return &Overlay{classifier: c}
}

// Render returns a PNG of f's mask in its grey coding, annotated with the
// lane edge points of rows, the marks and a one-line caption. Observed edges
// are filled dots; synthesised and default edges are rings.
func (o *Overlay) Render(f *frames.Frame, rows []lane.RowEdges, marks objects.Marks, text string) ([]byte, error) {
	if f.Empty() {
		return nil, errors.New("gocvvision: nothing to render")
	}
	m := o.classifier.Classify(f.Image)
	src, _, data, err := plane(m, m.Bounds(), nil)
	if err != nil {
		return nil, fmt.Errorf("mask plane: %w", err)
	}
	defer src.Close()

	canvas := gocv.NewMat()
	defer canvas.Close()
	gocv.CvtColor(src, &canvas, gocv.ColorGrayToBGR)
	runtime.KeepAlive(data)

	for _, row := range rows {
		fill := -1
		if row.Source != lane.EdgesFound {
			fill = 1
		}
		gocv.Circle(&canvas, image.Pt(int(math.Round(row.Left)), row.Y), 4, leftEdge, fill)
		gocv.Circle(&canvas, image.Pt(int(math.Round(row.Right)), row.Y), 4, rightEdge, fill)
	}
	if !marks.Stop.Empty() {
		gocv.Rectangle(&canvas, marks.Stop, stopColour, 2)
	}
	for _, b := range marks.Bars {
		gocv.Rectangle(&canvas, b, barColour, 1)
	}
	for _, c := range marks.Corners {
		gocv.Circle(&canvas, c, 2, cornerDot, -1)
	}
	if text != "" {
		gocv.PutText(&canvas, text, image.Pt(8, 18), gocv.FontHersheySimplex, 0.5, caption, 1)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, canvas)
	if err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
