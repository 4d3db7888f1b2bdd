package gocvvision

import (
	"image"
	"math"
	"runtime"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
)

// Vision is the OpenCV region toolkit for the object detector.
type Vision struct{}

// Components labels the 8-connected regions of class cls with
// ConnectedComponentsWithStats and measures each region's row transitions on
// the label plane.
func (Vision) Components(m *perception.Mask, r image.Rectangle, cls perception.Class) []perception.Component {
	src, r, data, err := plane(m, r, func(c perception.Class) bool { return c == cls })
	if err != nil {
		return nil
	}
	defer src.Close()

	labels, stats, centroids := gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer labels.Close()
	defer stats.Close()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)
	runtime.KeepAlive(data)
	if n <= 1 {
		return nil
	}

	ids, err := labels.DataPtrInt32()
	if err != nil {
		opsf("component labels: %v", err)
		return nil
	}
	transitions := perception.RowTransitions(ids, r.Dx(), r.Dy(), n-1)

	comps := make([]perception.Component, 0, n-1)
	for i := 1; i < n; i++ {
		x := int(stats.GetIntAt(i, int(gocv.CC_STAT_LEFT)))
		y := int(stats.GetIntAt(i, int(gocv.CC_STAT_TOP)))
		cw := int(stats.GetIntAt(i, int(gocv.CC_STAT_WIDTH)))
		ch := int(stats.GetIntAt(i, int(gocv.CC_STAT_HEIGHT)))
		comps = append(comps, perception.Component{
			Area:              int(stats.GetIntAt(i, int(gocv.CC_STAT_AREA))),
			Box:               image.Rect(x, y, x+cw, y+ch).Add(r.Min),
			MaxRowTransitions: transitions[i],
		})
	}
	return comps
}

// ExternalBoxes runs FindContours in external retrieval mode over the
// painted pixels and bounds each outline.
func (Vision) ExternalBoxes(m *perception.Mask, r image.Rectangle) []image.Rectangle {
	src, r, data, err := plane(m, r, perception.Painted)
	if err != nil {
		return nil
	}
	defer src.Close()

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	runtime.KeepAlive(data)

	boxes := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		boxes = append(boxes, gocv.BoundingRect(contours.At(i)).Add(r.Min))
	}
	return boxes
}

// Corners runs GoodFeaturesToTrack over the grey coding of the mask.
func (Vision) Corners(m *perception.Mask, r image.Rectangle, p perception.CornerParams) []image.Point {
	if p.MaxCorners <= 0 {
		return nil
	}
	src, r, data, err := plane(m, r, nil)
	if err != nil {
		return nil
	}
	defer src.Close()

	found := gocv.NewMat()
	defer found.Close()
	gocv.GoodFeaturesToTrack(src, &found, p.MaxCorners, p.QualityLevel, p.MinDistance)
	runtime.KeepAlive(data)

	pts := make([]image.Point, 0, found.Rows())
	for i := 0; i < found.Rows(); i++ {
		v := found.GetVecfAt(i, 0)
		pt := image.Pt(int(math.Round(float64(v[0]))), int(math.Round(float64(v[1]))))
		pts = append(pts, pt.Add(r.Min))
	}
	return pts
}

var _ objects.Vision = Vision{}
