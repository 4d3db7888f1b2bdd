// Package lane turns a frame into a signed lane-centre offset.
//
// Each configured scan row yields a left and a right edge point, found from
// runs of the followed paint colour, synthesised from the lane gap, or
// defaulted around the frame centre. The offset blends the mean deviation of
// the edge pairs from the centre column with the deviation of the point where
// the left and right edge lines cross.
package lane

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// EdgeSource records how a row's edge pair was obtained.
type EdgeSource int

const (
	EdgesFound       EdgeSource = iota // both edges observed
	EdgesSynthesized                   // one edge observed, the other placed at the lane gap
	EdgesDefault                       // nothing observed
)

// RowEdges is the edge pair on one scan row.
type RowEdges struct {
	Y           int
	Left, Right float64
	Source      EdgeSource
}

// Observation is the lane detector's output for one frame.
type Observation struct {
	FrameID     uint64
	Offset      int
	YellowCount int
	Rows        []RowEdges
}

// Config parametrises the detector.
type Config struct {
	Classifier      perception.Classifier
	ScanRows        []float64 // fractions of the frame height
	MinBlobLength   int
	LaneGap         int // configured gap, used until a row has learned its own
	MinLaneGap      int
	LearnLaneGap    bool
	AvgWeight       float64
	InterWeight     float64
	ParallelEpsilon float64
}

// Detector is the lane detector. It keeps one learned lane gap per scan row
// between frames; everything else is recomputed per call.
type Detector struct {
	cfg Config

	mu      sync.Mutex
	learned []int
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	if cfg.MinBlobLength < 1 {
		cfg.MinBlobLength = 1
	}
	return &Detector{cfg: cfg, learned: make([]int, len(cfg.ScanRows))}
}

// Process classifies the frame and computes its observation. An empty frame
// yields offset 0 and count 0.
func (d *Detector) Process(f *frames.Frame, g perception.Guidance) Observation {
	if f.Empty() {
		var id uint64
		if f != nil {
			id = f.ID
		}
		return Observation{FrameID: id}
	}
	obs := d.ProcessMask(d.cfg.Classifier.Classify(f.Image), g)
	obs.FrameID = f.ID
	return obs
}

// ProcessMask computes the observation for an already classified mask.
func (d *Detector) ProcessMask(m *perception.Mask, g perception.Guidance) Observation {
	obs := Observation{YellowCount: m.YellowCount}
	if m.Width == 0 || m.Height == 0 {
		return obs
	}

	centre := float64(m.Width) / 2
	cls := g.Channel.Class()

	d.mu.Lock()
	defer d.mu.Unlock()

	var devSum float64
	for i, frac := range d.cfg.ScanRows {
		y := int(frac * float64(m.Height))
		if y >= m.Height {
			y = m.Height - 1
		}
		blobs := filterSide(FindBlobs(m, y, cls, d.cfg.MinBlobLength), g.Mode, centre)
		row := d.edgesLocked(i, y, blobs, g.Mode, centre, m.Width)
		obs.Rows = append(obs.Rows, row)
		devSum += (row.Left - centre) + (row.Right - centre)
	}
	if len(obs.Rows) == 0 {
		return obs
	}

	meanDev := devSum / float64(len(obs.Rows))
	interDev := d.intersectionDeviation(obs.Rows, centre)
	obs.Offset = int(math.Round(d.cfg.AvgWeight*meanDev + d.cfg.InterWeight*interDev))

	tracef("mode=%s rows=%v mean=%.1f inter=%.1f offset=%d", g, obs.Rows, meanDev, interDev, obs.Offset)
	return obs
}

func (d *Detector) gapLocked(i int) float64 {
	if d.learned[i] > 0 {
		return float64(d.learned[i])
	}
	return float64(d.cfg.LaneGap)
}

func (d *Detector) edgesLocked(i, y int, blobs []Blob, mode perception.FollowMode, centre float64, width int) RowEdges {
	row := RowEdges{Y: y}

	var candidates []Blob
	switch {
	case len(blobs) == 0:
	case mode == perception.Left:
		candidates = blobs[:1]
	case mode == perception.Right:
		candidates = blobs[len(blobs)-1:]
	case len(blobs) == 1:
		candidates = blobs
	default:
		candidates = []Blob{blobs[0], blobs[len(blobs)-1]}
	}

	switch len(candidates) {
	case 2:
		left, right := candidates[0].Centroid(), candidates[1].Centroid()
		if left > right {
			left, right = right, left
		}
		row.Left, row.Right, row.Source = left, right, EdgesFound
		gap := int(math.Round(right - left))
		if d.cfg.LearnLaneGap && gap >= d.cfg.MinLaneGap && gap <= width && gap != d.learned[i] {
			diagf("row %d learned lane gap %d (was %d)", y, gap, d.learned[i])
			d.learned[i] = gap
		}

	case 1:
		x := candidates[0].Centroid()
		gap := d.gapLocked(i)
		isLeft := mode == perception.Left || (mode == perception.Center && x < centre)
		if isLeft {
			row.Left, row.Right = x, x+gap
		} else {
			row.Left, row.Right = x-gap, x
		}
		row.Source = EdgesSynthesized

	default:
		half := float64(d.cfg.LaneGap) / 2
		row.Left, row.Right, row.Source = centre-half, centre+half, EdgesDefault
	}
	return row
}

// intersectionDeviation fits x = alpha + beta*y through each side's edge
// points and returns the crossing column minus the centre. Near-parallel
// lines, or fewer than two distinct rows, contribute 0.
func (d *Detector) intersectionDeviation(rows []RowEdges, centre float64) float64 {
	if len(rows) < 2 {
		return 0
	}
	ys := make([]float64, len(rows))
	lx := make([]float64, len(rows))
	rx := make([]float64, len(rows))
	distinct := false
	for i, r := range rows {
		ys[i], lx[i], rx[i] = float64(r.Y), r.Left, r.Right
		if i > 0 && ys[i] != ys[0] {
			distinct = true
		}
	}
	if !distinct {
		return 0
	}

	aL, bL := stat.LinearRegression(ys, lx, nil, false)
	aR, bR := stat.LinearRegression(ys, rx, nil, false)
	if math.Abs(bL-bR) < d.cfg.ParallelEpsilon {
		return 0
	}
	crossY := (aR - aL) / (bL - bR)
	crossX := aL + bL*crossY
	if math.IsNaN(crossX) || math.IsInf(crossX, 0) {
		return 0
	}
	return crossX - centre
}

// LearnedGaps returns a copy of the per-row learned gaps; 0 means none yet.
func (d *Detector) LearnedGaps() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.learned))
	copy(out, d.learned)
	return out
}

// Reset forgets every learned gap.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.learned {
		d.learned[i] = 0
	}
}
