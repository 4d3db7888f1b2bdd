package lane

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/testutil"
)

func init() {
	SetLogWriters(nil, nil, nil)
}

func testConfig() Config {
	return Config{
		Classifier:      testutil.FullFrameClassifier(),
		ScanRows:        []float64{0.35, 0.65},
		MinBlobLength:   3,
		LaneGap:         120,
		MinLaneGap:      20,
		LearnLaneGap:    true,
		AvgWeight:       1.0,
		InterWeight:     0,
		ParallelEpsilon: 1e-3,
	}
}

func barsFrame(id uint64, xs ...int) *frames.Frame {
	img := testutil.NewTrackImage(320, 240)
	for _, x := range xs {
		testutil.VerticalBar(img, x, 5, testutil.WhitePaint)
	}
	return &frames.Frame{ID: id, Image: img}
}

var centreWhite = perception.Guidance{Mode: perception.Center, Channel: perception.White}

func TestFindBlobs(t *testing.T) {
	m := perception.NewMask(12, 1)
	for _, x := range []int{0, 1, 2, 5, 8, 9, 10, 11} {
		m.Set(x, 0, perception.ClassWhite)
	}
	m.Set(6, 0, perception.ClassYellow)

	assert.Equal(t, []Blob{{0, 2}, {5, 5}, {8, 11}}, FindBlobs(m, 0, perception.ClassWhite, 1))
	assert.Equal(t, []Blob{{0, 2}, {8, 11}}, FindBlobs(m, 0, perception.ClassWhite, 2))
	assert.Equal(t, []Blob{{6, 6}}, FindBlobs(m, 0, perception.ClassYellow, 1))
	assert.Nil(t, FindBlobs(m, 3, perception.ClassWhite, 1))
	assert.Equal(t, 9.5, Blob{8, 11}.Centroid())
}

func TestProcess_TwoBarsAroundCentreCancel(t *testing.T) {
	d := NewDetector(testConfig())
	obs := d.Process(barsFrame(1, 100, 220), centreWhite)
	// (100-160) + (220-160) = 0 on both rows.
	assert.Equal(t, 0, obs.Offset)
	assert.Equal(t, uint64(1), obs.FrameID)
	require.Len(t, obs.Rows, 2)
	assert.Equal(t, EdgesFound, obs.Rows[0].Source)
	assert.Equal(t, 100.0, obs.Rows[0].Left)
	assert.Equal(t, 220.0, obs.Rows[0].Right)
}

func TestProcess_TwoBarsOffCentre(t *testing.T) {
	d := NewDetector(testConfig())
	obs := d.Process(barsFrame(1, 115, 235), centreWhite)
	// (115-160) + (235-160) = 30 per row, averaged over rows.
	assert.Equal(t, 30, obs.Offset)
}

func TestProcess_SingleBarSynthesisesAtLaneGap(t *testing.T) {
	d := NewDetector(testConfig())
	obs := d.Process(barsFrame(1, 115), centreWhite)
	require.Len(t, obs.Rows, 2)
	assert.Equal(t, EdgesSynthesized, obs.Rows[0].Source)
	assert.Equal(t, 235.0, obs.Rows[0].Right)
	assert.Equal(t, 30, obs.Offset, "same offset as the two-bar case")

	// A lone bar right of centre is taken as the right edge.
	obs = NewDetector(testConfig()).Process(barsFrame(2, 235), centreWhite)
	assert.Equal(t, 115.0, obs.Rows[1].Left)
	assert.Equal(t, 30, obs.Offset)
}

func TestProcess_NoBarsDefaultsToCentre(t *testing.T) {
	d := NewDetector(testConfig())
	obs := d.Process(barsFrame(1), centreWhite)
	assert.Equal(t, 0, obs.Offset)
	assert.Equal(t, EdgesDefault, obs.Rows[0].Source)
	assert.Equal(t, 100.0, obs.Rows[0].Left)
	assert.Equal(t, 220.0, obs.Rows[0].Right)
}

func TestProcess_LearnsLaneGap(t *testing.T) {
	d := NewDetector(testConfig())
	d.Process(barsFrame(1, 100, 240), centreWhite)
	assert.Equal(t, []int{140, 140}, d.LearnedGaps())

	// The learned gap now places the synthetic edge.
	obs := d.Process(barsFrame(2, 100), centreWhite)
	assert.Equal(t, 240.0, obs.Rows[0].Right)
	assert.Equal(t, 20, obs.Offset)

	d.Reset()
	assert.Equal(t, []int{0, 0}, d.LearnedGaps())
}

func TestProcess_IgnoresImplausibleGap(t *testing.T) {
	d := NewDetector(testConfig())
	d.Process(barsFrame(1, 150, 160), centreWhite)
	assert.Equal(t, []int{0, 0}, d.LearnedGaps())

	cfg := testConfig()
	cfg.LearnLaneGap = false
	d = NewDetector(cfg)
	d.Process(barsFrame(1, 100, 240), centreWhite)
	assert.Equal(t, []int{0, 0}, d.LearnedGaps())
}

func TestProcess_FollowModeRestrictsSides(t *testing.T) {
	frame := barsFrame(1, 115, 235)

	right := NewDetector(testConfig()).Process(frame, perception.Guidance{Mode: perception.Right})
	assert.Equal(t, EdgesSynthesized, right.Rows[0].Source)
	assert.Equal(t, 235.0, right.Rows[0].Right)
	assert.Equal(t, 30, right.Offset)

	left := NewDetector(testConfig()).Process(frame, perception.Guidance{Mode: perception.Left})
	assert.Equal(t, 115.0, left.Rows[0].Left)
	assert.Equal(t, 30, left.Offset)

	// Only a right-side bar is visible while following the left edge.
	none := NewDetector(testConfig()).Process(barsFrame(2, 235), perception.Guidance{Mode: perception.Left})
	assert.Equal(t, EdgesDefault, none.Rows[0].Source)
	assert.Equal(t, 0, none.Offset)
}

func TestProcess_ChannelSelectsPaint(t *testing.T) {
	img := testutil.NewTrackImage(320, 240)
	testutil.VerticalBar(img, 115, 5, testutil.YellowPaint)
	testutil.VerticalBar(img, 235, 5, testutil.WhitePaint)
	frame := &frames.Frame{ID: 4, Image: img}

	yellow := NewDetector(testConfig()).Process(frame, perception.Guidance{Channel: perception.Yellow})
	assert.Equal(t, EdgesSynthesized, yellow.Rows[0].Source)
	assert.Equal(t, 115.0, yellow.Rows[0].Left)
	assert.Equal(t, 5*240, yellow.YellowCount)

	white := NewDetector(testConfig()).Process(frame, centreWhite)
	assert.Equal(t, 235.0, white.Rows[0].Right)
	assert.Equal(t, 5*240, white.YellowCount, "yellow count ignores the followed channel")
}

func setRun(m *perception.Mask, x, y int) {
	for dx := -1; dx <= 1; dx++ {
		m.Set(x+dx, y, perception.ClassWhite)
	}
}

func TestProcessMask_IntersectionTerm(t *testing.T) {
	m := perception.NewMask(320, 240)
	// Rows 84 and 156: left edge leans right, right edge leans left, and the
	// two lines cross at x=165.
	setRun(m, 100, 84)
	setRun(m, 230, 84)
	setRun(m, 120, 156)
	setRun(m, 210, 156)

	cfg := testConfig()
	cfg.AvgWeight, cfg.InterWeight = 0, 1
	assert.Equal(t, 5, NewDetector(cfg).ProcessMask(m, centreWhite).Offset)

	cfg.AvgWeight = 1
	assert.Equal(t, 15, NewDetector(cfg).ProcessMask(m, centreWhite).Offset)
}

func TestProcessMask_ParallelLinesSkipIntersection(t *testing.T) {
	m := perception.NewMask(320, 240)
	setRun(m, 100, 84)
	setRun(m, 230, 84)
	setRun(m, 110, 156)
	setRun(m, 240, 156)

	cfg := testConfig()
	cfg.AvgWeight, cfg.InterWeight = 0, 1
	assert.Equal(t, 0, NewDetector(cfg).ProcessMask(m, centreWhite).Offset)
}

func TestProcess_EmptyFrame(t *testing.T) {
	d := NewDetector(testConfig())
	assert.Equal(t, Observation{}, d.Process(nil, centreWhite))

	obs := d.Process(&frames.Frame{ID: 9, Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}, centreWhite)
	assert.Equal(t, Observation{FrameID: 9}, obs)
}
