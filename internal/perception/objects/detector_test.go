package objects

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
		Classifier:         testutil.FullFrameClassifier(),
		Vision:             testutil.Vision{},
		StopBand:           Band{Top: 0.75, Bottom: 0.95},
		StopMaxTransitions: 15,
		StopAreaRatio:      0.35,
		CrosswalkBand:      Band{Top: 0.4, Bottom: 0.6, Margin: 0.2},
		CrosswalkMinHeight: 20,
		CrosswalkMaxWidth:  80,
		CrosswalkMinBars:   3,
		StartBand:          Band{Top: 0.5, Bottom: 0.8, Margin: 0.2},
		StartCorners:       perception.CornerParams{MaxCorners: 50, QualityLevel: 0.01, MinDistance: 10},
		StartMinCorners:    50,
	}
}

var (
	whiteCentre  = perception.Guidance{Mode: perception.Center, Channel: perception.White}
	yellowCentre = perception.Guidance{Mode: perception.Center, Channel: perception.Yellow}
)

func frameOf(img *image.RGBA) *frames.Frame {
	return &frames.Frame{ID: 1, Image: img}
}

func TestBand_Rect(t *testing.T) {
	assert.Equal(t, image.Rect(64, 96, 256, 144), Band{Top: 0.4, Bottom: 0.6, Margin: 0.2}.Rect(320, 240))
	assert.Equal(t, image.Rect(0, 180, 320, 228), Band{Top: 0.75, Bottom: 0.95}.Rect(320, 240))
}

func TestStopline_Coverage(t *testing.T) {
	d := NewDetector(testConfig())

	covered := testutil.NewTrackImage(320, 240)
	testutil.FillRect(covered, image.Rect(96, 180, 224, 228), testutil.WhitePaint) // 40% of the band
	flags := d.Process(frameOf(covered), whiteCentre)
	assert.True(t, flags.Stopline)
	assert.Equal(t, image.Rect(96, 180, 224, 228), flags.Marks.Stop)

	sparse := testutil.NewTrackImage(320, 240)
	testutil.FillRect(sparse, image.Rect(128, 180, 192, 228), testutil.WhitePaint) // 20%
	assert.False(t, d.Process(frameOf(sparse), whiteCentre).Stopline)
}

func TestStopline_FollowsChannel(t *testing.T) {
	d := NewDetector(testConfig())
	img := testutil.NewTrackImage(320, 240)
	testutil.FillRect(img, image.Rect(0, 180, 320, 228), testutil.YellowPaint)

	assert.False(t, d.Process(frameOf(img), whiteCentre).Stopline)
	assert.True(t, d.Process(frameOf(img), yellowCentre).Stopline)
}

func TestStopline_RejectsHighTransitionShapes(t *testing.T) {
	d := NewDetector(testConfig())
	img := testutil.NewTrackImage(320, 240)
	// One connected comb: a solid spine with 4px teeth every 8px. Plenty of
	// area, but every tooth row flips in and out dozens of times.
	testutil.FillRect(img, image.Rect(0, 180, 320, 182), testutil.WhitePaint)
	for x := 0; x < 320; x += 8 {
		testutil.FillRect(img, image.Rect(x, 182, x+4, 228), testutil.WhitePaint)
	}
	ok, _, box := d.Stopline(d.cfg.Classifier.Classify(img), perception.White)
	assert.False(t, ok)
	assert.True(t, box.Empty())
}

func TestCrosswalk(t *testing.T) {
	d := NewDetector(testConfig())
	band := image.Rect(64, 96, 256, 144)

	zebra := testutil.NewTrackImage(320, 240)
	testutil.Bars(zebra, band, 5, 20, testutil.WhitePaint)
	ok, bars := d.Crosswalk(d.cfg.Classifier.Classify(zebra))
	assert.True(t, ok)
	assert.Len(t, bars, 5)

	two := testutil.NewTrackImage(320, 240)
	testutil.Bars(two, band, 2, 20, testutil.WhitePaint)
	assert.False(t, d.Process(frameOf(two), whiteCentre).Crosswalk)

	wide := testutil.NewTrackImage(320, 240)
	testutil.FillRect(wide, band, testutil.WhitePaint)
	ok, bars = d.Crosswalk(d.cfg.Classifier.Classify(wide))
	assert.False(t, ok)
	assert.Empty(t, bars)

	short := testutil.NewTrackImage(320, 240)
	testutil.Bars(short, image.Rect(64, 96, 256, 110), 5, 20, testutil.WhitePaint)
	assert.False(t, d.Process(frameOf(short), whiteCentre).Crosswalk)
}

func TestCrosswalk_CountsEitherPaint(t *testing.T) {
	d := NewDetector(testConfig())
	img := testutil.NewTrackImage(320, 240)
	testutil.Bars(img, image.Rect(64, 96, 256, 144), 4, 20, testutil.YellowPaint)
	assert.True(t, d.Process(frameOf(img), whiteCentre).Crosswalk)
}

// A lane edge running along the band's left and bottom sides must not hide
// the bars beside it: only regions inside a hole are nested.
func TestCrosswalk_BarsBesideEdgeMarking(t *testing.T) {
	d := NewDetector(testConfig())
	band := image.Rect(64, 96, 256, 144)

	img := testutil.NewTrackImage(320, 240)
	for i := 0; i < 4; i++ {
		x := 110 + i*30
		testutil.FillRect(img, image.Rect(x, 99, x+10, 138), testutil.WhitePaint)
	}
	ok, bars := d.Crosswalk(d.cfg.Classifier.Classify(img))
	require.True(t, ok)
	require.Len(t, bars, 4)

	testutil.FillRect(img, image.Rect(band.Min.X, band.Min.Y, band.Min.X+4, band.Max.Y), testutil.WhitePaint)
	testutil.FillRect(img, image.Rect(band.Min.X, band.Max.Y-3, band.Max.X, band.Max.Y), testutil.WhitePaint)
	ok, bars = d.Crosswalk(d.cfg.Classifier.Classify(img))
	assert.True(t, ok)
	assert.Len(t, bars, 4)
	flags := d.Process(frameOf(img), whiteCentre)
	assert.True(t, flags.Crosswalk)
	assert.Equal(t, bars, flags.Marks.Bars)
}

func TestCrosswalk_IgnoresMarksInsideHoles(t *testing.T) {
	d := NewDetector(testConfig())
	img := testutil.NewTrackImage(320, 240)
	// A painted frame filling the band, with bars drawn inside its hole.
	testutil.FillRect(img, image.Rect(64, 96, 256, 144), testutil.YellowPaint)
	testutil.FillRect(img, image.Rect(68, 99, 252, 141), testutil.Asphalt)
	for i := 0; i < 4; i++ {
		x := 90 + i*40
		testutil.FillRect(img, image.Rect(x, 101, x+10, 139), testutil.WhitePaint)
	}
	ok, bars := d.Crosswalk(d.cfg.Classifier.Classify(img))
	assert.False(t, ok)
	assert.Empty(t, bars)
}

func TestStartline(t *testing.T) {
	d := NewDetector(testConfig())

	chequered := testutil.NewTrackImage(320, 240)
	testutil.Checkerboard(chequered, image.Rect(64, 120, 256, 192), 12, testutil.WhitePaint)
	ok, corners := d.Startline(d.cfg.Classifier.Classify(chequered))
	assert.True(t, ok)
	assert.Len(t, corners, 50, "capped at max corners")
	for _, c := range corners {
		assert.True(t, c.In(image.Rect(64, 120, 256, 192)), "corner %v outside the start band", c)
	}

	lanes := testutil.NewTrackImage(320, 240)
	testutil.VerticalBar(lanes, 100, 6, testutil.WhitePaint)
	testutil.VerticalBar(lanes, 220, 6, testutil.WhitePaint)
	ok, corners = d.Startline(d.cfg.Classifier.Classify(lanes))
	assert.False(t, ok)
	assert.Empty(t, corners)

	zebra := testutil.NewTrackImage(320, 240)
	testutil.Bars(zebra, image.Rect(64, 96, 256, 144), 5, 20, testutil.WhitePaint)
	assert.False(t, d.Process(frameOf(zebra), whiteCentre).Startline)
}

func TestProcess_EmptyFrame(t *testing.T) {
	d := NewDetector(testConfig())
	assert.Equal(t, Flags{}, d.Process(nil, whiteCentre))
	assert.Equal(t, Flags{FrameID: 3}, d.Process(&frames.Frame{ID: 3}, whiteCentre))
}
