package gocvvision

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
	"github.com/banshee-data/lanepilot/internal/testutil"
)

func init() {
	SetLogWriters(nil, nil, nil)
	objects.SetLogWriters(nil, nil, nil)
}

var fullFrame = perception.Params{
	Thresholds: testutil.DefaultThresholds,
	ROI:        perception.ROI{HorizonFraction: 0, TopHalfWidthFraction: 1},
}

func objectConfig() objects.Config {
	return objects.Config{
		Classifier:         NewClassifier(fullFrame),
		Vision:             Vision{},
		StopBand:           objects.Band{Top: 0.75, Bottom: 0.95},
		StopMaxTransitions: 15,
		StopAreaRatio:      0.35,
		CrosswalkBand:      objects.Band{Top: 0.4, Bottom: 0.6, Margin: 0.2},
		CrosswalkMinHeight: 20,
		CrosswalkMaxWidth:  80,
		CrosswalkMinBars:   3,
		StartBand:          objects.Band{Top: 0.5, Bottom: 0.8, Margin: 0.2},
		StartCorners:       perception.CornerParams{MaxCorners: 50, QualityLevel: 0.01, MinDistance: 10},
		StartMinCorners:    50,
	}
}

func TestClassifierMatchesReference(t *testing.T) {
	img := testutil.NewTrackImage(160, 120)
	testutil.VerticalBar(img, 40, 6, testutil.WhitePaint)
	testutil.VerticalBar(img, 120, 6, testutil.YellowPaint)

	got := NewClassifier(fullFrame).Classify(img)
	want := testutil.NewClassifier(fullFrame).Classify(img)
	require.Equal(t, want.Width, got.Width)
	assert.Equal(t, want.WhiteCount, got.WhiteCount)
	assert.Equal(t, want.YellowCount, got.YellowCount)
	assert.Equal(t, perception.ClassWhite, got.At(40, 60))
	assert.Equal(t, perception.ClassYellow, got.At(120, 60))
	assert.Equal(t, perception.ClassBackground, got.At(80, 60))
}

func TestClassifierHonoursROI(t *testing.T) {
	img := testutil.NewTrackImage(100, 100)
	testutil.FillRect(img, img.Bounds(), testutil.WhitePaint)

	m := NewClassifier(perception.Params{
		Thresholds: testutil.DefaultThresholds,
		ROI:        perception.ROI{HorizonFraction: 0.5, TopHalfWidthFraction: 0.25, LeftBlankFraction: 0.2},
	}).Classify(img)
	assert.Equal(t, perception.ClassBackground, m.At(50, 20), "above the horizon")
	assert.Equal(t, perception.ClassWhite, m.At(50, 90))
	assert.Equal(t, perception.ClassBackground, m.At(10, 90), "blanked strip")

	assert.Equal(t, 0, NewClassifier(fullFrame).Classify(nil).Width)
}

func TestComponentsRowTransitions(t *testing.T) {
	m := perception.NewMask(20, 4)
	for x := 0; x < 20; x++ {
		m.Set(x, 0, perception.ClassWhite)
		if x%2 == 0 {
			m.Set(x, 1, perception.ClassWhite)
		}
	}
	comps := Vision{}.Components(m, m.Bounds(), perception.ClassWhite)
	require.Len(t, comps, 1)
	assert.Equal(t, 30, comps[0].Area)
	assert.Equal(t, image.Rect(0, 0, 20, 2), comps[0].Box)
	assert.Equal(t, 20, comps[0].MaxRowTransitions)

	assert.Nil(t, Vision{}.Components(m, image.Rect(50, 50, 60, 60), perception.ClassWhite))
}

func TestDetectorOnOpenCV(t *testing.T) {
	d := objects.NewDetector(objectConfig())
	g := perception.Guidance{Channel: perception.White}

	stop := testutil.NewTrackImage(320, 240)
	testutil.FillRect(stop, image.Rect(96, 180, 224, 228), testutil.WhitePaint)
	flags := d.Process(&frames.Frame{ID: 1, Image: stop}, g)
	assert.True(t, flags.Stopline)
	assert.Equal(t, image.Rect(96, 180, 224, 228), flags.Marks.Stop)

	chequered := testutil.NewTrackImage(320, 240)
	testutil.Checkerboard(chequered, image.Rect(64, 120, 256, 192), 12, testutil.WhitePaint)
	assert.True(t, d.Process(&frames.Frame{ID: 2, Image: chequered}, g).Startline)
}

// Bars beside a lane edge that runs along two sides of the band are still
// counted; external retrieval only drops outlines inside a hole.
func TestCrosswalkBesideEdgeMarking(t *testing.T) {
	d := objects.NewDetector(objectConfig())
	band := image.Rect(64, 96, 256, 144)

	img := testutil.NewTrackImage(320, 240)
	for i := 0; i < 4; i++ {
		x := 110 + i*30
		testutil.FillRect(img, image.Rect(x, 99, x+10, 138), testutil.WhitePaint)
	}
	testutil.FillRect(img, image.Rect(band.Min.X, band.Min.Y, band.Min.X+4, band.Max.Y), testutil.WhitePaint)
	testutil.FillRect(img, image.Rect(band.Min.X, band.Max.Y-3, band.Max.X, band.Max.Y), testutil.WhitePaint)

	flags := d.Process(&frames.Frame{ID: 1, Image: img}, perception.Guidance{})
	assert.True(t, flags.Crosswalk)
	assert.Len(t, flags.Marks.Bars, 4)
}

func TestOverlayRender(t *testing.T) {
	img := testutil.NewTrackImage(160, 120)
	testutil.VerticalBar(img, 40, 6, testutil.WhitePaint)
	f := &frames.Frame{ID: 7, Image: img}

	o := NewOverlay(NewClassifier(fullFrame))
	rows := []lane.RowEdges{{Y: 60, Left: 40, Right: 120, Source: lane.EdgesSynthesized}}
	marks := objects.Marks{Bars: []image.Rectangle{image.Rect(10, 10, 20, 40)}, Corners: []image.Point{{80, 80}}}
	out, err := o.Render(f, rows, marks, "frame 7 CENTRE_WHITE")
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), decoded.Bounds())
	r, g, b, _ := decoded.At(40, 100).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "white paint shows as full grey")

	_, err = o.Render(nil, nil, objects.Marks{}, "")
	assert.Error(t, err)
}
