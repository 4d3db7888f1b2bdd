package testutil

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/perception"
)

func TestRGBToHSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		r, g, b uint8
		want    HSV
	}{
		{"black", 0, 0, 0, HSV{0, 0, 0}},
		{"white", 255, 255, 255, HSV{0, 0, 255}},
		{"grey", 128, 128, 128, HSV{0, 0, 128}},
		{"red", 255, 0, 0, HSV{0, 255, 255}},
		{"green", 0, 255, 0, HSV{60, 255, 255}},
		{"blue", 0, 0, 255, HSV{120, 255, 255}},
		{"yellow", 255, 255, 0, HSV{30, 255, 255}},
		{"magenta wraps below 180", 255, 0, 255, HSV{150, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RGBToHSV(tt.r, tt.g, tt.b))
		})
	}
}

func TestClassifyHSV_ValidityGateDominates(t *testing.T) {
	t.Parallel()

	for v := 0; v < int(DefaultThresholds.ValidVMin); v++ {
		for h := 0; h < 180; h += 7 {
			for s := 0; s < 256; s += 15 {
				c := HSV{uint8(h), uint8(s), uint8(v)}
				require.Equal(t, perception.ClassBackground, ClassifyHSV(DefaultThresholds, c), "hsv=%v", c)
			}
		}
	}
	assert.Equal(t, perception.ClassBackground, ClassifyHSV(DefaultThresholds, HSV{30, 30, 120}), "washed-out yellow hue")
	assert.Equal(t, perception.ClassBackground, ClassifyHSV(DefaultThresholds, HSV{100, 200, 200}), "blue")
}

func TestClassifier(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		img.Set(2, y, color.RGBA{250, 250, 250, 255})
		img.Set(7, y, color.RGBA{240, 220, 20, 255})
	}
	m := FullFrameClassifier().Classify(img)
	assert.Equal(t, perception.ClassWhite, m.At(2, 1))
	assert.Equal(t, perception.ClassYellow, m.At(7, 3))
	assert.Equal(t, 10, m.WhiteCount)
	assert.Equal(t, 10, m.YellowCount)

	upper := NewClassifier(perception.Params{
		Thresholds: DefaultThresholds,
		ROI:        perception.ROI{HorizonFraction: 0.5, TopHalfWidthFraction: 1},
	}).Classify(img)
	assert.Equal(t, perception.ClassBackground, upper.At(2, 2))
	assert.Equal(t, perception.ClassWhite, upper.At(2, 7))

	assert.Equal(t, 0, FullFrameClassifier().Classify(nil).Width)
}

func paint(m *perception.Mask, r image.Rectangle, c perception.Class) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, c)
		}
	}
}

func TestVision_Components(t *testing.T) {
	t.Parallel()

	m := perception.NewMask(10, 5)
	// A diagonal pair joins under 8-connectivity.
	m.Set(1, 1, perception.ClassWhite)
	m.Set(2, 2, perception.ClassWhite)
	paint(m, image.Rect(5, 1, 9, 4), perception.ClassWhite)

	comps := Vision{}.Components(m, m.Bounds(), perception.ClassWhite)
	require.Len(t, comps, 2)
	assert.Equal(t, perception.Component{Area: 2, Box: image.Rect(1, 1, 3, 3), MaxRowTransitions: 2}, comps[0])
	assert.Equal(t, perception.Component{Area: 12, Box: image.Rect(5, 1, 9, 4), MaxRowTransitions: 2}, comps[1])

	comps = Vision{}.Components(m, image.Rect(4, 0, 10, 5), perception.ClassWhite)
	require.Len(t, comps, 1)
	assert.Equal(t, image.Rect(5, 1, 9, 4), comps[0].Box)

	assert.Nil(t, Vision{}.Components(m, image.Rect(20, 20, 30, 30), perception.ClassWhite))
}

func TestVision_ExternalBoxes(t *testing.T) {
	t.Parallel()

	t.Run("region inside a hole is dropped", func(t *testing.T) {
		m := perception.NewMask(40, 40)
		paint(m, image.Rect(5, 5, 35, 35), perception.ClassWhite)
		paint(m, image.Rect(8, 8, 32, 32), perception.ClassBackground)
		paint(m, image.Rect(15, 15, 20, 20), perception.ClassYellow)

		assert.Equal(t, []image.Rectangle{image.Rect(5, 5, 35, 35)}, Vision{}.ExternalBoxes(m, m.Bounds()))
	})

	t.Run("region beside an L-shaped edge is kept", func(t *testing.T) {
		m := perception.NewMask(60, 40)
		paint(m, image.Rect(0, 0, 3, 40), perception.ClassWhite)
		paint(m, image.Rect(0, 37, 60, 40), perception.ClassWhite)
		paint(m, image.Rect(20, 5, 25, 30), perception.ClassWhite)

		boxes := Vision{}.ExternalBoxes(m, m.Bounds())
		assert.ElementsMatch(t, []image.Rectangle{image.Rect(0, 0, 60, 40), image.Rect(20, 5, 25, 30)}, boxes)
	})

	t.Run("diagonal gap does not let background in", func(t *testing.T) {
		m := perception.NewMask(20, 20)
		// A ring whose corners only touch diagonally still encloses its hole.
		for i := 4; i < 16; i++ {
			m.Set(i, 3, perception.ClassWhite)
			m.Set(i, 16, perception.ClassWhite)
			m.Set(3, i, perception.ClassWhite)
			m.Set(16, i, perception.ClassWhite)
		}
		paint(m, image.Rect(9, 9, 11, 11), perception.ClassWhite)

		assert.Equal(t, []image.Rectangle{image.Rect(3, 3, 17, 17)}, Vision{}.ExternalBoxes(m, m.Bounds()))
	})
}

func TestVision_Corners(t *testing.T) {
	t.Parallel()

	m := perception.NewMask(40, 40)
	paint(m, image.Rect(10, 10, 30, 30), perception.ClassWhite)

	pts := Vision{}.Corners(m, m.Bounds(), perception.CornerParams{MaxCorners: 10, QualityLevel: 0.01, MinDistance: 10})
	assert.Len(t, pts, 4, "one corner per square corner")

	pts = Vision{}.Corners(m, m.Bounds(), perception.CornerParams{MaxCorners: 2, QualityLevel: 0.01, MinDistance: 10})
	assert.Len(t, pts, 2)

	assert.Nil(t, Vision{}.Corners(perception.NewMask(20, 20), image.Rect(0, 0, 20, 20), perception.CornerParams{MaxCorners: 5}))
}
