package testutil

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// Paint colours that classify as intended under DefaultThresholds. They are
// the synthetic camera's colours so fixtures and dev mode agree.
var (
	Asphalt     = camera.Asphalt
	WhitePaint  = camera.WhitePaint
	YellowPaint = camera.YellowPaint
)

// DefaultThresholds mirror config/drive.defaults.json.
var DefaultThresholds = perception.Thresholds{
	ValidVMin:  60,
	WhiteSMax:  60,
	WhiteVMin:  180,
	YellowHMin: 15,
	YellowHMax: 40,
	YellowSMin: 60,
}

// NewTrackImage returns a w x h image filled with asphalt.
func NewTrackImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: Asphalt}, image.Point{}, draw.Src)
	return img
}

// FillRect paints r in c, clipped to the image.
func FillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// VerticalBar paints a full-height bar of the given width centred on x.
func VerticalBar(img *image.RGBA, x, width int, c color.RGBA) {
	b := img.Bounds()
	x0 := x - width/2
	FillRect(img, image.Rect(x0, b.Min.Y, x0+width, b.Max.Y), c)
}

// Bars paints tall narrow bars across r: count bars of barWidth, spaced
// evenly, each spanning the full height of r.
func Bars(img *image.RGBA, r image.Rectangle, count, barWidth int, c color.RGBA) {
	if count < 1 {
		return
	}
	pitch := r.Dx() / count
	for i := 0; i < count; i++ {
		x0 := r.Min.X + i*pitch + (pitch-barWidth)/2
		FillRect(img, image.Rect(x0, r.Min.Y, x0+barWidth, r.Max.Y), c)
	}
}

// Checkerboard paints r as alternating cells of c and asphalt.
func Checkerboard(img *image.RGBA, r image.Rectangle, cell int, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y += cell {
		for x := r.Min.X; x < r.Max.X; x += cell {
			if ((x-r.Min.X)/cell+(y-r.Min.Y)/cell)%2 == 0 {
				FillRect(img, image.Rect(x, y, x+cell, y+cell).Intersect(r), c)
			}
		}
	}
}
