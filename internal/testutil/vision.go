package testutil

import (
	"image"
	"math"
	"sort"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// Vision is a pure-Go stand-in for the OpenCV region toolkit used by the
// object detector. It labels 8-connected components, retrieves external
// outlines and runs a Shi-Tomasi corner detector, all on small test masks.
type Vision struct{}

// label assigns 8-connected labels to the pixels of r that satisfy keep and
// returns the packed label plane with one component per label.
func label(m *perception.Mask, r image.Rectangle, keep func(perception.Class) bool) ([]int32, []perception.Component) {
	w, h := r.Dx(), r.Dy()
	labels := make([]int32, w*h)
	var comps []perception.Component
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y*w+x] != 0 || !keep(m.At(r.Min.X+x, r.Min.Y+y)) {
				continue
			}
			id := int32(len(comps) + 1)
			c := perception.Component{Box: image.Rect(x, y, x+1, y+1)}
			labels[y*w+x] = id
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				c.Area++
				c.Box = c.Box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h || labels[ny*w+nx] != 0 {
							continue
						}
						if keep(m.At(r.Min.X+nx, r.Min.Y+ny)) {
							labels[ny*w+nx] = id
							stack = append(stack, image.Pt(nx, ny))
						}
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return labels, comps
}

// Components labels the 8-connected regions of class cls inside r.
func (Vision) Components(m *perception.Mask, r image.Rectangle, cls perception.Class) []perception.Component {
	r = r.Intersect(m.Bounds())
	if r.Empty() {
		return nil
	}
	labels, comps := label(m, r, func(c perception.Class) bool { return c == cls })
	transitions := perception.RowTransitions(labels, r.Dx(), r.Dy(), len(comps))
	for i := range comps {
		comps[i].MaxRowTransitions = transitions[i+1]
		comps[i].Box = comps[i].Box.Add(r.Min)
	}
	return comps
}

// ExternalBoxes returns the bounding boxes of the painted regions of r that
// are not enclosed by a hole of another region. Background is 4-connected
// and everything outside r counts as background, so a region is external
// exactly when it touches the border of r or borders background that
// reaches it.
func (Vision) ExternalBoxes(m *perception.Mask, r image.Rectangle) []image.Rectangle {
	r = r.Intersect(m.Bounds())
	if r.Empty() {
		return nil
	}
	w, h := r.Dx(), r.Dy()
	labels, comps := label(m, r, perception.Painted)

	outside := make([]bool, w*h)
	var queue []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x == 0 || y == 0 || x == w-1 || y == h-1) && labels[y*w+x] == 0 && !outside[y*w+x] {
				outside[y*w+x] = true
				queue = append(queue, y*w+x)
			}
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w
		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*w + nx
			if labels[j] == 0 && !outside[j] {
				outside[j] = true
				queue = append(queue, j)
			}
		}
	}

	external := make([]bool, len(comps)+1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := labels[y*w+x]
			if l == 0 || external[l] {
				continue
			}
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				external[l] = true
				continue
			}
			for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				if outside[(y+d.Y)*w+x+d.X] {
					external[l] = true
					break
				}
			}
		}
	}

	var boxes []image.Rectangle
	for i, c := range comps {
		if external[i+1] {
			boxes = append(boxes, c.Box.Add(r.Min))
		}
	}
	return boxes
}

type corner struct {
	pt       image.Point
	strength float64
}

// Corners runs a Shi-Tomasi detector over the grey coding of r: the response
// is the smaller eigenvalue of the 3x3 structure tensor of Sobel gradients,
// followed by a quality cut, 3x3 non-maximum suppression and a greedy
// minimum-distance selection, strongest first.
func (Vision) Corners(m *perception.Mask, r image.Rectangle, p perception.CornerParams) []image.Point {
	r = r.Intersect(m.Bounds())
	if r.Empty() || p.MaxCorners <= 0 {
		return nil
	}
	w, h := r.Dx(), r.Dy()

	grey := func(x, y int) float64 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return float64(m.Grey(r.Min.X+x, r.Min.Y+y))
	}

	ix := make([]float64, w*h)
	iy := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ix[y*w+x] = (grey(x+1, y-1) + 2*grey(x+1, y) + grey(x+1, y+1)) -
				(grey(x-1, y-1) + 2*grey(x-1, y) + grey(x-1, y+1))
			iy[y*w+x] = (grey(x-1, y+1) + 2*grey(x, y+1) + grey(x+1, y+1)) -
				(grey(x-1, y-1) + 2*grey(x, y-1) + grey(x+1, y-1))
		}
	}

	resp := make([]float64, w*h)
	peak := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := clamp(y+dy, 0, h-1)*w + clamp(x+dx, 0, w-1)
					sxx += ix[i] * ix[i]
					syy += iy[i] * iy[i]
					sxy += ix[i] * iy[i]
				}
			}
			d := sxx - syy
			lambda := ((sxx + syy) - math.Sqrt(d*d+4*sxy*sxy)) / 2
			resp[y*w+x] = lambda
			peak = math.Max(peak, lambda)
		}
	}
	// A flat region only produces rounding noise.
	if peak <= 1e-9 {
		return nil
	}
	threshold := math.Max(p.QualityLevel*peak, 1e-9)

	var candidates []corner
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if v := resp[y*w+x]; v >= threshold && localMax(resp, w, h, x, y) {
				candidates = append(candidates, corner{pt: image.Pt(x, y), strength: v})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].strength > candidates[j].strength
	})

	minDist2 := p.MinDistance * p.MinDistance
	var accepted []image.Point
	for _, c := range candidates {
		ok := true
		for _, a := range accepted {
			dx, dy := float64(c.pt.X-a.X), float64(c.pt.Y-a.Y)
			if dx*dx+dy*dy < minDist2 {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		accepted = append(accepted, c.pt)
		if len(accepted) >= p.MaxCorners {
			break
		}
	}
	for i := range accepted {
		accepted[i] = accepted[i].Add(r.Min)
	}
	return accepted
}

func localMax(resp []float64, w, h, x, y int) bool {
	v := resp[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			if resp[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
