package lane

import "github.com/banshee-data/lanepilot/internal/perception"

// Blob is a maximal horizontal run of one class on a scan row. End is
// inclusive.
type Blob struct {
	Start, End int
}

// Len returns the run length in pixels.
func (b Blob) Len() int { return b.End - b.Start + 1 }

// Centroid returns the run's centre column.
func (b Blob) Centroid() float64 { return float64(b.Start+b.End) / 2 }

// FindBlobs scans row y of m left to right and returns the runs of class cls
// that are at least minLen pixels long.
func FindBlobs(m *perception.Mask, y int, cls perception.Class, minLen int) []Blob {
	if y < 0 || y >= m.Height {
		return nil
	}
	var blobs []Blob
	start := -1
	for x := 0; x <= m.Width; x++ {
		in := x < m.Width && m.At(x, y) == cls
		switch {
		case in && start < 0:
			start = x
		case !in && start >= 0:
			if b := (Blob{Start: start, End: x - 1}); b.Len() >= minLen {
				blobs = append(blobs, b)
			}
			start = -1
		}
	}
	return blobs
}

// filterSide keeps the blobs that the follow mode trusts.
func filterSide(blobs []Blob, mode perception.FollowMode, centre float64) []Blob {
	if mode == perception.Center {
		return blobs
	}
	kept := blobs[:0:0]
	for _, b := range blobs {
		left := b.Centroid() < centre
		if (mode == perception.Left && left) || (mode == perception.Right && !left) {
			kept = append(kept, b)
		}
	}
	return kept
}
