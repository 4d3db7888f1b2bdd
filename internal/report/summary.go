// Package report renders stored drive runs as PNG plots and HTML charts.
package report

import (
	"math"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

// Summary condenses a run's ticks.
type Summary struct {
	Ticks         int            `json:"ticks"`
	PhaseTicks    map[string]int `json:"phase_ticks"`
	Outcomes      map[string]int `json:"outcomes"`
	MeanAbsOffset float64        `json:"mean_abs_offset"`
	MaxAbsOffset  int            `json:"max_abs_offset"`
	ManualTicks   int            `json:"manual_ticks"`
	FirstFrame    uint64         `json:"first_frame"`
	LastFrame     uint64         `json:"last_frame"`
	SkippedFrames uint64         `json:"skipped_frames"`
	PhaseSequence []string       `json:"phase_sequence"`
}

// Summarize counts ticks per phase and outcome and measures lane offsets.
// Ticks are expected in frame order.
func Summarize(ticks []telemetry.Tick) Summary {
	s := Summary{
		PhaseTicks: make(map[string]int),
		Outcomes:   make(map[string]int),
	}
	if len(ticks) == 0 {
		return s
	}

	s.Ticks = len(ticks)
	s.FirstFrame = ticks[0].FrameID
	s.LastFrame = ticks[len(ticks)-1].FrameID
	if span := s.LastFrame - s.FirstFrame + 1; span > uint64(len(ticks)) {
		s.SkippedFrames = span - uint64(len(ticks))
	}

	var sum float64
	for i, t := range ticks {
		s.PhaseTicks[t.Phase]++
		s.Outcomes[t.Outcome]++
		abs := t.LaneOffset
		if abs < 0 {
			abs = -abs
		}
		sum += float64(abs)
		if abs > s.MaxAbsOffset {
			s.MaxAbsOffset = abs
		}
		if t.Manual {
			s.ManualTicks++
		}
		if i == 0 || ticks[i-1].Phase != t.Phase {
			s.PhaseSequence = append(s.PhaseSequence, t.Phase)
		}
	}
	s.MeanAbsOffset = math.Round(sum/float64(len(ticks))*100) / 100
	return s
}

// phases returns the phase names of s in first-seen order.
func (s Summary) phases() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.PhaseSequence {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
