package autodrive

import (
	"sync"

	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
)

// resultSlots is a small ring per detector keyed by frame id. A detector
// may start on the next round before the controller has read the current
// one; the ring keeps the older result readable until then.
const resultSlots = 4

type results struct {
	mu     sync.Mutex
	lanes  [resultSlots]lane.Observation
	flags  [resultSlots]objects.Flags
	guides [resultSlots]guide
}

type guide struct {
	id uint64
	g  perception.Guidance
}

// guidance returns the guidance of round id, calling read only for the
// first detector to ask.
func (r *results) guidance(id uint64, read func() perception.Guidance) perception.Guidance {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := &r.guides[id%resultSlots]
	if slot.id != id {
		*slot = guide{id: id, g: read()}
	}
	return slot.g
}

func (r *results) putLane(o lane.Observation) {
	r.mu.Lock()
	r.lanes[o.FrameID%resultSlots] = o
	r.mu.Unlock()
}

func (r *results) putFlags(f objects.Flags) {
	r.mu.Lock()
	r.flags[f.FrameID%resultSlots] = f
	r.mu.Unlock()
}

// get returns the results computed from frame id. A detector that did not
// finish that frame reports ok=false.
func (r *results) get(id uint64) (o lane.Observation, laneOK bool, f objects.Flags, flagsOK bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o = r.lanes[id%resultSlots]
	f = r.flags[id%resultSlots]
	return o, o.FrameID == id, f, f.FrameID == id
}
