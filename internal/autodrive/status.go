package autodrive

import (
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/httputil"
	"github.com/banshee-data/lanepilot/internal/syncbarrier"
	"github.com/banshee-data/lanepilot/internal/version"
)

// Status is a point-in-time view of a pipeline.
type Status struct {
	Version   string `json:"version"`
	Mode      Mode   `json:"mode"`
	Running   bool   `json:"running"`
	Phase     string `json:"phase,omitempty"`
	Guidance  string `json:"guidance,omitempty"`
	Manual    bool   `json:"manual"`
	LastRound uint64 `json:"last_round"`

	Ticks          uint64 `json:"ticks"`
	StaleTicks     uint64 `json:"stale_ticks"`
	EmptyFrames    uint64 `json:"empty_frames"`
	ActuatorErrors uint64 `json:"actuator_errors"`
	RecordErrors   uint64 `json:"record_errors"`
	TelemetryErrs  uint64 `json:"telemetry_errors"`
	Panics         uint64 `json:"panics"`
	LastError      string `json:"last_error,omitempty"`

	LastCommand drive.Command     `json:"last_command"`
	Barrier     syncbarrier.Stats `json:"barrier"`
	Hub         frames.HubStats   `json:"hub"`
}

// Status snapshots the pipeline counters.
func (p *Pipeline) Status() Status {
	s := Status{
		Version:        version.String(),
		Mode:           p.opts.Mode,
		Running:        p.running.Load(),
		LastRound:      p.barrier.LastRound(),
		Ticks:          p.ticks.Load(),
		StaleTicks:     p.staleTicks.Load(),
		EmptyFrames:    p.emptyFrames.Load(),
		ActuatorErrors: p.actuatorErrors.Load(),
		RecordErrors:   p.recordErrors.Load(),
		TelemetryErrs:  p.telemetryErrs.Load(),
		Panics:         p.panics.Load(),
		Barrier:        p.barrier.Stats(),
		Hub:            p.hub.Stats(),
	}
	p.mu.Lock()
	s.LastCommand = p.lastCmd
	s.LastError = p.lastErr
	p.mu.Unlock()

	if c := p.opts.Controller; c != nil {
		state := c.Snapshot()
		s.Phase = state.Phase.String()
		s.Guidance = state.Phase.Guidance().String()
		s.Manual = state.Manual
	}
	return s
}

// AttachAdminRoutes serves /debug/drive with the pipeline status,
// /debug/drive-operator, which accepts a board line (MANUAL s t or AUTO) as
// if it had arrived over serial and answers with the updated status, and
// /debug/frame with the latest control tick drawn by the overlay as a PNG.
func (p *Pipeline) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("drive", "Drive pipeline status (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, p.Status())
	}))

	debug.Handle("frame", "Latest control frame with detections (PNG)", http.HandlerFunc(p.serveFrame))

	debug.HandleSilentFunc("drive-operator", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		if p.opts.Controller == nil {
			httputil.Conflict(w, "pipeline is not driving")
			return
		}
		line := strings.TrimSpace(r.FormValue("line"))
		if line == "" {
			httputil.BadRequest(w, "missing line")
			return
		}
		if err := applyOperatorLine(p.opts.Controller, line); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, p.Status())
	})
}

func (p *Pipeline) serveFrame(w http.ResponseWriter, r *http.Request) {
	if p.opts.Overlay == nil {
		httputil.NotFound(w, "no overlay configured")
		return
	}
	p.mu.Lock()
	v := p.lastView
	p.mu.Unlock()
	if v.frame == nil {
		httputil.NotFound(w, "no control tick yet")
		return
	}

	caption := fmt.Sprintf("frame %d %s", v.frame.ID, v.phase)
	png, err := p.opts.Overlay.Render(v.frame, v.rows, v.marks, caption)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
