package serialmux

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/httputil"
)

// AttachAdminRoutes serves the board link under /debug/:
//
//	board       traffic counters (JSON)
//	board-send  POST channel=STEER|THROTTLE&value=<-1..1>, one set point
//	board-tail  board lines as server-sent events
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("board", "Vehicle board link counters (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, m.Stats())
	}))
	debug.HandleSilentFunc("board-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		line, err := setPointLine(r.FormValue("channel"), r.FormValue("value"))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := m.SendCommand(line); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": line})
	})
	debug.HandleSilentFunc("board-tail", m.serveTail)
}

// setPointLine validates a set point from the admin form. Only the channels
// the actuator writes are accepted, within the unit range.
func setPointLine(channel, value string) (string, error) {
	channel = strings.ToUpper(strings.TrimSpace(channel))
	if channel != ChannelSteer && channel != ChannelThrottle {
		return "", fmt.Errorf("channel must be %s or %s", ChannelSteer, ChannelThrottle)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < -1 || v > 1 {
		return "", fmt.Errorf("value must be a number in [-1, 1], got %q", value)
	}
	return FormatSetPoint(channel, v), nil
}

func (m *Mux) serveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyLine(line), line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
