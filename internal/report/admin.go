package report

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

// AttachAdminRoutes serves /debug/run-chart?id=<run> as an HTML report.
// Without an id the latest run is shown.
func AttachAdminRoutes(mux *http.ServeMux, store *telemetry.Store) {
	debug := tsweb.Debugger(mux)
	debug.Handle("run-chart", "Charts for the latest drive run", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		var (
			run telemetry.Run
			err error
		)
		if id == "" {
			run, err = store.LatestRun()
		} else {
			run, err = store.Run(id)
		}
		if errors.Is(err, telemetry.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ticks, err := store.Ticks(run.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var buf bytes.Buffer
		if err := RenderHTML(&buf, run, ticks, HTMLOptions{}); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))
}
