package telemetry

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/httputil"
	"github.com/banshee-data/lanepilot/internal/monitoring"
)

// AttachAdminRoutes mounts tailsql, a backup download, and JSON run
// listings under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("telemetry: tailsql disabled: %v", err)
	} else {
		tsql.SetDB("sqlite://"+filepath.Base(s.path), s.DB, &tailsql.DBOptions{
			Label: "Telemetry DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.Handle("runs", "Recent drive runs (JSON)", http.HandlerFunc(s.handleRuns))
	debug.HandleSilentFunc("run", s.handleRun)
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(s.handleBackup))
}

func (s *Store) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Runs(50)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRun serves ?id=<run> with its transitions and tick count.
func (s *Store) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing id")
		return
	}
	run, err := s.Run(id)
	if errors.Is(err, ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	} else if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	transitions, err := s.Transitions(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var ticks int
	if err := s.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run_id = ?`, id).Scan(&ticks); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, struct {
		Run         Run          `json:"run"`
		Ticks       int          `json:"ticks"`
		Transitions []Transition `json:"transitions"`
	}{run, ticks, transitions})
}

func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("lanepilot-backup-%d.db", time.Now().Unix()))
	if _, err := s.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("backup: write failed: %v", err)
	}
}
