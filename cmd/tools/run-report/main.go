// Command run-report renders the charts for a recorded drive run.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/banshee-data/lanepilot/internal/report"
	"github.com/banshee-data/lanepilot/internal/telemetry"
)

func main() {
	dbPath := flag.String("db", "lanepilot.db", "path to sqlite DB file")
	runID := flag.String("run", "", "run id (defaults to the latest run)")
	out := flag.String("out", "reports", "output directory")
	assets := flag.String("assets", "", "echarts assets host (empty uses the CDN)")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("DB path %s not accessible: %v", *dbPath, err)
	}

	store, err := telemetry.Open(*dbPath)
	if err != nil {
		log.Fatalf("open telemetry db: %v", err)
	}
	defer store.Close()

	id, err := resolveRun(store, *runID)
	if err != nil {
		log.Fatalf("find run: %v", err)
	}

	files, err := report.WriteFiles(store, id, *out, report.HTMLOptions{AssetsHost: *assets})
	if err != nil {
		log.Fatalf("render run %s: %v", id, err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}

type runFinder interface {
	Run(id string) (telemetry.Run, error)
	LatestRun() (telemetry.Run, error)
}

func resolveRun(s runFinder, id string) (string, error) {
	if id != "" {
		run, err := s.Run(id)
		return run.ID, err
	}
	run, err := s.LatestRun()
	return run.ID, err
}
