package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

// Source is the part of the telemetry store a report reads.
type Source interface {
	Run(id string) (telemetry.Run, error)
	Ticks(runID string) ([]telemetry.Tick, error)
	Transitions(runID string) ([]telemetry.Transition, error)
}

// WriteFiles renders run id into dir as <id>_controls.png, <id>_offset.png
// and <id>.html, returning the paths written.
func WriteFiles(src Source, id, dir string, o HTMLOptions) ([]string, error) {
	run, err := src.Run(id)
	if err != nil {
		return nil, err
	}
	ticks, err := src.Ticks(id)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}
	transitions, err := src.Transitions(id)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string

	controls, err := ControlPlot(ticks, transitions)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, id+"_controls.png")
	if err := SavePNG(controls, path); err != nil {
		return nil, err
	}
	written = append(written, path)

	offset, err := OffsetPlot(ticks, transitions)
	if err != nil {
		return nil, err
	}
	path = filepath.Join(dir, id+"_offset.png")
	if err := SavePNG(offset, path); err != nil {
		return nil, err
	}
	written = append(written, path)

	path = filepath.Join(dir, id+".html")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	if err := RenderHTML(bw, run, ticks, o); err != nil {
		f.Close()
		return nil, fmt.Errorf("render html: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	written = append(written, path)

	return written, nil
}
