package gocvvision

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[gocvvision] ", os.Stderr, nil, nil)

// SetLogWriters configures the three logging streams for the OpenCV
// toolkit. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[gocvvision] ", ops, diag, trace)
}

func opsf(format string, args ...interface{}) { logs.Opsf(format, args...) }
