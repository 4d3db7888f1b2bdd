package autodrive

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[autodrive] ", os.Stderr, os.Stderr, nil)

// SetLogWriters configures the pipeline logging streams. Pass nil for any
// writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[autodrive] ", ops, diag, trace)
}

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func diagf(format string, args ...interface{})  { logs.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
