package drive

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[drive] ", os.Stderr, os.Stderr, nil)

// SetLogWriters configures the three logging streams for the controller.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[drive] ", ops, diag, trace)
}

func diagf(format string, args ...interface{})  { logs.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
