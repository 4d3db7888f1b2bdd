package objects

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[objects] ", os.Stderr, nil, nil)

// SetLogWriters configures the three logging streams for the object detector.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[objects] ", ops, diag, trace)
}

func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
