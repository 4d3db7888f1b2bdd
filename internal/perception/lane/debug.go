package lane

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[lane] ", os.Stderr, nil, nil)

// SetLogWriters configures the three logging streams for the lane detector.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[lane] ", ops, diag, trace)
}

func diagf(format string, args ...interface{})  { logs.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
