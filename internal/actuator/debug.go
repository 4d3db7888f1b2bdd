package actuator

import (
	"io"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[actuator] ", nil, nil, nil)

// SetLogWriters configures the actuator logging streams. Pass nil for any
// writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[actuator] ", ops, diag, trace)
}

func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
