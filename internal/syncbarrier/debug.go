package syncbarrier

import (
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

var logs = monitoring.NewStreams("[syncbarrier] ", os.Stderr, nil, nil)

// SetLogWriters configures the three logging streams for the barrier.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs = monitoring.NewStreams("[syncbarrier] ", ops, diag, trace)
}

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
