package actuator

import (
	"sync"

	"github.com/banshee-data/lanepilot/internal/drive"
)

// Memory is an in-process Sink used in dev mode and tests. It keeps the
// last set points and can be made to fail.
type Memory struct {
	mu      sync.Mutex
	last    drive.Command
	writes  int
	failure error
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SetSteering(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.last.Steering = v
	m.writes++
	return nil
}

func (m *Memory) SetThrottle(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.last.Throttle = v
	m.writes++
	return nil
}

// Fail makes every following write return err. nil restores normal writes.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Last returns the most recently accepted command.
func (m *Memory) Last() drive.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Writes counts accepted set point writes across both channels.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
