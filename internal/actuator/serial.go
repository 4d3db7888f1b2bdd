package actuator

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/lanepilot/internal/serialmux"
)

// Line channels understood by the vehicle board.
const (
	ChannelSteer    = serialmux.ChannelSteer
	ChannelThrottle = serialmux.ChannelThrottle
)

// Commander is the part of a serial mux the actuator needs.
type Commander interface {
	SendCommand(string) error
}

// Serial writes set points to the vehicle board as text lines, one per
// channel, e.g. "STEER -0.150".
type Serial struct {
	mux Commander

	mu       sync.Mutex
	steering float64
	throttle float64
}

// NewSerial returns a Sink that writes through mux.
func NewSerial(mux Commander) *Serial {
	return &Serial{mux: mux}
}

func (s *Serial) SetSteering(v float64) error {
	return s.send(ChannelSteer, v, &s.steering)
}

func (s *Serial) SetThrottle(v float64) error {
	return s.send(ChannelThrottle, v, &s.throttle)
}

func (s *Serial) send(channel string, v float64, last *float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s set point %v is not finite", channel, v)
	}
	v = math.Max(-1, math.Min(1, v))

	s.mu.Lock()
	defer s.mu.Unlock()
	line := serialmux.FormatSetPoint(channel, v)
	if err := s.mux.SendCommand(line); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	*last = v
	tracef("%s", line)
	return nil
}

// Last returns the most recent set points the board accepted.
func (s *Serial) Last() (steering, throttle float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steering, s.throttle
}
