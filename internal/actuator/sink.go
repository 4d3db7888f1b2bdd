// Package actuator delivers drive commands to the vehicle's steering and
// throttle channels.
package actuator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/lanepilot/internal/drive"
)

// Sink accepts steering and throttle set points in [-1, 1].
type Sink interface {
	SetSteering(v float64) error
	SetThrottle(v float64) error
}

// Apply sends both halves of cmd. Throttle is still attempted when steering
// fails; the errors are joined.
func Apply(s Sink, cmd drive.Command) error {
	var errs []error
	if err := s.SetSteering(cmd.Steering); err != nil {
		errs = append(errs, fmt.Errorf("steering: %w", err))
	}
	if err := s.SetThrottle(cmd.Throttle); err != nil {
		errs = append(errs, fmt.Errorf("throttle: %w", err))
	}
	return errors.Join(errs...)
}

// Zero centres the steering and cuts the throttle.
func Zero(s Sink) error {
	return Apply(s, drive.Command{})
}

// Policy decides what the pipeline does after a failed actuator write.
type Policy string

const (
	// PolicyContinue logs the failure and keeps driving.
	PolicyContinue Policy = "continue"
	// PolicyStop zeroes the actuator and ends the run.
	PolicyStop Policy = "stop"
)

// ParsePolicy accepts "continue" or "stop" in any case. An empty string is
// PolicyContinue.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyContinue:
		return PolicyContinue, nil
	case PolicyStop:
		return PolicyStop, nil
	default:
		return "", fmt.Errorf("unknown actuator failure policy %q", s)
	}
}
