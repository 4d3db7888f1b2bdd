package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

// Set-point channels understood by the vehicle board.
const (
	ChannelSteer    = "STEER"
	ChannelThrottle = "THROTTLE"
)

// Line types sent by the vehicle board.
const (
	EventTypeManual  = "manual"  // MANUAL <steering> <throttle>
	EventTypeAuto    = "auto"    // AUTO
	EventTypeAck     = "ack"     // OK ...
	EventTypeFault   = "fault"   // ERR ...
	EventTypeUnknown = "unknown"
)

// ClassifyLine returns the event type token of a line from the board.
func ClassifyLine(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return EventTypeUnknown
	}
	switch strings.ToUpper(fields[0]) {
	case "MANUAL":
		return EventTypeManual
	case "AUTO":
		return EventTypeAuto
	case "OK":
		return EventTypeAck
	case "ERR":
		return EventTypeFault
	default:
		return EventTypeUnknown
	}
}

// ParseManual extracts the steering and throttle values of a MANUAL line.
func ParseManual(line string) (steering, throttle float64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "MANUAL") {
		return 0, 0, fmt.Errorf("malformed manual line %q: want MANUAL <steering> <throttle>", line)
	}
	if steering, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, fmt.Errorf("manual steering: %w", err)
	}
	if throttle, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return 0, 0, fmt.Errorf("manual throttle: %w", err)
	}
	return steering, throttle, nil
}

// FormatSetPoint renders an actuator command line, e.g. "STEER -0.150".
func FormatSetPoint(channel string, value float64) string {
	return fmt.Sprintf("%s %.3f", channel, value)
}
