package drive

import (
	"fmt"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// Phase is a segment of the fixed track sequence. Phases only move forward;
// Finish is absorbing.
type Phase int

const (
	Start Phase = iota
	CentreWhite
	StopCrosswalk
	RightWhite
	CentreYellow
	LeftYellow
	RightWhiteAfter
	Finish
)

var phaseNames = [...]string{
	Start:           "START",
	CentreWhite:     "CENTRE_WHITE",
	StopCrosswalk:   "STOP_CROSSWALK",
	RightWhite:      "RIGHT_WHITE",
	CentreYellow:    "CENTRE_YELLOW",
	LeftYellow:      "LEFT_YELLOW",
	RightWhiteAfter: "RIGHT_WHITE_AFTER",
	Finish:          "FINISH",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Guidance returns the follow mode and paint channel the detectors should
// use while in phase p.
func (p Phase) Guidance() perception.Guidance {
	switch p {
	case RightWhite, RightWhiteAfter:
		return perception.Guidance{Mode: perception.Right, Channel: perception.White}
	case CentreYellow:
		return perception.Guidance{Mode: perception.Center, Channel: perception.Yellow}
	case LeftYellow:
		return perception.Guidance{Mode: perception.Left, Channel: perception.Yellow}
	default:
		return perception.Guidance{Mode: perception.Center, Channel: perception.White}
	}
}
