package perception

import "fmt"

// FollowMode selects which lane edges the detectors trust.
type FollowMode int

const (
	Center FollowMode = iota
	Left
	Right
)

func (m FollowMode) String() string {
	switch m {
	case Center:
		return "center"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("FollowMode(%d)", int(m))
	}
}

// Channel selects which paint colour the detectors follow.
type Channel int

const (
	White Channel = iota
	Yellow
)

func (c Channel) String() string {
	switch c {
	case White:
		return "white"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Class returns the mask class that this channel follows.
func (c Channel) Class() Class {
	if c == Yellow {
		return ClassYellow
	}
	return ClassWhite
}

// Guidance is produced by the controller after each tick and passed by value
// into the next detector pass.
type Guidance struct {
	Mode    FollowMode
	Channel Channel
}

func (g Guidance) String() string {
	return g.Mode.String() + "/" + g.Channel.String()
}
