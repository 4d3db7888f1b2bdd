// Package drive holds the phase state machine and the PID steering and
// throttle law.
package drive

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Command is one actuator set-point pair.
type Command struct {
	Steering float64 `json:"steering"`
	Throttle float64 `json:"throttle"`
}

// Observation is one synchronised perception result. Absent object output is
// expressed as zero values: no flags. Absent lane output leaves LaneValid
// false; the offset is then 0 and YellowCount carries no information.
type Observation struct {
	FrameID     uint64
	Stopline    bool
	Crosswalk   bool
	Startline   bool
	LaneValid   bool
	LaneOffset  int
	YellowCount int
}

// Transition records a phase change.
type Transition struct {
	From, To Phase
	At       time.Time
	FrameID  uint64
	Manual   bool // reset caused by leaving manual mode
}

// Config parametrises the controller.
type Config struct {
	TargetLaneGap int

	Kp, Ki, Kd    float64
	SteeringBias  float64
	LateralBias   float64
	SteeringLimit float64
	IntegralLimit float64 // 0 disables the clamp

	ThrottleKp     float64
	MaxThrottle    float64
	BaseThrottle   float64
	LineThrottle   float64
	YellowThrottle float64

	CrosswalkWait        time.Duration
	StoplineIgnore       time.Duration
	YellowExitThreshold  int
	ResetIntegralOnPhase bool
}

// State is a snapshot of the controller.
type State struct {
	Phase            Phase     `json:"phase"`
	PhaseEnteredAt   time.Time `json:"phase_entered_at"`
	Integral         float64   `json:"integral"`
	PrevError        float64   `json:"prev_error"`
	CrosswalkSeen    bool      `json:"crosswalk_seen"`
	StoplineReleased bool      `json:"stopline_released"`
	Last             Command   `json:"last"`
	Manual           bool      `json:"manual"`
}

// Controller is the drive controller. All methods are safe for concurrent
// use; Update is expected to be called from a single control loop.
type Controller struct {
	cfg   Config
	clock timeutil.Clock

	mu               sync.Mutex
	phase            Phase
	enteredAt        time.Time
	integral         float64
	prevError        float64
	hasPrev          bool
	crosswalkSeen    bool
	stoplineReleased bool
	last             Command
	manual           bool
	onTransition     func(Transition)
}

// NewController creates a controller in the Start phase. A nil clock uses
// the real clock.
func NewController(cfg Config, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{cfg: cfg, clock: clock, phase: Start, enteredAt: clock.Now()}
}

// OnTransition registers a hook called after every phase change, outside
// the controller lock.
func (c *Controller) OnTransition(f func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = f
}

// Update advances the state machine with one observation and returns the
// command to send. In manual mode the last manual command is returned and
// the machine does not move.
func (c *Controller) Update(obs Observation) Command {
	c.mu.Lock()
	if c.manual {
		cmd := c.last
		c.mu.Unlock()
		return cmd
	}

	tr, changed := c.advanceLocked(obs)
	cmd := c.commandLocked(obs)
	c.last = cmd
	hook := c.onTransition
	phase := c.phase
	c.mu.Unlock()

	tracef("frame=%d phase=%s offset=%d yellow=%d flags=%v/%v/%v -> steer=%.3f throttle=%.3f",
		obs.FrameID, phase, obs.LaneOffset, obs.YellowCount,
		obs.Stopline, obs.Crosswalk, obs.Startline, cmd.Steering, cmd.Throttle)
	if changed && hook != nil {
		hook(tr)
	}
	return cmd
}

// advanceLocked applies at most one transition for obs.
func (c *Controller) advanceLocked(obs Observation) (Transition, bool) {
	now := c.clock.Now()
	next := c.phase

	switch c.phase {
	case Start:
		next = CentreWhite

	case CentreWhite:
		if obs.Crosswalk && !c.crosswalkSeen {
			c.crosswalkSeen = true
			next = StopCrosswalk
		}

	case StopCrosswalk:
		if now.Sub(c.enteredAt) >= c.cfg.CrosswalkWait {
			next = RightWhite
		}

	case RightWhite, CentreYellow:
		armed := c.stoplineReleased && now.Sub(c.enteredAt) >= c.cfg.StoplineIgnore
		if !obs.Stopline {
			c.stoplineReleased = true
		}
		if obs.Stopline && armed {
			next = c.phase + 1
		}

	case LeftYellow:
		// A missing lane result is no event, not an empty yellow count.
		if obs.LaneValid && obs.YellowCount < c.cfg.YellowExitThreshold {
			next = RightWhiteAfter
		}

	case RightWhiteAfter:
		if obs.Startline {
			next = Finish
		}
	}

	if next == c.phase {
		return Transition{}, false
	}
	return c.enterLocked(next, now, obs.FrameID, false), true
}

func (c *Controller) enterLocked(next Phase, now time.Time, frameID uint64, manual bool) Transition {
	tr := Transition{From: c.phase, To: next, At: now, FrameID: frameID, Manual: manual}
	c.phase = next
	c.enteredAt = now
	c.stoplineReleased = false
	if c.cfg.ResetIntegralOnPhase {
		c.resetPIDLocked()
	}
	diagf("phase %s -> %s at frame %d", tr.From, tr.To, frameID)
	return tr
}

func (c *Controller) resetPIDLocked() {
	c.integral = 0
	c.prevError = 0
	c.hasPrev = false
}

func (c *Controller) commandLocked(obs Observation) Command {
	if c.phase == Finish {
		return Command{}
	}
	e := float64(obs.LaneOffset - c.cfg.TargetLaneGap)
	steer := c.steeringLocked(e, c.phase.Guidance().Mode)
	if c.phase == StopCrosswalk {
		return Command{Steering: steer}
	}
	return Command{Steering: steer, Throttle: c.throttle(e, c.baseThrottle())}
}

func (c *Controller) steeringLocked(e float64, mode perception.FollowMode) float64 {
	c.integral += e
	if lim := c.cfg.IntegralLimit; lim > 0 {
		c.integral = clamp(c.integral, -lim, lim)
	}
	var deriv float64
	if c.hasPrev {
		deriv = e - c.prevError
	}
	c.prevError = e
	c.hasPrev = true

	out := c.cfg.Kp*e + c.cfg.Ki*c.integral + c.cfg.Kd*deriv + c.cfg.SteeringBias
	switch mode {
	case perception.Right:
		out += c.cfg.LateralBias
	case perception.Left:
		out -= c.cfg.LateralBias
	}
	return clamp(out, -c.cfg.SteeringLimit, c.cfg.SteeringLimit)
}

func (c *Controller) throttle(e, base float64) float64 {
	return clamp(base+c.cfg.ThrottleKp*math.Abs(e), -c.cfg.MaxThrottle, c.cfg.MaxThrottle)
}

func (c *Controller) baseThrottle() float64 {
	switch c.phase {
	case RightWhite, RightWhiteAfter:
		return c.cfg.LineThrottle
	case CentreYellow, LeftYellow:
		return c.cfg.YellowThrottle
	default:
		return c.cfg.BaseThrottle
	}
}

// Guidance returns the follow guidance for the next detector pass.
func (c *Controller) Guidance() perception.Guidance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.Guidance()
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:            c.phase,
		PhaseEnteredAt:   c.enteredAt,
		Integral:         c.integral,
		PrevError:        c.prevError,
		CrosswalkSeen:    c.crosswalkSeen,
		StoplineReleased: c.stoplineReleased,
		Last:             c.last,
		Manual:           c.manual,
	}
}

// SetManual switches operator override on or off. Leaving manual mode
// restarts the sequence from Start with every latch and the PID state
// cleared.
func (c *Controller) SetManual(on bool) {
	c.mu.Lock()
	if on == c.manual {
		c.mu.Unlock()
		return
	}
	c.manual = on
	var tr Transition
	reset := false
	if on {
		diagf("manual override engaged in phase %s", c.phase)
	} else {
		c.crosswalkSeen = false
		c.resetPIDLocked()
		c.last = Command{}
		tr = c.enterLocked(Start, c.clock.Now(), 0, true)
		reset = true
	}
	hook := c.onTransition
	c.mu.Unlock()

	if reset && hook != nil {
		hook(tr)
	}
}

// ManualCommand engages manual mode if needed and sets the command returned
// by Update. Values are clamped to the configured limits.
func (c *Controller) ManualCommand(steering, throttle float64) Command {
	c.SetManual(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = Command{
		Steering: clamp(steering, -c.cfg.SteeringLimit, c.cfg.SteeringLimit),
		Throttle: clamp(throttle, -c.cfg.MaxThrottle, c.cfg.MaxThrottle),
	}
	return c.last
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
