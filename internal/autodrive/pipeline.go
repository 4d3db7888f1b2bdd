// Package autodrive runs the capture, perception and control loops that
// drive the vehicle.
package autodrive

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
	"github.com/banshee-data/lanepilot/internal/recorder"
	"github.com/banshee-data/lanepilot/internal/syncbarrier"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// ErrActuatorStopped ends a run whose actuator failed under PolicyStop.
var ErrActuatorStopped = errors.New("autodrive: actuator failure, run stopped")

// errorBackoff paces a loop whose iteration failed.
const errorBackoff = 10 * time.Millisecond

// Telemetry receives one tick per control iteration and every phase change.
type Telemetry interface {
	RecordTick(telemetry.Tick) error
	RecordTransition(telemetry.Transition) error
}

// LaneDetector turns a frame into a lane observation for the given guidance.
type LaneDetector interface {
	Process(*frames.Frame, perception.Guidance) lane.Observation
}

// ObjectDetector turns a frame into track-marking flags.
type ObjectDetector interface {
	Process(*frames.Frame, perception.Guidance) objects.Flags
}

// Renderer draws a frame with its lane edges and marks as an image.
type Renderer interface {
	Render(f *frames.Frame, rows []lane.RowEdges, marks objects.Marks, text string) ([]byte, error)
}

// Subscriber is the part of a serial mux the operator override reads.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// Options wires a pipeline. Camera is always required; drive modes need the
// detectors, the controller and an actuator; record modes need a recorder.
type Options struct {
	Mode       Mode
	Camera     camera.Source
	Lane       LaneDetector
	Objects    ObjectDetector
	Controller *drive.Controller
	Actuator   actuator.Sink
	Policy     actuator.Policy
	Recorder   recorder.Writer
	Telemetry  Telemetry
	Operator   Subscriber
	Overlay    Renderer // optional, serves /debug/frame

	BarrierTimeout  time.Duration
	CaptureInterval time.Duration
	Clock           timeutil.Clock
}

// Pipeline owns the frame hub and the barrier shared by the loops.
type Pipeline struct {
	opts    Options
	clock   timeutil.Clock
	hub     *frames.Hub
	barrier *syncbarrier.Barrier
	results results

	running atomic.Bool
	cancel  context.CancelCauseFunc

	ticks          atomic.Uint64
	staleTicks     atomic.Uint64
	emptyFrames    atomic.Uint64
	actuatorErrors atomic.Uint64
	recordErrors   atomic.Uint64
	telemetryErrs  atomic.Uint64
	panics         atomic.Uint64

	mu       sync.Mutex
	lastCmd  drive.Command
	lastErr  string
	lastView view
}

// view is what the control loop acted on in its latest tick.
type view struct {
	frame *frames.Frame
	rows  []lane.RowEdges
	marks objects.Marks
	phase string
}

// New validates opts and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Camera == nil {
		return nil, errors.New("autodrive: camera source required")
	}
	if opts.Mode.Drives() {
		if opts.Lane == nil || opts.Objects == nil || opts.Controller == nil {
			return nil, errors.New("autodrive: drive mode needs lane and object detectors and a controller")
		}
		if opts.Actuator == nil {
			return nil, errors.New("autodrive: drive mode needs an actuator")
		}
	}
	if opts.Mode.Records() && opts.Recorder == nil {
		return nil, errors.New("autodrive: record mode needs a recorder")
	}
	if opts.Policy == "" {
		opts.Policy = actuator.PolicyContinue
	}
	if opts.BarrierTimeout <= 0 {
		opts.BarrierTimeout = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	return &Pipeline{
		opts:    opts,
		clock:   opts.Clock,
		hub:     frames.NewHub(),
		barrier: syncbarrier.New(3, opts.BarrierTimeout, opts.Clock),
	}, nil
}

// Hub exposes the frame hub, mainly for tests and status pages.
func (p *Pipeline) Hub() *frames.Hub { return p.hub }

// Run opens the camera and runs the loops for the configured mode until ctx
// is cancelled. Each loop finishes its current iteration, then the actuator
// is zeroed and every device closed. Run returns nil on a normal shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("autodrive: pipeline already running")
	}
	defer p.running.Store(false)

	if err := p.opts.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	p.cancel = cancel
	defer cancel(nil)

	if p.opts.Mode.Drives() {
		p.opts.Controller.OnTransition(p.recordTransition)
	}

	var wg sync.WaitGroup
	start := func(name string, body func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, name, body)
		}()
	}

	start("camera", p.captureOnce)

	first, err := p.hub.WaitFirst(ctx)
	if err == nil {
		diagf("first frame %d (%dx%d), mode %s", first.ID, first.Width(), first.Height(), p.opts.Mode)

		if p.opts.Mode.Drives() {
			start("lane", p.laneOnce)
			start("objects", p.objectsOnce)
			start("control", p.controlOnce)
			if p.opts.Operator != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p.operatorLoop(ctx)
				}()
			}
		}
		if p.opts.Mode.Records() {
			var last uint64
			start("recorder", func(ctx context.Context) error { return p.recordOnce(ctx, &last) })
		}
	}

	<-ctx.Done()
	wg.Wait()
	return p.shutdown(context.Cause(ctx))
}

func (p *Pipeline) shutdown(cause error) error {
	var errs []error
	if p.opts.Mode.Drives() {
		if err := actuator.Zero(p.opts.Actuator); err != nil {
			errs = append(errs, fmt.Errorf("zero actuator: %w", err))
		}
		diagf("actuator zeroed")
	}
	p.hub.Close()
	if err := p.opts.Camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	if p.opts.Mode.Records() {
		if err := p.opts.Recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recorder: %w", err))
		}
	}
	for _, err := range errs {
		opsf("shutdown: %v", err)
	}

	if errors.Is(cause, ErrActuatorStopped) {
		return cause
	}
	return errors.Join(errs...)
}

// loop runs body until ctx is done. Errors and panics are logged and the
// loop carries on; neither crosses into another goroutine.
func (p *Pipeline) loop(ctx context.Context, name string, body func(context.Context) error) {
	diagf("%s loop started", name)
	defer diagf("%s loop stopped", name)
	for ctx.Err() == nil {
		err := p.safely(name, func() error { return body(ctx) })
		if err == nil || ctx.Err() != nil {
			continue
		}
		if errors.Is(err, frames.ErrClosed) {
			return
		}
		p.setLastError(name, err)
		opsf("%s: %v", name, err)
		p.sleep(ctx, errorBackoff)
	}
}

func (p *Pipeline) safely(name string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = fmt.Errorf("panic: %v", r)
			opsf("%s loop panic: %v\n%s", name, r, debug.Stack())
		}
	}()
	return f()
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := p.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C():
	}
}

func (p *Pipeline) captureOnce(ctx context.Context) error {
	began := p.clock.Now()
	img, err := p.opts.Camera.Read()
	switch {
	case errors.Is(err, camera.ErrEmptyFrame):
		p.emptyFrames.Add(1)
		opsf("camera: empty frame skipped")
	case err != nil:
		return fmt.Errorf("read frame: %w", err)
	default:
		p.hub.Publish(img, p.clock.Now())
	}
	if p.opts.CaptureInterval > 0 {
		p.sleep(ctx, p.opts.CaptureInterval-p.clock.Since(began))
	}
	return nil
}

// pin waits for a frame newer than the last resolved round and returns the
// frame of the round it joins.
func (p *Pipeline) pin(ctx context.Context) (*frames.Frame, error) {
	f, err := p.hub.Next(ctx, p.barrier.LastRound())
	if err != nil {
		return nil, err
	}
	return p.barrier.Open(f), nil
}

func (p *Pipeline) laneOnce(ctx context.Context) error {
	f, err := p.pin(ctx)
	if err != nil {
		return err
	}
	p.results.putLane(p.opts.Lane.Process(f, p.guidance(f.ID)))
	_, err = p.barrier.Arrive(ctx, f.ID)
	return err
}

func (p *Pipeline) objectsOnce(ctx context.Context) error {
	f, err := p.pin(ctx)
	if err != nil {
		return err
	}
	p.results.putFlags(p.opts.Objects.Process(f, p.guidance(f.ID)))
	_, err = p.barrier.Arrive(ctx, f.ID)
	return err
}

// guidance is read once per round so both detectors of a round follow the
// same phase.
func (p *Pipeline) guidance(id uint64) perception.Guidance {
	return p.results.guidance(id, p.opts.Controller.Guidance)
}

func (p *Pipeline) controlOnce(ctx context.Context) error {
	f, err := p.pin(ctx)
	if err != nil {
		return err
	}
	outcome, err := p.barrier.Arrive(ctx, f.ID)
	if err != nil {
		return err
	}
	if outcome == syncbarrier.Stale {
		p.staleTicks.Add(1)
		tracef("control skipped stale round %d", f.ID)
		return nil
	}

	laneObs, laneOK, flags, flagsOK := p.results.get(f.ID)
	obs := drive.Observation{FrameID: f.ID}
	if laneOK {
		obs.LaneValid = true
		obs.LaneOffset = laneObs.Offset
		obs.YellowCount = laneObs.YellowCount
	}
	if flagsOK {
		obs.Stopline = flags.Stopline
		obs.Crosswalk = flags.Crosswalk
		obs.Startline = flags.Startline
	}

	cmd := p.opts.Controller.Update(obs)
	p.ticks.Add(1)
	state := p.opts.Controller.Snapshot()
	p.mu.Lock()
	p.lastCmd = cmd
	p.lastView = view{frame: f, rows: laneObs.Rows, marks: flags.Marks, phase: state.Phase.String()}
	p.mu.Unlock()

	if err := actuator.Apply(p.opts.Actuator, cmd); err != nil {
		p.actuatorErrors.Add(1)
		if p.opts.Policy == actuator.PolicyStop {
			opsf("actuator: %v; stopping run", err)
			p.cancel(fmt.Errorf("%w: %v", ErrActuatorStopped, err))
			return nil
		}
		p.setLastError("actuator", err)
		opsf("actuator: %v", err)
	}

	if t := p.opts.Telemetry; t != nil {
		err := t.RecordTick(telemetry.Tick{
			FrameID:     f.ID,
			At:          p.clock.Now(),
			Phase:       state.Phase.String(),
			Outcome:     outcome.String(),
			LaneOffset:  obs.LaneOffset,
			YellowCount: obs.YellowCount,
			Stopline:    obs.Stopline,
			Crosswalk:   obs.Crosswalk,
			Startline:   obs.Startline,
			Steering:    cmd.Steering,
			Throttle:    cmd.Throttle,
			Manual:      state.Manual,
		})
		if err != nil {
			p.telemetryError("tick", f.ID, err)
		}
	}
	return nil
}

func (p *Pipeline) recordOnce(ctx context.Context, last *uint64) error {
	f, err := p.hub.Next(ctx, *last)
	if err != nil {
		return err
	}
	*last = f.ID
	if err := p.opts.Recorder.Write(f); err != nil {
		p.recordErrors.Add(1)
		return fmt.Errorf("record frame %d: %w", f.ID, err)
	}
	return nil
}

func (p *Pipeline) recordTransition(tr drive.Transition) {
	if t := p.opts.Telemetry; t != nil {
		err := t.RecordTransition(telemetry.Transition{
			At:      tr.At,
			FrameID: tr.FrameID,
			From:    tr.From.String(),
			To:      tr.To.String(),
			Manual:  tr.Manual,
		})
		if err != nil {
			p.telemetryError("transition", tr.FrameID, err)
		}
	}
}

// telemetryError counts a failed telemetry write. Transitions and the first
// failed tick go to the ops log; later tick failures only to trace.
func (p *Pipeline) telemetryError(kind string, id uint64, err error) {
	n := p.telemetryErrs.Add(1)
	p.setLastError("telemetry", err)
	if kind == "transition" || n == 1 {
		opsf("telemetry %s for frame %d: %v", kind, id, err)
		return
	}
	tracef("telemetry %s for frame %d: %v", kind, id, err)
}

func (p *Pipeline) setLastError(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = name + ": " + err.Error()
}
