package autodrive

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/actuator"
	"github.com/banshee-data/lanepilot/internal/camera"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/testutil"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

func init() {
	SetLogWriters(nil, nil, nil)
}

type memTelemetry struct {
	mu          sync.Mutex
	ticks       []telemetry.Tick
	transitions []telemetry.Transition
	err         error
}

func (m *memTelemetry) RecordTick(t telemetry.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, t)
	return m.err
}

func (m *memTelemetry) RecordTransition(t telemetry.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return m.err
}

func (m *memTelemetry) Transitions() []telemetry.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetry.Transition(nil), m.transitions...)
}

func (m *memTelemetry) Ticks() []telemetry.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetry.Tick(nil), m.ticks...)
}

type memRecorder struct {
	mu     sync.Mutex
	ids    []uint64
	closed bool
}

func (r *memRecorder) Write(f *frames.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, f.ID)
	return nil
}

func (r *memRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *memRecorder) snapshot() ([]uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.ids...), r.closed
}

// flakyCamera wraps a source and injects an empty read every emptyEvery
// frames and a single panic on read number panicAt.
type flakyCamera struct {
	camera.Source
	mu         sync.Mutex
	reads      int
	emptyEvery int
	panicAt    int
}

func (c *flakyCamera) Read() (*image.RGBA, error) {
	c.mu.Lock()
	c.reads++
	n := c.reads
	c.mu.Unlock()
	if c.panicAt > 0 && n == c.panicAt {
		panic("sensor glitch")
	}
	if c.emptyEvery > 0 && n%c.emptyEvery == 0 {
		return nil, camera.ErrEmptyFrame
	}
	return c.Source.Read()
}

type chanOperator struct{ lines chan string }

func (o *chanOperator) Subscribe() (string, chan string) { return "op", o.lines }
func (o *chanOperator) Unsubscribe(string)               {}

func laneScene() []camera.Step {
	return []camera.Step{{Scene: camera.Scene{LeftWhite: 0.2, RightWhite: 0.8}, Frames: 1}}
}

func driveOptions(cam camera.Source, act actuator.Sink) Options {
	cfg := config.EmptyDriveConfig()
	cls := testutil.NewClassifier(ClassifierParams(cfg))
	return Options{
		Mode:            ModeDrive,
		Camera:          cam,
		Lane:            lane.NewDetector(LaneConfig(cfg, cls)),
		Objects:         objects.NewDetector(ObjectsConfig(cfg, cls, testutil.Vision{})),
		Controller:      drive.NewController(ControllerConfig(cfg), timeutil.RealClock{}),
		Actuator:        act,
		BarrierTimeout:  200 * time.Millisecond,
		CaptureInterval: time.Millisecond,
	}
}

// runInBackground runs p in the background and returns a stop function that cancels
// it and reports Run's error.
func runInBackground(t *testing.T, p *Pipeline) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("pipeline did not stop")
			return nil
		}
	}
}

func waitTicks(t *testing.T, p *Pipeline, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Status().Ticks >= n },
		30*time.Second, 2*time.Millisecond, "ticks=%d want %d", p.Status().Ticks, n)
}

func TestNewValidatesOptions(t *testing.T) {
	cam := camera.NewSynthetic(64, 48, nil)
	mem := actuator.NewMemory()

	_, err := New(Options{Mode: "x", Camera: cam})
	assert.Error(t, err)

	_, err = New(Options{Mode: ModeRecord})
	assert.Error(t, err, "camera required")

	_, err = New(Options{Mode: ModeRecord, Camera: cam})
	assert.Error(t, err, "recorder required")

	_, err = New(Options{Mode: ModeDrive, Camera: cam, Actuator: mem})
	assert.Error(t, err, "detectors required")

	o := driveOptions(cam, nil)
	_, err = New(o)
	assert.Error(t, err, "actuator required")

	o = driveOptions(cam, mem)
	p, err := New(o)
	require.NoError(t, err)
	assert.Equal(t, actuator.PolicyContinue, p.opts.Policy)
}

func TestRunDrivesAndZeroesOnShutdown(t *testing.T) {
	mem := actuator.NewMemory()
	tel := &memTelemetry{}
	o := driveOptions(camera.NewSynthetic(160, 120, laneScene()), mem)
	o.Telemetry = tel
	p, err := New(o)
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, 20)
	assert.True(t, p.Status().Running)
	assert.Greater(t, mem.Writes(), 0)
	require.NoError(t, stop())

	assert.Equal(t, drive.Command{}, mem.Last(), "actuator must be zeroed on exit")
	assert.False(t, p.Status().Running)

	ticks := tel.Ticks()
	require.GreaterOrEqual(t, len(ticks), 20)
	for i, tk := range ticks {
		assert.Contains(t, []string{"complete", "timed-out"}, tk.Outcome)
		if i > 0 {
			assert.Greater(t, tk.FrameID, ticks[i-1].FrameID, "ticks must follow frame order")
		}
	}

	_, err = p.hub.Next(context.Background(), 0)
	assert.ErrorIs(t, err, frames.ErrClosed)
}

// jitter sleeps up to 300µs, and now and then past a 2ms barrier timeout.
func jitter() {
	if rand.Intn(50) == 0 {
		time.Sleep(3 * time.Millisecond)
		return
	}
	time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
}

// idLane reports values derived from the frame it was given, after a random
// delay.
type idLane struct{}

func (idLane) Process(f *frames.Frame, _ perception.Guidance) lane.Observation {
	jitter()
	return lane.Observation{FrameID: f.ID, Offset: int(f.ID%97) + 1, YellowCount: int(f.ID)}
}

// idObjects raises flags by the parity of the frame id, after a random delay.
type idObjects struct{}

func (idObjects) Process(f *frames.Frame, _ perception.Guidance) objects.Flags {
	jitter()
	return flagsFor(f.ID)
}

func flagsFor(id uint64) objects.Flags {
	return objects.Flags{FrameID: id, Stopline: id%2 == 0, Crosswalk: id%5 == 0, Startline: id%3 == 0}
}

// Every control tick must pair results computed from its own frame, with
// both detectors delayed at random and some rounds timing out.
func TestRunFrameConsistencyUnderLoad(t *testing.T) {
	want := uint64(10000)
	if testing.Short() {
		want = 300
	}
	tel := &memTelemetry{}
	o := driveOptions(camera.NewSynthetic(48, 36, nil), actuator.NewMemory())
	o.Lane = idLane{}
	o.Objects = idObjects{}
	o.BarrierTimeout = 2 * time.Millisecond
	o.CaptureInterval = 0
	o.Telemetry = tel
	p, err := New(o)
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, want)
	require.NoError(t, stop())

	ticks := tel.Ticks()
	var complete int
	for i, tk := range ticks {
		if i > 0 && tk.FrameID <= ticks[i-1].FrameID {
			t.Fatalf("tick %d: frame %d after %d", i, tk.FrameID, ticks[i-1].FrameID)
		}
		f := flagsFor(tk.FrameID)
		if tk.Outcome == "complete" {
			complete++
			require.Equal(t, int(tk.FrameID), tk.YellowCount, "tick %d lane result", i)
			require.Equal(t, int(tk.FrameID%97)+1, tk.LaneOffset, "tick %d lane result", i)
			require.Equal(t, [3]bool{f.Stopline, f.Crosswalk, f.Startline},
				[3]bool{tk.Stopline, tk.Crosswalk, tk.Startline}, "tick %d flags", i)
			continue
		}
		// A timed-out round uses a result of its own frame or none at all.
		if tk.YellowCount != 0 {
			require.Equal(t, int(tk.FrameID), tk.YellowCount, "tick %d lane result", i)
			require.Equal(t, int(tk.FrameID%97)+1, tk.LaneOffset, "tick %d lane result", i)
		} else {
			require.Zero(t, tk.LaneOffset, "tick %d", i)
		}
		require.False(t, tk.Stopline && !f.Stopline, "tick %d stopline from another frame", i)
		require.False(t, tk.Crosswalk && !f.Crosswalk, "tick %d crosswalk from another frame", i)
		require.False(t, tk.Startline && !f.Startline, "tick %d startline from another frame", i)
	}
	assert.Greater(t, complete, 0)

	s := p.Status()
	assert.Equal(t, uint64(len(ticks)), s.Ticks)
	assert.GreaterOrEqual(t, s.Barrier.Completed+s.Barrier.TimedOut, s.Ticks)
	assert.LessOrEqual(t, s.LastRound, s.Hub.LatestID)
	assert.Zero(t, s.Panics)
}

// stalledLane blocks until released, so every round times out without a
// lane result.
type stalledLane struct{ release chan struct{} }

func (l stalledLane) Process(f *frames.Frame, _ perception.Guidance) lane.Observation {
	<-l.release
	return lane.Observation{FrameID: f.ID}
}

// courseObjects sees a crosswalk on every frame and a stop line on even ones,
// which walks the controller to LEFT_YELLOW.
type courseObjects struct{}

func (courseObjects) Process(f *frames.Frame, _ perception.Guidance) objects.Flags {
	return objects.Flags{FrameID: f.ID, Crosswalk: true, Stopline: f.ID%2 == 0}
}

func TestRunStalledLaneHoldsLeftYellow(t *testing.T) {
	cc := ControllerConfig(config.EmptyDriveConfig())
	cc.CrosswalkWait = 0
	cc.StoplineIgnore = 0
	cc.YellowExitThreshold = 200

	tel := &memTelemetry{}
	l := stalledLane{release: make(chan struct{})}
	o := driveOptions(camera.NewSynthetic(48, 36, nil), actuator.NewMemory())
	o.Lane = l
	o.Objects = courseObjects{}
	o.Controller = drive.NewController(cc, timeutil.RealClock{})
	o.BarrierTimeout = 5 * time.Millisecond
	o.Telemetry = tel
	p, err := New(o)
	require.NoError(t, err)

	stop := runInBackground(t, p)
	require.Eventually(t, func() bool { return p.Status().Phase == drive.LeftYellow.String() },
		10*time.Second, time.Millisecond)
	waitTicks(t, p, p.Status().Ticks+10)

	assert.Equal(t, drive.LeftYellow.String(), p.Status().Phase)
	for _, tr := range tel.Transitions() {
		assert.NotEqual(t, drive.RightWhiteAfter.String(), tr.To, "left yellow exited at frame %d", tr.FrameID)
	}
	for _, tk := range tel.Ticks() {
		assert.NotEqual(t, "complete", tk.Outcome, "frame %d completed without a lane result", tk.FrameID)
	}

	close(l.release)
	require.NoError(t, stop())
}

func TestRunCountsTelemetryErrors(t *testing.T) {
	tel := &memTelemetry{err: errors.New("disk full")}
	o := driveOptions(camera.NewSynthetic(64, 48, laneScene()), actuator.NewMemory())
	o.Telemetry = tel
	p, err := New(o)
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, 5)
	require.NoError(t, stop())

	s := p.Status()
	assert.GreaterOrEqual(t, s.TelemetryErrs, uint64(5))
	assert.Contains(t, s.LastError, "telemetry: disk full")
}

func TestRunStopPolicyEndsRun(t *testing.T) {
	mem := actuator.NewMemory()
	mem.Fail(errors.New("bus off"))
	o := driveOptions(camera.NewSynthetic(64, 48, laneScene()), mem)
	o.Policy = actuator.PolicyStop
	p, err := New(o)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = p.Run(ctx)
	assert.ErrorIs(t, err, ErrActuatorStopped)
	assert.Equal(t, uint64(1), p.Status().ActuatorErrors)
}

func TestRunContinuePolicyKeepsDriving(t *testing.T) {
	mem := actuator.NewMemory()
	mem.Fail(errors.New("bus off"))
	p, err := New(driveOptions(camera.NewSynthetic(64, 48, laneScene()), mem))
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, 5)
	require.NoError(t, stop())

	s := p.Status()
	assert.GreaterOrEqual(t, s.ActuatorErrors, uint64(5))
	assert.Contains(t, s.LastError, "bus off")
}

func TestRunSurvivesCameraFaults(t *testing.T) {
	cam := &flakyCamera{Source: camera.NewSynthetic(64, 48, laneScene()), emptyEvery: 3, panicAt: 5}
	p, err := New(driveOptions(cam, actuator.NewMemory()))
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, 10)
	require.NoError(t, stop())

	s := p.Status()
	assert.Equal(t, uint64(1), s.Panics)
	assert.Greater(t, s.EmptyFrames, uint64(0))
}

func TestRunRecordOnly(t *testing.T) {
	rec := &memRecorder{}
	p, err := New(Options{
		Mode:            ModeRecord,
		Camera:          camera.NewSynthetic(64, 48, nil),
		Recorder:        rec,
		CaptureInterval: time.Millisecond,
	})
	require.NoError(t, err)

	stop := runInBackground(t, p)
	require.Eventually(t, func() bool {
		ids, _ := rec.snapshot()
		return len(ids) >= 10
	}, 10*time.Second, 2*time.Millisecond)
	require.NoError(t, stop())

	ids, closed := rec.snapshot()
	assert.True(t, closed)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	assert.Zero(t, p.Status().Ticks)
}

func TestRunOperatorOverride(t *testing.T) {
	mem := actuator.NewMemory()
	tel := &memTelemetry{}
	op := &chanOperator{lines: make(chan string, 4)}
	o := driveOptions(camera.NewSynthetic(64, 48, laneScene()), mem)
	o.Operator = op
	o.Telemetry = tel
	p, err := New(o)
	require.NoError(t, err)

	stop := runInBackground(t, p)
	waitTicks(t, p, 3)

	op.lines <- "MANUAL 0.1 0.2"
	require.Eventually(t, func() bool {
		return mem.Last() == drive.Command{Steering: 0.1, Throttle: 0.2}
	}, 10*time.Second, 2*time.Millisecond)
	assert.True(t, p.Status().Manual)

	op.lines <- "AUTO"
	require.Eventually(t, func() bool { return !p.Status().Manual }, 10*time.Second, 2*time.Millisecond)
	require.NoError(t, stop())

	tel.mu.Lock()
	defer tel.mu.Unlock()
	var reset bool
	for _, tr := range tel.transitions {
		if tr.Manual && tr.To == drive.Start.String() {
			reset = true
		}
	}
	assert.True(t, reset, "leaving manual mode should log a reset to START")
}

func localHostRequest(method, target string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes(t *testing.T) {
	p, err := New(driveOptions(camera.NewSynthetic(64, 48, nil), actuator.NewMemory()))
	require.NoError(t, err)
	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/drive", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var s Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, ModeDrive, s.Mode)
	assert.Equal(t, "START", s.Phase)
	assert.False(t, s.Running)

	tests := []struct {
		name   string
		method string
		line   string
		want   int
	}{
		{"get not allowed", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"missing line", http.MethodPost, "", http.StatusBadRequest},
		{"bad line", http.MethodPost, "MANUAL x y", http.StatusBadRequest},
		{"manual", http.MethodPost, "MANUAL 0.3 0.1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.method == http.MethodPost {
				body = strings.NewReader(url.Values{"line": {tt.line}}.Encode())
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, localHostRequest(tt.method, "/debug/drive-operator", body))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.True(t, p.Status().Manual)
}

type fakeOverlay struct {
	mu   sync.Mutex
	ids  []uint64
	text string
	err  error
}

func (o *fakeOverlay) Render(f *frames.Frame, rows []lane.RowEdges, marks objects.Marks, text string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, f.ID)
	o.text = text
	if o.err != nil {
		return nil, o.err
	}
	return []byte("\x89PNG"), nil
}

func TestFrameRoute(t *testing.T) {
	get := func(p *Pipeline) *httptest.ResponseRecorder {
		mux := http.NewServeMux()
		p.AttachAdminRoutes(mux)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/frame", nil))
		return w
	}

	p, err := New(driveOptions(camera.NewSynthetic(64, 48, nil), actuator.NewMemory()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, get(p).Code, "no overlay")

	ov := &fakeOverlay{}
	o := driveOptions(camera.NewSynthetic(64, 48, laneScene()), actuator.NewMemory())
	o.Overlay = ov
	p, err = New(o)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, get(p).Code, "no tick yet")

	stop := runInBackground(t, p)
	waitTicks(t, p, 3)
	require.NoError(t, stop())

	w := get(p)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", w.Body.String())
	ov.mu.Lock()
	require.Len(t, ov.ids, 1)
	assert.Contains(t, ov.text, p.Status().Phase)
	ov.err = errors.New("encoder gone")
	ov.mu.Unlock()

	assert.Equal(t, http.StatusInternalServerError, get(p).Code)
}
