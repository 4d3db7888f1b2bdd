package serialmux

import (
	"context"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/httputil"
)

// Disabled stands in for the board in dev mode and record-only runs. It
// counts and discards commands and never produces a line; subscriber
// channels close on Unsubscribe or Close so readers unblock at shutdown.
type Disabled struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
	sent   uint64
}

// NewDisabled returns a board that is not there.
func NewDisabled() *Disabled {
	return &Disabled{subs: make(map[string]chan string)}
}

func (d *Disabled) Subscribe() (string, chan string) {
	id, ch := newID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return id, ch
	}
	d.subs[id] = ch
	return id, ch
}

func (d *Disabled) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *Disabled) SendCommand(string) error {
	d.mu.Lock()
	d.sent++
	d.mu.Unlock()
	return nil
}

// Monitor waits for ctx.
func (d *Disabled) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *Disabled) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	return nil
}

// Stats reports the discarded commands.
func (d *Disabled) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Disabled: true, Sent: d.sent, Received: map[string]uint64{}, Subscribers: len(d.subs)}
}

// AttachAdminRoutes serves /debug/board with the disabled counters.
func (d *Disabled) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).Handle("board", "Vehicle board link counters (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, d.Stats())
	}))
}

var _ Board = (*Disabled)(nil)
