// Package serialmux owns the text link to the vehicle board. Set points go
// out as one line per channel ("STEER -0.150", "THROTTLE 0.300"); every line
// the board sends back is classified, counted and fanned out to subscribers,
// which is how operator MANUAL/AUTO overrides reach the drive loop.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrShortWrite reports a command line the port accepted only in part.
var ErrShortWrite = errors.New("serialmux: short write to board")

// ErrClosed is returned by SendCommand after Close.
var ErrClosed = errors.New("serialmux: board link closed")

// subscriberBuffer is how many lines a subscriber may fall behind before it
// starts missing them.
const subscriberBuffer = 16

// Board is the vehicle board link as the rest of the program sees it. Mux
// and Disabled implement it.
type Board interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
	Monitor(context.Context) error
	Close() error
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts the traffic of a board link.
type Stats struct {
	Disabled    bool              `json:"disabled,omitempty"`
	Sent        uint64            `json:"sent"`
	SendErrors  uint64            `json:"send_errors"`
	Received    map[string]uint64 `json:"received"` // by line type
	Dropped     uint64            `json:"dropped"`
	Subscribers int               `json:"subscribers"`
	LastLine    string            `json:"last_line,omitempty"`
}

// Mux multiplexes one board port.
type Mux struct {
	port Port

	writeMu sync.Mutex

	mu       sync.Mutex
	subs     map[string]chan string
	closed   bool
	sent     uint64
	sendErrs uint64
	received map[string]uint64
	dropped  uint64
	lastLine string
}

// New wraps an open port.
func New(port Port) *Mux {
	return &Mux{
		port:     port,
		subs:     make(map[string]chan string),
		received: make(map[string]uint64),
	}
}

func newID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a buffered channel that receives every board line. A
// subscriber that falls subscriberBuffer lines behind misses lines; the
// reader never waits for it. After Close the channel comes back closed.
func (m *Mux) Subscribe() (string, chan string) {
	id, ch := newID(), make(chan string, subscriberBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the channel registered under id.
func (m *Mux) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// SendCommand writes one newline-terminated line. Concurrent callers never
// interleave within a line.
func (m *Mux) SendCommand(line string) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	line = strings.TrimRight(line, "\r\n") + "\n"
	m.writeMu.Lock()
	n, err := m.port.Write([]byte(line))
	m.writeMu.Unlock()
	if err == nil && n != len(line) {
		err = ErrShortWrite
	}

	m.mu.Lock()
	if err != nil {
		m.sendErrs++
	} else {
		m.sent++
	}
	m.mu.Unlock()
	return err
}

// Monitor reads board lines until ctx is done, the port ends or a read
// fails. End of input and Close both return nil.
func (m *Mux) Monitor(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- m.readLines() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (m *Mux) readLines() error {
	r := bufio.NewReader(m.port)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if !m.dispatch(line) {
				return nil
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			diagf("board input ended")
			return nil
		case m.isClosed():
			return nil
		default:
			return fmt.Errorf("read board: %w", err)
		}
	}
}

// dispatch counts line and offers it to every subscriber. It reports false
// once the link is closed.
func (m *Mux) dispatch(line string) bool {
	kind := ClassifyLine(line)
	if kind == EventTypeFault {
		opsf("board fault: %s", line)
	} else {
		tracef("board: %s", line)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.received[kind]++
	m.lastLine = line
	for id, ch := range m.subs {
		select {
		case ch <- line:
		default:
			if m.dropped++; m.dropped == 1 {
				opsf("subscriber %s is behind, dropping board lines", id)
			}
		}
	}
	return true
}

func (m *Mux) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns the traffic counters.
func (m *Mux) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Sent:        m.sent,
		SendErrors:  m.sendErrs,
		Received:    make(map[string]uint64, len(m.received)),
		Dropped:     m.dropped,
		Subscribers: len(m.subs),
		LastLine:    m.lastLine,
	}
	for k, v := range m.received {
		s.Received[k] = v
	}
	return s
}

// Close closes every subscriber and then the port. It is safe to call more
// than once.
func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
	return m.port.Close()
}

var _ Board = (*Mux)(nil)
