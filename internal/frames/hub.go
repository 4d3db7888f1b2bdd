package frames

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// ErrClosed is returned by waits on a hub that has been closed.
var ErrClosed = errors.New("frames: hub closed")

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Published uint64 // frames published
	Dropped   uint64 // frames overwritten before any consumer fetched them
	LatestID  uint64
}

// Hub is a single-slot mailbox for the latest camera frame. Publish never
// blocks and never queues: a new frame replaces the previous one and slow
// consumers skip whatever they missed.
type Hub struct {
	mu       sync.Mutex
	latest   *Frame
	nextID   uint64
	consumed bool
	notify   chan struct{} // closed and replaced on every publish
	closed   bool

	published uint64
	dropped   uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{notify: make(chan struct{})}
}

// Publish stores img as the latest frame, assigning it the next sequence id,
// and wakes every waiting consumer. Publishing to a closed hub is a no-op
// that returns nil.
func (h *Hub) Publish(img *image.RGBA, captured time.Time) *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	h.nextID++
	f := &Frame{ID: h.nextID, Captured: captured, Image: img}
	if h.latest != nil && !h.consumed {
		h.dropped++
	}
	h.latest = f
	h.consumed = false
	h.published++

	close(h.notify)
	h.notify = make(chan struct{})
	return f
}

// Latest returns the current frame, or nil before the first publish. The
// same frame may be returned repeatedly if nothing new has arrived.
func (h *Hub) Latest() *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil {
		h.consumed = true
	}
	return h.latest
}

// Next blocks until a frame with an id greater than after is available and
// returns it. Only ctx cancellation or Close end the wait.
func (h *Hub) Next(ctx context.Context, after uint64) (*Frame, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrClosed
		}
		if h.latest != nil && h.latest.ID > after {
			f := h.latest
			h.consumed = true
			h.mu.Unlock()
			return f, nil
		}
		wait := h.notify
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// WaitFirst blocks until the first frame has been published.
func (h *Hub) WaitFirst(ctx context.Context) (*Frame, error) {
	return h.Next(ctx, 0)
}

// Close releases all waiters with ErrClosed. Further publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.notify)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HubStats{Published: h.published, Dropped: h.dropped}
	if h.latest != nil {
		s.LatestID = h.latest.ID
	}
	return s
}
