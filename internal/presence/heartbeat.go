package presence

import (
	"context"
	"sync"
	"time"

	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// DefaultHeartbeatInterval restamps an idle user's record well inside the
// presence TTL.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically restamps a user's presence record independent of
// cursor movement, so an idle-but-connected user is not treated as stale.
//
// Pause and Resume are the visibility/connectivity hooks: the consumer pauses
// while backgrounded or offline (after marking itself inactive) and resumes on
// foreground/online.
type Heartbeat struct {
	channel  *Channel
	interval time.Duration

	mu     sync.Mutex
	record canvas.Presence
	paused bool
}

// NewHeartbeat creates a heartbeat for the given user record. Pass interval 0
// to use DefaultHeartbeatInterval. The record's cursor position is updated via
// UpdateCursor and carried on every beat.
func NewHeartbeat(channel *Channel, record canvas.Presence, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	record.IsActive = true

	return &Heartbeat{
		channel:  channel,
		interval: interval,
		record:   record,
	}
}

// Run publishes an immediate beat and then beats on every tick until the
// context is cancelled. On shutdown the record is marked inactive so peers see
// the user leave rather than time out.
func (h *Heartbeat) Run(ctx context.Context) {
	h.beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.channel.SetInactive(context.Background(), h.record.UserID)
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

// UpdateCursor records the latest cursor position and publishes it.
// Callers rate-limit at the call site.
func (h *Heartbeat) UpdateCursor(ctx context.Context, x, y float64) {
	h.mu.Lock()
	h.record.CursorX = x
	h.record.CursorY = y
	paused := h.paused
	h.mu.Unlock()

	if !paused {
		h.beat(ctx)
	}
}

// Pause marks the user inactive and suspends beats. Peers see the user go
// idle rather than silently stale.
func (h *Heartbeat) Pause(ctx context.Context) {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()

	h.channel.SetInactive(ctx, h.record.UserID)
}

// Resume reactivates the record and beats immediately.
func (h *Heartbeat) Resume(ctx context.Context) {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()

	h.beat(ctx)
}

func (h *Heartbeat) beat(ctx context.Context) {
	h.mu.Lock()
	if h.paused {
		h.mu.Unlock()
		return
	}
	record := h.record
	record.IsActive = true
	h.mu.Unlock()

	h.channel.Publish(ctx, &record)
}
