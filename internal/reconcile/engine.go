// Package reconcile merges the three independently-changing state sources -
// durable shapes, ephemeral movements, and advisory locks - into the single
// view model consumers render.
//
// Precedence: an active or graced ephemeral position always outranks the
// durable position; the lock overlay is independent of the position overlay
// and applied after it.
package reconcile

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// DefaultGraceTTL is the window after a gesture ends during which the last
// ephemeral position still overrides the durable one, masking the latency
// between the durable commit completing remotely and the local read
// reflecting it.
const DefaultGraceTTL = 2 * time.Second

// MergedShape is one shape as consumers render it: the durable document plus
// the runtime-only overlays. The overlays are never persisted.
type MergedShape struct {
	canvas.Shape
	IsLockedByOther bool   `json:"is_locked_by_other"`
	LockedByName    string `json:"locked_by_name,omitempty"`
}

// gracedMovement is the last known movement for a shape whose gesture ended,
// retained for the grace window.
type gracedMovement struct {
	movement  canvas.Movement
	retiredAt time.Time
}

// Engine recomputes the merged view on every change to any source.
// It is safe for concurrent use; listener delivery is synchronous after the
// internal snapshots are swapped.
type Engine struct {
	currentUserID string
	graceTTL      time.Duration

	mu        sync.Mutex
	durable   map[string]*canvas.Shape
	movements map[string]canvas.Movement
	graced    map[string]gracedMovement
	locks     map[string]canvas.Lock

	listenerMu sync.Mutex
	listeners  map[int]func([]MergedShape)
	nextID     int
}

// NewEngine creates a reconciliation engine viewing as currentUserID.
// Pass graceTTL 0 to use DefaultGraceTTL.
func NewEngine(currentUserID string, graceTTL time.Duration) *Engine {
	if graceTTL <= 0 {
		graceTTL = DefaultGraceTTL
	}

	return &Engine{
		currentUserID: currentUserID,
		graceTTL:      graceTTL,
		durable:       make(map[string]*canvas.Shape),
		movements:     make(map[string]canvas.Movement),
		graced:        make(map[string]gracedMovement),
		locks:         make(map[string]canvas.Lock),
		listeners:     make(map[int]func([]MergedShape)),
	}
}

// Subscribe registers a listener for merged view changes and returns an
// unsubscribe handle. Delivery is synchronous after each snapshot swap.
func (e *Engine) Subscribe(fn func([]MergedShape)) (unsubscribe func()) {
	e.listenerMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

// SetDurable replaces the durable snapshot wholesale and re-merges.
func (e *Engine) SetDurable(shapes []*canvas.Shape) {
	e.mu.Lock()
	e.durable = make(map[string]*canvas.Shape, len(shapes))
	for _, s := range shapes {
		e.durable[s.ID] = s
	}
	e.mu.Unlock()

	e.notify()
}

// ApplyShapeEvent folds one durable change notification into the snapshot and
// re-merges.
func (e *Engine) ApplyShapeEvent(event *canvas.ShapeEvent) {
	e.mu.Lock()
	switch event.Kind {
	case canvas.EventCreated, canvas.EventUpdated:
		if event.Shape != nil {
			e.durable[event.Shape.ID] = event.Shape
		}
	case canvas.EventDeleted:
		delete(e.durable, event.ShapeID)
		delete(e.graced, event.ShapeID)
	}
	e.mu.Unlock()

	e.notify()
}

// SetMovements replaces the active movement snapshot and re-merges. Entries
// that disappeared from the snapshot move into the grace cache: the store has
// already forgotten them, so the grace-period continuation is reconstructed
// here from the last known value.
func (e *Engine) SetMovements(movements map[string]canvas.Movement) {
	now := time.Now()

	e.mu.Lock()
	for id, prev := range e.movements {
		if _, stillActive := movements[id]; !stillActive {
			prev.IsDragging = false
			e.graced[id] = gracedMovement{movement: prev, retiredAt: now}
		}
	}
	for id := range movements {
		// A shape being dragged again cancels any pending grace entry.
		delete(e.graced, id)
	}
	e.movements = movements
	e.mu.Unlock()

	e.notify()
}

// SetLocks replaces the lock snapshot and re-merges.
func (e *Engine) SetLocks(locks map[string]canvas.Lock) {
	e.mu.Lock()
	e.locks = locks
	e.mu.Unlock()

	e.notify()
}

// View returns the merged view for the engine's own user.
func (e *Engine) View() []MergedShape {
	return e.ViewFor(e.currentUserID)
}

// ViewFor computes the merged view as seen by the given user.
//
// Per shape: an active ephemeral entry dragged by another user overrides the
// durable position and size; failing that, a graced entry younger than the
// grace TTL applies the same override; otherwise the durable fields stand.
// The lock overlay is computed independently and applied after.
func (e *Engine) ViewFor(userID string) []MergedShape {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	merged := make([]MergedShape, 0, len(e.durable))
	for id, shape := range e.durable {
		ms := MergedShape{Shape: *shape}

		if m, ok := e.movements[id]; ok && m.IsDragging && m.DraggedBy != userID {
			applyMovement(&ms.Shape, m)
		} else if g, ok := e.graced[id]; ok &&
			now.Sub(g.retiredAt) < e.graceTTL && g.movement.DraggedBy != userID {
			applyMovement(&ms.Shape, g.movement)
		}

		if l, ok := e.locks[id]; ok && l.UserID != userID {
			ms.IsLockedByOther = true
			ms.LockedByName = l.UserName
		}

		merged = append(merged, ms)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ZIndex != merged[j].ZIndex {
			return merged[i].ZIndex < merged[j].ZIndex
		}
		return merged[i].ID < merged[j].ID
	})

	return merged
}

// notify delivers the current merged view to every listener, synchronously.
func (e *Engine) notify() {
	view := e.View()

	e.listenerMu.Lock()
	listeners := make([]func([]MergedShape), 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}

// pruneGraced drops grace entries past the TTL and reports whether any were
// dropped, so the run loop can re-notify when a graced override falls back to
// the durable position.
func (e *Engine) pruneGraced() bool {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := false
	for id, g := range e.graced {
		if now.Sub(g.retiredAt) >= e.graceTTL {
			delete(e.graced, id)
			dropped = true
		}
	}
	return dropped
}

// Run seeds the durable snapshot, subscribes to all three sources, and
// re-merges on every notification until the context is cancelled.
// Subscription errors are non-fatal and logged; the loop continues.
func (e *Engine) Run(ctx context.Context, store *canvas.Client, movements *ephemeral.Store, locks *lock.Manager) error {
	shapes, err := store.ListShapes(ctx)
	if err != nil {
		return err
	}
	e.SetDurable(shapes)

	shapeSub, err := store.SubscribeShapeEvents(ctx)
	if err != nil {
		return err
	}
	defer shapeSub.Close()

	movementSub, err := movements.SubscribeAll(ctx)
	if err != nil {
		return err
	}
	defer movementSub.Close()

	lockSub, err := locks.SubscribeAll(ctx)
	if err != nil {
		return err
	}
	defer lockSub.Close()

	graceTick := time.NewTicker(graceInterval(e.graceTTL))
	defer graceTick.Stop()

	log.Printf("[Reconcile] Watching board %q as %s", store.Board(), e.currentUserID)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-shapeSub.Events():
			if !ok {
				return nil
			}
			e.ApplyShapeEvent(event)

		case snapshot, ok := <-movementSub.Snapshots():
			if !ok {
				return nil
			}
			e.SetMovements(snapshot)

		case snapshot, ok := <-lockSub.Snapshots():
			if !ok {
				return nil
			}
			e.SetLocks(snapshot)

		case <-graceTick.C:
			if e.pruneGraced() {
				e.notify()
			}

		case err, ok := <-shapeSub.Errors():
			if ok {
				log.Printf("[Reconcile] Shape subscription error: %v", err)
			}
		case err, ok := <-movementSub.Errors():
			if ok {
				log.Printf("[Reconcile] Movement subscription error: %v", err)
			}
		case err, ok := <-lockSub.Errors():
			if ok {
				log.Printf("[Reconcile] Lock subscription error: %v", err)
			}
		}
	}
}

func graceInterval(ttl time.Duration) time.Duration {
	interval := ttl / 10
	if interval < 25*time.Millisecond {
		interval = 25 * time.Millisecond
	}
	if interval > 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	return interval
}
