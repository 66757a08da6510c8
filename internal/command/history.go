package command

import (
	"context"
	"log"
	"sync"
	"time"
)

// HistoryLimit caps both stacks. Pushing past the cap evicts the oldest undo
// entry; a command evicted this way is permanently discarded.
const HistoryLimit = 50

// Entry wraps an executed command with display metadata.
type Entry struct {
	Command     Command
	UserID      string
	Description string
	TimestampMs int64
}

// History provides linear undo/redo over executed commands.
//
// Lifecycle per command: constructed, executed (onto the undo stack), possibly
// undone (onto the redo stack), possibly re-executed (back onto the undo
// stack). Executing any new command clears the redo stack - this is a linear
// history, not a tree.
//
// Within one client command dispatch is strictly sequential (await before the
// next dispatch); the mutex here guards memory, not ordering.
type History struct {
	userID string

	mu   sync.Mutex
	undo []*Entry
	redo []*Entry

	listenerMu sync.Mutex
	listeners  map[int]func()
	nextID     int
}

// NewHistory creates an empty history for the given user. Services own
// explicit instances - there is no package-level singleton - so tests can
// instantiate isolated histories per case.
func NewHistory(userID string) *History {
	return &History{
		userID:    userID,
		listeners: make(map[int]func()),
	}
}

// Subscribe registers a stack-changed observer and returns an unsubscribe
// handle. Observers are notified synchronously after the stacks are updated,
// on every successful execute, undo, redo, and clear.
func (h *History) Subscribe(fn func()) (unsubscribe func()) {
	h.listenerMu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.listenerMu.Unlock()

	return func() {
		h.listenerMu.Lock()
		delete(h.listeners, id)
		h.listenerMu.Unlock()
	}
}

// Execute runs the command and, on success, pushes it onto the undo stack,
// clears the redo stack, and trims the undo stack to the cap (oldest evicted
// first). On failure the error is propagated and neither stack is mutated.
func (h *History) Execute(ctx context.Context, cmd Command) error {
	if err := cmd.Execute(ctx); err != nil {
		return err
	}

	entry := &Entry{
		Command:     cmd,
		UserID:      h.userID,
		Description: cmd.Description(),
		TimestampMs: time.Now().UnixMilli(),
	}

	h.mu.Lock()
	h.undo = append(h.undo, entry)
	if len(h.undo) > HistoryLimit {
		h.undo = h.undo[len(h.undo)-HistoryLimit:]
	}
	h.redo = nil
	h.mu.Unlock()

	h.notify()
	return nil
}

// Undo reverses the most recent command. A no-op with a warning if the undo
// stack is empty. On success the entry moves to the redo stack; on failure
// the entry is pushed back onto the undo stack (best-effort rollback of the
// rollback) and the error is propagated.
func (h *History) Undo(ctx context.Context) error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		log.Printf("[Command] Undo requested with empty undo stack")
		return nil
	}
	entry := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.mu.Unlock()

	if err := entry.Command.Undo(ctx); err != nil {
		h.mu.Lock()
		h.undo = append(h.undo, entry)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.redo = append(h.redo, entry)
	h.mu.Unlock()

	h.notify()
	return nil
}

// Redo re-applies the most recently undone command. Symmetric with Undo.
func (h *History) Redo(ctx context.Context) error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		log.Printf("[Command] Redo requested with empty redo stack")
		return nil
	}
	entry := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.mu.Unlock()

	if err := entry.Command.Execute(ctx); err != nil {
		h.mu.Lock()
		h.redo = append(h.redo, entry)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.undo = append(h.undo, entry)
	h.mu.Unlock()

	h.notify()
	return nil
}

// CanUndo reports whether the undo stack is non-empty.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// UndoDepth returns the number of entries on the undo stack.
func (h *History) UndoDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo)
}

// Entries returns a copy of the undo stack, newest first, for history display.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]Entry, 0, len(h.undo))
	for i := len(h.undo) - 1; i >= 0; i-- {
		entries = append(entries, *h.undo[i])
	}
	return entries
}

// Clear discards both stacks. Cleared commands are permanently gone.
func (h *History) Clear() {
	h.mu.Lock()
	h.undo = nil
	h.redo = nil
	h.mu.Unlock()

	h.notify()
}

func (h *History) notify() {
	h.listenerMu.Lock()
	listeners := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
