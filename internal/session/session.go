// Package session wires the collaborative engine together for one user on one
// board: gesture handling, the optimistic-mutation helpers, the assistant
// action boundary, and undo/redo. It owns explicit instances of every service
// rather than package-level singletons so tests can build isolated sessions.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/miriamsimone/collab-canvas-sub000/internal/command"
	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/presence"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// User identifies the local participant.
type User struct {
	ID    string
	Name  string
	Color string
}

// gesture captures the pre-state of an in-flight drag or resize so the
// closing command is reversible.
type gesture struct {
	originX, originY float64
	originDims       canvas.Fields
	frameW, frameH   float64
}

// Session is the application root for one connected user.
type Session struct {
	user      User
	store     *canvas.Client
	movements *ephemeral.Store
	locks     *lock.Manager
	heartbeat *presence.Heartbeat
	engine    *reconcile.Engine
	history   *command.History

	mu       sync.Mutex
	gestures map[string]*gesture
}

// New assembles a session from explicitly-constructed services. heartbeat may
// be nil for headless consumers (tests, CLI inspection).
func New(user User, store *canvas.Client, movements *ephemeral.Store,
	locks *lock.Manager, heartbeat *presence.Heartbeat,
	engine *reconcile.Engine, history *command.History) *Session {
	return &Session{
		user:      user,
		store:     store,
		movements: movements,
		locks:     locks,
		heartbeat: heartbeat,
		engine:    engine,
		history:   history,
		gestures:  make(map[string]*gesture),
	}
}

// User returns the local participant identity.
func (s *Session) User() User { return s.user }

// History exposes the command history for display and observation.
func (s *Session) History() *command.History { return s.history }

// View returns the merged shape view for this session's user.
func (s *Session) View() []reconcile.MergedShape { return s.engine.View() }

// CanUndo reports whether an undo is available.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether a redo is available.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// Undo reverses the most recent command.
func (s *Session) Undo(ctx context.Context) error { return s.history.Undo(ctx) }

// Redo re-applies the most recently undone command.
func (s *Session) Redo(ctx context.Context) error { return s.history.Redo(ctx) }

// Close releases every advisory lock this user still holds. Called on
// disconnect and shutdown.
func (s *Session) Close(ctx context.Context) {
	s.locks.ReleaseAll(ctx, s.user.ID)
}

// PublishCursor forwards a cursor move to the presence heartbeat.
// Callers rate-limit at pointer-move frequency.
func (s *Session) PublishCursor(ctx context.Context, x, y float64) {
	if s.heartbeat != nil {
		s.heartbeat.UpdateCursor(ctx, x, y)
	}
}

// OnDragStart begins a move gesture: captures the pre-state, takes the
// advisory lock, and publishes the first movement frame. A failed lock
// acquire degrades to unsynchronized editing rather than blocking the user.
func (s *Session) OnDragStart(ctx context.Context, shapeID string) error {
	shape, err := s.store.GetShape(ctx, shapeID)
	if err != nil {
		return fmt.Errorf("failed to start drag on %s: %w", shapeID, err)
	}

	if !s.locks.Acquire(ctx, shapeID, s.user.ID, s.user.Name, s.user.Color) {
		log.Printf("[Session] Proceeding unlocked on %s", shapeID)
	}

	w, h := frameSize(shape)
	s.mu.Lock()
	s.gestures[shapeID] = &gesture{
		originX: shape.X, originY: shape.Y,
		originDims: dimensionFields(shape),
		frameW:     w, frameH: h,
	}
	s.mu.Unlock()

	s.publishFrame(ctx, shapeID, shape.X, shape.Y, w, h)
	return nil
}

// OnDragMove broadcasts one gesture frame. Fire-and-forget: gesture handling
// never blocks on the broadcast.
func (s *Session) OnDragMove(ctx context.Context, shapeID string, x, y float64) {
	s.mu.Lock()
	g, ok := s.gestures[shapeID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.publishFrame(ctx, shapeID, x, y, g.frameW, g.frameH)
}

// OnDragEnd retires the ephemeral entry, commits the authoritative position
// through a reversible command, and releases the advisory lock. The lock is
// released and the entry retired even when the durable commit fails.
func (s *Session) OnDragEnd(ctx context.Context, shapeID string, x, y float64) error {
	s.mu.Lock()
	g, ok := s.gestures[shapeID]
	delete(s.gestures, shapeID)
	s.mu.Unlock()

	s.movements.Retire(ctx, shapeID)
	defer s.locks.Release(ctx, shapeID, s.user.ID)

	if !ok {
		return fmt.Errorf("no drag in progress for %s", shapeID)
	}

	cmd := command.NewMoveShape(s.store, shapeID, s.user.ID, g.originX, g.originY, x, y)
	return s.history.Execute(ctx, cmd)
}

// OnTransformStart begins a resize gesture. Same locking and capture rules as
// OnDragStart.
func (s *Session) OnTransformStart(ctx context.Context, shapeID string) error {
	return s.OnDragStart(ctx, shapeID)
}

// OnTransformMove broadcasts one resize frame with explicit dimensions.
func (s *Session) OnTransformMove(ctx context.Context, shapeID string, x, y, width, height float64) {
	s.mu.Lock()
	if _, ok := s.gestures[shapeID]; !ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.publishFrame(ctx, shapeID, x, y, width, height)
}

// OnTransformEnd retires the entry and commits the new dimensions through a
// reversible resize command.
func (s *Session) OnTransformEnd(ctx context.Context, shapeID string, newDims canvas.Fields) error {
	s.mu.Lock()
	g, ok := s.gestures[shapeID]
	delete(s.gestures, shapeID)
	s.mu.Unlock()

	s.movements.Retire(ctx, shapeID)
	defer s.locks.Release(ctx, shapeID, s.user.ID)

	if !ok {
		return fmt.Errorf("no transform in progress for %s", shapeID)
	}

	cmd := command.NewResizeShape(s.store, shapeID, s.user.ID, g.originDims, newDims)
	return s.history.Execute(ctx, cmd)
}

// CreateShape creates a shape through the command engine. On failure the
// caller removes its optimistic local copy - the error return is the
// compensation signal, not an exception to clean up after.
func (s *Session) CreateShape(ctx context.Context, shape *canvas.Shape) error {
	shape.CreatedBy = s.user.ID
	return s.history.Execute(ctx, command.NewCreateShape(s.store, shape))
}

// DeleteShape captures the full shape snapshot and deletes it reversibly.
func (s *Session) DeleteShape(ctx context.Context, shapeID string) error {
	snapshot, err := s.store.GetShape(ctx, shapeID)
	if err != nil {
		return fmt.Errorf("failed to snapshot %s for delete: %w", shapeID, err)
	}
	return s.history.Execute(ctx, command.NewDeleteShape(s.store, snapshot))
}

// DeleteShapes deletes several shapes as one undoable step.
func (s *Session) DeleteShapes(ctx context.Context, shapeIDs []string) error {
	cmds := make([]command.Command, 0, len(shapeIDs))
	for _, id := range shapeIDs {
		snapshot, err := s.store.GetShape(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to snapshot %s for delete: %w", id, err)
		}
		cmds = append(cmds, command.NewDeleteShape(s.store, snapshot))
	}
	return s.history.Execute(ctx, command.NewBatch("Delete shapes", cmds))
}

// UpdateProperties applies a reversible partial property update.
func (s *Session) UpdateProperties(ctx context.Context, shapeID string, newFields canvas.Fields) error {
	shape, err := s.store.GetShape(ctx, shapeID)
	if err != nil {
		return fmt.Errorf("failed to load %s for update: %w", shapeID, err)
	}

	oldFields := make(canvas.Fields, len(newFields))
	for name := range newFields {
		oldFields[name] = currentValue(shape, name)
	}

	cmd := command.NewUpdateProperties(s.store, shapeID, s.user.ID, oldFields, newFields)
	return s.history.Execute(ctx, cmd)
}

// UpdateText applies a reversible text edit.
func (s *Session) UpdateText(ctx context.Context, shapeID, newText string) error {
	shape, err := s.store.GetShape(ctx, shapeID)
	if err != nil {
		return fmt.Errorf("failed to load %s for text edit: %w", shapeID, err)
	}
	return s.history.Execute(ctx, command.NewUpdateText(s.store, shapeID, s.user.ID, shape.Text, newText))
}

// publishFrame broadcasts one ephemeral movement frame for the local user.
func (s *Session) publishFrame(ctx context.Context, shapeID string, x, y, w, h float64) {
	s.movements.Publish(ctx, &canvas.Movement{
		ShapeID:    shapeID,
		X:          x,
		Y:          y,
		Width:      w,
		Height:     h,
		IsDragging: true,
		DraggedBy:  s.user.ID,
	})
}

// frameSize maps a shape's variant dimensions onto the movement frame's
// width/height encoding (the inverse of the reconciler's mapping).
func frameSize(s *canvas.Shape) (w, h float64) {
	switch s.Type {
	case canvas.ShapeTypeCircle:
		return s.Radius * 2, s.Radius * 2
	case canvas.ShapeTypeLine:
		return s.X2 - s.X, s.Y2 - s.Y
	default:
		return s.Width, s.Height
	}
}

// dimensionFields captures the type-specific dimension fields for resize undo.
func dimensionFields(s *canvas.Shape) canvas.Fields {
	switch s.Type {
	case canvas.ShapeTypeCircle:
		return canvas.Fields{"x": s.X, "y": s.Y, "radius": s.Radius}
	case canvas.ShapeTypeLine:
		return canvas.Fields{"x": s.X, "y": s.Y, "x2": s.X2, "y2": s.Y2}
	default:
		return canvas.Fields{"x": s.X, "y": s.Y, "width": s.Width, "height": s.Height}
	}
}

// currentValue pulls the present value of an updatable field off a shape.
func currentValue(s *canvas.Shape, name string) interface{} {
	switch name {
	case "x":
		return s.X
	case "y":
		return s.Y
	case "rotation":
		return s.Rotation
	case "opacity":
		return s.Opacity
	case "visible":
		return s.Visible
	case "locked":
		return s.Locked
	case "z_index":
		return s.ZIndex
	case "width":
		return s.Width
	case "height":
		return s.Height
	case "radius":
		return s.Radius
	case "x2":
		return s.X2
	case "y2":
		return s.Y2
	case "text":
		return s.Text
	case "font_size":
		return s.FontSize
	case "fill":
		return s.Fill
	case "stroke":
		return s.Stroke
	case "stroke_width":
		return s.StrokeWidth
	}
	return 0.0
}
