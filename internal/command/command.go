// Package command wraps every mutating user action as a reversible command
// and maintains the bounded undo/redo history. It is the only sanctioned path
// through which the durable store is mutated.
package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// Command is a reversible encapsulation of one mutating user action.
// A command captures enough pre-state at construction time to undo itself:
// old/new values for updates, the full shape snapshot for create/delete.
type Command interface {
	// ID uniquely identifies this command instance.
	ID() string
	// Description is a short human-readable label for history display.
	Description() string
	// Execute applies the mutation to the durable store.
	Execute(ctx context.Context) error
	// Undo reverses the mutation.
	Undo(ctx context.Context) error
}

type base struct {
	id          string
	description string
}

func newBase(description string) base {
	return base{id: uuid.New().String(), description: description}
}

func (b base) ID() string          { return b.id }
func (b base) Description() string { return b.description }

// CreateShape creates a shape; undo deletes it by ID.
type CreateShape struct {
	base
	store *canvas.Client
	shape *canvas.Shape
}

// NewCreateShape builds a create command. The shape is captured whole so undo
// followed by redo re-creates it exactly.
func NewCreateShape(store *canvas.Client, shape *canvas.Shape) *CreateShape {
	return &CreateShape{
		base:  newBase(fmt.Sprintf("Create %s", shape.Type)),
		store: store,
		shape: shape,
	}
}

func (c *CreateShape) Execute(ctx context.Context) error {
	return c.store.CreateShape(ctx, c.shape)
}

func (c *CreateShape) Undo(ctx context.Context) error {
	return c.store.DeleteShape(ctx, c.shape.ID)
}

// DeleteShape deletes a shape; undo re-creates it from the captured snapshot.
type DeleteShape struct {
	base
	store    *canvas.Client
	snapshot *canvas.Shape
}

// NewDeleteShape builds a delete command around a full pre-delete snapshot.
func NewDeleteShape(store *canvas.Client, snapshot *canvas.Shape) *DeleteShape {
	return &DeleteShape{
		base:     newBase(fmt.Sprintf("Delete %s", snapshot.Type)),
		store:    store,
		snapshot: snapshot,
	}
}

func (c *DeleteShape) Execute(ctx context.Context) error {
	return c.store.DeleteShape(ctx, c.snapshot.ID)
}

func (c *DeleteShape) Undo(ctx context.Context) error {
	return c.store.CreateShape(ctx, c.snapshot)
}

// MoveShape moves a shape between two positions.
type MoveShape struct {
	base
	store      *canvas.Client
	shapeID    string
	userID     string
	oldX, oldY float64
	newX, newY float64
}

// NewMoveShape builds a move command from the positions at gesture start and
// gesture end.
func NewMoveShape(store *canvas.Client, shapeID, userID string, oldX, oldY, newX, newY float64) *MoveShape {
	return &MoveShape{
		base:    newBase("Move shape"),
		store:   store,
		shapeID: shapeID,
		userID:  userID,
		oldX:    oldX, oldY: oldY,
		newX: newX, newY: newY,
	}
}

func (c *MoveShape) Execute(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, canvas.Fields{"x": c.newX, "y": c.newY}, c.userID)
}

func (c *MoveShape) Undo(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, canvas.Fields{"x": c.oldX, "y": c.oldY}, c.userID)
}

// ResizeShape swaps full old/new dimension field sets. The field sets are
// type-specific: width/height for rectangles and text, radius for circles,
// x2/y2 for lines. Position fields may be included when resizing moves the
// origin.
type ResizeShape struct {
	base
	store   *canvas.Client
	shapeID string
	userID  string
	oldDims canvas.Fields
	newDims canvas.Fields
}

// NewResizeShape builds a resize command from the dimension snapshots at
// gesture start and gesture end.
func NewResizeShape(store *canvas.Client, shapeID, userID string, oldDims, newDims canvas.Fields) *ResizeShape {
	return &ResizeShape{
		base:    newBase("Resize shape"),
		store:   store,
		shapeID: shapeID,
		userID:  userID,
		oldDims: oldDims,
		newDims: newDims,
	}
}

func (c *ResizeShape) Execute(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, c.newDims, c.userID)
}

func (c *ResizeShape) Undo(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, c.oldDims, c.userID)
}

// UpdateProperties symmetrically swaps old/new partial field sets
// (styling, opacity, visibility, z-index and so on).
type UpdateProperties struct {
	base
	store     *canvas.Client
	shapeID   string
	userID    string
	oldFields canvas.Fields
	newFields canvas.Fields
}

// NewUpdateProperties builds a property update command.
func NewUpdateProperties(store *canvas.Client, shapeID, userID string, oldFields, newFields canvas.Fields) *UpdateProperties {
	return &UpdateProperties{
		base:      newBase("Update properties"),
		store:     store,
		shapeID:   shapeID,
		userID:    userID,
		oldFields: oldFields,
		newFields: newFields,
	}
}

func (c *UpdateProperties) Execute(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, c.newFields, c.userID)
}

func (c *UpdateProperties) Undo(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, c.oldFields, c.userID)
}

// UpdateText swaps the text content of a text shape.
type UpdateText struct {
	base
	store   *canvas.Client
	shapeID string
	userID  string
	oldText string
	newText string
}

// NewUpdateText builds a text edit command.
func NewUpdateText(store *canvas.Client, shapeID, userID, oldText, newText string) *UpdateText {
	return &UpdateText{
		base:    newBase("Edit text"),
		store:   store,
		shapeID: shapeID,
		userID:  userID,
		oldText: oldText,
		newText: newText,
	}
}

func (c *UpdateText) Execute(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, canvas.Fields{"text": c.newText}, c.userID)
}

func (c *UpdateText) Undo(ctx context.Context) error {
	return c.store.UpdateShape(ctx, c.shapeID, canvas.Fields{"text": c.oldText}, c.userID)
}

// Batch is an ordered composite of commands that undoes as one user-visible
// step. Execute runs the sub-commands in order; Undo runs them in reverse
// order. Used for multi-shape operations: align, distribute, duplicate,
// paste, z-index changes.
//
// Sub-commands already executed before a failure are not automatically rolled
// back; the caller decides whether to invoke Undo on the partially-applied
// batch.
type Batch struct {
	base
	commands []Command
}

// NewBatch builds a batch command over the given sub-commands.
func NewBatch(description string, commands []Command) *Batch {
	return &Batch{
		base:     newBase(description),
		commands: commands,
	}
}

// Len returns the number of sub-commands.
func (c *Batch) Len() int { return len(c.commands) }

func (c *Batch) Execute(ctx context.Context) error {
	for i, sub := range c.commands {
		if err := sub.Execute(ctx); err != nil {
			return fmt.Errorf("batch step %d (%s) failed: %w", i, sub.Description(), err)
		}
	}
	return nil
}

func (c *Batch) Undo(ctx context.Context) error {
	for i := len(c.commands) - 1; i >= 0; i-- {
		if err := c.commands[i].Undo(ctx); err != nil {
			return fmt.Errorf("batch undo step %d (%s) failed: %w", i, c.commands[i].Description(), err)
		}
	}
	return nil
}
