package command

import (
	"context"
	"fmt"

	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// ModifiedShape captures the reversible delta for one shape an assistant
// action modified.
type ModifiedShape struct {
	ShapeID   string
	OldFields canvas.Fields
}

// AssistantAction is the boundary command for externally-applied bulk edits:
// the assistant translator has already applied its side effects by the time
// the command is constructed, so Execute is a no-op and only Undo does work.
//
// Undo deletes every shape the action created, restores every shape it
// modified to the captured old state, and re-creates every shape it deleted.
type AssistantAction struct {
	base
	store         *canvas.Client
	userID        string
	createdIDs    []string
	modified      []ModifiedShape
	deletedShapes []*canvas.Shape
}

// NewAssistantAction builds the boundary command from the captured effects of
// an already-applied assistant action.
func NewAssistantAction(store *canvas.Client, userID, description string,
	createdIDs []string, modified []ModifiedShape, deletedShapes []*canvas.Shape) *AssistantAction {
	return &AssistantAction{
		base:          newBase(description),
		store:         store,
		userID:        userID,
		createdIDs:    createdIDs,
		modified:      modified,
		deletedShapes: deletedShapes,
	}
}

// Execute is a no-op: the side effects were applied at construction time.
func (c *AssistantAction) Execute(ctx context.Context) error {
	return nil
}

func (c *AssistantAction) Undo(ctx context.Context) error {
	if len(c.createdIDs) > 0 {
		if err := c.store.DeleteShapes(ctx, c.createdIDs); err != nil {
			return fmt.Errorf("failed to remove created shapes: %w", err)
		}
	}

	for _, mod := range c.modified {
		if err := c.store.UpdateShape(ctx, mod.ShapeID, mod.OldFields, c.userID); err != nil {
			return fmt.Errorf("failed to restore shape %s: %w", mod.ShapeID, err)
		}
	}

	for _, snapshot := range c.deletedShapes {
		if err := c.store.CreateShape(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to re-create shape %s: %w", snapshot.ID, err)
		}
	}

	return nil
}
