package session

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/miriamsimone/collab-canvas-sub000/internal/command"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// ActionKind tags one typed, already-validated action arriving from the
// assistant translator. The session does not parse natural language; it only
// maps actions onto reversible commands.
type ActionKind string

const (
	ActionCreate     ActionKind = "create"
	ActionBulkCreate ActionKind = "bulk_create"
	ActionMove       ActionKind = "move"
	ActionResize     ActionKind = "resize"
	ActionAlign      ActionKind = "align"
	ActionZIndex     ActionKind = "z_index"
)

// AlignEdge selects the alignment target edge or axis.
type AlignEdge string

const (
	AlignLeft    AlignEdge = "left"
	AlignRight   AlignEdge = "right"
	AlignTop     AlignEdge = "top"
	AlignBottom  AlignEdge = "bottom"
	AlignCenterX AlignEdge = "center_x"
	AlignCenterY AlignEdge = "center_y"
)

// Action is one element of a translated assistant request.
type Action struct {
	Kind     ActionKind
	Shape    *canvas.Shape   // create
	Shapes   []*canvas.Shape // bulk_create
	ShapeID  string          // move, resize
	ShapeIDs []string        // align, z_index
	X, Y     float64         // move
	Dims     canvas.Fields   // resize
	Edge     AlignEdge       // align
	ToFront  bool            // z_index
}

// ApplyActions maps a validated action list onto commands and executes them.
// A single action becomes its command directly; multiple actions are wrapped
// in a batch so the whole request undoes as one user-visible step.
func (s *Session) ApplyActions(ctx context.Context, actions []Action, description string) error {
	var cmds []command.Command
	for i, action := range actions {
		built, err := s.buildActionCommands(ctx, action)
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}
		cmds = append(cmds, built...)
	}

	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return s.history.Execute(ctx, cmds[0])
	default:
		return s.history.Execute(ctx, command.NewBatch(description, cmds))
	}
}

// RecordAppliedAction wraps the captured effects of an externally-applied
// assistant edit in a no-op-execute command so it participates in undo.
func (s *Session) RecordAppliedAction(ctx context.Context, description string,
	createdIDs []string, modified []command.ModifiedShape, deletedShapes []*canvas.Shape) error {
	cmd := command.NewAssistantAction(s.store, s.user.ID, description, createdIDs, modified, deletedShapes)
	return s.history.Execute(ctx, cmd)
}

func (s *Session) buildActionCommands(ctx context.Context, action Action) ([]command.Command, error) {
	switch action.Kind {
	case ActionCreate:
		action.Shape.CreatedBy = s.user.ID
		return []command.Command{command.NewCreateShape(s.store, action.Shape)}, nil

	case ActionBulkCreate:
		cmds := make([]command.Command, 0, len(action.Shapes))
		for _, shape := range action.Shapes {
			shape.CreatedBy = s.user.ID
			cmds = append(cmds, command.NewCreateShape(s.store, shape))
		}
		return cmds, nil

	case ActionMove:
		shape, err := s.store.GetShape(ctx, action.ShapeID)
		if err != nil {
			return nil, err
		}
		return []command.Command{
			command.NewMoveShape(s.store, action.ShapeID, s.user.ID, shape.X, shape.Y, action.X, action.Y),
		}, nil

	case ActionResize:
		shape, err := s.store.GetShape(ctx, action.ShapeID)
		if err != nil {
			return nil, err
		}
		return []command.Command{
			command.NewResizeShape(s.store, action.ShapeID, s.user.ID, dimensionFields(shape), action.Dims),
		}, nil

	case ActionAlign:
		return s.buildAlignCommands(ctx, action.ShapeIDs, action.Edge)

	case ActionZIndex:
		return s.buildZIndexCommands(ctx, action.ShapeIDs, action.ToFront)

	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// AlignShapes aligns the selection to a common edge or axis as one undoable
// batch.
func (s *Session) AlignShapes(ctx context.Context, shapeIDs []string, edge AlignEdge) error {
	cmds, err := s.buildAlignCommands(ctx, shapeIDs, edge)
	if err != nil {
		return err
	}
	return s.history.Execute(ctx, command.NewBatch(fmt.Sprintf("Align %s", edge), cmds))
}

// DistributeShapes spaces the selection evenly along one axis as one undoable
// batch.
func (s *Session) DistributeShapes(ctx context.Context, shapeIDs []string, horizontal bool) error {
	if len(shapeIDs) < 3 {
		return fmt.Errorf("distribute needs at least three shapes, got %d", len(shapeIDs))
	}

	shapes, err := s.loadShapes(ctx, shapeIDs)
	if err != nil {
		return err
	}

	first, last := shapes[0], shapes[0]
	for _, sh := range shapes {
		if axisOrigin(sh, horizontal) < axisOrigin(first, horizontal) {
			first = sh
		}
		if axisOrigin(sh, horizontal) > axisOrigin(last, horizontal) {
			last = sh
		}
	}

	span := axisOrigin(last, horizontal) - axisOrigin(first, horizontal)
	step := span / float64(len(shapes)-1)

	// Stable order along the axis before assigning slots.
	ordered := make([]*canvas.Shape, len(shapes))
	copy(ordered, shapes)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if axisOrigin(ordered[j], horizontal) < axisOrigin(ordered[i], horizontal) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	cmds := make([]command.Command, 0, len(ordered))
	for i, sh := range ordered {
		target := axisOrigin(first, horizontal) + step*float64(i)
		newX, newY := sh.X, sh.Y
		if horizontal {
			newX = target
		} else {
			newY = target
		}
		if newX == sh.X && newY == sh.Y {
			continue
		}
		cmds = append(cmds, command.NewMoveShape(s.store, sh.ID, s.user.ID, sh.X, sh.Y, newX, newY))
	}
	if len(cmds) == 0 {
		return nil
	}

	return s.history.Execute(ctx, command.NewBatch("Distribute shapes", cmds))
}

// DuplicateShapes creates offset copies of the selection as one undoable
// batch. New IDs are generated for the copies.
func (s *Session) DuplicateShapes(ctx context.Context, shapeIDs []string, dx, dy float64) error {
	shapes, err := s.loadShapes(ctx, shapeIDs)
	if err != nil {
		return err
	}

	cmds := make([]command.Command, 0, len(shapes))
	for _, sh := range shapes {
		copyShape := *sh
		copyShape.ID = uuid.New().String()
		copyShape.X += dx
		copyShape.Y += dy
		if copyShape.Type == canvas.ShapeTypeLine {
			copyShape.X2 += dx
			copyShape.Y2 += dy
		}
		copyShape.CreatedBy = s.user.ID
		copyShape.CreatedAtMs = 0
		cmds = append(cmds, command.NewCreateShape(s.store, &copyShape))
	}

	return s.history.Execute(ctx, command.NewBatch("Duplicate shapes", cmds))
}

// BringToFront raises the selection above every other shape, as one undoable
// batch.
func (s *Session) BringToFront(ctx context.Context, shapeIDs []string) error {
	cmds, err := s.buildZIndexCommands(ctx, shapeIDs, true)
	if err != nil {
		return err
	}
	return s.history.Execute(ctx, command.NewBatch("Bring to front", cmds))
}

// SendToBack lowers the selection below every other shape, as one undoable
// batch.
func (s *Session) SendToBack(ctx context.Context, shapeIDs []string) error {
	cmds, err := s.buildZIndexCommands(ctx, shapeIDs, false)
	if err != nil {
		return err
	}
	return s.history.Execute(ctx, command.NewBatch("Send to back", cmds))
}

func (s *Session) buildAlignCommands(ctx context.Context, shapeIDs []string, edge AlignEdge) ([]command.Command, error) {
	if len(shapeIDs) < 2 {
		return nil, fmt.Errorf("align needs at least two shapes, got %d", len(shapeIDs))
	}

	shapes, err := s.loadShapes(ctx, shapeIDs)
	if err != nil {
		return nil, err
	}

	// Selection bounding box.
	minLeft, minTop := math.Inf(1), math.Inf(1)
	maxRight, maxBottom := math.Inf(-1), math.Inf(-1)
	for _, sh := range shapes {
		left, top, right, bottom := bounds(sh)
		minLeft = math.Min(minLeft, left)
		minTop = math.Min(minTop, top)
		maxRight = math.Max(maxRight, right)
		maxBottom = math.Max(maxBottom, bottom)
	}

	var cmds []command.Command
	for _, sh := range shapes {
		left, top, right, bottom := bounds(sh)
		newX, newY := sh.X, sh.Y

		switch edge {
		case AlignLeft:
			newX = sh.X + (minLeft - left)
		case AlignRight:
			newX = sh.X + (maxRight - right)
		case AlignTop:
			newY = sh.Y + (minTop - top)
		case AlignBottom:
			newY = sh.Y + (maxBottom - bottom)
		case AlignCenterX:
			center := (minLeft + maxRight) / 2
			newX = sh.X + (center - (left+right)/2)
		case AlignCenterY:
			center := (minTop + maxBottom) / 2
			newY = sh.Y + (center - (top+bottom)/2)
		default:
			return nil, fmt.Errorf("unknown align edge %q", edge)
		}

		if newX == sh.X && newY == sh.Y {
			continue
		}
		cmds = append(cmds, command.NewMoveShape(s.store, sh.ID, s.user.ID, sh.X, sh.Y, newX, newY))
	}

	return cmds, nil
}

func (s *Session) buildZIndexCommands(ctx context.Context, shapeIDs []string, toFront bool) ([]command.Command, error) {
	if len(shapeIDs) == 0 {
		return nil, fmt.Errorf("z-index change needs at least one shape")
	}

	all, err := s.store.ListShapes(ctx)
	if err != nil {
		return nil, err
	}

	extreme := 0
	for _, sh := range all {
		if toFront && sh.ZIndex > extreme {
			extreme = sh.ZIndex
		}
		if !toFront && sh.ZIndex < extreme {
			extreme = sh.ZIndex
		}
	}

	selected, err := s.loadShapes(ctx, shapeIDs)
	if err != nil {
		return nil, err
	}

	cmds := make([]command.Command, 0, len(selected))
	for i, sh := range selected {
		var target int
		if toFront {
			target = extreme + 1 + i
		} else {
			target = extreme - 1 - i
		}
		cmds = append(cmds, command.NewUpdateProperties(s.store, sh.ID, s.user.ID,
			canvas.Fields{"z_index": sh.ZIndex}, canvas.Fields{"z_index": target}))
	}
	return cmds, nil
}

func (s *Session) loadShapes(ctx context.Context, shapeIDs []string) ([]*canvas.Shape, error) {
	shapes := make([]*canvas.Shape, 0, len(shapeIDs))
	for _, id := range shapeIDs {
		sh, err := s.store.GetShape(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load shape %s: %w", id, err)
		}
		shapes = append(shapes, sh)
	}
	return shapes, nil
}

// bounds computes the axis-aligned extent of a shape per variant: rectangles
// and text extend from the origin, circles are centred on it, lines span
// their endpoints.
func bounds(s *canvas.Shape) (left, top, right, bottom float64) {
	switch s.Type {
	case canvas.ShapeTypeCircle:
		return s.X - s.Radius, s.Y - s.Radius, s.X + s.Radius, s.Y + s.Radius
	case canvas.ShapeTypeLine:
		return math.Min(s.X, s.X2), math.Min(s.Y, s.Y2), math.Max(s.X, s.X2), math.Max(s.Y, s.Y2)
	default:
		return s.X, s.Y, s.X + s.Width, s.Y + s.Height
	}
}

func axisOrigin(s *canvas.Shape, horizontal bool) float64 {
	if horizontal {
		return s.X
	}
	return s.Y
}
