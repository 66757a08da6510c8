package reconcile

import (
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// applyMovement overlays an ephemeral movement frame onto a shape copy.
// Movement frames always carry x/y/width/height; the width/height pair maps
// onto the variant-specific size fields via an explicit switch over the shape
// type tag:
//
//	rectangle, text: width/height used directly
//	circle:          radius = width / 2 (width carries the diameter)
//	line:            x2 = x + width, y2 = y + height (deltas to the endpoint)
func applyMovement(s *canvas.Shape, m canvas.Movement) {
	s.X = m.X
	s.Y = m.Y

	switch s.Type {
	case canvas.ShapeTypeRectangle, canvas.ShapeTypeText:
		if m.Width > 0 {
			s.Width = m.Width
		}
		if m.Height > 0 {
			s.Height = m.Height
		}
	case canvas.ShapeTypeCircle:
		if m.Width > 0 {
			s.Radius = m.Width / 2
		}
	case canvas.ShapeTypeLine:
		s.X2 = m.X + m.Width
		s.Y2 = m.Y + m.Height
	}
}
