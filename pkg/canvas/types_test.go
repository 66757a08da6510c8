package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeValidate(t *testing.T) {
	valid := func() *Shape {
		return &Shape{
			ID:        "shape-1",
			Type:      ShapeTypeRectangle,
			X:         10,
			Y:         20,
			Width:     100,
			Height:    50,
			Opacity:   1,
			Visible:   true,
			CreatedBy: "user-1",
		}
	}

	t.Run("valid rectangle passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects empty ID", func(t *testing.T) {
		s := valid()
		s.ID = ""
		err := s.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "shape ID cannot be empty")
	})

	t.Run("rejects unknown shape type", func(t *testing.T) {
		s := valid()
		s.Type = "triangle"
		err := s.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown shape type")
	})

	t.Run("rejects opacity outside [0,1]", func(t *testing.T) {
		s := valid()
		s.Opacity = 1.5
		assert.Error(t, s.Validate())

		s.Opacity = -0.1
		assert.Error(t, s.Validate())
	})

	t.Run("rejects empty created_by", func(t *testing.T) {
		s := valid()
		s.CreatedBy = ""
		assert.Error(t, s.Validate())
	})

	t.Run("rejects negative rectangle dimensions", func(t *testing.T) {
		s := valid()
		s.Width = -1
		assert.Error(t, s.Validate())
	})

	t.Run("rejects negative circle radius", func(t *testing.T) {
		s := valid()
		s.Type = ShapeTypeCircle
		s.Radius = -5
		assert.Error(t, s.Validate())
	})

	t.Run("line with negative deltas is valid", func(t *testing.T) {
		s := valid()
		s.Type = ShapeTypeLine
		s.X2 = s.X - 100
		s.Y2 = s.Y - 100
		assert.NoError(t, s.Validate())
	})

	t.Run("rejects negative font size", func(t *testing.T) {
		s := valid()
		s.Type = ShapeTypeText
		s.Text = "hello"
		s.FontSize = -12
		assert.Error(t, s.Validate())
	})
}

func TestShapeTypeValidate(t *testing.T) {
	for _, st := range []ShapeType{ShapeTypeRectangle, ShapeTypeCircle, ShapeTypeLine, ShapeTypeText} {
		assert.NoError(t, st.Validate(), "type %q should validate", st)
	}
	assert.Error(t, ShapeType("").Validate())
	assert.Error(t, ShapeType("polygon").Validate())
}

func TestMovementValidate(t *testing.T) {
	t.Run("valid dragging movement", func(t *testing.T) {
		m := &Movement{ShapeID: "shape-1", IsDragging: true, DraggedBy: "user-1"}
		assert.NoError(t, m.Validate())
	})

	t.Run("rejects empty shape ID", func(t *testing.T) {
		m := &Movement{IsDragging: true, DraggedBy: "user-1"}
		assert.Error(t, m.Validate())
	})

	t.Run("dragging requires dragged_by", func(t *testing.T) {
		m := &Movement{ShapeID: "shape-1", IsDragging: true}
		assert.Error(t, m.Validate())
	})

	t.Run("retired marker needs no dragged_by", func(t *testing.T) {
		m := &Movement{ShapeID: "shape-1", IsDragging: false}
		assert.NoError(t, m.Validate())
	})
}

func TestLockValidate(t *testing.T) {
	assert.NoError(t, (&Lock{UserID: "user-1"}).Validate())
	assert.Error(t, (&Lock{}).Validate())
}

func TestPresenceValidate(t *testing.T) {
	assert.NoError(t, (&Presence{UserID: "user-1"}).Validate())
	assert.Error(t, (&Presence{}).Validate())
}
