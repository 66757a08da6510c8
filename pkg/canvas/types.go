package canvas

import (
	"fmt"
)

// Shape represents one persisted shape document. It is a tagged variant over
// the four supported shape types; the common fields are always meaningful and
// the variant fields are interpreted according to Type.
//
// Persisted fields are only ever written through a command — nothing else in
// the system mutates the durable store directly.
type Shape struct {
	ID             string    `json:"id"`                         // Globally unique, assigned by the creator
	Type           ShapeType `json:"type"`                       // Variant tag
	X              float64   `json:"x"`                          // Origin (semantics vary by variant)
	Y              float64   `json:"y"`
	Rotation       float64   `json:"rotation"`
	Opacity        float64   `json:"opacity"`
	Visible        bool      `json:"visible"`
	Locked         bool      `json:"locked"` // Author-set flag, distinct from the runtime editing lock
	ZIndex         int       `json:"z_index"`
	CreatedBy      string    `json:"created_by"`
	CreatedAtMs    int64     `json:"created_at_ms"`
	UpdatedAtMs    int64     `json:"updated_at_ms"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`

	// Rectangle and Text
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// Circle
	Radius float64 `json:"radius,omitempty"`

	// Line endpoint
	X2 float64 `json:"x2,omitempty"`
	Y2 float64 `json:"y2,omitempty"`

	// Text
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"font_size,omitempty"`

	// Styling (fill unused for lines)
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// ShapeType defines the variant tag of a shape.
type ShapeType string

const (
	ShapeTypeRectangle ShapeType = "rectangle"
	ShapeTypeCircle    ShapeType = "circle"
	ShapeTypeLine      ShapeType = "line"
	ShapeTypeText      ShapeType = "text"
)

// Movement is one ephemeral broadcast frame for a shape that is being
// actively dragged or resized. Movements are short-lived: an entry is active
// only while IsDragging is true and it is younger than the active TTL.
//
// For circles Width carries the diameter; for lines Width/Height carry the
// delta from (X, Y) to the far endpoint. The reconciler maps these back onto
// the variant-specific fields.
type Movement struct {
	ShapeID     string  `json:"shape_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	IsDragging  bool    `json:"is_dragging"`
	DraggedBy   string  `json:"dragged_by"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Lock is an advisory editing claim on a shape. At most one record exists per
// shape, but acquisition is a plain overwrite, not a compare-and-swap: two
// users racing to lock the same shape both succeed and the later write wins.
type Lock struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	UserColor   string `json:"user_color"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Presence is one user's liveness and cursor record. Records older than the
// presence TTL, or explicitly marked inactive, are excluded from the presence
// view.
type Presence struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	CursorX     float64 `json:"cursor_x"`
	CursorY     float64 `json:"cursor_y"`
	Color       string  `json:"color"`
	LastSeenMs  int64   `json:"last_seen_ms"`
	IsActive    bool    `json:"is_active"`
}

// EventKind describes what a shape event notification reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ShapeEvent is published on the shape events channel after every durable
// write. Deleted events carry only the shape ID.
type ShapeEvent struct {
	Kind    EventKind `json:"kind"`
	ShapeID string    `json:"shape_id"`
	Shape   *Shape    `json:"shape,omitempty"`
}

// Validate checks if the Shape has valid field values.
// Returns an error if any validation fails.
func (s *Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("shape ID cannot be empty")
	}

	if err := s.Type.Validate(); err != nil {
		return fmt.Errorf("invalid shape type: %w", err)
	}

	if s.Opacity < 0 || s.Opacity > 1 {
		return fmt.Errorf("invalid opacity: must be in [0, 1], got %v", s.Opacity)
	}

	if s.CreatedBy == "" {
		return fmt.Errorf("created_by cannot be empty")
	}

	switch s.Type {
	case ShapeTypeRectangle:
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("invalid rectangle dimensions: %vx%v", s.Width, s.Height)
		}
	case ShapeTypeCircle:
		if s.Radius < 0 {
			return fmt.Errorf("invalid circle radius: %v", s.Radius)
		}
	case ShapeTypeText:
		if s.FontSize < 0 {
			return fmt.Errorf("invalid font size: %v", s.FontSize)
		}
	}

	return nil
}

// Validate checks if the ShapeType is a valid enum value.
func (st ShapeType) Validate() error {
	switch st {
	case ShapeTypeRectangle, ShapeTypeCircle, ShapeTypeLine, ShapeTypeText:
		return nil
	default:
		return fmt.Errorf("unknown shape type: %q", st)
	}
}

// Validate checks if the Movement has valid field values.
func (m *Movement) Validate() error {
	if m.ShapeID == "" {
		return fmt.Errorf("movement shape ID cannot be empty")
	}
	if m.IsDragging && m.DraggedBy == "" {
		return fmt.Errorf("dragging movement must carry dragged_by")
	}
	return nil
}

// Validate checks if the Lock has valid field values.
func (l *Lock) Validate() error {
	if l.UserID == "" {
		return fmt.Errorf("lock user ID cannot be empty")
	}
	return nil
}

// Validate checks if the Presence record has valid field values.
func (p *Presence) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("presence user ID cannot be empty")
	}
	return nil
}
