package canvas

import (
	"fmt"
	"math"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Numeric fields are
// formatted with strconv so partial updates can target individual fields
// without rewriting the whole document.

// ShapeToHash converts a Shape struct to a Redis hash format.
func ShapeToHash(s *Shape) map[string]interface{} {
	return map[string]interface{}{
		"id":               s.ID,
		"type":             string(s.Type),
		"x":                formatFloat(s.X),
		"y":                formatFloat(s.Y),
		"rotation":         formatFloat(s.Rotation),
		"opacity":          formatFloat(s.Opacity),
		"visible":          strconv.FormatBool(s.Visible),
		"locked":           strconv.FormatBool(s.Locked),
		"z_index":          s.ZIndex,
		"created_by":       s.CreatedBy,
		"created_at_ms":    s.CreatedAtMs,
		"updated_at_ms":    s.UpdatedAtMs,
		"last_modified_by": s.LastModifiedBy,
		"width":            formatFloat(s.Width),
		"height":           formatFloat(s.Height),
		"radius":           formatFloat(s.Radius),
		"x2":               formatFloat(s.X2),
		"y2":               formatFloat(s.Y2),
		"text":             s.Text,
		"font_size":        formatFloat(s.FontSize),
		"fill":             s.Fill,
		"stroke":           s.Stroke,
		"stroke_width":     formatFloat(s.StrokeWidth),
	}
}

// HashToShape converts a Redis hash to a Shape struct.
func HashToShape(hash map[string]string) (*Shape, error) {
	zIndex, err := parseInt(hash["z_index"])
	if err != nil {
		return nil, fmt.Errorf("invalid z_index field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)
	visible, _ := strconv.ParseBool(hash["visible"])
	locked, _ := strconv.ParseBool(hash["locked"])

	shape := &Shape{
		ID:             hash["id"],
		Type:           ShapeType(hash["type"]),
		X:              parseFloat(hash["x"]),
		Y:              parseFloat(hash["y"]),
		Rotation:       parseFloat(hash["rotation"]),
		Opacity:        parseFloat(hash["opacity"]),
		Visible:        visible,
		Locked:         locked,
		ZIndex:         zIndex,
		CreatedBy:      hash["created_by"],
		CreatedAtMs:    createdAtMs,
		UpdatedAtMs:    updatedAtMs,
		LastModifiedBy: hash["last_modified_by"],
		Width:          parseFloat(hash["width"]),
		Height:         parseFloat(hash["height"]),
		Radius:         parseFloat(hash["radius"]),
		X2:             parseFloat(hash["x2"]),
		Y2:             parseFloat(hash["y2"]),
		Text:           hash["text"],
		FontSize:       parseFloat(hash["font_size"]),
		Fill:           hash["fill"],
		Stroke:         hash["stroke"],
		StrokeWidth:    parseFloat(hash["stroke_width"]),
	}

	return shape, nil
}

// Fields is a partial shape update: a map of hash field name to new value.
// Only the whitelisted mutable fields may appear; identity and provenance
// fields (id, type, created_by, created_at_ms) are never updatable.
type Fields map[string]interface{}

// mutableFields is the set of shape fields a partial update may touch.
var mutableFields = map[string]bool{
	"x": true, "y": true, "rotation": true, "opacity": true,
	"visible": true, "locked": true, "z_index": true,
	"width": true, "height": true, "radius": true, "x2": true, "y2": true,
	"text": true, "font_size": true, "fill": true, "stroke": true, "stroke_width": true,
}

// Validate checks that every field name is updatable and every value has a
// representable type.
func (f Fields) Validate() error {
	if len(f) == 0 {
		return fmt.Errorf("update must contain at least one field")
	}
	for name, value := range f {
		if !mutableFields[name] {
			return fmt.Errorf("field %q is not updatable", name)
		}
		switch value.(type) {
		case float64, int, bool, string:
		default:
			return fmt.Errorf("field %q has unsupported type %T", name, value)
		}
	}
	return nil
}

// ToHash converts the fields to Redis hash format, normalising numeric and
// boolean values to the same string encoding ShapeToHash uses.
func (f Fields) ToHash() map[string]interface{} {
	hash := make(map[string]interface{}, len(f))
	for name, value := range f {
		switch v := value.(type) {
		case float64:
			hash[name] = formatFloat(v)
		case bool:
			hash[name] = strconv.FormatBool(v)
		default:
			hash[name] = v
		}
	}
	return hash
}

// ApplyTo overlays the fields onto an in-memory shape copy. Used to build the
// event payload after a partial durable update without re-reading the hash.
func (f Fields) ApplyTo(s *Shape) {
	for name, value := range f {
		switch name {
		case "x":
			s.X = toFloat(value)
		case "y":
			s.Y = toFloat(value)
		case "rotation":
			s.Rotation = toFloat(value)
		case "opacity":
			s.Opacity = toFloat(value)
		case "visible":
			s.Visible, _ = value.(bool)
		case "locked":
			s.Locked, _ = value.(bool)
		case "z_index":
			s.ZIndex = int(toFloat(value))
		case "width":
			s.Width = toFloat(value)
		case "height":
			s.Height = toFloat(value)
		case "radius":
			s.Radius = toFloat(value)
		case "x2":
			s.X2 = toFloat(value)
		case "y2":
			s.Y2 = toFloat(value)
		case "text":
			s.Text, _ = value.(string)
		case "font_size":
			s.FontSize = toFloat(value)
		case "fill":
			s.Fill, _ = value.(string)
		case "stroke":
			s.Stroke, _ = value.(string)
		case "stroke_width":
			s.StrokeWidth = toFloat(value)
		}
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
