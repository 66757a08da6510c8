package canvas

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeHashRoundTrip(t *testing.T) {
	original := &Shape{
		ID:             "shape-1",
		Type:           ShapeTypeCircle,
		X:              12.5,
		Y:              -3.25,
		Rotation:       45,
		Opacity:        0.8,
		Visible:        true,
		Locked:         false,
		ZIndex:         7,
		CreatedBy:      "user-1",
		CreatedAtMs:    1700000000000,
		UpdatedAtMs:    1700000001000,
		LastModifiedBy: "user-2",
		Radius:         40,
		Fill:           "#ff0000",
		Stroke:         "#000000",
		StrokeWidth:    2,
	}

	hash := ShapeToHash(original)

	// HSet stores everything as strings; simulate what comes back.
	stringHash := make(map[string]string, len(hash))
	for k, v := range hash {
		switch val := v.(type) {
		case string:
			stringHash[k] = val
		case int:
			stringHash[k] = strconv.Itoa(val)
		case int64:
			stringHash[k] = strconv.FormatInt(val, 10)
		}
	}

	restored, err := HashToShape(stringHash)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestHashToShapeTolerance(t *testing.T) {
	t.Run("missing numeric fields default to zero", func(t *testing.T) {
		shape, err := HashToShape(map[string]string{
			"id":         "shape-1",
			"type":       "rectangle",
			"created_by": "user-1",
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, shape.X)
		assert.Equal(t, 0, shape.ZIndex)
		assert.False(t, shape.Visible)
	})

	t.Run("rejects malformed z_index", func(t *testing.T) {
		_, err := HashToShape(map[string]string{"id": "shape-1", "z_index": "seven"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid z_index")
	})
}

func TestFieldsValidate(t *testing.T) {
	t.Run("accepts mutable fields", func(t *testing.T) {
		f := Fields{"x": 10.0, "y": 20.0, "visible": false, "text": "hi", "z_index": 3}
		assert.NoError(t, f.Validate())
	})

	t.Run("rejects empty update", func(t *testing.T) {
		assert.Error(t, Fields{}.Validate())
	})

	t.Run("rejects identity fields", func(t *testing.T) {
		for _, name := range []string{"id", "type", "created_by", "created_at_ms"} {
			err := Fields{name: "nope"}.Validate()
			assert.Error(t, err, "field %q must not be updatable", name)
		}
	})

	t.Run("rejects unknown field", func(t *testing.T) {
		assert.Error(t, Fields{"colour": "red"}.Validate())
	})

	t.Run("rejects unsupported value type", func(t *testing.T) {
		assert.Error(t, Fields{"x": []int{1}}.Validate())
	})
}

func TestFieldsToHash(t *testing.T) {
	hash := Fields{"x": 12.5, "visible": true, "text": "hello", "z_index": 4}.ToHash()
	assert.Equal(t, "12.5", hash["x"])
	assert.Equal(t, "true", hash["visible"])
	assert.Equal(t, "hello", hash["text"])
	assert.Equal(t, 4, hash["z_index"])
}

func TestFieldsApplyTo(t *testing.T) {
	shape := &Shape{ID: "shape-1", Type: ShapeTypeText, X: 1, Text: "old", FontSize: 12}

	Fields{"x": 100.0, "text": "new", "font_size": 18.0, "visible": true}.ApplyTo(shape)

	assert.Equal(t, 100.0, shape.X)
	assert.Equal(t, "new", shape.Text)
	assert.Equal(t, 18.0, shape.FontSize)
	assert.True(t, shape.Visible)
	// Untouched fields stay put.
	assert.Equal(t, "shape-1", shape.ID)
	assert.Equal(t, ShapeTypeText, shape.Type)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "12.5", formatFloat(12.5))
	assert.Equal(t, "12", formatFloat(12))
	assert.Equal(t, "0", formatFloat(nan()))
}

func nan() float64 {
	return math.NaN()
}
