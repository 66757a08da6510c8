package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miriamsimone/collab-canvas-sub000/internal/command"
	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// testSession assembles a full session against miniredis. The heartbeat is
// nil: presence has its own tests and the session treats it as optional.
func testSession(t *testing.T) (*Session, *canvas.Client, *lock.Manager) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	opts := &redis.Options{Addr: mr.Addr()}

	store, err := canvas.NewClient(opts, "test-board")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	movements, err := ephemeral.NewStore(opts, "test-board", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { movements.Close() })

	locks, err := lock.NewManager(opts, "test-board")
	require.NoError(t, err)
	t.Cleanup(func() { locks.Close() })

	user := User{ID: "user-1", Name: "Ada", Color: "#ff0000"}
	engine := reconcile.NewEngine(user.ID, 0)
	history := command.NewHistory(user.ID)

	return New(user, store, movements, locks, nil, engine, history), store, locks
}

func createRect(t *testing.T, store *canvas.Client, x, y float64) *canvas.Shape {
	t.Helper()
	shape := &canvas.Shape{
		ID:        uuid.New().String(),
		Type:      canvas.ShapeTypeRectangle,
		X:         x,
		Y:         y,
		Width:     100,
		Height:    50,
		Opacity:   1,
		Visible:   true,
		CreatedBy: "user-1",
	}
	require.NoError(t, store.CreateShape(context.Background(), shape))
	return shape
}

func TestDragLifecycle(t *testing.T) {
	sess, store, locks := testSession(t)
	ctx := context.Background()

	shape := createRect(t, store, 10, 20)

	t.Run("drag start takes the advisory lock", func(t *testing.T) {
		require.NoError(t, sess.OnDragStart(ctx, shape.ID))

		lockMap, err := locks.Snapshot(ctx)
		require.NoError(t, err)
		require.Contains(t, lockMap, shape.ID)
		assert.Equal(t, "user-1", lockMap[shape.ID].UserID)
	})

	t.Run("drag end commits the move and releases the lock", func(t *testing.T) {
		sess.OnDragMove(ctx, shape.ID, 150, 160)
		require.NoError(t, sess.OnDragEnd(ctx, shape.ID, 300, 400))

		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, 300.0, got.X)
		assert.Equal(t, 400.0, got.Y)

		lockMap, err := locks.Snapshot(ctx)
		require.NoError(t, err)
		assert.NotContains(t, lockMap, shape.ID)
	})

	t.Run("the committed move is undoable back to the gesture origin", func(t *testing.T) {
		require.True(t, sess.CanUndo())
		require.NoError(t, sess.Undo(ctx))

		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.X)
		assert.Equal(t, 20.0, got.Y)
	})

	t.Run("drag end without a start is an error", func(t *testing.T) {
		assert.Error(t, sess.OnDragEnd(ctx, shape.ID, 1, 1))
	})

	t.Run("drag start on a missing shape is an error", func(t *testing.T) {
		assert.Error(t, sess.OnDragStart(ctx, "does-not-exist"))
	})
}

func TestTransformLifecycle(t *testing.T) {
	sess, store, _ := testSession(t)
	ctx := context.Background()

	shape := createRect(t, store, 10, 20)

	require.NoError(t, sess.OnTransformStart(ctx, shape.ID))
	sess.OnTransformMove(ctx, shape.ID, 10, 20, 180, 90)
	require.NoError(t, sess.OnTransformEnd(ctx, shape.ID,
		canvas.Fields{"x": 10.0, "y": 20.0, "width": 200.0, "height": 100.0}))

	got, err := store.GetShape(ctx, shape.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, got.Width)

	t.Run("undo restores the pre-gesture dimensions", func(t *testing.T) {
		require.NoError(t, sess.Undo(ctx))
		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, got.Width)
		assert.Equal(t, 50.0, got.Height)
	})
}

func TestCreateAndDeleteShape(t *testing.T) {
	sess, store, _ := testSession(t)
	ctx := context.Background()

	shape := &canvas.Shape{
		ID:      uuid.New().String(),
		Type:    canvas.ShapeTypeCircle,
		X:       50,
		Y:       50,
		Radius:  25,
		Opacity: 1,
		Visible: true,
	}

	t.Run("create stamps the session user and is undoable", func(t *testing.T) {
		require.NoError(t, sess.CreateShape(ctx, shape))

		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.CreatedBy)

		require.NoError(t, sess.Undo(ctx))
		exists, err := store.ShapeExists(ctx, shape.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, sess.Redo(ctx))
	})

	t.Run("delete snapshots for undo", func(t *testing.T) {
		require.NoError(t, sess.DeleteShape(ctx, shape.ID))
		exists, err := store.ShapeExists(ctx, shape.ID)
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, sess.Undo(ctx))
		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, 25.0, got.Radius)
	})
}

func TestDeleteShapesBatch(t *testing.T) {
	sess, store, _ := testSession(t)
	ctx := context.Background()

	a := createRect(t, store, 0, 0)
	b := createRect(t, store, 10, 10)

	require.NoError(t, sess.DeleteShapes(ctx, []string{a.ID, b.ID}))

	shapes, err := store.ListShapes(ctx)
	require.NoError(t, err)
	assert.Empty(t, shapes)

	// One undo step restores both.
	require.NoError(t, sess.Undo(ctx))
	shapes, err = store.ListShapes(ctx)
	require.NoError(t, err)
	assert.Len(t, shapes, 2)
	assert.False(t, sess.CanUndo())
}

func TestUpdateProperties(t *testing.T) {
	sess, store, _ := testSession(t)
	ctx := context.Background()

	shape := createRect(t, store, 0, 0)

	require.NoError(t, sess.UpdateProperties(ctx, shape.ID,
		canvas.Fields{"opacity": 0.5, "fill": "#00ff00"}))

	got, err := store.GetShape(ctx, shape.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Opacity)
	assert.Equal(t, "#00ff00", got.Fill)

	t.Run("old values are captured automatically for undo", func(t *testing.T) {
		require.NoError(t, sess.Undo(ctx))
		got, err := store.GetShape(ctx, shape.ID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.Opacity)
		assert.Empty(t, got.Fill)
	})
}

func TestUpdateText(t *testing.T) {
	sess, store, _ := testSession(t)
	ctx := context.Background()

	shape := &canvas.Shape{
		ID:        uuid.New().String(),
		Type:      canvas.ShapeTypeText,
		Text:      "before",
		FontSize:  14,
		Opacity:   1,
		Visible:   true,
		CreatedBy: "user-1",
	}
	require.NoError(t, store.CreateShape(ctx, shape))

	require.NoError(t, sess.UpdateText(ctx, shape.ID, "after"))
	got, err := store.GetShape(ctx, shape.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)

	require.NoError(t, sess.Undo(ctx))
	got, err = store.GetShape(ctx, shape.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Text)
}

func TestClose(t *testing.T) {
	sess, store, locks := testSession(t)
	ctx := context.Background()

	a := createRect(t, store, 0, 0)
	b := createRect(t, store, 10, 10)
	require.NoError(t, sess.OnDragStart(ctx, a.ID))
	require.NoError(t, sess.OnDragStart(ctx, b.ID))

	sess.Close(ctx)

	lockMap, err := locks.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, lockMap)
}

func TestFrameSize(t *testing.T) {
	t.Run("circle carries its diameter", func(t *testing.T) {
		w, h := frameSize(&canvas.Shape{Type: canvas.ShapeTypeCircle, Radius: 30})
		assert.Equal(t, 60.0, w)
		assert.Equal(t, 60.0, h)
	})

	t.Run("line carries endpoint deltas", func(t *testing.T) {
		w, h := frameSize(&canvas.Shape{Type: canvas.ShapeTypeLine, X: 10, Y: 10, X2: 110, Y2: 60})
		assert.Equal(t, 100.0, w)
		assert.Equal(t, 50.0, h)
	})

	t.Run("rectangle carries width and height", func(t *testing.T) {
		w, h := frameSize(&canvas.Shape{Type: canvas.ShapeTypeRectangle, Width: 80, Height: 40})
		assert.Equal(t, 80.0, w)
		assert.Equal(t, 40.0, h)
	})
}
