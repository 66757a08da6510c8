package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

func setupTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	mgr, err := NewManager(&redis.Options{Addr: mr.Addr()}, "test-board")
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	return mgr, mr
}

func TestNewManager(t *testing.T) {
	t.Run("rejects empty board name", func(t *testing.T) {
		_, err := NewManager(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
	})
}

func TestAcquire(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	t.Run("writes a lock record", func(t *testing.T) {
		ok := mgr.Acquire(ctx, "shape-1", "user-1", "Ada", "#ff0000")
		assert.True(t, ok)

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		require.Contains(t, locks, "shape-1")
		assert.Equal(t, "user-1", locks["shape-1"].UserID)
		assert.Equal(t, "Ada", locks["shape-1"].UserName)
		assert.NotZero(t, locks["shape-1"].TimestampMs)
	})

	t.Run("overwrites an existing lock unconditionally", func(t *testing.T) {
		require.True(t, mgr.Acquire(ctx, "shape-2", "user-1", "Ada", "#ff0000"))
		// Second user does not see a refusal: the later write wins.
		assert.True(t, mgr.Acquire(ctx, "shape-2", "user-2", "Grace", "#00ff00"))

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user-2", locks["shape-2"].UserID)
	})

	t.Run("refuses a lock without a user ID", func(t *testing.T) {
		assert.False(t, mgr.Acquire(ctx, "shape-3", "", "Ada", "#ff0000"))
	})
}

func TestRelease(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	t.Run("removes the lock record", func(t *testing.T) {
		require.True(t, mgr.Acquire(ctx, "shape-1", "user-1", "Ada", "#ff0000"))

		mgr.Release(ctx, "shape-1", "user-1")

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.NotContains(t, locks, "shape-1")
	})

	t.Run("release does not check the holder", func(t *testing.T) {
		require.True(t, mgr.Acquire(ctx, "shape-2", "user-1", "Ada", "#ff0000"))

		// A different user releasing still removes the record.
		mgr.Release(ctx, "shape-2", "user-2")

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.NotContains(t, locks, "shape-2")
	})

	t.Run("releasing an unlocked shape is not an error", func(t *testing.T) {
		mgr.Release(ctx, "never-locked", "user-1")
	})
}

func TestReleaseAll(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	require.True(t, mgr.Acquire(ctx, "shape-1", "user-1", "Ada", "#ff0000"))
	require.True(t, mgr.Acquire(ctx, "shape-2", "user-1", "Ada", "#ff0000"))
	require.True(t, mgr.Acquire(ctx, "shape-3", "user-2", "Grace", "#00ff00"))

	mgr.ReleaseAll(ctx, "user-1")

	locks, err := mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, locks, "shape-1")
	assert.NotContains(t, locks, "shape-2")
	assert.Contains(t, locks, "shape-3")

	t.Run("no-op when the user holds nothing", func(t *testing.T) {
		mgr.ReleaseAll(ctx, "user-without-locks")

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.Contains(t, locks, "shape-3")
	})
}

func TestSnapshot(t *testing.T) {
	mgr, mr := setupTestManager(t)
	ctx := context.Background()

	t.Run("empty board returns empty map", func(t *testing.T) {
		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, locks)
	})

	t.Run("skips malformed records", func(t *testing.T) {
		require.True(t, mgr.Acquire(ctx, "shape-1", "user-1", "Ada", "#ff0000"))
		mr.HSet(canvas.LocksKey("test-board"), "shape-corrupt", "{not json")

		locks, err := mgr.Snapshot(ctx)
		require.NoError(t, err)
		assert.Contains(t, locks, "shape-1")
		assert.NotContains(t, locks, "shape-corrupt")
	})
}

func TestIsLockedByOther(t *testing.T) {
	locks := map[string]canvas.Lock{
		"shape-1": {UserID: "user-1", UserName: "Ada"},
	}

	t.Run("unlocked shape", func(t *testing.T) {
		other, name := IsLockedByOther(locks, "shape-9", "user-2")
		assert.False(t, other)
		assert.Empty(t, name)
	})

	t.Run("own lock is not reported", func(t *testing.T) {
		other, _ := IsLockedByOther(locks, "shape-1", "user-1")
		assert.False(t, other)
	})

	t.Run("foreign lock is reported with holder name", func(t *testing.T) {
		other, name := IsLockedByOther(locks, "shape-1", "user-2")
		assert.True(t, other)
		assert.Equal(t, "Ada", name)
	})
}

func TestSubscribeAll(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	t.Run("delivers the initial map first", func(t *testing.T) {
		require.True(t, mgr.Acquire(ctx, "shape-1", "user-1", "Ada", "#ff0000"))

		sub, err := mgr.SubscribeAll(ctx)
		require.NoError(t, err)
		defer sub.Close()

		select {
		case snap := <-sub.Snapshots():
			assert.Contains(t, snap, "shape-1")
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for initial lock map")
		}
	})

	t.Run("delivers every change", func(t *testing.T) {
		sub, err := mgr.SubscribeAll(ctx)
		require.NoError(t, err)
		defer sub.Close()

		// Drain the initial snapshot.
		<-sub.Snapshots()
		time.Sleep(50 * time.Millisecond)

		require.True(t, mgr.Acquire(ctx, "shape-2", "user-2", "Grace", "#00ff00"))

		deadline := time.After(2 * time.Second)
		for {
			select {
			case snap := <-sub.Snapshots():
				if _, ok := snap["shape-2"]; ok {
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for lock change")
			}
		}
	})
}
