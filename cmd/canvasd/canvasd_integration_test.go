//go:build integration

package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/miriamsimone/collab-canvas-sub000/internal/command"
	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/internal/session"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

// buildParticipant assembles a full session plus a running reconcile engine
// for one user against the shared Redis.
func buildParticipant(t *testing.T, ctx context.Context, opts *redis.Options, userID string) (*session.Session, *reconcile.Engine) {
	store, err := canvas.NewClient(opts, "integration-board")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	movements, err := ephemeral.NewStore(opts, "integration-board", 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to create movement store: %v", err)
	}
	t.Cleanup(func() { movements.Close() })

	locks, err := lock.NewManager(opts, "integration-board")
	if err != nil {
		t.Fatalf("Failed to create lock manager: %v", err)
	}
	t.Cleanup(func() { locks.Close() })

	user := session.User{ID: userID, Name: userID, Color: "#ff0000"}
	engine := reconcile.NewEngine(userID, 500*time.Millisecond)
	history := command.NewHistory(userID)
	sess := session.New(user, store, movements, locks, nil, engine, history)

	go func() {
		if err := engine.Run(ctx, store, movements, locks); err != nil {
			t.Logf("Engine stopped: %v", err)
		}
	}()

	return sess, engine
}

// TestTwoUserConvergence drives a full drag gesture from one user and asserts
// the second user's merged view tracks it live and converges on the durable
// position afterwards.
func TestTwoUserConvergence(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	alice, _ := buildParticipant(t, ctx, opts, "alice")
	_, bobEngine := buildParticipant(t, ctx, opts, "bob")

	// Give both engines time to subscribe.
	time.Sleep(500 * time.Millisecond)

	shape := &canvas.Shape{
		ID:      uuid.New().String(),
		Type:    canvas.ShapeTypeRectangle,
		X:       10,
		Y:       10,
		Width:   100,
		Height:  50,
		Opacity: 1,
		Visible: true,
	}
	if err := alice.CreateShape(ctx, shape); err != nil {
		t.Fatalf("Failed to create shape: %v", err)
	}

	waitForShape := func(pred func(reconcile.MergedShape) bool, what string) {
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			for _, ms := range bobEngine.View() {
				if ms.ID == shape.ID && pred(ms) {
					return
				}
			}
			time.Sleep(50 * time.Millisecond)
		}
		t.Fatalf("Timed out waiting for %s", what)
	}

	waitForShape(func(ms reconcile.MergedShape) bool { return ms.X == 10 },
		"created shape in bob's view")

	// Alice drags: bob should see the ephemeral position and the lock overlay.
	if err := alice.OnDragStart(ctx, shape.ID); err != nil {
		t.Fatalf("Failed to start drag: %v", err)
	}
	alice.OnDragMove(ctx, shape.ID, 250, 250)

	waitForShape(func(ms reconcile.MergedShape) bool {
		return ms.X == 250 && ms.IsLockedByOther
	}, "live drag position with lock overlay in bob's view")

	// Gesture end: the durable commit lands and the lock clears.
	if err := alice.OnDragEnd(ctx, shape.ID, 300, 300); err != nil {
		t.Fatalf("Failed to end drag: %v", err)
	}

	waitForShape(func(ms reconcile.MergedShape) bool {
		return ms.X == 300 && !ms.IsLockedByOther
	}, "converged durable position in bob's view")

	// Undo propagates across clients through the durable store.
	if err := alice.Undo(ctx); err != nil {
		t.Fatalf("Failed to undo: %v", err)
	}

	waitForShape(func(ms reconcile.MergedShape) bool { return ms.X == 10 },
		"undone position in bob's view")
}
