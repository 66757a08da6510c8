// Package lock implements advisory per-shape editing locks. Locks are purely
// informational: no component refuses a write because another user holds a
// lock. The UI layer uses them to disable dragging and to show who is editing.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

// Manager provides board-scoped advisory lock operations.
// It is safe for concurrent use.
type Manager struct {
	rdb   *redis.Client
	board string
}

// NewManager creates a lock manager for the specified board.
func NewManager(redisOpts *redis.Options, board string) (*Manager, error) {
	if board == "" {
		return nil, fmt.Errorf("board name cannot be empty")
	}

	return &Manager{
		rdb:   redis.NewClient(redisOpts),
		board: board,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (m *Manager) Close() error {
	return m.rdb.Close()
}

// Acquire writes a lock record for the shape and reports success.
//
// Acquisition is an unconditional overwrite: it does not check for an existing
// lock held by a different user, so two users racing to lock the same shape
// both "succeed" and the later write wins. This mirrors the advisory,
// best-effort contract - callers treat a failed acquire as "proceed unlocked"
// rather than blocking the user.
func (m *Manager) Acquire(ctx context.Context, shapeID, userID, userName, userColor string) bool {
	l := &canvas.Lock{
		UserID:      userID,
		UserName:    userName,
		UserColor:   userColor,
		TimestampMs: time.Now().UnixMilli(),
	}
	if err := l.Validate(); err != nil {
		log.Printf("[Lock] Refusing invalid lock for %s: %v", shapeID, err)
		return false
	}

	payload, err := json.Marshal(l)
	if err != nil {
		log.Printf("[Lock] Failed to marshal lock for %s: %v", shapeID, err)
		return false
	}

	if err := m.rdb.HSet(ctx, canvas.LocksKey(m.board), shapeID, payload).Err(); err != nil {
		log.Printf("[Lock] Failed to acquire lock on %s: %v", shapeID, err)
		return false
	}

	m.publishSnapshot(ctx)
	return true
}

// Release removes the lock record for the shape. It does not verify that the
// caller is the current holder. Releasing an unlocked shape is not an error.
func (m *Manager) Release(ctx context.Context, shapeID, userID string) {
	if err := m.rdb.HDel(ctx, canvas.LocksKey(m.board), shapeID).Err(); err != nil {
		log.Printf("[Lock] Failed to release lock on %s for %s: %v", shapeID, userID, err)
		return
	}
	m.publishSnapshot(ctx)
}

// ReleaseAll scans all locks and releases those held by the given user.
// Called on disconnect, unmount, and tab close.
func (m *Manager) ReleaseAll(ctx context.Context, userID string) {
	locks, err := m.Snapshot(ctx)
	if err != nil {
		log.Printf("[Lock] Failed to scan locks for release: %v", err)
		return
	}

	var mine []string
	for shapeID, l := range locks {
		if l.UserID == userID {
			mine = append(mine, shapeID)
		}
	}
	if len(mine) == 0 {
		return
	}

	if err := m.rdb.HDel(ctx, canvas.LocksKey(m.board), mine...).Err(); err != nil {
		log.Printf("[Lock] Failed to release %d locks for %s: %v", len(mine), userID, err)
		return
	}
	m.publishSnapshot(ctx)
}

// Snapshot returns the full shape ID to lock map.
// Returns an empty map if no locks exist (not an error).
func (m *Manager) Snapshot(ctx context.Context) (map[string]canvas.Lock, error) {
	raw, err := m.rdb.HGetAll(ctx, canvas.LocksKey(m.board)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read locks from Redis: %w", err)
	}

	locks := make(map[string]canvas.Lock, len(raw))
	for shapeID, payload := range raw {
		var l canvas.Lock
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			log.Printf("[Lock] Skipping malformed lock record for %s: %v", shapeID, err)
			continue
		}
		locks[shapeID] = l
	}
	return locks, nil
}

// IsLockedByOther reports whether the shape is locked by someone other than
// currentUserID, and by whom.
func IsLockedByOther(locks map[string]canvas.Lock, shapeID, currentUserID string) (bool, string) {
	l, ok := locks[shapeID]
	if !ok {
		return false, ""
	}
	if l.UserID == currentUserID {
		return false, ""
	}
	return true, l.UserName
}

// publishSnapshot re-publishes the full lock map after a change. Failures are
// logged and swallowed - subscribers repair on the next change.
func (m *Manager) publishSnapshot(ctx context.Context) {
	locks, err := m.Snapshot(ctx)
	if err != nil {
		log.Printf("[Lock] Failed to build lock snapshot: %v", err)
		return
	}

	payload, err := json.Marshal(locks)
	if err != nil {
		log.Printf("[Lock] Failed to marshal lock snapshot: %v", err)
		return
	}

	if err := m.rdb.Publish(ctx, canvas.LockEventsChannel(m.board), payload).Err(); err != nil {
		log.Printf("[Lock] Failed to publish lock snapshot: %v", err)
	}
}

// Subscription delivers the full {shapeID: Lock} map on every change.
// Caller must call Close() when done.
type Subscription struct {
	snapshots <-chan map[string]canvas.Lock
	errors    <-chan error
	cancel    func()
	once      sync.Once
}

// Snapshots returns the channel of lock maps.
func (s *Subscription) Snapshots() <-chan map[string]canvas.Lock {
	return s.snapshots
}

// Errors returns the channel of subscription errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeAll subscribes to lock map changes for the board. The current map
// is delivered immediately so subscribers do not start blind.
func (m *Manager) SubscribeAll(ctx context.Context) (*Subscription, error) {
	pubsub := m.rdb.Subscribe(ctx, canvas.LockEventsChannel(m.board))

	snapshotsChan := make(chan map[string]canvas.Lock, 16)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	initial, err := m.Snapshot(ctx)
	if err != nil {
		pubsub.Close()
		cancelFunc()
		return nil, err
	}

	go func() {
		defer close(snapshotsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		select {
		case snapshotsChan <- initial:
		case <-subCtx.Done():
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var locks map[string]canvas.Lock
				if err := json.Unmarshal([]byte(msg.Payload), &locks); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal lock snapshot: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case snapshotsChan <- locks:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		snapshots: snapshotsChan,
		errors:    errorsChan,
		cancel:    cancelFunc,
	}, nil
}
