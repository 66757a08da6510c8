// Package ephemeral implements the short-TTL movement broadcast store used
// during live drag and resize gestures. Movements bypass the command engine
// entirely: they are last-writer-wins frames with no durability and no undo.
package ephemeral

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

// DefaultActiveTTL is the window during which a dragging movement frame is
// considered live. An abandoned gesture self-heals once its last frame ages
// past this window; no explicit cancel is required.
const DefaultActiveTTL = 10 * time.Second

// Store publishes and subscribes high-frequency movement frames for one board.
// It is safe for concurrent use.
type Store struct {
	rdb       *redis.Client
	board     string
	activeTTL time.Duration
}

// NewStore creates a movement store for the specified board. activeTTL
// controls both the Redis key expiry and the subscriber-side staleness filter;
// pass 0 to use DefaultActiveTTL. Tests shrink the TTL to avoid multi-second
// sleeps.
func NewStore(redisOpts *redis.Options, board string, activeTTL time.Duration) (*Store, error) {
	if board == "" {
		return nil, fmt.Errorf("board name cannot be empty")
	}
	if activeTTL <= 0 {
		activeTTL = DefaultActiveTTL
	}

	return &Store{
		rdb:       redis.NewClient(redisOpts),
		board:     board,
		activeTTL: activeTTL,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// ActiveTTL returns the staleness window this store was built with.
func (s *Store) ActiveTTL() time.Duration {
	return s.activeTTL
}

// Publish broadcasts one movement frame, stamping the current time and
// overwriting any prior entry for the shape (last-writer-wins, no merge).
// The backing key expires after the active TTL.
//
// Publish failures are logged and swallowed: a missed broadcast frame means
// one frame of visual lag for other viewers, not an error state. Gesture
// handling must never block on a broadcast.
func (s *Store) Publish(ctx context.Context, m *canvas.Movement) {
	if err := m.Validate(); err != nil {
		log.Printf("[Ephemeral] Dropping invalid movement: %v", err)
		return
	}

	m.TimestampMs = time.Now().UnixMilli()

	payload, err := json.Marshal(m)
	if err != nil {
		log.Printf("[Ephemeral] Failed to marshal movement for %s: %v", m.ShapeID, err)
		return
	}

	key := canvas.MovementKey(s.board, m.ShapeID)
	if err := s.rdb.Set(ctx, key, payload, s.activeTTL).Err(); err != nil {
		log.Printf("[Ephemeral] Failed to write movement for %s: %v", m.ShapeID, err)
	}

	channel := canvas.MovementEventsChannel(s.board)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[Ephemeral] Failed to publish movement for %s: %v", m.ShapeID, err)
	}
}

// Retire explicitly removes a shape's movement entry, called at gesture end.
// A retirement marker (IsDragging=false) is broadcast so subscribers drop the
// entry immediately instead of waiting for TTL expiry. The grace-period visual
// continuation is the reconciler's job - this store has already forgotten the
// entry once retired.
func (s *Store) Retire(ctx context.Context, shapeID string) {
	if err := s.rdb.Del(ctx, canvas.MovementKey(s.board, shapeID)).Err(); err != nil {
		log.Printf("[Ephemeral] Failed to delete movement for %s: %v", shapeID, err)
	}

	marker := &canvas.Movement{
		ShapeID:     shapeID,
		IsDragging:  false,
		TimestampMs: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(marker)
	if err != nil {
		log.Printf("[Ephemeral] Failed to marshal retirement for %s: %v", shapeID, err)
		return
	}

	channel := canvas.MovementEventsChannel(s.board)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[Ephemeral] Failed to publish retirement for %s: %v", shapeID, err)
	}
}

// Subscription delivers filtered movement snapshots: only entries with
// IsDragging=true and age below the active TTL. Stale entries are dropped
// before delivery, not lazily filtered by the consumer.
// Caller must call Close() when done.
type Subscription struct {
	snapshots <-chan map[string]canvas.Movement
	errors    <-chan error
	cancel    func()
	once      sync.Once
}

// Snapshots returns the channel of filtered movement maps. A new snapshot is
// delivered after every movement change and whenever the janitor drops an
// expired entry, so consumers observe TTL fallback without new traffic.
func (s *Subscription) Snapshots() <-chan map[string]canvas.Movement {
	return s.snapshots
}

// Errors returns the channel of subscription errors. The subscription
// continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeAll subscribes to movement broadcasts for the board.
// The subscription seeds its view from the keys currently in Redis so a late
// subscriber sees gestures already in flight, then folds in every broadcast.
func (s *Store) SubscribeAll(ctx context.Context) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, canvas.MovementEventsChannel(s.board))

	snapshotsChan := make(chan map[string]canvas.Movement, 16)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	seed, err := s.loadCurrent(ctx)
	if err != nil {
		pubsub.Close()
		cancelFunc()
		return nil, err
	}

	go func() {
		defer close(snapshotsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		cache := seed
		janitor := time.NewTicker(janitorInterval(s.activeTTL))
		defer janitor.Stop()

		deliver := func() {
			filtered := filterActive(cache, s.activeTTL)
			select {
			case snapshotsChan <- filtered:
			case <-subCtx.Done():
			}
		}
		deliver()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return

			case msg, ok := <-ch:
				if !ok {
					return
				}

				var m canvas.Movement
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal movement: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				if m.IsDragging {
					cache[m.ShapeID] = m
				} else {
					delete(cache, m.ShapeID)
				}
				deliver()

			case <-janitor.C:
				if pruneStale(cache, s.activeTTL) {
					deliver()
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

// loadCurrent scans the movement keys already present for the board.
func (s *Store) loadCurrent(ctx context.Context) (map[string]canvas.Movement, error) {
	pattern := canvas.MovementKey(s.board, "*")
	cache := make(map[string]canvas.Movement)

	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		payload, err := s.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue // expired between scan and read
			}
			return nil, fmt.Errorf("failed to read movement key: %w", err)
		}

		var m canvas.Movement
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			continue
		}
		if m.IsDragging {
			cache[m.ShapeID] = m
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan movement keys: %w", err)
	}

	return cache, nil
}

// filterActive copies the entries that are still live.
func filterActive(cache map[string]canvas.Movement, ttl time.Duration) map[string]canvas.Movement {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	filtered := make(map[string]canvas.Movement, len(cache))
	for id, m := range cache {
		if m.IsDragging && m.TimestampMs >= cutoff {
			filtered[id] = m
		}
	}
	return filtered
}

// pruneStale removes expired entries in place and reports whether any were dropped.
func pruneStale(cache map[string]canvas.Movement, ttl time.Duration) bool {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	dropped := false
	for id, m := range cache {
		if !m.IsDragging || m.TimestampMs < cutoff {
			delete(cache, id)
			dropped = true
		}
	}
	return dropped
}

// janitorInterval derives the expiry sweep cadence from the active TTL so
// short test TTLs still expire promptly.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 10
	if interval < 25*time.Millisecond {
		interval = 25 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}
