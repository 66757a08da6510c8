// Package presence implements the per-user liveness and cursor broadcast.
// It is structurally the same mechanism as the ephemeral movement store but
// keyed by user ID, with a heartbeat so an idle-but-connected user is not
// treated as stale.
package presence

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

// DefaultTTL is the window after which a presence record without a heartbeat
// is excluded from the presence view.
const DefaultTTL = 120 * time.Second

// Channel provides board-scoped presence operations.
// It is safe for concurrent use.
type Channel struct {
	rdb   *redis.Client
	board string
	ttl   time.Duration
}

// NewChannel creates a presence channel for the specified board. Pass ttl 0
// to use DefaultTTL; tests shrink it.
func NewChannel(redisOpts *redis.Options, board string, ttl time.Duration) (*Channel, error) {
	if board == "" {
		return nil, fmt.Errorf("board name cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Channel{
		rdb:   redis.NewClient(redisOpts),
		board: board,
		ttl:   ttl,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Channel) Close() error {
	return c.rdb.Close()
}

// Publish overwrites and restamps the user's presence record. There is no
// throttling here - callers rate-limit at the call site (pointer-move
// frequency at most).
//
// Failures are logged and swallowed, same as movement broadcasts.
func (c *Channel) Publish(ctx context.Context, p *canvas.Presence) {
	if err := p.Validate(); err != nil {
		log.Printf("[Presence] Dropping invalid record: %v", err)
		return
	}

	p.LastSeenMs = time.Now().UnixMilli()

	payload, err := json.Marshal(p)
	if err != nil {
		log.Printf("[Presence] Failed to marshal record for %s: %v", p.UserID, err)
		return
	}

	key := canvas.PresenceKey(c.board, p.UserID)
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Printf("[Presence] Failed to write record for %s: %v", p.UserID, err)
	}

	channel := canvas.PresenceEventsChannel(c.board)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[Presence] Failed to publish record for %s: %v", p.UserID, err)
	}
}

// SetInactive marks the user's record inactive so peers see the user go idle
// rather than silently stale. Called before pausing the heartbeat.
func (c *Channel) SetInactive(ctx context.Context, userID string) {
	key := canvas.PresenceKey(c.board, userID)
	payload, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Presence] Failed to read record for %s: %v", userID, err)
		}
		return
	}

	var p canvas.Presence
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		log.Printf("[Presence] Skipping malformed record for %s: %v", userID, err)
		return
	}

	p.IsActive = false
	c.Publish(ctx, &p)
}

// Subscription delivers filtered presence snapshots: only records with
// IsActive=true and age below the TTL. The caller additionally filters out
// its own user ID.
type Subscription struct {
	snapshots <-chan map[string]canvas.Presence
	errors    <-chan error
	cancel    func()
	once      sync.Once
}

// Snapshots returns the channel of filtered presence maps.
func (s *Subscription) Snapshots() <-chan map[string]canvas.Presence {
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

// SubscribeAll subscribes to presence updates for the board, seeding from the
// records currently in Redis.
func (c *Channel) SubscribeAll(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, canvas.PresenceEventsChannel(c.board))

	snapshotsChan := make(chan map[string]canvas.Presence, 16)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	seed, err := c.loadCurrent(ctx)
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
		janitor := time.NewTicker(janitorInterval(c.ttl))
		defer janitor.Stop()

		deliver := func() {
			filtered := filterActive(cache, c.ttl)
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

				var p canvas.Presence
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal presence record: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				cache[p.UserID] = p
				deliver()

			case <-janitor.C:
				if pruneStale(cache, c.ttl) {
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

func (c *Channel) loadCurrent(ctx context.Context) (map[string]canvas.Presence, error) {
	pattern := canvas.PresenceKey(c.board, "*")
	cache := make(map[string]canvas.Presence)

	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		payload, err := c.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to read presence key: %w", err)
		}

		var p canvas.Presence
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			continue
		}
		cache[p.UserID] = p
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys: %w", err)
	}

	return cache, nil
}

func filterActive(cache map[string]canvas.Presence, ttl time.Duration) map[string]canvas.Presence {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	filtered := make(map[string]canvas.Presence, len(cache))
	for id, p := range cache {
		if p.IsActive && p.LastSeenMs >= cutoff {
			filtered[id] = p
		}
	}
	return filtered
}

func pruneStale(cache map[string]canvas.Presence, ttl time.Duration) bool {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	dropped := false
	for id, p := range cache {
		if !p.IsActive || p.LastSeenMs < cutoff {
			delete(cache, id)
			dropped = true
		}
	}
	return dropped
}

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
