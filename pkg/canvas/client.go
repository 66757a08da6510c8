package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// batchChunkSize is the maximum number of shape writes grouped into one
// pipelined chunk. Atomicity holds per chunk, not across chunks.
const batchChunkSize = 500

// Client provides board-scoped Redis operations for the durable shape store.
// All keys and channels are automatically namespaced with the board name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
//
// The durable store is the single source of truth for persisted shape fields.
// Writes are fire-and-forget beyond awaiting network completion: there are no
// read-modify-write transactions, so two concurrent updates to the same field
// race with last-write-wins semantics determined by server receipt order.
type Client struct {
	rdb   *redis.Client
	board string
}

// NewClient creates a new durable store client for the specified board.
// The client automatically namespaces all keys and channels with the board name.
//
// Returns an error if board is empty.
func NewClient(redisOpts *redis.Options, board string) (*Client, error) {
	if board == "" {
		return nil, fmt.Errorf("board name cannot be empty")
	}

	return &Client{
		rdb:   redis.NewClient(redisOpts),
		board: board,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Board returns the board name this client is scoped to.
func (c *Client) Board() string {
	return c.board
}

// CreateShape writes a shape document to Redis and publishes a created event.
// Validates the shape before writing. The shape is stored as a Redis hash at
// canvas:{board}:shape:{id} and indexed in the board's shape set.
// This method is idempotent - writing the same shape twice is safe.
func (c *Client) CreateShape(ctx context.Context, s *Shape) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}

	now := time.Now().UnixMilli()
	if s.CreatedAtMs == 0 {
		s.CreatedAtMs = now
	}
	s.UpdatedAtMs = now

	key := ShapeKey(c.board, s.ID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, ShapeToHash(s))
	pipe.SAdd(ctx, ShapeIndexKey(c.board), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write shape to Redis: %w", err)
	}

	return c.publishEvent(ctx, &ShapeEvent{Kind: EventCreated, ShapeID: s.ID, Shape: s})
}

// GetShape retrieves a shape by ID.
// Returns (nil, redis.Nil) if the shape doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetShape(ctx context.Context, shapeID string) (*Shape, error) {
	key := ShapeKey(c.board, shapeID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shape from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	shape, err := HashToShape(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize shape: %w", err)
	}

	return shape, nil
}

// ShapeExists checks if a shape exists without fetching it.
func (c *Client) ShapeExists(ctx context.Context, shapeID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, ShapeKey(c.board, shapeID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check shape existence: %w", err)
	}
	return exists > 0, nil
}

// ListShapes returns a snapshot of every shape on the board.
// Shapes deleted between reading the index and reading their hash are skipped
// rather than reported as errors.
func (c *Client) ListShapes(ctx context.Context) ([]*Shape, error) {
	ids, err := c.rdb.SMembers(ctx, ShapeIndexKey(c.board)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read shape index: %w", err)
	}

	shapes := make([]*Shape, 0, len(ids))
	for _, id := range ids {
		shape, err := c.GetShape(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		shapes = append(shapes, shape)
	}

	return shapes, nil
}

// UpdateShape applies a partial field update to an existing shape and
// publishes an updated event carrying the post-update document.
// Stamps updated_at_ms and last_modified_by on every write.
//
// There is no version check: concurrent updates to the same field resolve
// last-write-wins at the store.
func (c *Client) UpdateShape(ctx context.Context, shapeID string, fields Fields, userID string) error {
	if err := fields.Validate(); err != nil {
		return fmt.Errorf("invalid update: %w", err)
	}

	shape, err := c.GetShape(ctx, shapeID)
	if err != nil {
		return fmt.Errorf("failed to load shape for update: %w", err)
	}

	now := time.Now().UnixMilli()
	hash := fields.ToHash()
	hash["updated_at_ms"] = now
	hash["last_modified_by"] = userID

	key := ShapeKey(c.board, shapeID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to update shape in Redis: %w", err)
	}

	fields.ApplyTo(shape)
	shape.UpdatedAtMs = now
	shape.LastModifiedBy = userID

	return c.publishEvent(ctx, &ShapeEvent{Kind: EventUpdated, ShapeID: shapeID, Shape: shape})
}

// DeleteShape removes a shape document and its index entry, then publishes a
// deleted event. Deleting a shape that doesn't exist is not an error.
func (c *Client) DeleteShape(ctx context.Context, shapeID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, ShapeKey(c.board, shapeID))
	pipe.SRem(ctx, ShapeIndexKey(c.board), shapeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete shape from Redis: %w", err)
	}

	return c.publishEvent(ctx, &ShapeEvent{Kind: EventDeleted, ShapeID: shapeID})
}

// DeleteShapes removes multiple shapes in one pipelined round-trip and
// publishes one deleted event per shape.
func (c *Client) DeleteShapes(ctx context.Context, shapeIDs []string) error {
	if len(shapeIDs) == 0 {
		return nil
	}

	pipe := c.rdb.TxPipeline()
	for _, id := range shapeIDs {
		pipe.Del(ctx, ShapeKey(c.board, id))
		pipe.SRem(ctx, ShapeIndexKey(c.board), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete shapes from Redis: %w", err)
	}

	for _, id := range shapeIDs {
		if err := c.publishEvent(ctx, &ShapeEvent{Kind: EventDeleted, ShapeID: id}); err != nil {
			return err
		}
	}
	return nil
}

// BatchCreateShapes creates multiple shapes, chunked at batchChunkSize writes
// per pipeline. Each chunk is executed as one atomic pipeline; atomicity holds
// per chunk, not across chunks, so a failure can leave earlier chunks applied.
func (c *Client) BatchCreateShapes(ctx context.Context, shapes []*Shape, userID string) error {
	for _, s := range shapes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid shape %q: %w", s.ID, err)
		}
	}

	now := time.Now().UnixMilli()
	for start := 0; start < len(shapes); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(shapes) {
			end = len(shapes)
		}

		pipe := c.rdb.TxPipeline()
		for _, s := range shapes[start:end] {
			if s.CreatedAtMs == 0 {
				s.CreatedAtMs = now
			}
			s.UpdatedAtMs = now
			s.LastModifiedBy = userID
			pipe.HSet(ctx, ShapeKey(c.board, s.ID), ShapeToHash(s))
			pipe.SAdd(ctx, ShapeIndexKey(c.board), s.ID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to batch create shapes [%d:%d]: %w", start, end, err)
		}

		for _, s := range shapes[start:end] {
			if err := c.publishEvent(ctx, &ShapeEvent{Kind: EventCreated, ShapeID: s.ID, Shape: s}); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Client) publishEvent(ctx context.Context, event *ShapeEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal shape event: %w", err)
	}

	channel := ShapeEventsChannel(c.board)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish shape event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to shape events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *ShapeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of shape events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *ShapeEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeShapeEvents subscribes to durable shape change events for this board.
// Returns a Subscription that delivers shape events. Caller must call
// subscription.Close() when done. Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 64) to prevent blocking.
// Redis Pub/Sub is at-most-once: a dropped event costs one recompute of
// latency, not correctness, because consumers always re-merge from snapshots.
func (c *Client) SubscribeShapeEvents(ctx context.Context) (*Subscription, error) {
	channel := ShapeEventsChannel(c.board)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *ShapeEvent, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event ShapeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal shape event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetShape returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
