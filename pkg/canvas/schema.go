package canvas

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by board name to enable
// multiple boards to safely coexist on a single Redis server.
//
// Key pattern: canvas:{board}:{entity}:{id}
// Channel pattern: canvas:{board}:{event_type}_events

// ShapeKey returns the Redis key for a durable shape document.
// Pattern: canvas:{board}:shape:{shape_id}
func ShapeKey(board, shapeID string) string {
	return fmt.Sprintf("canvas:%s:shape:%s", board, shapeID)
}

// ShapeIndexKey returns the Redis key for the set of all shape IDs on a board.
// Pattern: canvas:{board}:shapes
func ShapeIndexKey(board string) string {
	return fmt.Sprintf("canvas:%s:shapes", board)
}

// MovementKey returns the Redis key for an ephemeral movement record.
// Movement keys carry a PEXPIRE so abandoned gestures self-heal.
// Pattern: canvas:{board}:movement:{shape_id}
func MovementKey(board, shapeID string) string {
	return fmt.Sprintf("canvas:%s:movement:%s", board, shapeID)
}

// LocksKey returns the Redis key for the board's lock hash.
// Field = shape ID, value = lock JSON.
// Pattern: canvas:{board}:locks
func LocksKey(board string) string {
	return fmt.Sprintf("canvas:%s:locks", board)
}

// PresenceKey returns the Redis key for a user's presence record.
// Pattern: canvas:{board}:presence:{user_id}
func PresenceKey(board, userID string) string {
	return fmt.Sprintf("canvas:%s:presence:%s", board, userID)
}

// ShapeEventsChannel returns the Pub/Sub channel name for durable shape events.
// Pattern: canvas:{board}:shape_events
func ShapeEventsChannel(board string) string {
	return fmt.Sprintf("canvas:%s:shape_events", board)
}

// MovementEventsChannel returns the Pub/Sub channel name for ephemeral
// movement broadcasts.
// Pattern: canvas:{board}:movement_events
func MovementEventsChannel(board string) string {
	return fmt.Sprintf("canvas:%s:movement_events", board)
}

// LockEventsChannel returns the Pub/Sub channel name for lock changes.
// Pattern: canvas:{board}:lock_events
func LockEventsChannel(board string) string {
	return fmt.Sprintf("canvas:%s:lock_events", board)
}

// PresenceEventsChannel returns the Pub/Sub channel name for presence updates.
// Pattern: canvas:{board}:presence_events
func PresenceEventsChannel(board string) string {
	return fmt.Sprintf("canvas:%s:presence_events", board)
}
