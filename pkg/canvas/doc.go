// Package canvas provides type-safe Go definitions and Redis schema patterns
// for the collaborative canvas state model.
//
// # Overview
//
// The canvas state is split across four surfaces that change independently:
// the durable shape store (authoritative, persisted), the ephemeral movement
// store (high-frequency, short-TTL broadcasts used during live gestures),
// advisory editing locks, and per-user presence. This package owns the shared
// wire types, the Redis key/channel schema, and the durable store client; the
// other three surfaces are served by the internal stores, which reuse the
// schema helpers here.
//
// # Core concepts
//
// Shapes are tagged variants over rectangle, circle, line and text. Persisted
// fields are only ever written through a command, so every durable mutation is
// reversible. The reconciler computes runtime-only overlays (lock ownership,
// transient positions) that are never written back.
//
// Movements are last-writer-wins broadcast frames keyed by shape ID. They are
// active only while a drag is in progress and younger than the active TTL,
// and are deliberately forgettable: a missed frame means one frame of visual
// lag for other viewers, never an error.
//
// Locks are advisory. Nothing refuses a write because a lock is held - lock
// state informs the UI layer only.
//
// # Multi-board support
//
// All Redis keys and Pub/Sub channels are namespaced by board name so that
// multiple boards safely coexist on a single Redis server with complete
// isolation of data and events.
//
// # Usage example
//
//	import "github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
//
//	client, err := canvas.NewClient(&redis.Options{Addr: "localhost:6379"}, "design-review")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	shape := &canvas.Shape{
//		ID:        uuid.New().String(),
//		Type:      canvas.ShapeTypeRectangle,
//		X:         100, Y: 100, Width: 200, Height: 120,
//		Opacity:   1, Visible: true,
//		Fill:      "#4a90d9",
//		CreatedBy: "user-1",
//	}
//	if err := client.CreateShape(ctx, shape); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis schema
//
//	canvas:{board}:shape:{id}        hash    one durable shape document
//	canvas:{board}:shapes            set     index of shape IDs on the board
//	canvas:{board}:movement:{id}     string  movement JSON (PEXPIRE = active TTL)
//	canvas:{board}:locks             hash    field = shape ID, value = lock JSON
//	canvas:{board}:presence:{user}   string  presence JSON (PEXPIRE = presence TTL)
//	canvas:{board}:shape_events      chan    durable change notifications
//	canvas:{board}:movement_events   chan    movement broadcasts and retirements
//	canvas:{board}:lock_events       chan    full lock map after every change
//	canvas:{board}:presence_events   chan    presence updates
package canvas
