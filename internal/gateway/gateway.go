// Package gateway fans merged canvas views out to rendering clients over
// websocket and maps inbound gesture messages onto the session boundary.
// It is the concrete rendering boundary: clients receive the merged shape
// list plus undo/redo availability and peer presence, and send gesture
// callbacks back.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/internal/session"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// ViewFrame is the outbound message carrying the full merged view.
type ViewFrame struct {
	Type    string                  `json:"type"` // always "view"
	Shapes  []reconcile.MergedShape `json:"shapes"`
	CanUndo bool                    `json:"can_undo"`
	CanRedo bool                    `json:"can_redo"`
}

// PresenceFrame is the outbound message carrying peer cursors and liveness.
type PresenceFrame struct {
	Type  string            `json:"type"` // always "presence"
	Users []canvas.Presence `json:"users"`
}

// InboundMessage is one client-to-gateway message. Type selects which fields
// are meaningful.
type InboundMessage struct {
	Type     string        `json:"type"`
	ShapeID  string        `json:"shape_id,omitempty"`
	ShapeIDs []string      `json:"shape_ids,omitempty"`
	X        float64       `json:"x,omitempty"`
	Y        float64       `json:"y,omitempty"`
	Width    float64       `json:"width,omitempty"`
	Height   float64       `json:"height,omitempty"`
	Fields   canvas.Fields `json:"fields,omitempty"`
	Shape    *canvas.Shape `json:"shape,omitempty"`
	Text     string        `json:"text,omitempty"`
}

// Hub owns the websocket client set and rebroadcasts every merged view
// change. One hub serves one session (one user on one board).
type Hub struct {
	sess     *session.Session
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool

	broadcast chan []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub over the given session.
func NewHub(sess *session.Session) *Hub {
	return &Hub{
		sess: sess,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Rendering clients are trusted local tooling; the gateway is not
			// an internet-facing surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, 16),
	}
}

// Run registers the view and history listeners and pumps broadcasts until the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	unsubscribeView := h.sess.History().Subscribe(func() {
		h.queueView(h.sess.View())
	})
	defer unsubscribeView()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow consumer: drop it rather than stall the board.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// OnView is the reconcile engine listener: it queues a view frame for
// broadcast. Registered by the daemon via engine.Subscribe(hub.OnView).
func (h *Hub) OnView(view []reconcile.MergedShape) {
	h.queueView(view)
}

// OnPresence is the presence subscription listener: it fans a peer snapshot
// out to rendering clients. The local user's own record is filtered here so
// clients only render peers.
func (h *Hub) OnPresence(records map[string]canvas.Presence) {
	selfID := h.sess.User().ID
	users := make([]canvas.Presence, 0, len(records))
	for id, p := range records {
		if id == selfID {
			continue
		}
		users = append(users, p)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	payload, err := json.Marshal(PresenceFrame{Type: "presence", Users: users})
	if err != nil {
		log.Printf("[Gateway] Failed to marshal presence frame: %v", err)
		return
	}
	h.enqueue(payload)
}

func (h *Hub) queueView(view []reconcile.MergedShape) {
	frame := ViewFrame{
		Type:    "view",
		Shapes:  view,
		CanUndo: h.sess.CanUndo(),
		CanRedo: h.sess.CanRedo(),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[Gateway] Failed to marshal view frame: %v", err)
		return
	}
	h.enqueue(payload)
}

// enqueue hands a frame to the broadcast pump without ever blocking the
// caller: notifiers run synchronously inside the reconcile engine and the
// history, so a full queue sheds its oldest frame instead. Every frame
// carries a full snapshot, so dropping stale ones loses nothing.
func (h *Hub) enqueue(payload []byte) {
	for {
		select {
		case h.broadcast <- payload:
			return
		default:
		}
		select {
		case <-h.broadcast:
		default:
		}
	}
}

// ServeWS upgrades one HTTP request to a websocket client and starts its
// pumps. The current view is sent immediately so the client does not start
// blind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.queueView(h.sess.View())

	go h.writePump(c)
	go h.readPump(c)
}

// ClientCount returns the number of connected rendering clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if h.clients[c] {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Gateway] Client read error: %v", err)
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("[Gateway] Skipping malformed message: %v", err)
			continue
		}

		h.dispatch(context.Background(), &msg)
	}
}

// dispatch maps one inbound message onto the session boundary. Errors are
// logged, not returned to the client: the next view frame shows the
// authoritative outcome either way.
func (h *Hub) dispatch(ctx context.Context, msg *InboundMessage) {
	var err error
	switch msg.Type {
	case "drag_start":
		err = h.sess.OnDragStart(ctx, msg.ShapeID)
	case "drag_move":
		h.sess.OnDragMove(ctx, msg.ShapeID, msg.X, msg.Y)
	case "drag_end":
		err = h.sess.OnDragEnd(ctx, msg.ShapeID, msg.X, msg.Y)
	case "transform_start":
		err = h.sess.OnTransformStart(ctx, msg.ShapeID)
	case "transform_move":
		h.sess.OnTransformMove(ctx, msg.ShapeID, msg.X, msg.Y, msg.Width, msg.Height)
	case "transform_end":
		err = h.sess.OnTransformEnd(ctx, msg.ShapeID, msg.Fields)
	case "cursor":
		h.sess.PublishCursor(ctx, msg.X, msg.Y)
	case "create":
		if msg.Shape != nil {
			err = h.sess.CreateShape(ctx, msg.Shape)
		}
	case "delete":
		if len(msg.ShapeIDs) == 1 {
			err = h.sess.DeleteShape(ctx, msg.ShapeIDs[0])
		} else if len(msg.ShapeIDs) > 1 {
			err = h.sess.DeleteShapes(ctx, msg.ShapeIDs)
		}
	case "update_text":
		err = h.sess.UpdateText(ctx, msg.ShapeID, msg.Text)
	case "update_properties":
		err = h.sess.UpdateProperties(ctx, msg.ShapeID, msg.Fields)
	case "undo":
		err = h.sess.Undo(ctx)
	case "redo":
		err = h.sess.Redo(ctx)
	default:
		log.Printf("[Gateway] Unknown message type %q", msg.Type)
	}

	if err != nil {
		log.Printf("[Gateway] %s failed: %v", msg.Type, err)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
