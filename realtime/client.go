package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cppla/geopost/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// HandlerFunc handles one inbound event for a client. data is the raw JSON payload and may be nil.
type HandlerFunc func(c *Client, data json.RawMessage)

// Client is a single websocket connection. Handlers are registered per connection with On
// before the pumps start.
type Client struct {
	ID string

	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	handlers map[string]HandlerFunc
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// On binds fn to the named event for this connection only.
func (c *Client) On(event string, fn HandlerFunc) {
	c.handlers[event] = fn
}

// Emit queues evt for this client alone. It reports false if the client is gone or too slow.
func (c *Client) Emit(evt Event) bool {
	msg, err := json.Marshal(evt)
	if err != nil {
		utils.Sugar.Errorw("encode realtime event", "event", evt.Event, "client", c.ID, "error", err)
		return false
	}
	return c.enqueue(msg)
}

// enqueue never blocks. A full queue marks the client as a slow consumer and closes it.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) dispatch(raw []byte) {
	in, err := decodeEvent(raw)
	if err != nil {
		c.Emit(Event{Event: EventError, Data: map[string]string{"message": "invalid message"}})
		return
	}
	fn, ok := c.handlers[in.Event]
	if !ok {
		c.Emit(Event{Event: EventError, Data: map[string]string{"message": "unknown event"}})
		return
	}
	fn(c, in.Data)
}

// readPump reads frames until the connection fails, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				utils.Sugar.Warnw("realtime read failed", "client", c.ID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.dispatch(raw)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
