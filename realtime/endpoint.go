package realtime

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cppla/geopost/utils"
)

// Endpoint upgrades HTTP requests to realtime connections attached to a hub.
type Endpoint struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewEndpoint accepts browser connections from allowedOrigins ("*" allows any) and from the
// serving host itself. Requests without an Origin header, i.e. non-browser clients, are allowed.
func NewEndpoint(hub *Hub, allowedOrigins []string) *Endpoint {
	return &Endpoint{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Serve is the gin handler for the websocket route.
func (e *Endpoint) Serve(ctx *gin.Context) {
	conn, err := e.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		utils.Sugar.Warnw("websocket upgrade failed", "error", err, "ip", ctx.ClientIP())
		return
	}

	c := newClient(e.hub, conn)
	c.On(EventPing, handlePing)
	c.Emit(Event{Event: EventServerMessage, Data: map[string]string{"message": "connected"}})

	if !e.hub.Register(c) {
		_ = conn.Close()
		return
	}
	utils.Sugar.Debugw("realtime client connected", "client", c.ID, "ip", ctx.ClientIP())

	go c.writePump()
	go c.readPump()
}

func handlePing(c *Client, data json.RawMessage) {
	c.Emit(Event{Event: EventPong, Data: map[string]interface{}{"ok": true, "echo": data}})
}
