package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/ws", NewEndpoint(hub, []string{"http://localhost:5173"}).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestConnectGreeting(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	f := readFrame(t, conn)
	assert.Equal(t, EventServerMessage, f.Event)
	assert.JSONEq(t, `{"message":"connected"}`, string(f.Data))
}

func TestPingPong(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "ping", "data": map[string]int{"n": 1}}))
	f := readFrame(t, conn)
	assert.Equal(t, EventPong, f.Event)
	assert.JSONEq(t, `{"ok":true,"echo":{"n":1}}`, string(f.Data))

	require.NoError(t, conn.WriteJSON(map[string]string{"event": "ping"}))
	f = readFrame(t, conn)
	assert.JSONEq(t, `{"ok":true,"echo":null}`, string(f.Data))
}

func TestUnknownEvent(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"event": "shout"}))
	f := readFrame(t, conn)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `{"message":"unknown event"}`, string(f.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f = readFrame(t, conn)
	assert.Equal(t, EventError, f.Event)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)
	readFrame(t, a)
	readFrame(t, b)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, NewLocalBroadcaster(hub).Publish(context.Background(), Event{
		Event: EventPostCreated,
		Data:  map[string]interface{}{"id": 1, "message": "hi"},
	}))

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		assert.Equal(t, EventPostCreated, f.Event)
		assert.JSONEq(t, `{"id":1,"message":"hi"}`, string(f.Data))
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, url := newTestServer(t)
	conn := dial(t, url)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// Publishing after close must not block.
	_ = NewLocalBroadcaster(hub).Publish(context.Background(), Event{Event: EventPostCreated})
}

func TestRejectsForeignOrigin(t *testing.T) {
	_, url := newTestServer(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := &Client{ID: "slow", hub: hub, send: make(chan []byte, 1), done: make(chan struct{}), handlers: map[string]HandlerFunc{}}
	require.True(t, hub.Register(c))

	hub.Deliver(Event{Event: EventPostCreated})
	hub.Deliver(Event{Event: EventPostCreated})

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow client was not closed")
	}
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestDecodeEvent(t *testing.T) {
	in, err := decodeEvent([]byte(`{"event":"post_created","data":{"id":3}}`))
	require.NoError(t, err)
	assert.Equal(t, EventPostCreated, in.Event)
	assert.JSONEq(t, `{"id":3}`, string(in.Data))

	_, err = decodeEvent([]byte(`{"data":1}`))
	assert.Error(t, err)
	_, err = decodeEvent([]byte(`nope`))
	assert.Error(t, err)
}
