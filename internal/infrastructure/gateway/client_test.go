package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-support-chat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recorder struct {
	mu         sync.Mutex
	events     []domain.Event
	reconnects int
	got        chan domain.Event
	reconn     chan struct{}
	unauth     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		got:    make(chan domain.Event, 16),
		reconn: make(chan struct{}, 4),
		unauth: make(chan struct{}, 4),
	}
}

func (r *recorder) HandleEvent(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- ev
}

func (r *recorder) HandleReconnect(context.Context) {
	r.mu.Lock()
	r.reconnects++
	r.mu.Unlock()
	r.reconn <- struct{}{}
}

func (r *recorder) HandleUnauthorized(context.Context) {
	r.unauth <- struct{}{}
}

// fakeGateway accepts websocket connections and exposes received frames and
// the most recent server-side connection.
type fakeGateway struct {
	t        *testing.T
	srv      *httptest.Server
	frames   chan domain.Event
	conns    chan *websocket.Conn
	authSeen chan string
	rejects  chan struct{}
	reject   atomic.Bool
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:        t,
		frames:   make(chan domain.Event, 16),
		conns:    make(chan *websocket.Conn, 4),
		authSeen: make(chan string, 4),
		rejects:  make(chan struct{}, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.authSeen <- r.Header.Get("Authorization")
		if g.reject.Load() {
			g.rejects <- struct{}{}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev domain.Event
			if json.Unmarshal(data, &ev) == nil {
				g.frames <- ev
			}
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *fakeGateway) nextFrame() domain.Event {
	g.t.Helper()
	select {
	case ev := <-g.frames:
		return ev
	case <-time.After(2 * time.Second):
		g.t.Fatal("no frame received")
		return domain.Event{}
	}
}

func (g *fakeGateway) nextConn() *websocket.Conn {
	g.t.Helper()
	select {
	case c := <-g.conns:
		return c
	case <-time.After(2 * time.Second):
		g.t.Fatal("no connection")
		return nil
	}
}

func newClient(g *fakeGateway) *Client {
	return NewClient(Config{
		URL:                  g.url(),
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 40 * time.Millisecond,
		HandshakeTimeout:     time.Second,
	}, staticToken("tok"))
}

func TestConnect_JoinsRoomWithBearer(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Join("T-100"))
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, "Bearer tok", <-g.authSeen)

	ev := g.nextFrame()
	assert.Equal(t, domain.EventJoinTicket, ev.Type)
	var room string
	require.NoError(t, json.Unmarshal(ev.Data, &room))
	assert.Equal(t, "T-100", room)
}

func TestSendMessageAndVerifyPin(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.SendMessage("T-100", "hello", "temp-1"))
	ev := g.nextFrame()
	assert.Equal(t, domain.EventSendMessage, ev.Type)
	var msg domain.SendMessagePayload
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.Equal(t, domain.SendMessagePayload{TicketID: "T-100", Content: "hello", ClientID: "temp-1"}, msg)

	require.NoError(t, c.VerifyPin("T-100", "1234"))
	ev = g.nextFrame()
	assert.Equal(t, domain.EventVerifyPin, ev.Type)
	var pin domain.VerifyPinPayload
	require.NoError(t, json.Unmarshal(ev.Data, &pin))
	assert.Equal(t, "1234", pin.Pin)
}

func TestEmit_NotConnected(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1"}, nil)
	err := c.SendMessage("T-1", "x", "temp-1")
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, c.Connected())
	assert.NoError(t, c.Join("T-1"))
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewClient(Config{URL: url, HandshakeTimeout: time.Second}, nil)
	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, domain.ErrTransport))
	_ = c.Close()
}

func TestConnect_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	_ = c.Close()
}

func TestReadLoop_DispatchesEvents(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	rec := newRecorder()
	c.SetHandler(rec)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Connect(context.Background()))

	server := g.nextConn()
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"event":"request_pin","data":{"type":"ACCOUNT"}}`)))

	select {
	case ev := <-rec.got:
		assert.Equal(t, domain.EventRequestPin, ev.Type)
		var p domain.RequestPinPayload
		require.NoError(t, json.Unmarshal(ev.Data, &p))
		assert.Equal(t, "ACCOUNT", p.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestReconnect_RejoinsAndNotifies(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	rec := newRecorder()
	c.SetHandler(rec)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Join("T-100"))
	require.NoError(t, c.Connect(context.Background()))
	first := g.nextConn()
	assert.Equal(t, domain.EventJoinTicket, g.nextFrame().Type)

	_ = first.Close()

	g.nextConn()
	assert.Equal(t, domain.EventJoinTicket, g.nextFrame().Type)
	select {
	case <-rec.reconn:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect not reported")
	}
	assert.Eventually(t, c.Connected, time.Second, 10*time.Millisecond)
}

func TestReconnect_GivesUpWhenUnauthorized(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	rec := newRecorder()
	c.SetHandler(rec)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	first := g.nextConn()
	<-g.authSeen

	g.reject.Store(true)
	_ = first.Close()

	select {
	case <-rec.unauth:
	case <-time.After(2 * time.Second):
		t.Fatal("rejection not reported")
	}
	assert.False(t, c.Connected())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, g.rejects, 1)
	select {
	case <-rec.reconn:
		t.Fatal("reconnect reported after rejection")
	default:
	}
}

func TestClose_StopsReconnecting(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	require.NoError(t, c.Connect(context.Background()))
	g.nextConn()

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())

	select {
	case <-g.conns:
		t.Fatal("client redialed after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLeave_ForgetsRoom(t *testing.T) {
	g := newFakeGateway(t)
	c := newClient(g)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Join("T-100"))
	c.Leave()
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.VerifyPin("T-1", "1234"))
	assert.Equal(t, domain.EventVerifyPin, g.nextFrame().Type)
}
