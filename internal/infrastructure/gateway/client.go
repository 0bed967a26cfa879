// Package gateway is the client side of the realtime support channel: a
// websocket carrying JSON frames of the form {"event": ..., "data": ...},
// scoped to one ticket room at a time.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-support-chat/internal/domain"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// TokenSource supplies the customer bearer token, "" when anonymous.
type TokenSource interface {
	Token() string
}

// Handler receives server events and reconnect notifications. Calls come
// from the connection's read goroutine, one at a time.
type Handler interface {
	HandleEvent(ev domain.Event)
	HandleReconnect(ctx context.Context)
	// HandleUnauthorized is called once when a redial is rejected with
	// 401/403. The client stops reconnecting before the call.
	HandleUnauthorized(ctx context.Context)
}

// Config holds gateway connection settings.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://api.example.com/chat".
	URL string

	// ReconnectInterval is the first delay after an unexpected disconnect.
	// It doubles on each failed attempt up to MaxReconnectInterval.
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration

	HandshakeTimeout time.Duration
}

// Client is a reconnecting websocket client for the realtime gateway.
type Client struct {
	cfg    Config
	tokens TokenSource
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	room    string
	handler Handler
	closed  bool
	stop    chan struct{}

	writeMu sync.Mutex
}

// NewClient creates a gateway client. Nothing is dialed until Connect.
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.MaxReconnectInterval < cfg.ReconnectInterval {
		cfg.MaxReconnectInterval = 30 * cfg.ReconnectInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		closed: true,
	}
}

// SetHandler installs the event consumer.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect dials the gateway if not already connected and joins the current
// room, if any. After a successful Connect the client redials on its own
// until Close is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.closed {
		c.closed = false
		c.stop = make(chan struct{})
	}
	stop := c.stop
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if !c.install(conn, stop) {
		return nil
	}
	slog.Info("gateway connected", "url", c.cfg.URL)
	return c.rejoin()
}

// Join makes ticketID the current room. The join is emitted immediately when
// connected, and again after every reconnect.
func (c *Client) Join(ticketID string) error {
	c.mu.Lock()
	c.room = ticketID
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.emit(domain.EventJoinTicket, ticketID)
}

// Leave forgets the current room so reconnects no longer rejoin it.
func (c *Client) Leave() {
	c.mu.Lock()
	c.room = ""
	c.mu.Unlock()
}

// SendMessage emits send_message for the given ticket.
func (c *Client) SendMessage(ticketID, content, clientID string) error {
	return c.emit(domain.EventSendMessage, domain.SendMessagePayload{
		TicketID: ticketID,
		Content:  content,
		ClientID: clientID,
	})
}

// VerifyPin emits verify_pin for the given ticket.
func (c *Client) VerifyPin(ticketID, pin string) error {
	return c.emit(domain.EventVerifyPin, domain.VerifyPinPayload{TicketID: ticketID, Pin: pin})
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close disconnects and stops reconnecting. The room is kept so a later
// Connect resumes it.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.stop)
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("gateway dial: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("gateway dial: %w", errors.Join(domain.ErrTransport, err))
	}
	return conn, nil
}

// install makes conn the live connection unless Close ran meanwhile or
// another connection won the race. It reports whether conn was kept.
func (c *Client) install(conn *websocket.Conn, stop chan struct{}) bool {
	c.mu.Lock()
	if c.closed || c.stop != stop || c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn, stop)
	return true
}

func (c *Client) rejoin() error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == "" {
		return nil
	}
	return c.emit(domain.EventJoinTicket, room)
}

func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			closed := c.closed || c.stop != stop
			c.mu.Unlock()
			_ = conn.Close()
			if closed {
				return
			}
			slog.Warn("gateway disconnected", "err", err)
			go c.reconnect(stop)
			return
		}

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			slog.Warn("gateway: dropping malformed frame", "err", err)
			continue
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.HandleEvent(ev)
		}
	}
}

// reconnect redials with exponential backoff until it succeeds, stop closes
// or the gateway rejects the credentials.
func (c *Client) reconnect(stop chan struct{}) {
	backoff := c.cfg.ReconnectInterval
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if errors.Is(err, domain.ErrUnauthorized) {
			slog.Warn("gateway rejected credentials, giving up", "err", err)
			c.mu.Lock()
			if !c.closed && c.stop == stop {
				c.closed = true
				close(stop)
			}
			h := c.handler
			c.mu.Unlock()
			if h != nil {
				h.HandleUnauthorized(context.Background())
			}
			return
		}
		if err != nil {
			slog.Warn("gateway reconnect failed", "err", err, "retry_in", backoff)
			backoff *= 2
			if backoff > c.cfg.MaxReconnectInterval {
				backoff = c.cfg.MaxReconnectInterval
			}
			continue
		}
		if !c.install(conn, stop) {
			return
		}
		slog.Info("gateway reconnected", "url", c.cfg.URL)
		if err := c.rejoin(); err != nil {
			slog.Warn("gateway rejoin failed", "err", err)
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.HandleReconnect(context.Background())
		}
		return
	}
}

func (c *Client) emit(event domain.EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(domain.Event{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("emit %s: not connected: %w", event, domain.ErrTransport)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, errors.Join(domain.ErrTransport, err))
	}
	return nil
}
