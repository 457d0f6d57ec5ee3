package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle of one push channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	// NotifyPort is the websocket port on the device.
	NotifyPort = 8080

	// subprotocol required by the device's websocket endpoint.
	subprotocol = "gabbo"

	connectTimeout = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 10 * time.Second

	// queueSize bounds the pollable event queue; when full the oldest
	// event is dropped.
	queueSize = 64
)

// Handler receives decoded events. Handlers run on the read goroutine and
// must not block.
type Handler func(Event)

// Client holds the push channel to one device.
type Client struct {
	ip   string
	port int

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    State
	handlers []Handler
	stopPing chan struct{}

	queue chan Event
}

// NewClient creates a disconnected push client for the device at ip.
func NewClient(ip string) *Client {
	return NewClientPort(ip, NotifyPort)
}

// NewClientPort creates a push client with an explicit port.
func NewClientPort(ip string, port int) *Client {
	return &Client{
		ip:    ip,
		port:  port,
		state: StateDisconnected,
		queue: make(chan Event, queueSize),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnEvent registers a handler for every decoded event.
func (c *Client) OnEvent(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Events exposes the pollable queue. Events overflow oldest-first when no
// consumer keeps up.
func (c *Client) Events() <-chan Event {
	return c.queue
}

// Connect dials the device. The wait is bounded: the handshake either
// completes within the connect timeout or fails. Connecting an already
// connected client is an error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("notify: already %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: connectTimeout,
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/", c.ip, c.port)
	conn, _, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("notify: dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.stopPing = make(chan struct{})
	c.mu.Unlock()

	go c.pingLoop(conn, c.stopPing)
	go c.readLoop(conn)

	log.Printf("NOTIFY: connected to %s", c.ip)
	return nil
}

// pingLoop keeps the channel alive. A missed pong trips the read deadline,
// which fails the read loop and tears the connection down.
func (c *Client) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})
	if err := conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait)); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(pongWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("NOTIFY: ping to %s failed: %v", c.ip, err)
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect()
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame []byte) {
	events, err := ParseEvents(frame)
	if err != nil {
		log.Printf("NOTIFY: bad frame from %s: %v", c.ip, err)
		return
	}

	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	for _, event := range events {
		for _, handler := range handlers {
			handler(event)
		}
		select {
		case c.queue <- event:
		default:
			// Full queue: drop the oldest so fresh state wins.
			select {
			case <-c.queue:
			default:
			}
			select {
			case c.queue <- event:
			default:
			}
		}
	}
}

func (c *Client) handleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return
	}
	log.Printf("NOTIFY: disconnected from %s", c.ip)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.stopPing != nil {
		select {
		case <-c.stopPing:
		default:
			close(c.stopPing)
		}
		c.stopPing = nil
	}
	c.state = StateDisconnected
}

// Disconnect closes the channel. Idempotent.
func (c *Client) Disconnect() {
	c.handleDisconnect()
}
