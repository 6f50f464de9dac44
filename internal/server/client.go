// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and per-session state for each connection.
package server

import (
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait is the deadline applied to every outbound frame write.
const writeWait = 10 * time.Second

// Client represents one WebSocket connection in the chat system. It carries
// the transient session attributes (assigned username, current room, liveness
// flag) alongside the transport plumbing. The username and currentRoom fields
// are guarded by the hub's mutex; alive is written by the pong handler on the
// read goroutine and read by the liveness sweep.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string

	send chan []byte
	ping chan struct{}

	username    string
	currentRoom string
	closed      bool
	alive       atomic.Bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client for the provided WebSocket connection.
// The send channel is buffered so broadcasts never block on a slow reader;
// the ping channel carries heartbeat probe requests from the liveness sweep
// to the write pump, which owns all frame writes.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		id:             uuid.NewString(),
		conn:           conn,
		hub:            hub,
		addr:           addr,
		send:           make(chan []byte, 256),
		ping:           make(chan struct{}, 1),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
	c.alive.Store(true)
	return c
}

// queuePing asks the write pump to emit a heartbeat probe. Non-blocking: if a
// probe is already pending there is no point queueing another.
func (c *Client) queuePing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// handleReadError logs an appropriate message for a failed read. Every read
// error ends the session; the categorization only controls log noise.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d events per %s); discarding frame",
			c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		// Once the hub shuts down nothing receives on unregister; the
		// shutdown path cleans up remaining clients itself.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	// A pong at any point between sweeps marks the connection live again.
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, rawFrame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.handleFrame(rawFrame)
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeOutbound(message, ok) {
				return
			}
		case <-c.ping:
			if !c.writeHeartbeat() {
				return
			}
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// writeOutbound delivers one serialized event as a single text frame and
// returns false when the pump should stop. A closed send channel means the
// hub has unregistered this client, so a close frame is sent instead.
func (c *Client) writeOutbound(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error writing close message to %s: %v", c.addr, err)
			}
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeHeartbeat emits a ping control frame requested by the liveness sweep.
func (c *Client) writeHeartbeat() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
