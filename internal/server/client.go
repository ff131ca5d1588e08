// Package server manages individual WebSocket clients, handling read/write
// pumps, message dispatch, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/minicanvas/ws-backend/internal/logging"
)

const writeTimeout = 10 * time.Second

// Client represents one authenticated WebSocket connection. The identity
// is fixed at admission; the room set grows and shrinks only through
// join_room and leave_room messages read from this same connection.
type Client struct {
	id             string
	identity       string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	rooms          map[RoomID]struct{}
	closed         bool
	maxMessageSize int64
	idleTimeout    time.Duration
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance for a connection that already
// passed token verification. The send channel is buffered so a slow
// reader cannot stall fan-out for the rest of the room.
func NewClient(conn *websocket.Conn, hub *Hub, identity, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		id:             uuid.NewString(),
		identity:       identity,
		conn:           conn,
		send:           make(chan []byte, cfg.SendQueueSize),
		hub:            hub,
		addr:           addr,
		rooms:          make(map[RoomID]struct{}),
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		idleTimeout:    cfg.IdleTimeout,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// Identity returns the stable user identifier bound to this connection.
func (c *Client) Identity() string {
	return c.identity
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
		logging.Errorf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			logging.Errorf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		logging.Warnf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		logging.Infof("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		logging.Infof("Client %s connection closed: %v", c.addr, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		logging.Warnf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return true
	}

	logging.Warnf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		logging.Warnf("Rate limit exceeded for %s (%d messages per %s); discarding message",
			c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// dispatchMessage parses a tagged inbound payload and routes it by type.
// Malformed payloads and unknown types are dropped without closing the
// connection; every other failure mode here is scoped to this message.
// It returns true if the message was acted upon.
func (c *Client) dispatchMessage(rawMessage []byte) bool {
	var msg InboundMessage
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		logging.Warnf("Dropping malformed message from user %s at %s: %v", c.identity, c.addr, err)
		return false
	}

	switch msg.Type {
	case MessageTypeJoin:
		c.hub.joinRoom(c, msg.RoomID)
		logging.Infof("User %s joined room %s", c.identity, msg.RoomID)
		return true
	case MessageTypeLeave:
		c.hub.leaveRoom(c, msg.RoomID)
		logging.Infof("User %s left room %s", c.identity, msg.RoomID)
		return true
	case MessageTypeChat:
		c.hub.Publish(msg.RoomID, msg.Message, c.identity)
		return true
	default:
		logging.Warnf("Dropping message with unknown type %q from user %s", msg.Type, c.identity)
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				logging.Errorf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.dispatchMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	// Ping inside the idle window so healthy but quiet connections are
	// not reaped by the read deadline.
	ticker := time.NewTicker(c.idleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			logging.Errorf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		logging.Errorf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			logging.Errorf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes a text message and any queued messages
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		logging.Errorf("Error creating writer for %s: %v", c.addr, err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		logging.Errorf("Error writing message to %s: %v", c.addr, err)
		return false
	}

	if err := w.Close(); err != nil {
		logging.Errorf("Error closing writer for %s: %v", c.addr, err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		logging.Errorf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			logging.Errorf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
