package websocket

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	ws "github.com/gorilla/websocket"
	"github.com/tarkov-map/tracker/internal/handoff"
	"github.com/tarkov-map/tracker/pkg/streaming"
)

const (
	queueSize     = 1024
	ackChSize     = 16
	maxReconnect  = 10
	maxBackoff    = 30 * time.Second
	writeWait     = 10 * time.Second
	handshakeWait = 5 * time.Second
	ackTimeout    = 10 * time.Second
)

// connection owns one WebSocket with a single writer. Session, event and
// status messages are queued in order. Positions go through a latest-wins
// slot: a slow link sends the newest fix instead of a backlog, and a
// pending position is always written before the next queued message.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	// start_session message replayed after a reconnect
	startMsg []byte

	queue     chan []byte
	positions *handoff.Slot[[]byte]
	acks      chan streaming.AckMessage
	done      chan struct{}

	dropped atomic.Uint64

	url    string
	secret string
	dialer ws.Dialer
	logger *slog.Logger
}

func newConnection(rawURL, secret string, logger *slog.Logger) *connection {
	return &connection{
		queue:     make(chan []byte, queueSize),
		positions: handoff.New[[]byte](),
		acks:      make(chan streaming.AckMessage, ackChSize),
		done:      make(chan struct{}),
		url:       rawURL,
		secret:    secret,
		dialer:    ws.Dialer{HandshakeTimeout: handshakeWait},
		logger:    logger,
	}
}

// open dials and starts the read and write loops.
func (c *connection) open() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

func (c *connection) dial() (*ws.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) attach(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.writeLoop(conn)
	go c.readLoop(conn)
}

func (c *connection) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// flushPosition writes the pending position, if any.
func (c *connection) flushPosition(conn *ws.Conn) error {
	data, ok := c.positions.Take()
	if !ok || data == nil {
		return nil
	}
	return c.write(conn, data)
}

// writeLoop is the only writer of conn. It exits on shutdown or on the
// first write error, handing over to reconnect.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		var err error
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			if err = c.flushPosition(conn); err == nil {
				err = c.write(conn, data)
			}
		case <-c.positions.Ready():
			err = c.flushPosition(conn)
		}
		if err != nil {
			c.logger.Warn("WebSocket write error", "error", err)
			go c.reconnect(conn)
			return
		}
	}
}

// readLoop routes acks to sendAndWait.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("WebSocket read error", "error", err)
				go c.reconnect(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if err := sonic.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces a failed conn. Both loops may report the same
// failure; only the first call for a given conn proceeds.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	_ = failed.Close()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := c.dial()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		start := c.startMsg
		c.mu.Unlock()
		if start != nil {
			if err := c.write(conn, start); err != nil {
				c.logger.Warn("Failed to replay start_session after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		c.attach(conn)
		return
	}
	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send queues an ordered message without blocking; it is dropped when the
// queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.queue <- data:
	default:
		c.dropped.Add(1)
		c.logger.Warn("WebSocket send queue full, dropping message")
	}
}

// sendPosition replaces the pending position.
func (c *connection) sendPosition(data []byte) {
	c.positions.Publish(data)
}

// pending returns the number of messages waiting for the writer.
func (c *connection) pending() int {
	n := len(c.queue)
	if c.positions.Pending() {
		n++
	}
	return n
}

// setStart records the message replayed after reconnects; nil clears it.
func (c *connection) setStart(data []byte) {
	c.mu.Lock()
	c.startMsg = data
	c.mu.Unlock()
}

// sendAndWait queues data and blocks until the server acks ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops the loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
