package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/tarkov-map/tracker/internal/publish"
	"github.com/tarkov-map/tracker/pkg/core"
	"github.com/tarkov-map/tracker/pkg/streaming"
)

const maxBackoff = 10 * time.Second

// Client follows a remote stream and republishes its positions locally.
type Client struct {
	url       string
	logger    *slog.Logger
	publisher *publish.Publisher

	mu    sync.Mutex
	hello streaming.HelloPayload
}

// NewClient creates a client for url (ws://host:port/path).
func NewClient(url string, staleAfter time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       url,
		logger:    logger.With("component", "stream-client"),
		publisher: publish.New(staleAfter),
	}
}

// Publisher returns the local copy of the remote position.
func (c *Client) Publisher() *publish.Publisher { return c.publisher }

// Latest implements Source.
func (c *Client) Latest(now time.Time) (core.TrackedPosition, bool) {
	return c.publisher.Latest(now)
}

// Hello returns the greeting of the current connection.
func (c *Client) Hello() streaming.HelloPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("stream disconnected", "error", err, "retry", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("stream connected", "url", c.url)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := streaming.Unmarshal(msg, nil)
		if err != nil {
			continue
		}
		switch env.Type {
		case streaming.TypeHello:
			var hello streaming.HelloPayload
			if _, err := streaming.Unmarshal(msg, &hello); err == nil {
				c.mu.Lock()
				c.hello = hello
				c.mu.Unlock()
			}
		case streaming.TypePosition:
			var pos streaming.PositionPayload
			if _, err := streaming.Unmarshal(msg, &pos); err == nil {
				c.publisher.Publish(pos)
			}
		}
	}
}
