// Package websocket streams recorded sessions to a remote collector.
package websocket

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tarkov-map/tracker/pkg/core"
	"github.com/tarkov-map/tracker/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend forwards sessions, positions, events and status snapshots over
// a WebSocket. Session boundaries wait for a server ack; everything else
// is fire-and-forget, and positions not yet written are superseded by
// newer ones.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(cfg.URL, cfg.Secret, logger.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the server ack. The
// message is replayed after every reconnect until EndSession.
func (b *Backend) StartSession(s *core.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}

	b.conn.setStart(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession() error {
	data, err := streaming.Marshal(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
	b.conn.setStart(nil)
	return err
}

func (b *Backend) RecordPosition(p *core.TrackedPosition) error {
	data, err := streaming.Marshal(streaming.TypePosition, p)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypePosition, err)
	}
	b.conn.sendPosition(data)
	return nil
}

func (b *Backend) RecordEvent(e *core.SessionEvent) error {
	return b.sendEnvelope(streaming.TypeEvent, e)
}

func (b *Backend) RecordStatus(s *core.PipelineStatus) error {
	return b.sendEnvelope(streaming.TypeStatus, s)
}

// QueueLen implements storage.Pending.
func (b *Backend) QueueLen() int {
	return b.conn.pending()
}

// Dropped returns messages discarded because the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// Superseded returns positions replaced by a newer one before being sent.
func (b *Backend) Superseded() uint64 {
	return b.conn.positions.Dropped()
}
