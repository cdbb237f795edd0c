// Package stream serves the published position to WebSocket clients and
// accepts control commands from them.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/dispatcher"
	"github.com/tarkov-map/tracker/pkg/core"
	"github.com/tarkov-map/tracker/pkg/streaming"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxMessage   = 4096
)

// Source is the position poll API.
type Source interface {
	Latest(now time.Time) (core.TrackedPosition, bool)
}

// Commander executes control commands.
type Commander interface {
	Dispatch(e dispatcher.Event) (any, error)
	Commands() []string
}

// Server broadcasts positions at a fixed rate.
type Server struct {
	cfg      config.StreamConfig
	source   Source
	commands Commander
	mapID    func() string
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *ws.Conn
	send chan []byte
}

// New creates a stream server. commands and mapID may be nil.
func New(cfg config.StreamConfig, source Source, commands Commander, mapID func() string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateHz <= 0 {
		cfg.RateHz = 10
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Server{
		cfg:      cfg,
		source:   source,
		commands: commands,
		mapID:    mapID,
		logger:   logger.With("component", "stream"),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// local tools connect from arbitrary origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler upgrading to WebSocket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	return mux
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go s.Broadcast(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	s.logger.Info("stream listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast polls the source at the configured rate and sends every
// changed position to all clients. It returns when ctx is cancelled.
func (s *Server) Broadcast(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.RateHz))
	defer ticker.Stop()

	var last core.TrackedPosition
	var sent bool
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pos, ok := s.source.Latest(now)
			if !ok {
				sent = false
				continue
			}
			if sent && sameUpdate(pos, last) {
				continue
			}
			data, err := streaming.Marshal(streaming.TypePosition, pos)
			if err != nil {
				s.logger.Error("encode position", "error", err)
				continue
			}
			s.broadcast(data)
			last, sent = pos, true
		}
	}
}

// sameUpdate reports whether b carries nothing new over a.
func sameUpdate(a, b core.TrackedPosition) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Epoch == b.Epoch && a.Stale == b.Stale && a.State == b.State
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// slow client, it catches up with the next position
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	hello := streaming.HelloPayload{}
	if s.mapID != nil {
		hello.MapID = s.mapID()
	}
	if s.commands != nil {
		hello.Commands = s.commands.Commands()
	}
	if data, err := streaming.Marshal(streaming.TypeHello, hello); err == nil {
		c.send <- data
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("client connected", "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd streaming.CommandPayload
		env, err := streaming.Unmarshal(msg, &cmd)
		if err != nil || env.Type != streaming.TypeCommand {
			s.logger.Debug("ignoring client message", "type", env.Type, "error", err)
			continue
		}
		reply := s.execute(cmd)
		data, err := streaming.Marshal(streaming.TypeCommandReply, reply)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

func (s *Server) execute(cmd streaming.CommandPayload) streaming.CommandReplyPayload {
	reply := streaming.CommandReplyPayload{Command: cmd.Command}
	if s.commands == nil {
		reply.Error = "commands not accepted"
		return reply
	}
	result, err := s.commands.Dispatch(dispatcher.NewEvent(cmd.Command, cmd.Args...).From(dispatcher.SourceStream))
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Result = result
	return reply
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
