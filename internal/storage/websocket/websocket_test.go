package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/pkg/core"
	"github.com/tarkov-map/tracker/pkg/streaming"
)

// Compile-time interface checks.
var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Pending = (*Backend)(nil)
)

// testServer upgrades to WebSocket, records received envelopes, and acks
// start_session/end_session.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			env, err := streaming.Unmarshal(msg, nil)
			if err != nil {
				continue
			}
			ml.add(env)

			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				ack := `{"type":"ack","for":"` + env.Type + `"}`
				if err := c.WriteMessage(ws.TextMessage, []byte(ack)); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secret   string
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	s := &core.Session{MapID: "customs", StartedAt: time.Now()}
	require.NoError(t, b.StartSession(s))
	assert.NotEmpty(t, s.ID)
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)

	var payload streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, s.ID, payload.Session.ID)
	assert.Equal(t, "customs", payload.Session.MapID)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "abc", MapID: "woods"}))
	require.NoError(t, b.RecordPosition(&core.TrackedPosition{MapID: "woods", World: core.Point{X: 1, Y: 2}}))
	require.NoError(t, b.RecordPosition(&core.TrackedPosition{MapID: "woods", World: core.Point{X: 2, Y: 2}}))
	require.NoError(t, b.RecordEvent(&core.SessionEvent{Type: core.EventAcquired}))
	require.NoError(t, b.RecordStatus(&core.PipelineStatus{Captured: 3}))
	require.NoError(t, b.EndSession())

	// end_session is acked after everything before it was read
	msgs := ml.all()
	types := make(map[string]int)
	for _, m := range msgs {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	// the two positions may coalesce into the newer one
	assert.Equal(t, 2, types[streaming.TypePosition]+int(b.Superseded()))
	assert.Equal(t, 1, types[streaming.TypeEvent])
	assert.Equal(t, 1, types[streaming.TypeStatus])
	assert.Equal(t, 0, b.QueueLen())
}

func TestStartSession_AckTimeoutWithoutServerAck(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())

	done := make(chan error, 1)
	go func() { done <- b.StartSession(&core.Session{ID: "x"}) }()

	// closing unblocks the ack wait before the timeout
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "closed")
	case <-time.After(2 * time.Second):
		t.Fatal("StartSession did not return after Close")
	}
}

func TestInit_BadURL(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/none"}, nil)
	assert.Error(t, b.Init())
}

func TestPositionsPrecedeLaterMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "abc", MapID: "woods"}))
	for i := 0; i < 50; i++ {
		require.NoError(t, b.RecordPosition(&core.TrackedPosition{MapID: "woods", World: core.Point{X: float64(i)}}))
	}
	require.NoError(t, b.RecordEvent(&core.SessionEvent{Type: core.EventLost}))
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	var last core.TrackedPosition
	lastPos, eventAt := -1, -1
	for i, m := range msgs {
		switch m.Type {
		case streaming.TypePosition:
			lastPos = i
			require.NoError(t, json.Unmarshal(m.Payload, &last))
		case streaming.TypeEvent:
			eventAt = i
		}
	}
	require.GreaterOrEqual(t, lastPos, 0)
	assert.Less(t, lastPos, eventAt)
	assert.Equal(t, 49.0, last.World.X)
	assert.Equal(t, 0, b.QueueLen())
}
