package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/pkg/core"
)

func TestSessionRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	s := core.Session{ID: "7d9f", MapID: "customs", MapName: "Customs", Detector: "template", StartedAt: start}

	m := CoreToSession(s)
	assert.Nil(t, m.EndedAt)
	assert.Equal(t, s, SessionToCore(m))

	s.EndedAt = start.Add(time.Hour)
	m = CoreToSession(s)
	require.NotNil(t, m.EndedAt)
	assert.Equal(t, s.EndedAt, *m.EndedAt)
}

func TestPositionConversion(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 1, 0, time.UTC)
	p := core.TrackedPosition{
		MapID:        "customs",
		Epoch:        2,
		World:        core.Point{X: 100, Y: 20},
		WorldHeading: 1.5,
		Pixel:        core.Point{X: 50, Y: 10},
		Velocity:     core.Point{X: 3, Y: -1},
		Confidence:   0.5,
		Timestamp:    at,
		State:        core.StateTracking,
		Extrapolated: true,
		Stale:        true,
		Source:       "template",
	}

	m := CoreToPosition("s1", p)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, "tracking", m.State)
	assert.Equal(t, 100.0, m.WorldX)
	assert.Equal(t, p, PositionToCore(m))
}

func TestEventConversion(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 2, 0, time.UTC)

	e := core.SessionEvent{Time: at, Type: core.EventMapSelected, Message: "woods", Data: map[string]any{"epoch": 3}}
	m := CoreToEvent("s1", e)
	assert.JSONEq(t, `{"epoch":3}`, string(m.Data))

	back := EventToCore(m)
	assert.Equal(t, core.EventMapSelected, back.Type)
	assert.Equal(t, 3.0, back.Data["epoch"])

	empty := CoreToEvent("s1", core.SessionEvent{Time: at, Type: core.EventPaused})
	assert.Equal(t, "{}", string(empty.Data))
	assert.Nil(t, EventToCore(empty).Data)
}

func TestStatusConversion(t *testing.T) {
	st := CoreToStatus("s1", core.PipelineStatus{MapID: "labs", State: "lost", Captured: 10, QueueLen: 4})
	assert.False(t, st.Time.IsZero())
	assert.Equal(t, uint64(10), st.Captured)
	assert.Equal(t, 4, st.QueueLen)
	assert.Equal(t, "lost", st.State)

	back := StatusToCore(st)
	assert.Equal(t, "labs", back.MapID)
	assert.Equal(t, uint64(10), back.Captured)
	assert.Equal(t, st.Time, back.Time)
}
