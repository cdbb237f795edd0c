package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/database"
	"github.com/tarkov-map/tracker/internal/model"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Pending = (*Backend)(nil)
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db.DB, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestRecordWithoutSession(t *testing.T) {
	b := newTestBackend(t)
	assert.ErrorIs(t, b.RecordPosition(&core.TrackedPosition{}), ErrNoSession)
	assert.ErrorIs(t, b.RecordEvent(&core.SessionEvent{}), ErrNoSession)
	assert.ErrorIs(t, b.RecordStatus(&core.PipelineStatus{}), ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestSessionLifecycle(t *testing.T) {
	b := newTestBackend(t)
	now := time.Now().UTC()

	require.NoError(t, b.StartSession(&core.Session{ID: "s1", MapID: "customs", StartedAt: now}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordPosition(&core.TrackedPosition{
			MapID:     "customs",
			World:     core.Point{X: float64(i), Y: 1},
			Timestamp: now.Add(time.Duration(i) * time.Second),
			State:     core.StateTracking,
		}))
	}
	require.NoError(t, b.RecordEvent(&core.SessionEvent{Time: now, Type: core.EventMapSelected, Data: map[string]any{"epoch": 1}}))
	require.NoError(t, b.RecordStatus(&core.PipelineStatus{Time: now, Captured: 7}))
	assert.Equal(t, 5, b.QueueLen())

	require.NoError(t, b.EndSession())
	assert.Equal(t, 0, b.QueueLen())

	db := b.DB()
	var positions []model.Position
	require.NoError(t, db.Order("time").Find(&positions).Error)
	require.Len(t, positions, 3)
	assert.Equal(t, "s1", positions[0].SessionID)
	assert.Equal(t, 2.0, positions[2].WorldX)
	assert.Equal(t, "tracking", positions[0].State)

	var session model.Session
	require.NoError(t, db.First(&session, "id = ?", "s1").Error)
	assert.NotNil(t, session.EndedAt)

	var events int64
	require.NoError(t, db.Model(&model.Event{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCloseFlushes(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db.DB, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{ID: "s2", StartedAt: time.Now()}))
	require.NoError(t, b.RecordPosition(&core.TrackedPosition{Timestamp: time.Now()}))
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.Position{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestQueueLimit(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "limit.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db.DB, FlushInterval: time.Hour, QueueLimit: 2})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })

	require.NoError(t, b.StartSession(&core.Session{ID: "s3", StartedAt: time.Now()}))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordPosition(&core.TrackedPosition{Timestamp: time.Now()}))
	}
	assert.Equal(t, 2, b.QueueLen())
	assert.Equal(t, uint64(3), b.Dropped())
}

func TestStartSession_AssignsID(t *testing.T) {
	b := newTestBackend(t)
	s := &core.Session{MapID: "woods", StartedAt: time.Now()}
	require.NoError(t, b.StartSession(s))
	assert.Len(t, s.ID, 36)

	var count int64
	require.NoError(t, b.DB().Model(&model.Session{}).Where("id = ?", s.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
