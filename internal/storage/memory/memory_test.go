package memory

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Verify Backend implements the storage interfaces
var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

var t0 = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

func testSession() *core.Session {
	return &core.Session{ID: "b7e3", MapID: "customs", MapName: "Customs", Detector: "template", StartedAt: t0}
}

func pos(sec int, x, y float64, state core.TrackingState, extrapolated bool) *core.TrackedPosition {
	return &core.TrackedPosition{
		MapID:        "customs",
		World:        core.Point{X: x, Y: y},
		Confidence:   0.9,
		Timestamp:    t0.Add(time.Duration(sec) * time.Second),
		State:        state,
		Extrapolated: extrapolated,
		Stale:        extrapolated || state == core.StateLost,
		Source:       "template",
	}
}

func TestRecordWithoutSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())

	assert.ErrorIs(t, b.RecordPosition(pos(0, 0, 0, core.StateTracking, false)), ErrNoSession)
	assert.ErrorIs(t, b.RecordEvent(&core.SessionEvent{Type: core.EventPaused}), ErrNoSession)
	assert.ErrorIs(t, b.RecordStatus(&core.PipelineStatus{}), ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
	assert.NoError(t, b.Close())
}

func TestExportCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordPosition(pos(0, 0, 0, core.StateTracking, false)))
	require.NoError(t, b.RecordPosition(pos(1, 3, 4, core.StateTracking, false)))
	require.NoError(t, b.RecordPosition(pos(2, 5, 4, core.StateTracking, true)))
	require.NoError(t, b.RecordPosition(pos(3, 6, 12, core.StateTracking, false)))
	require.NoError(t, b.RecordPosition(pos(4, 6, 12, core.StateLost, false)))
	require.NoError(t, b.RecordEvent(&core.SessionEvent{Time: t0, Type: core.EventMapSelected, Message: "customs"}))
	require.NoError(t, b.RecordStatus(&core.PipelineStatus{Time: t0, Captured: 20}))

	require.NoError(t, b.EndSession())

	path := b.ExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "customs_20260301_183000.json.gz"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	_, err = gzip.NewReader(f)
	require.NoError(t, err, "export should be gzip")
	f.Close()

	export, err := ReadExport(path)
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, "customs", export.Session.MapID)
	assert.Equal(t, t0.Add(4*time.Second), export.Session.EndedAt.UTC())
	require.Len(t, export.Positions, 5)
	assert.Equal(t, core.StateLost, export.Positions[4].State)
	assert.Len(t, export.Events, 1)
	assert.Len(t, export.Status, 1)

	assert.Equal(t, 5, export.Summary.Positions)
	assert.Equal(t, 3, export.Summary.Fresh)
	assert.Equal(t, 1, export.Summary.Extrapolated)
	assert.Equal(t, 1, export.Summary.Lost)
	assert.Equal(t, 4.0, export.Summary.Duration)
	// (0,0)->(3,4)->(6,12): 5 + sqrt(9+64)
	assert.InDelta(t, 5+8.544, export.Summary.PathLength, 0.01)

	_, active := b.Session()
	assert.False(t, active)
}

func TestExportPlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	s := testSession()
	s.MapID = "ground zero"
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.EndSession())

	assert.Equal(t, filepath.Join(dir, "ground_zero_20260301_183000.json"), b.ExportedFilePath())
	export, err := ReadExport(b.ExportedFilePath())
	require.NoError(t, err)
	assert.Empty(t, export.Positions)
	assert.Equal(t, t0, export.Session.EndedAt.UTC())
}

func TestStartSessionResets(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordPosition(pos(0, 1, 1, core.StateTracking, false)))

	next := testSession()
	next.MapID = "woods"
	require.NoError(t, b.StartSession(next))

	assert.Empty(t, b.Positions())
	s, ok := b.Session()
	require.True(t, ok)
	assert.Equal(t, "woods", s.MapID)
}

func TestCloseExportsOpenSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.Close())
	assert.FileExists(t, b.ExportedFilePath())
}

func TestReadExport_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadExport(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": 9}`), 0644))
	_, err = ReadExport(bad)
	assert.ErrorContains(t, err, "unsupported session file version")
}
