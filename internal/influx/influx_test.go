package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/pkg/core"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.Connect(context.Background()))
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.WritePosition(core.TrackedPosition{}))
}

func TestConnect_FallsBackToBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "backup.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		URL:        "http://127.0.0.1:1",
		Org:        "o",
		Bucket:     "b",
		BackupPath: path,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.WritePosition(core.TrackedPosition{
		MapID:      "customs",
		World:      core.Point{X: 10, Y: 20},
		Confidence: 0.9,
		State:      core.StateTracking,
		Timestamp:  ts,
	}))
	require.NoError(t, m.WriteStatus(core.PipelineStatus{Time: ts, MapID: "customs", State: "tracking", Captured: 4}))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "\n\n")
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "position,map=customs,state=tracking "))
	assert.Contains(t, lines[0], "x=10")
	assert.True(t, strings.HasPrefix(lines[1], "pipeline_status,map=customs,state=tracking "))
	assert.Contains(t, lines[1], "captured=4i")
}

func TestPositionPoint(t *testing.T) {
	p := PositionPoint(core.TrackedPosition{MapID: "woods", Epoch: 3, State: core.StateLost, Stale: true})
	assert.Equal(t, MeasurementPosition, p.Name())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "woods", tags["map"])
	assert.Equal(t, "lost", tags["state"])
}

type fixedSource struct{ pos core.TrackedPosition }

func (s fixedSource) Latest(time.Time) (core.TrackedPosition, bool) { return s.pos, true }

func TestPoll_WritesEachUpdateOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: true, URL: "http://127.0.0.1:1", BackupPath: path})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))

	src := fixedSource{pos: core.TrackedPosition{MapID: "labs", State: core.StateTracking, Timestamp: time.Now()}}
	pollCtx, stop := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stop()
	require.NoError(t, m.Poll(pollCtx, src, 50))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 1)
}

func TestPoll_InvalidRate(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.Poll(context.Background(), fixedSource{}, 0))
}
