package screenshot

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "2026-01-07[19-56]_-198.89, 22.74, -345.97_0.32263, 0.47266, -0.18602, 0.79869_15.61 (0).png"

func TestParseFilename(t *testing.T) {
	fix, err := ParseFilename(filepath.Join("shots", sample))
	require.NoError(t, err)

	assert.Equal(t, [3]float64{-198.89, 22.74, -345.97}, fix.Position)
	assert.InDelta(t, -198.89, fix.Game().X, 1e-12)
	assert.InDelta(t, -345.97, fix.Game().Y, 1e-12)
	assert.Equal(t, QuaternionYaw(0.32263, 0.47266, -0.18602, 0.79869), fix.Yaw)
}

func TestParseFilename_NoPosition(t *testing.T) {
	for _, name := range []string{
		"2026-01-07[19-56].png",
		"_1, 2, 3_0.1, 0.2, 0.3, 0.4_.png",
		"_1.0, 2.0_0.1, 0.2, 0.3, 0.4_.png",
	} {
		_, err := ParseFilename(name)
		assert.ErrorIs(t, err, ErrNoPosition, name)
	}
}

func TestQuaternionYaw(t *testing.T) {
	assert.InDelta(t, 0, QuaternionYaw(0, 0, 0, 1), 1e-12)

	// 90 degrees about the vertical axis
	s := math.Sqrt2 / 2
	assert.InDelta(t, math.Pi/2, QuaternionYaw(0, s, 0, s), 1e-12)
	assert.InDelta(t, -math.Pi/2, QuaternionYaw(0, -s, 0, s), 1e-12)
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(dir, "old_1.0, 0.0, 1.0_0.0, 0.0, 0.0, 1.0_.png"), base)
	touch(t, filepath.Join(dir, "new_2.0, 0.0, 2.0_0.0, 0.0, 0.0, 1.0_.png"), base.Add(time.Minute))
	touch(t, filepath.Join(dir, "newer.jpg"), base.Add(time.Hour))

	path, mod, ok := Newest(dir)
	require.True(t, ok)
	assert.Contains(t, path, "new_2.0")
	assert.True(t, mod.Equal(base.Add(time.Minute)))

	_, _, ok = Newest(t.TempDir())
	assert.False(t, ok)
}

func TestWatcher_NewestOnStartup(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, sample), time.Now())

	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)
	defer w.fsw.Close()

	fix, ok := w.Fixes().Take()
	require.True(t, ok)
	assert.InDelta(t, -198.89, fix.Position[0], 1e-12)
}

func TestWatcher_PicksUpNewScreenshots(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)

	_, ok := w.Fixes().Take()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	touch(t, filepath.Join(dir, "notes.txt"), time.Now())
	touch(t, filepath.Join(dir, "2026-01-07[20-01]_10.5, 1.0, -20.25_0.0, 0.0, 0.0, 1.0_1.00 (0).png"), time.Now())

	var fix Fix
	assert.Eventually(t, func() bool {
		f, ok := w.Fixes().Take()
		if ok {
			fix = f
		}
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, [3]float64{10.5, 1.0, -20.25}, fix.Position)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}
