package calibration

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/pkg/core"
)

type countingSource struct {
	StaticSource
	calls atomic.Int32
}

func (s *countingSource) ReferencePairs(mapID string) ([]Pair, []core.Point, error) {
	s.calls.Add(1)
	return s.StaticSource.ReferencePairs(mapID)
}

func testSource() *countingSource {
	return &countingSource{StaticSource: StaticSource{
		"customs": {
			{Pixel: core.Point{X: 0, Y: 0}, World: core.Point{X: 0, Y: 0}},
			{Pixel: core.Point{X: 100, Y: 0}, World: core.Point{X: 200, Y: 0}},
		},
		"woods": {
			{Pixel: core.Point{X: 0, Y: 0}, World: core.Point{X: 50, Y: 50}},
			{Pixel: core.Point{X: 100, Y: 0}, World: core.Point{X: 150, Y: 50}},
		},
	}}
}

func TestMapper_NoActiveMap(t *testing.T) {
	m := NewMapper(testSource())

	assert.False(t, m.Active().Usable())
	_, err := m.WorldFromPixel(core.Point{})
	assert.ErrorIs(t, err, core.ErrCalibrationMissing)
	_, err = m.PixelFromWorld(core.Point{})
	assert.ErrorIs(t, err, core.ErrCalibrationMissing)
}

func TestMapper_SelectSwapsAndBumpsEpoch(t *testing.T) {
	m := NewMapper(testSource())

	a, err := m.Select("customs")
	require.NoError(t, err)
	assert.Equal(t, "customs", a.MapID)
	assert.Equal(t, uint64(1), a.Epoch)

	w, err := m.WorldFromPixel(core.Point{X: 50, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 100, w.X, 1e-9)

	b, err := m.Select("woods")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), b.Epoch)

	w, err = m.WorldFromPixel(core.Point{X: 50, Y: 0})
	require.NoError(t, err)
	assert.InDelta(t, 100, w.X, 1e-9)
	assert.InDelta(t, 50, w.Y, 1e-9)
}

func TestMapper_MissingCalibrationDisablesTracking(t *testing.T) {
	m := NewMapper(testSource())
	_, err := m.Select("customs")
	require.NoError(t, err)

	a, err := m.Select("labs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCalibrationMissing))
	assert.Equal(t, "labs", a.MapID)
	assert.False(t, a.Usable())
	assert.Same(t, a, m.Active())
}

func TestMapper_FitsOncePerMap(t *testing.T) {
	src := testSource()
	m := NewMapper(src)

	for i := 0; i < 3; i++ {
		_, err := m.Select("customs")
		require.NoError(t, err)
		_, _ = m.Select("labs")
	}
	assert.Equal(t, int32(2), src.calls.Load())

	m.Invalidate("customs")
	_, err := m.Select("customs")
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestMapper_Clear(t *testing.T) {
	m := NewMapper(testSource())
	a, _ := m.Select("customs")
	m.Clear()

	assert.False(t, m.Active().Usable())
	assert.Greater(t, m.Active().Epoch, a.Epoch)
}

func TestMapper_ReadersSeeWholeSnapshots(t *testing.T) {
	m := NewMapper(testSource())
	_, _ = m.Select("customs")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				_, _ = m.Select("woods")
			} else {
				_, _ = m.Select("customs")
			}
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			a := m.Active()
			w := a.Calibration.WorldFromPixel(core.Point{X: 0, Y: 0})
			switch a.MapID {
			case "customs":
				assert.InDelta(t, 0, w.X, 1e-9)
			case "woods":
				assert.InDelta(t, 50, w.X, 1e-9)
			}
		}
	}()

	wg.Wait()
}
