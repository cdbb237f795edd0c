package publish

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/pkg/core"
)

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func position(x float64, at time.Time) core.TrackedPosition {
	return core.TrackedPosition{
		MapID:      "customs",
		World:      core.Point{X: x, Y: 0},
		Confidence: 0.9,
		Timestamp:  at,
		State:      core.StateTracking,
	}
}

func TestPublisher_EmptyHasNothing(t *testing.T) {
	p := New(time.Second)
	_, ok := p.Latest(t0)
	assert.False(t, ok)
}

func TestPublisher_LatestWins(t *testing.T) {
	p := New(time.Second)
	p.Publish(position(1, t0))
	p.Publish(position(2, t0.Add(100*time.Millisecond)))
	p.Publish(position(3, t0.Add(200*time.Millisecond)))

	pos, ok := p.Latest(t0.Add(200 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.World.X)
	assert.False(t, pos.Stale)
	assert.Equal(t, uint64(3), p.Published())

	// polling does not consume
	again, ok := p.Latest(t0.Add(200 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, pos, again)
}

func TestPublisher_StaleAfterWindow(t *testing.T) {
	p := New(500 * time.Millisecond)
	p.Publish(position(1, t0))

	pos, _ := p.Latest(t0.Add(500 * time.Millisecond))
	assert.False(t, pos.Stale)

	pos, _ = p.Latest(t0.Add(501 * time.Millisecond))
	assert.True(t, pos.Stale)

	// the held value itself is untouched
	pos, _ = p.Latest(t0)
	assert.False(t, pos.Stale)
}

func TestPublisher_KeepsProducerStaleFlag(t *testing.T) {
	p := New(time.Second)
	lost := position(1, t0)
	lost.State = core.StateLost
	lost.Stale = true
	p.Publish(lost)

	pos, _ := p.Latest(t0)
	assert.True(t, pos.Stale)
}

func TestPublisher_Clear(t *testing.T) {
	p := New(time.Second)
	p.Publish(position(1, t0))
	p.Clear()

	_, ok := p.Latest(t0)
	assert.False(t, ok)
}

func TestPublisher_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultStaleAfter, New(0).StaleAfter())
}

func TestPublisher_NeverBlocks(t *testing.T) {
	p := New(time.Second)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			p.Publish(position(float64(i), t0))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked without readers")
	}

	select {
	case <-p.Updated():
	default:
		t.Fatal("expected pending update signal")
	}
}

func TestPublisher_ConcurrentPollersSeeWholeValues(t *testing.T) {
	p := New(time.Second)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if pos, ok := p.Latest(t0); ok {
					// writer keeps X and Velocity.X equal
					assert.Equal(t, pos.World.X, pos.Velocity.X)
				}
			}
		}()
	}

	for i := 0; i < 5000; i++ {
		pos := position(float64(i), t0)
		pos.Velocity.X = float64(i)
		p.Publish(pos)
	}
	close(stop)
	wg.Wait()
}
