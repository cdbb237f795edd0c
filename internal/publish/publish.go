package publish

import (
	"time"

	"github.com/tarkov-map/tracker/internal/handoff"
	"github.com/tarkov-map/tracker/pkg/core"
)

// DefaultStaleAfter is used when no staleness window is configured.
const DefaultStaleAfter = 500 * time.Millisecond

// Publisher hands the newest TrackedPosition to any number of pollers.
// Neither side ever blocks.
type Publisher struct {
	slot       *handoff.Slot[core.TrackedPosition]
	staleAfter time.Duration
}

// New creates a publisher. Values older than staleAfter are reported as
// stale by Latest.
func New(staleAfter time.Duration) *Publisher {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Publisher{
		slot:       handoff.New[core.TrackedPosition](),
		staleAfter: staleAfter,
	}
}

// Publish replaces the held position.
func (p *Publisher) Publish(pos core.TrackedPosition) {
	p.slot.Publish(pos)
}

// Latest returns the newest position, if any, with Stale set when it has
// aged past the staleness window at now.
func (p *Publisher) Latest(now time.Time) (core.TrackedPosition, bool) {
	pos, ok := p.slot.Load()
	if !ok {
		return pos, false
	}
	if now.Sub(pos.Timestamp) > p.staleAfter {
		pos.Stale = true
	}
	return pos, true
}

// Updated is signalled after a publish. Pollers may select on it instead
// of sleeping.
func (p *Publisher) Updated() <-chan struct{} {
	return p.slot.Ready()
}

// Clear discards the held position.
func (p *Publisher) Clear() {
	p.slot.Clear()
}

// StaleAfter returns the staleness window.
func (p *Publisher) StaleAfter() time.Duration { return p.staleAfter }

// Published returns the number of positions published so far.
func (p *Publisher) Published() uint64 { return p.slot.Published() }
