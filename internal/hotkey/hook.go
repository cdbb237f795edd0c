//go:build cgo

package hotkey

import (
	"context"

	hook "github.com/robotn/gohook"
)

// Run installs the keyboard hook and blocks until ctx is cancelled. Only
// one Listener may run at a time since the hook is process-wide.
func (l *Listener) Run(ctx context.Context) error {
	for _, b := range l.bindings {
		b := b
		hook.Register(hook.KeyDown, b.Keys, func(hook.Event) {
			l.fire(b)
		})
		l.logger.Debug("hotkey registered", "keys", b.String(), "command", b.Command)
	}

	events := hook.Start()
	processed := hook.Process(events)

	select {
	case <-ctx.Done():
		hook.End()
		<-processed
	case <-processed:
	}
	return nil
}
