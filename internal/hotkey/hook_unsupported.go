//go:build !cgo

package hotkey

import "context"

// Run reports that hotkeys are unavailable.
func (l *Listener) Run(context.Context) error {
	return ErrUnsupported
}
