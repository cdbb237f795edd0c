// Package hotkey turns global key chords into dispatcher commands.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tarkov-map/tracker/internal/dispatcher"
)

// ErrUnsupported is returned by Run on builds without keyboard hooks.
var ErrUnsupported = errors.New("global hotkeys need a cgo build")

// Dispatcher executes the bound commands.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Binding maps a key chord to a command.
type Binding struct {
	Keys    []string
	Command string
	Args    []string
}

// String renders the chord as "ctrl+shift+p".
func (b Binding) String() string {
	return strings.Join(b.Keys, "+")
}

// Listener fires commands for its bindings.
type Listener struct {
	bindings []Binding
	disp     Dispatcher
	logger   *slog.Logger
}

// New validates bindings and normalises key names to lower case.
func New(bindings []Binding, disp Dispatcher, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Binding, 0, len(bindings))
	for _, b := range bindings {
		if b.Command == "" {
			return nil, fmt.Errorf("hotkey %s has no command", b)
		}
		keys := make([]string, 0, len(b.Keys))
		for _, k := range b.Keys {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("hotkey for %s has no keys", b.Command)
		}
		b.Keys = keys
		out = append(out, b)
	}
	return &Listener{bindings: out, disp: disp, logger: logger.With("component", "hotkey")}, nil
}

// Bindings returns the normalised bindings.
func (l *Listener) Bindings() []Binding {
	return append([]Binding(nil), l.bindings...)
}

// fire dispatches the command bound to b.
func (l *Listener) fire(b Binding) {
	result, err := l.disp.Dispatch(dispatcher.NewEvent(b.Command, b.Args...).From(dispatcher.SourceHotkey))
	if err != nil {
		l.logger.Warn("hotkey command failed", "keys", b.String(), "command", b.Command, "error", err)
		return
	}
	l.logger.Info("hotkey", "keys", b.String(), "command", b.Command, "result", result)
}
