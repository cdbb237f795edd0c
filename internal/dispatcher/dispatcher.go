// Package dispatcher routes control commands (map selection, pause/resume,
// capture region, detector threshold) from hotkeys, the stream socket and
// the CLI to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Command sources.
const (
	SourceHotkey = "hotkey"
	SourceStream = "stream"
	SourceCLI    = "cli"
)

// Queued is the result of a command accepted by a buffered handler.
const Queued = "queued"

// Debounced is the result of a command ignored by a debounced handler.
const Debounced = "debounced"

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event is a control command.
type Event struct {
	Command   string
	Args      []string
	Source    string
	Timestamp time.Time
}

// NewEvent builds an event stamped with the current time.
func NewEvent(command string, args ...string) Event {
	return Event{Command: command, Args: args, Timestamp: time.Now()}
}

// From tags the event with its source.
func (e Event) From(source string) Event {
	e.Source = source
	return e
}

// Arg returns the i-th argument or "".
func (e Event) Arg(i int) string {
	if i < 0 || i >= len(e.Args) {
		return ""
	}
	return e.Args[i]
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the key/value logger used by Logged handlers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
	debounce   time.Duration
}

// Buffered runs the handler on its own goroutine behind a queue of size.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full Buffered queue block the caller instead of
// rejecting the command.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every command with its source and duration.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Debounce ignores commands arriving within d of the last accepted one.
// Held hotkeys repeat; a toggle bound to one should fire once.
func Debounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// Dispatcher routes events to registered handlers. It is safe for
// concurrent use.
type Dispatcher struct {
	logger Logger
	inst   *instruments

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]chan Event
	closed   bool
	workers  sync.WaitGroup
}

// New creates a dispatcher. Metrics go to the global OTel meter and are
// no-ops until a meter provider is installed. A nil logger disables
// Logged output.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]chan Event),
	}
	inst, err := newInstruments(d.queueLengths)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register binds h to command, replacing any previous handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	handler := d.withMetrics(command, h)
	if o.bufferSize > 0 {
		handler = d.withQueue(command, o.bufferSize, o.blocking, handler)
	}
	if o.debounce > 0 {
		handler = withDebounce(o.debounce, handler)
	}
	if o.logged && d.logger != nil {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch runs the handler registered for e.Command.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}

// HasHandler reports whether command has a handler.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Close rejects further commands and waits until buffered handlers have
// drained their queues.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.workers.Wait()
	return nil
}

func (d *Dispatcher) queueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.queues))
	for cmd, q := range d.queues {
		out[cmd] = len(q)
	}
	return out
}

func (d *Dispatcher) withMetrics(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		result, err := h(e)
		d.inst.handled(context.Background(), command, e.Source, time.Since(start), err)
		return result, err
	}
}

func (d *Dispatcher) withQueue(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	queue := make(chan Event, size)

	d.mu.Lock()
	if old, ok := d.queues[command]; ok {
		close(old)
	}
	d.queues[command] = queue
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range queue {
			if _, err := h(e); err != nil && d.logger != nil {
				d.logger.Warn("queued command failed", "command", command, "source", e.Source, "error", err)
			}
		}
	}()

	// The read lock keeps Close from closing queue under a pending send.
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		if blocking {
			queue <- e
			return Queued, nil
		}
		select {
		case queue <- e:
			return Queued, nil
		default:
			d.inst.rejected(context.Background(), command)
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func withDebounce(window time.Duration, h HandlerFunc) HandlerFunc {
	var mu sync.Mutex
	var last time.Time
	return func(e Event) (any, error) {
		mu.Lock()
		if !last.IsZero() && e.Timestamp.Sub(last) < window {
			mu.Unlock()
			return Debounced, nil
		}
		last = e.Timestamp
		mu.Unlock()
		return h(e)
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "source", e.Source, "args", e.Args)

		result, err := h(e)
		if err != nil {
			d.logger.Error("command failed", "command", command, "source", e.Source,
				"duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Info("command handled", "command", command, "source", e.Source,
			"duration", time.Since(start))
		return result, nil
	}
}
