package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatcher closed")

// Event represents an incoming sensor sample or user selection.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	blocking bool
	logged   bool
}

// Blocking makes Submit wait for room in the inbox instead of dropping the event.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Submitted events are
// handled one at a time, in arrival order, by the goroutine running Run.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	blocking map[string]bool
	logged   map[string]bool
	logger   Logger

	inbox     chan Event
	// stopping releases blocked submitters. done is closed once none are left,
	// so Run drains every event Submit accepted.
	stopping  chan struct{}
	done      chan struct{}
	submits   sync.RWMutex
	closeOnce sync.Once

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger and inbox size.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, queueSize int) (*Dispatcher, error) {
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", queueSize)
	}

	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		blocking: make(map[string]bool),
		logged:   make(map[string]bool),
		logger:   logger,
		inbox:    make(chan Event, queueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in the inbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(len(d.inbox)))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full inbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
// Handlers must be registered before Run starts.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
	d.blocking[command] = cfg.blocking
	d.logged[command] = cfg.logged
}

// Dispatch routes an event to its registered handler on the calling goroutine.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Submit queues an event for Run. Events for non-blocking commands are
// dropped when the inbox is full.
func (d *Dispatcher) Submit(e Event) error {
	if !d.HasHandler(e.Command) {
		return fmt.Errorf("unknown command: %s", e.Command)
	}

	d.submits.RLock()
	defer d.submits.RUnlock()

	select {
	case <-d.stopping:
		return ErrClosed
	default:
	}

	if d.blocking[e.Command] {
		select {
		case d.inbox <- e:
			return nil
		case <-d.stopping:
			return ErrClosed
		}
	}

	select {
	case d.inbox <- e:
		return nil
	default:
		d.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", e.Command)))
		return fmt.Errorf("queue full: %s", e.Command)
	}
}

// Run handles queued events until ctx is cancelled or Close is called.
// After Close, events already queued are still handled before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.inbox:
			d.handle(e)
		case <-d.done:
			for {
				select {
				case e := <-d.inbox:
					d.handle(e)
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting events and returns once no Submit is in flight.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.stopping)
		d.submits.Lock()
		close(d.done)
		d.submits.Unlock()
	})
}

func (d *Dispatcher) handle(e Event) {
	if _, err := d.Dispatch(e); err != nil && !d.logged[e.Command] {
		d.logger.Error("event failed", "command", e.Command, "error", err)
	}
	d.processed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", e.Command)))
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
