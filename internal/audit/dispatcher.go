package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// Logger receives sink panics. Nil discards them.
	Logger *slog.Logger
}

// Dispatcher forwards audit events to a sink from a single goroutine, so a
// slow sink never stalls a request path.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	logger  *slog.Logger
	dropped atomic.Uint64

	// mu guards closed and the send side of events. Emit holds it shared,
	// Close exclusively, so no send races the channel close.
	mu     sync.RWMutex
	closed bool
	events chan Event
	quit   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewDispatcher returns nil when auditing is disabled. All methods accept a
// nil receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		events: make(chan Event, max(cfg.BufferSize, 1)),
		quit:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit sink panicked",
				slog.String("event_type", event.EventType),
				slog.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full buffer drops and counts the
// event; otherwise Emit waits for space, ctx, or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.quit:
	}
}

// Close stops intake and waits for queued events to reach the sink. It is
// safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		// Wake blocked emitters so they release the read lock.
		close(d.quit)

		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// Dropped reports events lost to a full buffer or a cancelled context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
