package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds how long Close waits for queued events. Events
	// still queued at the deadline are counted as dropped. Zero waits until
	// the queue is empty.
	FlushTimeout time.Duration
}

// Dispatcher relays audit events to a sink from a single goroutine, so sinks
// never run on the request path.
type Dispatcher struct {
	cfg  Config
	sink Sink

	queue    chan Event
	stop     chan struct{} // closed by Close
	abandon  chan struct{} // closed when the flush deadline passes
	finished chan struct{} // closed when the relay goroutine exits

	dropped atomic.Uint64
	mu      sync.Mutex
	byType  map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the relay goroutine. It returns nil when auditing is
// disabled; a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		abandon:  make(chan struct{}),
		finished: make(chan struct{}),
		byType:   make(map[string]uint64),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.finished)

	for {
		// Close wins over a non-empty queue so the flush path owns the rest.
		select {
		case <-d.stop:
			d.flush()
			return
		default:
		}

		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers what is queued until the queue is empty or Close gives up.
func (d *Dispatcher) flush() {
	for {
		select {
		case <-d.abandon:
			for {
				select {
				case ev := <-d.queue:
					d.drop(ev)
				default:
					return
				}
			}
		default:
		}

		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) drop(ev Event) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.byType[ev.EventType]++
	d.mu.Unlock()
}

// Emit queues event for delivery. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and flushes the queue. With a FlushTimeout it
// returns at the deadline even if the sink is still busy; whatever is still
// queued then is dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)

		if d.cfg.FlushTimeout <= 0 {
			<-d.finished
			return
		}
		t := time.NewTimer(d.cfg.FlushTimeout)
		defer t.Stop()
		select {
		case <-d.finished:
		case <-t.C:
			close(d.abandon)
		}
	})
}

// Dropped reports how many events were discarded, either because the buffer
// was full or because Close hit its flush deadline.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.byType))
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}
