package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// event is a queued result or error delivery.
type event struct {
	result *Result
	err    *ErrorReport
}

// dispatcher is the delivery context of one session.
//
// Mailbox (same shape as a worker slot):
//   - preview: single slot, overwrite policy (latest wins, overwrites counted)
//   - events: bounded FIFO, drop-new policy when full (drops counted)
//
// One goroutine drains both and calls the sink. The producer only ever takes
// the mutex for an O(1) store and a Signal.
type dispatcher struct {
	sink Sink

	mu      sync.Mutex
	cond    *sync.Cond
	preview *Preview
	events  []event
	limit   int

	// closed is set under mu by close. Anything still queued is dropped;
	// a delivery already dequeued may complete after close returns.
	closed atomic.Bool

	previewDrops *atomic.Uint64
	eventDrops   *atomic.Uint64

	done chan struct{}
}

func newDispatcher(sink Sink, limit int, previewDrops, eventDrops *atomic.Uint64) *dispatcher {
	d := &dispatcher{
		sink:         sink,
		limit:        limit,
		events:       make([]event, 0, limit),
		previewDrops: previewDrops,
		eventDrops:   eventDrops,
		done:         make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// postPreview overwrites the preview slot.
func (d *dispatcher) postPreview(p Preview) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return
	}
	if d.preview != nil {
		d.previewDrops.Add(1)
	}
	d.preview = &p
	d.cond.Signal()
}

// postEvent appends to the event queue, dropping e when the queue is full.
func (d *dispatcher) postEvent(e event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return
	}
	if len(d.events) >= d.limit {
		d.eventDrops.Add(1)
		return
	}
	d.events = append(d.events, e)
	d.cond.Signal()
}

// close stops deliveries and wakes the loop. It does not wait for the loop,
// so it is safe to call from inside a sink callback.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed.Store(true)
	d.preview = nil
	d.events = nil
	d.cond.Broadcast()
	d.mu.Unlock()
}

// run delivers until close. Events go before the preview when both are
// pending; the two carry no ordering guarantee relative to each other.
func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for d.preview == nil && len(d.events) == 0 && !d.closed.Load() {
			d.cond.Wait()
		}
		if d.closed.Load() {
			d.mu.Unlock()
			return
		}

		var (
			ev      event
			hasEv   bool
			preview *Preview
		)
		if len(d.events) > 0 {
			ev, hasEv = d.events[0], true
			d.events = d.events[1:]
		} else {
			preview = d.preview
			d.preview = nil
		}
		d.mu.Unlock()

		if hasEv {
			d.deliverEvent(ev)
		} else {
			d.deliverPreview(preview)
		}
	}
}

func (d *dispatcher) deliverEvent(ev event) {
	if d.closed.Load() {
		return
	}
	defer d.recoverSink("event")

	switch {
	case ev.result != nil:
		d.sink.OnResult(*ev.result)
	case ev.err != nil:
		d.sink.OnError(*ev.err)
	}
}

func (d *dispatcher) deliverPreview(p *Preview) {
	if p == nil || d.closed.Load() {
		return
	}
	defer d.recoverSink("preview")
	d.sink.OnPreview(*p)
}

func (d *dispatcher) recoverSink(kind string) {
	if r := recover(); r != nil {
		slog.Error("scheduler: sink panicked", "delivery", kind, "panic", r)
	}
}
