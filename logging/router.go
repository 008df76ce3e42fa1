package logging

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies event timestamps; tests swap in a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sink receives routed events. Write is only ever called from a single
// goroutine per sink; Close flushes whatever the sink buffers.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// NamedSink pairs a sink with the name it was enabled under.
type NamedSink struct {
	Name string
	Sink Sink
}

// RouterStats counts routed and dropped events since construction.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

// retrySchedule backs off a failing sink without ever abandoning it.
var retrySchedule = [...]time.Duration{
	time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// Router accepts events without blocking the publisher and fans them out
// through one goroutine per sink, so a slow sink cannot stall the rest.
// Events that do not fit in the queue are counted and discarded.
type Router struct {
	queue      chan Event
	deliveries []*delivery
	clock      Clock
	minLevel   Severity
	baseExtra  map[string]any
	warnEvery  time.Duration
	fallback   *log.Logger

	stop   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	events   atomic.Uint64
	dropped  atomic.Uint64
	nextWarn atomic.Int64
}

// NewRouter builds and starts a router over the given sinks. A nil clock
// falls back to the system clock; nil sinks are skipped.
func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	cfg = cfg.normalized()

	r := &Router{
		queue:     make(chan Event, cfg.BufferSize),
		clock:     clock,
		minLevel:  cfg.MinimumSeverity,
		baseExtra: cfg.CloneFields(),
		warnEvery: cfg.DropWarnInterval,
		fallback:  log.New(os.Stderr, "[logging] ", log.LstdFlags),
		stop:      make(chan struct{}),
	}

	inboxSize := min(max(cfg.BufferSize, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.deliveries = append(r.deliveries, &delivery{
			name:     named.Name,
			sink:     named.Sink,
			inbox:    make(chan Event, inboxSize),
			fallback: r.fallback,
		})
	}

	r.wg.Add(1)
	go r.dispatch()
	for _, d := range r.deliveries {
		r.wg.Add(1)
		go func(d *delivery) {
			defer r.wg.Done()
			d.run()
		}(d)
	}
	return r, nil
}

// Publish enqueues the event without blocking. Events below the minimum
// severity and events published after Close are discarded.
func (r *Router) Publish(ctx context.Context, event Event) {
	if r == nil || event.Type == "" || r.closed.Load() {
		return
	}
	if event.Severity < r.minLevel {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.dropped.Add(1)
		r.warnDropped(event)
	}
}

// warnDropped logs at most one drop notice per warn interval.
func (r *Router) warnDropped(event Event) {
	now := time.Now().UnixNano()
	next := r.nextWarn.Load()
	if now < next {
		return
	}
	if r.nextWarn.CompareAndSwap(next, now+r.warnEvery.Nanoseconds()) {
		r.fallback.Printf("queue full, dropping %s (subject %s)", event.Type, event.Subject.ID)
	}
}

func (r *Router) dispatch() {
	defer func() {
		for _, d := range r.deliveries {
			close(d.inbox)
		}
		r.wg.Done()
	}()
	for {
		select {
		case <-r.stop:
			// Hand off whatever is already queued before returning.
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		case event := <-r.queue:
			r.route(event)
		}
	}
}

// route stamps the event and offers it to every delivery. Base fields never
// override keys the publisher set itself.
func (r *Router) route(event Event) {
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.baseExtra) > 0 {
		merged := make(map[string]any, len(r.baseExtra)+len(event.Extra))
		for k, v := range r.baseExtra {
			merged[k] = v
		}
		for k, v := range event.Extra {
			merged[k] = v
		}
		event.Extra = merged
	}
	r.events.Add(1)
	for _, d := range r.deliveries {
		d.offer(event)
	}
}

// Close stops intake, waits for queued events to reach the sinks, then
// closes the sinks. The context bounds the wait.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)

	settled := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	for _, d := range r.deliveries {
		if err := d.sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats reports routed and dropped totals.
func (r *Router) Stats() RouterStats {
	if r == nil {
		return RouterStats{}
	}
	return RouterStats{
		EventsTotal:  r.events.Load(),
		DroppedTotal: r.dropped.Load(),
	}
}

// delivery owns one sink: a buffered inbox, a single writer goroutine, and
// an escalating hold-off while the sink keeps failing.
type delivery struct {
	name     string
	sink     Sink
	inbox    chan Event
	fallback *log.Logger

	failing int
	holdOff time.Time
}

// offer hands the event to the delivery without blocking the dispatcher.
// Each delivery gets its own copy because sinks run concurrently.
func (d *delivery) offer(event Event) {
	select {
	case d.inbox <- cloneForFields(event):
	default:
		d.fallback.Printf("sink %s backlog full, dropping %s", d.name, event.Type)
	}
}

func (d *delivery) run() {
	for event := range d.inbox {
		if wait := time.Until(d.holdOff); d.failing > 0 && wait > 0 {
			time.Sleep(wait)
		}
		if err := d.sink.Write(event); err != nil {
			step := min(d.failing, len(retrySchedule)-1)
			delay := retrySchedule[step]
			d.failing++
			d.holdOff = time.Now().Add(delay)
			d.fallback.Printf("sink %s write failed: %v (next attempt in %s)", d.name, err, delay)
			continue
		}
		d.failing = 0
		d.holdOff = time.Time{}
	}
}
