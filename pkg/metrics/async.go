package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver decouples recording from the sink through a bounded queue.
// When the queue is full the event is dropped and counted; the turn path
// never waits on metrics.
type AsyncObserver struct {
	sink    Observer
	queue   chan Event
	dropped atomic.Int64
	closed  atomic.Bool
	stop    sync.Once
	drained chan struct{}
}

func NewAsyncObserver(sink Observer, depth int) *AsyncObserver {
	if depth <= 0 {
		depth = 256
	}
	a := &AsyncObserver{
		sink:    sink,
		queue:   make(chan Event, depth),
		drained: make(chan struct{}),
	}
	go a.pump()
	return a
}

func (a *AsyncObserver) RecordEvent(ev Event) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded under backpressure.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops intake and waits for queued events to reach the sink.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.stop.Do(func() {
		a.closed.Store(true)
		close(a.queue)
		<-a.drained
	})
}

func (a *AsyncObserver) pump() {
	for ev := range a.queue {
		a.sink.RecordEvent(ev)
	}
	close(a.drained)
}
