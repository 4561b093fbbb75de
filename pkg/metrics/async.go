package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver forwards events to inner on its own goroutine so recording
// never blocks a session's read loop. When the buffer is full, events are
// dropped and counted instead of queueing. Close flushes whatever is still
// buffered.
type AsyncObserver struct {
	inner Observer
	buf   chan Event
	drops atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	flushed   chan struct{}
}

// NewAsyncObserver wraps inner with a buffer of the given size; a
// non-positive size means 256.
func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner:   inner,
		buf:     make(chan Event, buffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	go a.forward()
	return a
}

func (a *AsyncObserver) RecordEvent(ev Event) {
	if a == nil {
		return
	}
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.buf <- ev:
	default:
		a.drops.Add(1)
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (a *AsyncObserver) Dropped() int64 {
	return a.drops.Load()
}

// Close flushes buffered events and stops the forwarding goroutine. Events
// recorded after Close are discarded.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		close(a.done)
		<-a.flushed
	})
}

func (a *AsyncObserver) forward() {
	defer close(a.flushed)
	for {
		select {
		case <-a.done:
			for {
				select {
				case ev := <-a.buf:
					a.inner.RecordEvent(ev)
				default:
					return
				}
			}
		case ev := <-a.buf:
			a.inner.RecordEvent(ev)
		}
	}
}
