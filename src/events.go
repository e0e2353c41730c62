package core

import (
	"sync"

	"github.com/charmbracelet/log"
)

// EventQueue is the single-consumer, multi-producer FIFO that carries
// FrameEvents from every channel's receive path to one serial
// processing loop, grounded on the teacher's dlq.go (née "data link
// queue"). Many receive goroutines call Enqueue concurrently; exactly
// one goroutine calls Dequeue.
type EventQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	items []*FrameEvent

	newCount    int64
	deleteCount int64

	log *log.Logger
}

// eventQueueWarnLen mirrors the teacher's queue-length diagnostic: a
// backlog this deep means the consumer can't keep up with receive
// traffic.
const eventQueueWarnLen = 10

// NewEventQueue returns an empty queue. logger may be nil, in which
// case backlog warnings are dropped.
func NewEventQueue(logger *log.Logger) *EventQueue {
	q := &EventQueue{log: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends ev and wakes the consumer. Safe for concurrent use
// by any number of producers.
func (q *EventQueue) Enqueue(ev *FrameEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.newCount++
	n := len(q.items)
	q.mu.Unlock()
	q.cond.Signal()

	if n > eventQueueWarnLen && q.log != nil {
		q.log.Warn("event queue backlog", "length", n)
	}
}

// Dequeue blocks until an event is available and returns it. Only one
// goroutine may call Dequeue at a time.
func (q *EventQueue) Dequeue() *FrameEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	ev := q.items[0]
	q.items = q.items[1:]
	q.deleteCount++
	return ev
}

// Len reports the current backlog, for diagnostics.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Leaked reports new-minus-deleted, which should only ever be
// transiently nonzero; a value that grows without bound across the
// life of the process indicates a consumer bug, mirroring the
// teacher's s_new_count/s_delete_count imbalance check.
func (q *EventQueue) Leaked() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.newCount - q.deleteCount
}
