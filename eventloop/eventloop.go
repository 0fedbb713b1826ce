// Package eventloop implements the cooperative single-threaded scheduler
// the rest of this mediator runs on: a small fixed-capacity deadline queue
// plus a wake-able blocking loop.
package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// Capacity is the fixed size of the deadline queue. Scheduling beyond this
// capacity is a programming error the mediator cannot recover from, so it
// panics rather than silently dropping or blocking a caller.
const Capacity = 10

// Closure is a unit of work posted to an EventManager. Closures must never
// block; long work (logging, I/O) belongs on another task.
type Closure func()

type job struct {
	deadline time.Time
	fn       Closure
	seq      uint64 // FIFO tie-break for equal deadlines
	index    int    // heap.Interface bookkeeping
}

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// EventManager is a cooperative scheduler: Run, RunDelayed and RunAfter
// are safe to call from any goroutine; Loop must only be called from the
// single goroutine that owns this EventManager.
type EventManager struct {
	mu      sync.Mutex
	queue   jobHeap
	nextSeq uint64
	wake    chan struct{}
	quitCh  chan struct{}
	quitted bool
}

// New returns a ready-to-run EventManager.
func New() *EventManager {
	return &EventManager{
		wake:   make(chan struct{}, 1),
		quitCh: make(chan struct{}),
	}
}

// Run enqueues fn for execution as soon as the loop next wakes. Safe from
// any goroutine.
func (m *EventManager) Run(fn Closure) {
	m.schedule(time.Now(), fn)
}

// RunDelayed enqueues fn to run at or after now+d. Safe from any goroutine.
func (m *EventManager) RunDelayed(fn Closure, d time.Duration) {
	m.schedule(time.Now().Add(d), fn)
}

// RunAfter enqueues fn to run on or after the absolute time t. Safe from
// any goroutine. Callers that keep posting earlier deadlines can starve
// later ones; this is accepted rather than guarded against.
func (m *EventManager) RunAfter(fn Closure, t time.Time) {
	m.schedule(t, fn)
}

func (m *EventManager) schedule(t time.Time, fn Closure) {
	m.mu.Lock()
	if len(m.queue) >= Capacity {
		m.mu.Unlock()
		panic("eventloop: deadline queue overflow")
	}
	m.nextSeq++
	heap.Push(&m.queue, &job{deadline: t, fn: fn, seq: m.nextSeq})
	m.mu.Unlock()
	m.signalWake()
}

func (m *EventManager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Quit causes an in-progress Loop to unwind after its current batch. Quit
// is idempotent and safe from any goroutine.
func (m *EventManager) Quit() {
	m.mu.Lock()
	if !m.quitted {
		m.quitted = true
		close(m.quitCh)
	}
	m.mu.Unlock()
}

// popDue removes and returns every job whose deadline has passed, in
// deadline order (ties broken by arrival order), along with the next
// pending deadline (the zero Time if the queue is now empty).
func (m *EventManager) popDue(now time.Time) ([]Closure, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var batch []Closure
	for len(m.queue) > 0 && !m.queue[0].deadline.After(now) {
		j := heap.Pop(&m.queue).(*job)
		batch = append(batch, j.fn)
	}
	var next time.Time
	if len(m.queue) > 0 {
		next = m.queue[0].deadline
	}
	return batch, next
}

// Loop blocks executing due closures in deadline order, sleeping between
// batches for the time-to-next-deadline, until Quit is called. Closures
// run with no panic recovery: a failing closure takes the process down.
func (m *EventManager) Loop() {
	for {
		select {
		case <-m.quitCh:
			return
		default:
		}

		batch, next := m.popDue(time.Now())
		for _, fn := range batch {
			fn()
		}

		select {
		case <-m.quitCh:
			return
		default:
		}

		var timer *time.Timer
		var timeout <-chan time.Time
		if !next.IsZero() {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}

		select {
		case <-m.quitCh:
		case <-m.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
