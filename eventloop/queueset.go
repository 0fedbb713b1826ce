package eventloop

import (
	"reflect"
	"sync"
)

// QueueSet multiplexes a dynamic set of channels and dispatches a
// per-queue closure whenever one of them has data ready: a fan-in
// primitive for pump tasks that need to hand work to an EventManager
// without the EventManager blocking on any one of them directly.
type QueueSet struct {
	mu      sync.Mutex
	queues  []reflect.Value
	onData  []func(reflect.Value)
	version int

	wake chan struct{}
}

// NewQueueSet returns an empty QueueSet.
func NewQueueSet() *QueueSet {
	return &QueueSet{wake: make(chan struct{}, 1)}
}

// Add registers queue (a receive-only or bidirectional channel) with a
// callback invoked with each value received from it. Add is safe to call
// concurrently with Poll.
func (s *QueueSet) Add(queue any, onData func(v reflect.Value)) {
	v := reflect.ValueOf(queue)
	s.mu.Lock()
	s.queues = append(s.queues, v)
	s.onData = append(s.onData, onData)
	s.version++
	s.mu.Unlock()
	s.signalWake()
}

// Remove unregisters every queue equal to queue.
func (s *QueueSet) Remove(queue any) {
	v := reflect.ValueOf(queue)
	s.mu.Lock()
	kept := s.queues[:0]
	keptCB := s.onData[:0]
	for i, q := range s.queues {
		if q.Pointer() == v.Pointer() {
			continue
		}
		kept = append(kept, q)
		keptCB = append(keptCB, s.onData[i])
	}
	s.queues = kept
	s.onData = keptCB
	s.version++
	s.mu.Unlock()
	s.signalWake()
}

func (s *QueueSet) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// snapshot returns the current queues/callbacks plus a select case for the
// internal wake channel (spuriously selected whenever Add/Remove changes
// the set, so Poll re-evaluates the case list).
func (s *QueueSet) snapshot() ([]reflect.SelectCase, []func(reflect.Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cases := make([]reflect.SelectCase, 0, len(s.queues)+1)
	cbs := make([]func(reflect.Value), 0, len(s.queues))
	for i, q := range s.queues {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: q})
		cbs = append(cbs, s.onData[i])
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.wake)})
	return cases, cbs
}

// Poll blocks until one registered queue has a value ready (dispatching it
// to its callback) or the set itself changes via Add/Remove, whichever
// comes first. It returns so a caller (typically EventManager.Loop, via a
// Run closure) can re-check its own deadlines in between.
func (s *QueueSet) Poll() {
	cases, cbs := s.snapshot()
	chosen, value, ok := reflect.Select(cases)
	if chosen == len(cases)-1 || !ok {
		return // wake channel fired, or a queue was closed
	}
	cbs[chosen](value)
}
