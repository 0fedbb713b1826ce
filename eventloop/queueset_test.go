package eventloop

import (
	"reflect"
	"testing"
	"time"
)

func TestQueueSetDispatchesToCorrectCallback(t *testing.T) {
	s := NewQueueSet()
	a := make(chan int, 1)
	b := make(chan int, 1)

	var gotA, gotB int
	s.Add(a, func(v reflect.Value) { gotA = int(v.Int()) })
	s.Add(b, func(v reflect.Value) { gotB = int(v.Int()) })

	// Poll may return spuriously once for the Add wake before it dispatches
	// the queued value.
	b <- 42
	for i := 0; gotB == 0 && i < 3; i++ {
		s.Poll()
	}
	if gotB != 42 || gotA != 0 {
		t.Fatalf("gotA=%d gotB=%d, want gotA=0 gotB=42", gotA, gotB)
	}

	a <- 7
	for i := 0; gotA == 0 && i < 3; i++ {
		s.Poll()
	}
	if gotA != 7 {
		t.Fatalf("gotA=%d, want 7", gotA)
	}
}

func TestQueueSetAddWakesPendingPoll(t *testing.T) {
	s := NewQueueSet()
	done := make(chan struct{})
	go func() {
		s.Poll() // blocks until something changes
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	ch := make(chan int)
	s.Add(ch, func(reflect.Value) {})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll never woke up after Add")
	}
}

func TestQueueSetRemove(t *testing.T) {
	s := NewQueueSet()
	ch := make(chan int, 1)
	called := false
	s.Add(ch, func(reflect.Value) { called = true })
	s.Remove(ch)

	// The pending Add/Remove wake makes this Poll return spuriously, but
	// the removed queue's callback must never fire even with data ready.
	ch <- 1
	s.Poll()
	if called {
		t.Fatal("callback should not fire for a removed queue")
	}
}
