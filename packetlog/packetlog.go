// Package packetlog implements a fixed-capacity, lossy-on-overflow queue
// that hands packets to a consumer on another task, so slow log sinks
// never stall the protocol path.
package packetlog

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/oxplot/cn105mediator/cn105pkt"
)

// Capacity is the fixed size of the ring buffer.
const Capacity = 50

// Tag identifies the source and direction of a logged packet.
type Tag byte

const (
	TagHVACRx Tag = iota
	TagHVACTx
	TagThermostatRx
	TagThermostatTx
)

func (t Tag) String() string {
	switch t {
	case TagHVACRx:
		return "hvac-rx"
	case TagHVACTx:
		return "hvac-tx"
	case TagThermostatRx:
		return "thermostat-rx"
	case TagThermostatTx:
		return "thermostat-tx"
	default:
		return "unknown"
	}
}

// Entry is one logged packet.
type Entry struct {
	ID    xid.ID // correlates this entry across log lines/metrics
	Tag   Tag
	Bytes []byte // a copy, safe to retain past the call to Log
}

// Consumer receives logged entries one at a time. A slow Consumer causes
// drops; this is expected and acceptable.
type Consumer func(Entry)

// Logger is a bounded, lossy-on-overflow queue of packets, consumed on a
// dedicated goroutine by a caller-supplied Consumer.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	head    int
	size    int

	notEmpty chan struct{}
	drops    atomic.Uint64

	dropCounter prometheus.Counter
}

// New returns a Logger with room for Capacity entries.
func New(reg prometheus.Registerer) *Logger {
	l := &Logger{
		entries:  make([]Entry, Capacity),
		notEmpty: make(chan struct{}, 1),
		dropCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn105_packetlog_drops_total",
			Help: "Packets dropped because the packet logger ring buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(l.dropCounter)
	}
	return l
}

// Log enqueues tag/pkt for the consumer. It never blocks: if the ring
// buffer is full, the oldest entry is dropped and the drop counter is
// incremented.
func (l *Logger) Log(tag Tag, pkt *cn105pkt.Packet) {
	entry := Entry{ID: xid.New(), Tag: tag, Bytes: append([]byte(nil), pkt.Bytes()...)}

	l.mu.Lock()
	if l.size == Capacity {
		// Full: overwrite the oldest entry and advance head past it.
		l.entries[l.head] = entry
		l.head = (l.head + 1) % Capacity
		l.drops.Add(1)
		l.dropCounter.Inc()
	} else {
		tail := (l.head + l.size) % Capacity
		l.entries[tail] = entry
		l.size++
	}
	l.mu.Unlock()

	select {
	case l.notEmpty <- struct{}{}:
	default:
	}
}

// Drops returns the number of entries dropped for overflow so far.
func (l *Logger) Drops() uint64 {
	return l.drops.Load()
}

// pop removes and returns the oldest entry, if any.
func (l *Logger) pop() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Entry{}, false
	}
	e := l.entries[l.head]
	l.entries[l.head] = Entry{}
	l.head = (l.head + 1) % Capacity
	l.size--
	return e, true
}

// Run drains entries to consume, one at a time, until ctx-like stop is
// closed. It's meant to run on its own goroutine for the lifetime of the
// mediator.
func (l *Logger) Run(stop <-chan struct{}, consume Consumer) {
	for {
		for {
			e, ok := l.pop()
			if !ok {
				break
			}
			consume(e)
		}
		select {
		case <-stop:
			return
		case <-l.notEmpty:
		}
	}
}
