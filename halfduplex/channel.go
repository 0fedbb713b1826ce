// Package halfduplex implements one CN105 UART channel: a
// Ready/Receiving/Sending/Busy turn-taking state machine that frames the
// RX byte stream into packets and enforces the mandatory quiet-time
// between consecutive packets on the line.
package halfduplex

import (
	"errors"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/oxplot/cn105mediator/cn105pkt"
	"github.com/oxplot/cn105mediator/serialhal"
)

var log = logging.MustGetLogger("halfduplex")

// ErrQueueFull is passed to OnSent when EnqueuePacket drops a packet
// because the channel's TX queue was already at capacity.
var ErrQueueFull = errors.New("halfduplex: send queue full")

// State is one of the four turn-taking states of a HalfDuplexChannel.
type State int

const (
	Ready State = iota
	Receiving
	Sending
	Busy
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Receiving:
		return "Receiving"
	case Sending:
		return "Sending"
	case Busy:
		return "Busy"
	default:
		return "Unknown"
	}
}

const (
	// BusyMs is the mandatory quiet-time after any completed RX or TX.
	BusyMs = 20 * time.Millisecond

	// ProtocolTimeout aborts a packet under construction that hasn't seen
	// a new byte in this long.
	ProtocolTimeout = 40 * time.Millisecond

	// pollInterval is how often the pump loop re-evaluates timeouts and
	// the send queue; it bounds the granularity of BusyMs/ProtocolTimeout
	// enforcement.
	pollInterval = 2 * time.Millisecond

	// sendQueueCapacity is the bound on outgoing packets a channel will
	// hold before reporting TX congestion.
	sendQueueCapacity = 8

	// readPoll bounds how long a single hardware read blocks before the
	// reader goroutine checks for a shutdown request.
	readPoll = 5 * time.Millisecond
)

// OnPacket is called once per completed or discarded (junk) Packet
// received on the channel.
type OnPacket func(pkt *cn105pkt.Packet)

// OnSent is called once per outgoing packet, reporting whether it was
// actually transmitted (err == nil) or dropped (TX congestion or a
// hardware write failure).
type OnSent func(pkt *cn105pkt.Packet, err error)

// Channel owns one UART and both its logical endpoints: an RX byte stream
// turned into Packets, and a TX queue drained under the turn-taking
// discipline above.
type Channel struct {
	name     string
	uart     serialhal.UART
	onPacket OnPacket
	onSent   OnSent

	stopCh chan struct{}
	rawCh  chan byte

	sendMu sync.Mutex
	queue  []*cn105pkt.Packet

	sendDoneCh chan sendResult
}

type sendResult struct {
	pkt *cn105pkt.Packet
	err error
}

// New constructs a Channel. Start must be called before any packets are
// sent or received.
func New(name string, uart serialhal.UART, onPacket OnPacket, onSent OnSent) *Channel {
	return &Channel{
		name:       name,
		uart:       uart,
		onPacket:   onPacket,
		onSent:     onSent,
		stopCh:     make(chan struct{}),
		rawCh:      make(chan byte, 64),
		sendDoneCh: make(chan sendResult, 1),
	}
}

// Start launches the channel's reader and state-machine goroutines.
func (c *Channel) Start() {
	go c.readerLoop()
	go c.run()
}

// Stop halts the channel's goroutines. It does not close the underlying
// UART.
func (c *Channel) Stop() {
	close(c.stopCh)
}

// EnqueuePacket appends pkt to the TX queue. Thread-safe; callable from
// any goroutine. If the queue is full, the packet is dropped immediately
// and OnSent is invoked with a non-nil error.
func (c *Channel) EnqueuePacket(pkt *cn105pkt.Packet) {
	c.sendMu.Lock()
	full := len(c.queue) >= sendQueueCapacity
	if !full {
		c.queue = append(c.queue, pkt)
	}
	c.sendMu.Unlock()
	if full {
		log.Warningf("%s: send queue full, dropping packet", c.name)
		if c.onSent != nil {
			c.onSent(pkt, ErrQueueFull)
		}
	}
}

func (c *Channel) dequeue() *cn105pkt.Packet {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	pkt := c.queue[0]
	c.queue = c.queue[1:]
	return pkt
}

// readerLoop continuously reads bytes off the UART with a short deadline
// so it can notice Stop() promptly, and forwards each successfully read
// byte to the state machine goroutine.
func (c *Channel) readerLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		b, err := c.uart.ReadByte(time.Now().Add(readPoll))
		if err != nil {
			continue // timeout or transient error; the poll loop handles protocol timeouts
		}
		select {
		case c.rawCh <- b:
		case <-c.stopCh:
			return
		}
	}
}

// run is the single goroutine that owns every state transition of the
// channel.
func (c *Channel) run() {
	state := Ready
	var current *cn105pkt.Packet
	var lastByteAt time.Time
	var notBusyAt time.Time
	var pendingDuringSend []byte

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	enterBusy := func() {
		state = Busy
		notBusyAt = time.Now().Add(BusyMs)
	}

	startReceiving := func(b byte) {
		current = cn105pkt.New()
		current.AppendByte(b)
		lastByteAt = time.Now()
		state = Receiving
	}

	publish := func(pkt *cn105pkt.Packet) {
		if c.onPacket != nil {
			c.onPacket(pkt)
		}
	}

	// feedByte appends b to the packet under construction and reports
	// whether it finished a frame (complete or junk-overflowed) that
	// should be published and followed by quiet time.
	feedByte := func(b byte) bool {
		current.AppendByte(b)
		lastByteAt = time.Now()
		if current.IsComplete() {
			return true
		}
		if current.IsJunk() && current.Len() >= cn105pkt.MaxPacketLength {
			return true
		}
		return false
	}

	startSend := func(pkt *cn105pkt.Packet) {
		state = Sending
		go func() {
			err := c.uart.Write(pkt.Bytes())
			c.sendDoneCh <- sendResult{pkt: pkt, err: err}
		}()
	}

	for {
		select {
		case <-c.stopCh:
			return

		case b := <-c.rawCh:
			if state == Sending {
				// Half-duplex: nothing should arrive while we hold the
				// line, but tolerate it by replaying once the send
				// completes rather than dropping silently.
				pendingDuringSend = append(pendingDuringSend, b)
				continue
			}
			switch state {
			case Ready, Busy:
				startReceiving(b)
			case Receiving:
				if current.IsJunk() && b == cn105pkt.StartByte {
					// A fresh frame start always wins over an in-progress
					// resync; no point absorbing it into the junk window.
					junk := current
					publish(junk)
					startReceiving(b)
					continue
				}
				if feedByte(b) {
					pkt := current
					current = nil
					publish(pkt)
					enterBusy()
				}
			}

		case res := <-c.sendDoneCh:
			if res.err != nil {
				log.Warningf("%s: send failed: %v", c.name, res.err)
			}
			if c.onSent != nil {
				c.onSent(res.pkt, res.err)
			}
			enterBusy()
			if len(pendingDuringSend) > 0 {
				replay := pendingDuringSend
				pendingDuringSend = nil
				startReceiving(replay[0])
				for _, b := range replay[1:] {
					if feedByte(b) {
						pkt := current
						current = nil
						publish(pkt)
						enterBusy()
						break
					}
				}
			}

		case <-ticker.C:
			now := time.Now()
			switch state {
			case Receiving:
				if current != nil && now.Sub(lastByteAt) >= ProtocolTimeout {
					aborted := current
					current = nil
					publish(aborted) // caller distinguishes via IsComplete/IsJunk
					enterBusy()
				}
			case Busy:
				if !now.Before(notBusyAt) {
					if pkt := c.dequeue(); pkt != nil {
						startSend(pkt)
					} else {
						state = Ready
					}
				}
			case Ready:
				if pkt := c.dequeue(); pkt != nil {
					startSend(pkt)
				}
			}
		}
	}
}
