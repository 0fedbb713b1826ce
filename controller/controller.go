// Package controller implements the command-FIFO state machine that
// drives the CN105 bus towards the indoor unit and services the
// thermostat side, maintaining the cached Settings/ExtendedSettings/
// Status tables under a single shared-data guard.
package controller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oxplot/cn105mediator/cn105pkt"
	"github.com/oxplot/cn105mediator/eventloop"
	"github.com/oxplot/cn105mediator/halfduplex"
	"github.com/oxplot/cn105mediator/packetlog"
	"github.com/oxplot/cn105mediator/serialhal"
	"github.com/oxplot/cn105mediator/settings"
)

var log = logging.MustGetLogger("controller")

const (
	// protocolTimeout is how long a dispatched command waits for a
	// structurally valid reply before the controller assumes protocol
	// loss.
	protocolTimeout = 20 * time.Millisecond

	// initialReconnectBackoff is the delay before the first retried
	// Connect after a Connect itself times out.
	initialReconnectBackoff = 20 * time.Millisecond

	// maxReconnectBackoff caps the doubling backoff applied to repeated
	// Connect failures, so an unplugged unit doesn't spin the bus at full
	// rate forever.
	maxReconnectBackoff = 5 * time.Second

	// queryStartDelay separates the post-Connect cache refresh from the
	// ConnectAck that triggers it, so the Connect command's own FIFO
	// cycle fully settles before any follow-up query is queued.
	queryStartDelay = 50 * time.Millisecond

	// queryInterval is how often the controller refreshes its cached
	// Settings/ExtendedSettings once connected. Not specified by the
	// protocol; chosen to keep the cache reasonably fresh without
	// crowding out thermostat-originated traffic.
	queryInterval = 30 * time.Second

	// Update (0x41) packets carry a table selector in data[0]: 0x01 for
	// the standard settings bitfield payload, 0x07 for the room
	// temperature payload. Distinct from cn105pkt.SubCommand, which only
	// applies to Info/InfoAck's table selector.
	updateTagSettings byte = 0x01
	updateTagExtended byte = 0x07

	// The fixed Connect request payload every known CN105 talker sends.
	connectByte0 byte = 0xCA
	connectByte1 byte = 0x01
)

// Controller owns the two HalfDuplexChannels and the command FIFO that
// drives the hvac_control channel, and services the thermostat channel
// directly.
type Controller struct {
	em         *eventloop.EventManager
	hvac       *halfduplex.Channel
	thermostat *halfduplex.Channel
	logger     *packetlog.Logger

	passthru atomic.Bool

	mu       sync.Mutex // guards settings/extended/status only
	settings settings.Settings
	extended settings.ExtendedSettings
	status   settings.Status

	// Controller-task-only state below: touched only from closures run on
	// em, so no lock is needed for it.
	fifo             []commandKind
	commandNumber    uint64
	outstanding      bool
	inFlight         bool
	reconnectBackoff time.Duration
	queriesScheduled bool
	pendingSettings  settings.Settings
	pendingExtended  settings.ExtendedSettings

	checksumErrors prometheus.Counter
	framingDrops   prometheus.Counter
}

// New constructs a Controller. Call Start to begin operation.
func New(em *eventloop.EventManager, hvacUART, thermostatUART serialhal.UART, logger *packetlog.Logger, reg prometheus.Registerer) *Controller {
	c := &Controller{
		em:               em,
		logger:           logger,
		settings:         settings.Default(),
		extended:         settings.DefaultExtended(),
		reconnectBackoff: initialReconnectBackoff,
		checksumErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn105_controller_checksum_errors_total",
			Help: "Packets dropped for failing checksum validation.",
		}),
		framingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cn105_controller_framing_drops_total",
			Help: "Packets dropped for bad framing (junk or timed-out mid-packet).",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.checksumErrors, c.framingDrops)
	}

	c.hvac = halfduplex.New("hvac", hvacUART,
		func(pkt *cn105pkt.Packet) { em.Run(func() { c.onHVACPacket(pkt) }) },
		func(pkt *cn105pkt.Packet, err error) { em.Run(func() { c.onHVACSent(pkt, err) }) },
	)
	c.thermostat = halfduplex.New("thermostat", thermostatUART,
		func(pkt *cn105pkt.Packet) { em.Run(func() { c.onThermostatPacket(pkt) }) },
		func(pkt *cn105pkt.Packet, err error) { em.Run(func() { c.onThermostatSent(pkt, err) }) },
	)
	return c
}

// Start launches both channels and schedules the initial Connect.
func (c *Controller) Start() {
	c.hvac.Start()
	c.thermostat.Start()
	c.em.Run(func() { c.enqueueCommand(cmdConnect) })
}

// SetPassthru toggles byte-identical forwarding. Safe from any goroutine.
func (c *Controller) SetPassthru(on bool) {
	c.passthru.Store(on)
}

// IsPassthru reports the current passthru state. Safe from any goroutine.
func (c *Controller) IsPassthru() bool {
	return c.passthru.Load()
}

// SetTemperature schedules a PushSettings with only TargetTemp changed.
func (c *Controller) SetTemperature(t settings.HalfDegree) {
	c.em.Run(func() {
		update := settings.Settings{TargetTemp: t, Present: settings.FieldTargetTemp}
		c.mu.Lock()
		c.settings = settings.Merge(c.settings, update)
		c.mu.Unlock()
		c.pendingSettings = update
		c.enqueueCommand(cmdPushSettings)
	})
}

// PushSettings replaces the cached Settings wholesale and schedules the
// corresponding push.
func (c *Controller) PushSettings(s settings.Settings) {
	c.em.Run(func() {
		s.Present = settings.FieldAll
		c.mu.Lock()
		c.settings = s
		c.mu.Unlock()
		c.pendingSettings = s
		c.enqueueCommand(cmdPushSettings)
	})
}

// PushExtendedSettings replaces the cached ExtendedSettings wholesale and
// schedules the corresponding push.
func (c *Controller) PushExtendedSettings(e settings.ExtendedSettings) {
	c.em.Run(func() {
		e.Present = settings.ExtendedFieldAll
		c.mu.Lock()
		c.extended = e
		c.mu.Unlock()
		c.pendingExtended = e
		c.enqueueCommand(cmdPushExtendedSettings)
	})
}

// Settings returns a copy of the cached Settings under the shared-data
// guard. Safe from any goroutine.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// ExtendedSettings returns a copy of the cached ExtendedSettings under the
// shared-data guard. Safe from any goroutine.
func (c *Controller) ExtendedSettings() settings.ExtendedSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extended
}

// Status returns a copy of the cached Status under the shared-data guard.
// Safe from any goroutine.
func (c *Controller) Status() settings.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// enqueueCommand appends kind to the FIFO and tries to dispatch. Must run
// on the controller task.
func (c *Controller) enqueueCommand(kind commandKind) {
	c.fifo = append(c.fifo, kind)
	c.executeNextCommand()
}

// executeNextCommand dispatches the next FIFO entry if nothing is
// currently awaiting a reply. Must run on the controller task.
func (c *Controller) executeNextCommand() {
	if c.inFlight && !c.outstanding {
		return // previous command's reply hasn't arrived yet
	}
	if len(c.fifo) == 0 {
		c.inFlight = false
		return
	}
	kind := c.fifo[0]
	c.fifo = c.fifo[1:]

	pkt := c.buildCommandPacket(kind)
	c.hvac.EnqueuePacket(pkt)
	c.logger.Log(packetlog.TagHVACTx, pkt)

	c.commandNumber++
	captured := c.commandNumber
	c.outstanding = false
	c.inFlight = true

	c.em.RunDelayed(func() { c.onCommandTimeout(captured, kind) }, protocolTimeout)
}

func (c *Controller) onCommandTimeout(captured uint64, kind commandKind) {
	if c.commandNumber != captured || c.outstanding {
		return
	}
	log.Warningf("controller: protocol timeout on %s (command_number=%d)", kind, captured)
	c.inFlight = false
	if kind == cmdConnect {
		delay := c.reconnectBackoff
		c.reconnectBackoff *= 2
		if c.reconnectBackoff > maxReconnectBackoff {
			c.reconnectBackoff = maxReconnectBackoff
		}
		c.em.RunDelayed(func() { c.enqueueCommand(cmdConnect) }, delay)
		return
	}
	c.enqueueCommand(cmdConnect)
}

func (c *Controller) buildCommandPacket(kind commandKind) *cn105pkt.Packet {
	switch kind {
	case cmdConnect:
		return cn105pkt.Build(cn105pkt.TypeConnect, []byte{connectByte0, connectByte1})
	case cmdQuerySettings:
		return buildInfoQuery(cn105pkt.SubCommandSettings)
	case cmdQueryExtendedSettings:
		return buildInfoQuery(cn105pkt.SubCommandExtendedSettings)
	case cmdPushSettings:
		enc := settings.Encode(c.pendingSettings)
		enc[0] = updateTagSettings
		return cn105pkt.Build(cn105pkt.TypeUpdate, enc[:])
	case cmdPushExtendedSettings:
		enc := settings.EncodeExtended(c.pendingExtended)
		enc[0] = updateTagExtended
		return cn105pkt.Build(cn105pkt.TypeUpdate, enc[:])
	default:
		panic("controller: unknown command kind")
	}
}

func buildInfoQuery(sub cn105pkt.SubCommand) *cn105pkt.Packet {
	var payload [settings.PayloadLen]byte
	payload[0] = byte(sub)
	return cn105pkt.Build(cn105pkt.TypeInfo, payload[:])
}

// onHVACPacket processes one packet received from the HVAC channel. Runs
// on the controller task.
func (c *Controller) onHVACPacket(pkt *cn105pkt.Packet) {
	c.logger.Log(packetlog.TagHVACRx, pkt)

	if c.passthru.Load() {
		c.thermostat.EnqueuePacket(pkt)
		c.logger.Log(packetlog.TagThermostatTx, pkt)
		return
	}
	if pkt.IsJunk() {
		c.framingDrops.Inc()
		return
	}
	if !pkt.IsComplete() {
		// Timed out mid-packet: treat like protocol loss.
		c.framingDrops.Inc()
		c.enqueueCommand(cmdConnect)
		return
	}
	if !pkt.IsChecksumValid() {
		// Does NOT set outstanding: leaving it false lets the
		// already-scheduled protocol timeout assume loss and reconnect.
		c.checksumErrors.Inc()
		return
	}

	c.outstanding = true
	switch pkt.TypeByte() {
	case cn105pkt.TypeConnectAck:
		c.reconnectBackoff = initialReconnectBackoff
		if len(c.fifo) == 0 && !c.queriesScheduled {
			c.queriesScheduled = true
			c.enqueueQueries()
		}
	case cn105pkt.TypeExtendedConnectAck, cn105pkt.TypeUpdateAck:
		// No state change.
	case cn105pkt.TypeInfoAck:
		c.mergeInfoAck(pkt)
	}
	c.executeNextCommand()
}

func (c *Controller) enqueueQueries() {
	c.em.RunDelayed(func() { c.enqueueCommand(cmdQuerySettings) }, queryStartDelay)
	c.em.RunDelayed(func() { c.enqueueCommand(cmdQueryExtendedSettings) }, queryStartDelay+time.Millisecond)
	c.em.RunDelayed(func() { c.refreshQueries() }, queryInterval)
}

// refreshQueries re-queues both query commands and reschedules itself,
// keeping the cache warm for the lifetime of the connection.
func (c *Controller) refreshQueries() {
	c.enqueueCommand(cmdQuerySettings)
	c.enqueueCommand(cmdQueryExtendedSettings)
	c.em.RunDelayed(func() { c.refreshQueries() }, queryInterval)
}

func (c *Controller) mergeInfoAck(pkt *cn105pkt.Packet) {
	data := pkt.Data()
	switch pkt.SubCommand() {
	case cn105pkt.SubCommandSettings:
		c.mu.Lock()
		c.settings = settings.Merge(c.settings, settings.Decode(data))
		c.mu.Unlock()
	case cn105pkt.SubCommandExtendedSettings:
		c.mu.Lock()
		c.extended = settings.MergeExtended(c.extended, settings.DecodeExtended(data))
		c.mu.Unlock()
	case cn105pkt.SubCommandStatus:
		c.mu.Lock()
		c.status = settings.MergeStatus(c.status, settings.DecodeStatus(data))
		c.mu.Unlock()
	case cn105pkt.SubCommandTimers:
		// Logged via PacketLogger above; no cache to merge into.
	default:
		// SubCommandEnterStandby or unknown: accepted without crashing.
	}
}

func (c *Controller) onHVACSent(pkt *cn105pkt.Packet, err error) {
	if err != nil {
		log.Warningf("controller: hvac send failed: %v", err)
	}
}

func (c *Controller) onThermostatSent(pkt *cn105pkt.Packet, err error) {
	if err != nil {
		log.Warningf("controller: thermostat send failed: %v", err)
	}
}
