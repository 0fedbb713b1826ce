package controller

import (
	"github.com/oxplot/cn105mediator/cn105pkt"
	"github.com/oxplot/cn105mediator/packetlog"
	"github.com/oxplot/cn105mediator/settings"
)

// onThermostatPacket processes one packet received from the thermostat
// channel. Runs on the controller task.
func (c *Controller) onThermostatPacket(pkt *cn105pkt.Packet) {
	c.logger.Log(packetlog.TagThermostatRx, pkt)

	if c.passthru.Load() {
		c.hvac.EnqueuePacket(pkt)
		c.logger.Log(packetlog.TagHVACTx, pkt)
		return
	}
	if pkt.IsJunk() || !pkt.IsComplete() {
		c.framingDrops.Inc()
		return
	}
	if !pkt.IsChecksumValid() {
		c.checksumErrors.Inc()
		return
	}

	switch pkt.TypeByte() {
	case cn105pkt.TypeConnect:
		c.replyToThermostat(cn105pkt.Build(cn105pkt.TypeConnectAck, []byte{0x00}))

	case cn105pkt.TypeExtendedConnect:
		// The ack payload is a fixed table observed on a real unit, except
		// byte 0: its meaning is unknown, so the request's byte 0 is
		// preserved verbatim rather than pinned to the usual 0xC9.
		payload := make([]byte, settings.PayloadLen)
		copy(payload, extendedConnectAckTable[:])
		if data := pkt.Data(); len(data) > 0 {
			payload[0] = data[0]
		}
		c.replyToThermostat(cn105pkt.Build(cn105pkt.TypeExtendedConnectAck, payload))

	case cn105pkt.TypeUpdate:
		data := pkt.Data()
		c.mu.Lock()
		// data[0] selects the table being written; an Update never carries
		// both at once.
		if len(data) > 0 && data[0] == updateTagExtended {
			c.extended = settings.MergeExtended(c.extended, settings.DecodeExtended(data))
		} else {
			c.settings = settings.Merge(c.settings, settings.Decode(data))
		}
		c.mu.Unlock()
		c.replyToThermostat(cn105pkt.Build(cn105pkt.TypeUpdateAck, make([]byte, settings.PayloadLen)))

	case cn105pkt.TypeInfo:
		c.replyToThermostat(c.buildInfoAckForThermostat(pkt.SubCommand()))
	}
}

// extendedConnectAckTable is the ExtendedConnectAck payload a real indoor
// unit answers with; byte 0 is replaced with the request's byte 0 before
// sending.
var extendedConnectAckTable = [settings.PayloadLen]byte{
	0xC9, 0x03, 0x00, 0x20,
	0x00, 0x14, 0x07, 0x75,
	0x0C, 0x05, 0xA0, 0xBE,
	0x94, 0xBE, 0xA0, 0xBE,
}

// buildInfoAckForThermostat answers an Info request from the thermostat:
// an ExtendedSettings request gets the cached ExtendedSettings, and every
// other sub-command (Status, Timers and EnterStandby included) gets the
// cached Settings as a harmless default. The cached Status is not served.
func (c *Controller) buildInfoAckForThermostat(sub cn105pkt.SubCommand) *cn105pkt.Packet {
	var payload [settings.PayloadLen]byte
	if sub == cn105pkt.SubCommandExtendedSettings {
		c.mu.Lock()
		enc := settings.EncodeExtended(c.extended)
		c.mu.Unlock()
		payload = enc
		payload[0] = byte(cn105pkt.SubCommandExtendedSettings)
	} else {
		c.mu.Lock()
		enc := settings.Encode(c.settings)
		c.mu.Unlock()
		payload = enc
		payload[0] = byte(cn105pkt.SubCommandSettings)
	}
	return cn105pkt.Build(cn105pkt.TypeInfoAck, payload[:])
}

func (c *Controller) replyToThermostat(pkt *cn105pkt.Packet) {
	c.thermostat.EnqueuePacket(pkt)
	c.logger.Log(packetlog.TagThermostatTx, pkt)
}
