// Package cn105pkt defines the CN105 serial frame: a start byte, a type
// byte, two constant bytes, a length-prefixed data section and a trailing
// checksum. Packet accumulates raw bytes one at a time as they arrive off
// the wire and exposes typed accessors once enough of the frame has been
// seen.
package cn105pkt

import "errors"

// Wire constants for the CN105 frame.
const (
	StartByte  byte = 0xFC
	ConstByte1 byte = 0x01
	ConstByte2 byte = 0x30

	// HeaderLength is the number of bytes before the data section:
	// start, type, const1, const2, length.
	HeaderLength = 5

	// MaxPacketLength is the largest total frame size this package will
	// ever accumulate: header + data + checksum. Nothing on a CN105 bus
	// sends frames longer than 30 bytes.
	MaxPacketLength = 30

	// MaxDataLength is the largest data section Build will ever encode.
	// Observed traffic never exceeds 16 data bytes.
	MaxDataLength = MaxPacketLength - HeaderLength - 1
)

// Type identifies the kind of a CN105 packet. ACK types are always their
// request type XOR 0x20.
type Type byte

const (
	TypeConnect            Type = 0x5A
	TypeConnectAck         Type = 0x7A
	TypeExtendedConnect    Type = 0xCA
	TypeExtendedConnectAck Type = 0xEA
	TypeUpdate             Type = 0x41
	TypeUpdateAck          Type = 0x61
	TypeInfo               Type = 0x42
	TypeInfoAck            Type = 0x62
)

// IsAck reports whether t is the acknowledgement form of some request type.
func (t Type) IsAck() bool {
	return t&0x20 != 0
}

// Ack returns the acknowledgement type corresponding to a request type, and
// vice versa.
func (t Type) Ack() Type {
	return t ^ 0x20
}

func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "Connect"
	case TypeConnectAck:
		return "ConnectAck"
	case TypeExtendedConnect:
		return "ExtendedConnect"
	case TypeExtendedConnectAck:
		return "ExtendedConnectAck"
	case TypeUpdate:
		return "Update"
	case TypeUpdateAck:
		return "UpdateAck"
	case TypeInfo:
		return "Info"
	case TypeInfoAck:
		return "InfoAck"
	default:
		return "Unknown"
	}
}

// SubCommand identifies which logical table an Info or InfoAck payload
// addresses; it's carried in data byte 0. Update packets carry their own
// table tag in byte 0, with different values.
type SubCommand byte

const (
	SubCommandSettings         SubCommand = 0x02
	SubCommandExtendedSettings SubCommand = 0x03
	SubCommandTimers           SubCommand = 0x05
	SubCommandStatus           SubCommand = 0x06
	SubCommandEnterStandby     SubCommand = 0x09
)

var (
	// ErrFull is returned by AppendByte when the packet already holds as
	// many bytes as its (possibly not-yet-known) frame size allows.
	ErrFull = errors.New("cn105pkt: packet is full")
)

// Packet accumulates the bytes of a single CN105 frame. The zero value is a
// fresh, empty packet ready to receive its first byte.
type Packet struct {
	buf  [MaxPacketLength]byte
	n    int  // bytes accumulated so far
	junk bool // first byte accepted was not StartByte
}

// New returns a new, empty Packet.
func New() *Packet {
	return &Packet{}
}

// Reset clears the packet back to its zero state so it can be reused for a
// new frame without allocating.
func (p *Packet) Reset() {
	p.n = 0
	p.junk = false
}

// IsJunk reports whether the first byte ever appended was not StartByte.
// Junk packets are grown up to a resync window and then discarded.
func (p *Packet) IsJunk() bool {
	return p.junk
}

// Len returns the number of bytes accumulated so far.
func (p *Packet) Len() int {
	return p.n
}

// IsHeaderComplete reports whether enough bytes have been accumulated to
// know the packet's type and declared data length. Field accessors other
// than the raw bytes are only valid once this holds.
func (p *Packet) IsHeaderComplete() bool {
	return !p.junk && p.n >= HeaderLength
}

// DataSize returns the declared length of the data section. Valid only
// once IsHeaderComplete holds.
func (p *Packet) DataSize() int {
	return int(p.buf[4])
}

// PacketSize returns the total frame size (header + data + checksum).
// Valid only once IsHeaderComplete holds.
func (p *Packet) PacketSize() int {
	return HeaderLength + p.DataSize() + 1
}

// TypeByte returns the packet's type byte. Valid only once IsHeaderComplete
// holds.
func (p *Packet) TypeByte() Type {
	return Type(p.buf[1])
}

// IsComplete reports whether PacketSize() bytes have been accumulated.
func (p *Packet) IsComplete() bool {
	return p.IsHeaderComplete() && p.n >= p.PacketSize()
}

// nextChunkSize returns how many more bytes this packet will accept before
// it is either complete (well-formed packets) or discarded (junk resync
// window). It's used by callers that want to size a single read.
func (p *Packet) nextChunkSize() int {
	if p.junk {
		remaining := MaxPacketLength - p.n
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	if !p.IsHeaderComplete() {
		return HeaderLength - p.n
	}
	if rem := p.PacketSize() - p.n; rem > 0 {
		return rem
	}
	return 0
}

// NextChunkSize is the exported form of nextChunkSize, reporting the
// resync window remaining for a junk packet rather than the header-driven
// size.
func (p *Packet) NextChunkSize() int {
	return p.nextChunkSize()
}

// AppendByte appends b to the packet if it is not yet complete and is
// under the maximum frame length. It returns false (without modifying the
// packet) if the packet cannot accept any more bytes.
func (p *Packet) AppendByte(b byte) bool {
	if p.n >= MaxPacketLength {
		return false
	}
	if p.n == 0 && b != StartByte {
		p.junk = true
	}
	if !p.junk && p.IsHeaderComplete() && p.n >= p.PacketSize() {
		return false
	}
	p.buf[p.n] = b
	p.n++
	return true
}

// Data returns the accumulated data section. Valid only once
// IsHeaderComplete holds; the returned slice aliases the packet's internal
// buffer and is only valid until the next call to Reset or AppendByte.
func (p *Packet) Data() []byte {
	ds := p.DataSize()
	end := HeaderLength + ds
	if end > p.n {
		end = p.n
	}
	return p.buf[HeaderLength:end]
}

// Bytes returns all bytes accumulated so far. The returned slice aliases
// the packet's internal buffer.
func (p *Packet) Bytes() []byte {
	return p.buf[:p.n]
}

// computeChecksum implements the CN105 checksum: (0xFC - sum(bytes)) mod
// 256, where bytes is every byte of the frame except the checksum byte
// itself.
func computeChecksum(bytes []byte) byte {
	var sum byte
	for _, b := range bytes {
		sum += b
	}
	return StartByte - sum
}

// Checksum returns the checksum byte actually present in the packet. Valid
// only once IsComplete holds.
func (p *Packet) Checksum() byte {
	return p.buf[p.PacketSize()-1]
}

// IsChecksumValid recomputes the checksum over the accumulated bytes and
// compares it against the trailing checksum byte. Valid only once
// IsComplete holds.
func (p *Packet) IsChecksumValid() bool {
	size := p.PacketSize()
	if p.n < size {
		return false
	}
	return computeChecksum(p.buf[:size-1]) == p.buf[size-1]
}

// Build constructs a well-formed Packet from a type and data payload,
// computing and appending the checksum. len(data) must not exceed
// MaxDataLength.
func Build(t Type, data []byte) *Packet {
	p := New()
	p.buf[0] = StartByte
	p.buf[1] = byte(t)
	p.buf[2] = ConstByte1
	p.buf[3] = ConstByte2
	p.buf[4] = byte(len(data))
	copy(p.buf[HeaderLength:], data)
	p.n = HeaderLength + len(data)
	p.buf[p.n] = computeChecksum(p.buf[:p.n])
	p.n++
	return p
}

// SubCommand returns the sub-command byte (data byte 0) of an Info or
// InfoAck packet. Valid only once the data section has at least one byte.
func (p *Packet) SubCommand() SubCommand {
	return SubCommand(p.buf[HeaderLength])
}
