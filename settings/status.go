package settings

// Status is a mostly-opaque decode of the Status sub-command payload:
// only enough of the table is decoded to expose whether the compressor is
// running and the last reported error code. Everything else in the
// payload is preserved verbatim so a future caller can extend decoding
// without losing information observed on the wire.
type Status struct {
	Running   bool
	ErrorCode byte
	Raw       [PayloadLen]byte
}

const (
	statusOffRunning = 4
	statusOffError   = 5
)

// DecodeStatus parses a Status sub-command payload.
func DecodeStatus(data []byte) Status {
	var s Status
	if len(data) < PayloadLen {
		return s
	}
	copy(s.Raw[:], data[:PayloadLen])
	s.Running = data[statusOffRunning] != 0
	s.ErrorCode = data[statusOffError]
	return s
}

// MergeStatus replaces base with update wholesale: unlike Settings and
// ExtendedSettings, Status carries no presence bitfield, so each InfoAck
// for Status is treated as a full snapshot.
func MergeStatus(base, update Status) Status {
	return update
}
