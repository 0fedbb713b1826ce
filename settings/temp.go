package settings

import "math"

// HalfDegree is a Celsius temperature quantised to 0.5 degree steps, the
// native resolution of the CN105 protocol.
type HalfDegree float32

// roundHalf rounds v to the nearest 0.5.
func roundHalf(v float32) float32 {
	return float32(math.Round(float64(v)*2) / 2)
}

// TargetTempMin and TargetTempMax bound the settable target temperature.
const (
	TargetTempMin HalfDegree = 16.0
	TargetTempMax HalfDegree = 31.0
)

// Clamp returns t clamped to [TargetTempMin, TargetTempMax] and rounded to
// the nearest half degree.
func (t HalfDegree) Clamp() HalfDegree {
	v := roundHalf(float32(t))
	if v < float32(TargetTempMin) {
		v = float32(TargetTempMin)
	}
	if v > float32(TargetTempMax) {
		v = float32(TargetTempMax)
	}
	return HalfDegree(v)
}

// isInteger reports whether t has no fractional half-degree component.
func (t HalfDegree) isInteger() bool {
	return float32(t) == float32(int32(t))
}

// decodeTargetTemp implements the dual target-temperature encoding: the
// modern byte (index 11) is authoritative whenever it's non-zero; the
// legacy byte (index 5, whole degrees below 31) is used otherwise.
func decodeTargetTemp(legacy, modern byte) HalfDegree {
	if modern != 0 {
		return HalfDegree((float32(modern) - 128) / 2)
	}
	return HalfDegree(31 - int(legacy))
}

// encodeTargetTemp always writes the modern byte and additionally writes
// the legacy byte when t is a whole degree; half-degree values cannot be
// represented in the legacy encoding at all, so it stays zero for them.
func encodeTargetTemp(t HalfDegree) (legacy, modern byte) {
	t = t.Clamp()
	modern = byte(float32(t)*2 + 128)
	if t.isInteger() {
		legacy = byte(31 - int32(t))
	}
	return legacy, modern
}

// RoomTempMin and RoomTempMax bound the reported room temperature.
const (
	RoomTempMin HalfDegree = 10.0
	RoomTempMax HalfDegree = 41.0
)

// decodeRoomTemp mirrors decodeTargetTemp for the ExtendedSettings room
// temperature fields; both use the same half-degree wire encoding, which
// is never zero for an in-range temperature, so a zero modern byte means
// "absent, use legacy".
func decodeRoomTemp(legacy, modern byte) HalfDegree {
	if modern != 0 {
		return HalfDegree((float32(modern) - 128) / 2)
	}
	// Legacy byte truncates anything >= 25.0 to 0x0F, per the historical
	// quirk callers are expected to tolerate.
	return HalfDegree(10 + int(legacy))
}

func encodeRoomTemp(t HalfDegree) (legacy, modern byte) {
	if t < RoomTempMin {
		t = RoomTempMin
	}
	if t > RoomTempMax {
		t = RoomTempMax
	}
	l := int32(t) - 10
	if l < 0 {
		l = 0
	}
	if l > 0x0F {
		l = 0x0F
	}
	legacy = byte(l)
	modern = byte(float32(t)*2 + 128)
	return legacy, modern
}
