package settings

// Extended-settings payload byte offsets.
const (
	extOffRoomTemp  = 3 // legacy
	extOffRoomTemp2 = 6 // modern
)

// ExtendedSettingsFieldSet mirrors FieldSet for ExtendedSettings. Only
// RoomTemp is modeled today.
type ExtendedSettingsFieldSet byte

const (
	ExtendedFieldRoomTemp ExtendedSettingsFieldSet = 1 << iota
	ExtendedFieldAll                               = ExtendedFieldRoomTemp
)

// Has reports whether f is set.
func (fs ExtendedSettingsFieldSet) Has(f ExtendedSettingsFieldSet) bool {
	return fs&f != 0
}

// ExtendedSettings holds the subset of extended-table fields this mediator
// understands: the reported room temperature.
type ExtendedSettings struct {
	RoomTemp HalfDegree
	Present  ExtendedSettingsFieldSet
}

// DefaultExtended returns the startup default ExtendedSettings.
func DefaultExtended() ExtendedSettings {
	return ExtendedSettings{
		RoomTemp: 20.0,
		Present:  ExtendedFieldAll,
	}
}

// DecodeExtended parses an ExtendedSettings payload (PayloadLen bytes,
// sub-command byte included at index 0).
func DecodeExtended(data []byte) ExtendedSettings {
	var e ExtendedSettings
	if len(data) < PayloadLen {
		return e
	}
	// RoomTemp has no presence bit of its own on the wire (it's the only
	// field in this table this mediator decodes); it's always considered
	// present whenever an ExtendedSettings payload is decoded at all.
	e.RoomTemp = decodeRoomTemp(data[extOffRoomTemp], data[extOffRoomTemp2])
	e.Present = ExtendedFieldRoomTemp
	return e
}

// EncodeExtended writes e into a PayloadLen-byte buffer (sub-command byte
// set by the caller at index 0).
func EncodeExtended(e ExtendedSettings) [PayloadLen]byte {
	var data [PayloadLen]byte
	data[extOffRoomTemp], data[extOffRoomTemp2] = encodeRoomTemp(e.RoomTemp)
	return data
}

// MergeExtended folds update into base using the same single-mutation rule
// as Merge.
func MergeExtended(base, update ExtendedSettings) ExtendedSettings {
	merged := base
	if update.Present.Has(ExtendedFieldRoomTemp) {
		merged.RoomTemp = update.RoomTemp
	}
	merged.Present = base.Present | update.Present
	return merged
}
