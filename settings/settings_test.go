package settings

import "testing"

func TestEncodeDecodeTargetTempIntegerDegree(t *testing.T) {
	s := Settings{TargetTemp: 25.0, Present: FieldTargetTemp}
	data := Encode(s)
	got := Decode(data[:])
	if got.TargetTemp != 25.0 {
		t.Fatalf("TargetTemp round-trip = %v, want 25.0", got.TargetTemp)
	}
	if data[offTargetTemp] == 0 {
		t.Fatalf("legacy byte should be written for an integer-degree value")
	}
}

func TestEncodeDecodeTargetTempHalfDegree(t *testing.T) {
	s := Settings{TargetTemp: 23.5, Present: FieldTargetTemp}
	data := Encode(s)
	if data[offTargetTemp] != 0 {
		t.Fatalf("legacy byte should be left at 0 for a non-integer-degree value, got %#x", data[offTargetTemp])
	}
	got := Decode(data[:])
	if got.TargetTemp != 23.5 {
		t.Fatalf("TargetTemp round-trip = %v, want 23.5", got.TargetTemp)
	}
}

func TestTargetTempClamping(t *testing.T) {
	cases := []struct {
		in   HalfDegree
		want HalfDegree
	}{
		{31.5, 31.0},
		{15.0, 16.0},
		{23.5, 23.5},
	}
	for _, tc := range cases {
		data := Encode(Settings{TargetTemp: tc.in, Present: FieldTargetTemp})
		got := Decode(data[:]).TargetTemp
		if got != tc.want {
			t.Errorf("encode/decode(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDecodePrefersModernByte(t *testing.T) {
	var data [PayloadLen]byte
	data[1] = presenceTargetTemp
	data[offTargetTemp] = 6 // legacy would decode to 25.0
	data[offTargetTemp2] = byte(24.0*2 + 128)
	got := Decode(data[:])
	if got.TargetTemp != 24.0 {
		t.Fatalf("TargetTemp = %v, want 24.0 (modern byte should win)", got.TargetTemp)
	}
}

func TestDecodeFallsBackToLegacyByte(t *testing.T) {
	var data [PayloadLen]byte
	data[1] = presenceTargetTemp
	data[offTargetTemp] = 6
	data[offTargetTemp2] = 0
	got := Decode(data[:])
	if got.TargetTemp != 25.0 {
		t.Fatalf("TargetTemp = %v, want 25.0 from legacy byte", got.TargetTemp)
	}
}

func TestInfoAckSettingsDecodeAndMerge(t *testing.T) {
	// An InfoAck settings payload as a real unit reports it: all five
	// standard presence bits set, wide vane absent.
	data := make([]byte, PayloadLen)
	data[0] = 0x02
	data[1] = 0x1F
	data[offPower] = 1
	data[offMode] = byte(ModeCool)
	data[offTargetTemp] = 0x06
	data[offFan] = 3
	data[offVane] = 2

	got := Decode(data)
	cached := Merge(Default(), got)

	if cached.Power != PowerOn {
		t.Errorf("Power = %v, want On", cached.Power)
	}
	if cached.Mode != ModeCool {
		t.Errorf("Mode = %v, want Cool", cached.Mode)
	}
	if cached.TargetTemp != 25.0 {
		t.Errorf("TargetTemp = %v, want 25.0", cached.TargetTemp)
	}
	if cached.Fan != FanP2 {
		t.Errorf("Fan = %v, want P2", cached.Fan)
	}
	if cached.Vane != VaneP2 {
		t.Errorf("Vane = %v, want P2", cached.Vane)
	}
	if cached.WideVane != WideVaneCenter {
		t.Errorf("WideVane = %v, want Center (unchanged)", cached.WideVane)
	}
}

func TestMergeOnlyOverwritesPresentFields(t *testing.T) {
	base := Default()
	update := Settings{Power: PowerOn, Present: FieldPower}
	merged := Merge(base, update)

	if merged.Power != PowerOn {
		t.Fatalf("Power should be overwritten by update")
	}
	if merged.Mode != base.Mode || merged.TargetTemp != base.TargetTemp ||
		merged.Fan != base.Fan || merged.Vane != base.Vane || merged.WideVane != base.WideVane {
		t.Fatalf("fields absent from update should be retained from base: got %+v", merged)
	}
}

func TestThermostatPowerOnlyUpdate(t *testing.T) {
	// An Update payload with only the Power presence bit set; the mode
	// byte still carries a value but must be ignored.
	data := []byte{0x01, 0x01, 0, 1, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	update := Decode(data)
	if update.Present != FieldPower {
		t.Fatalf("Present = %v, want FieldPower only", update.Present)
	}

	prior := Settings{Power: PowerOff, Mode: ModeHeat, TargetTemp: 22.0, Fan: FanP3, Vane: VaneAuto, WideVane: WideVaneLeft, Present: FieldAll}
	merged := Merge(prior, update)
	if merged.Power != PowerOn {
		t.Fatalf("Power should become On")
	}
	if merged.Mode != prior.Mode || merged.TargetTemp != prior.TargetTemp || merged.Fan != prior.Fan ||
		merged.Vane != prior.Vane || merged.WideVane != prior.WideVane {
		t.Fatalf("only Power should have changed: got %+v", merged)
	}
}

func TestRoomTempRoundTrip(t *testing.T) {
	for _, v := range []HalfDegree{10.0, 20.5, 41.0} {
		data := EncodeExtended(ExtendedSettings{RoomTemp: v, Present: ExtendedFieldRoomTemp})
		got := DecodeExtended(data[:])
		if got.RoomTemp != v {
			t.Errorf("RoomTemp round-trip(%v) = %v", v, got.RoomTemp)
		}
	}
}

func TestRoomTempLegacyTruncation(t *testing.T) {
	// Values above 25.0 should truncate to 0x0F on the legacy byte, but the
	// modern byte remains authoritative on decode.
	legacy, modern := encodeRoomTemp(30.0)
	if legacy != 0x0F {
		t.Fatalf("legacy byte = %#x, want 0x0F", legacy)
	}
	got := decodeRoomTemp(legacy, modern)
	if got != 30.0 {
		t.Fatalf("decodeRoomTemp = %v, want 30.0 (modern byte should win)", got)
	}
	// With no modern byte, the legacy truncation is visible.
	if got := decodeRoomTemp(legacy, 0); got != 25.0 {
		t.Fatalf("legacy-only decode = %v, want 25.0 (truncated)", got)
	}
}
