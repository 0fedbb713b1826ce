package cn105pkt

import "testing"

func TestBuildAndAccumulate(t *testing.T) {
	built := Build(TypeConnect, []byte{0xCA, 0x01})
	if !built.IsComplete() {
		t.Fatalf("built packet should be complete")
	}
	if !built.IsChecksumValid() {
		t.Fatalf("built packet should have a valid checksum")
	}

	p := New()
	for i, b := range built.Bytes() {
		ok := p.AppendByte(b)
		if !ok {
			t.Fatalf("append of byte %d (%#x) rejected", i, b)
		}
		if i < HeaderLength-1 {
			if p.IsHeaderComplete() {
				t.Fatalf("header should not be complete after %d bytes", i+1)
			}
		}
	}
	if !p.IsHeaderComplete() {
		t.Fatalf("header should be complete")
	}
	if !p.IsComplete() {
		t.Fatalf("packet should be complete after all bytes appended")
	}
	if p.TypeByte() != TypeConnect {
		t.Fatalf("type = %v, want %v", p.TypeByte(), TypeConnect)
	}
	if p.DataSize() != 2 {
		t.Fatalf("data size = %d, want 2", p.DataSize())
	}
	if !p.IsChecksumValid() {
		t.Fatalf("checksum should be valid")
	}
	if p.IsJunk() {
		t.Fatalf("packet should not be junk")
	}
}

func TestAppendByteRejectsBeyondPacketSize(t *testing.T) {
	built := Build(TypeConnectAck, []byte{0x00})
	p := New()
	for _, b := range built.Bytes() {
		p.AppendByte(b)
	}
	if ok := p.AppendByte(0x11); ok {
		t.Fatalf("append beyond packet_size should be rejected")
	}
	if p.Len() != built.Len() {
		t.Fatalf("len changed after rejected append: %d != %d", p.Len(), built.Len())
	}
}

func TestJunkResync(t *testing.T) {
	p := New()
	if ok := p.AppendByte(0xAA); !ok {
		t.Fatalf("first junk byte should be accepted")
	}
	if !p.IsJunk() {
		t.Fatalf("packet should be marked junk after non-start first byte")
	}
	if p.IsHeaderComplete() {
		t.Fatalf("junk packet never reports header complete")
	}
	if got := p.NextChunkSize(); got != MaxPacketLength-1 {
		t.Fatalf("junk resync window = %d, want %d", got, MaxPacketLength-1)
	}
	// Junk packets accumulate up to MaxPacketLength bytes, then reject.
	for i := 1; i < MaxPacketLength; i++ {
		if ok := p.AppendByte(0xBB); !ok {
			t.Fatalf("junk byte %d should be accepted", i)
		}
	}
	if ok := p.AppendByte(0xCC); ok {
		t.Fatalf("junk packet should reject bytes beyond MaxPacketLength")
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		typ  Type
		data []byte
	}{
		{TypeConnect, []byte{0xCA, 0x01}},
		{TypeConnectAck, []byte{0x00}},
		{TypeInfo, append([]byte{0x02}, make([]byte, 15)...)},
		{TypeUpdate, append([]byte{0x01, 0x01}, make([]byte, 14)...)},
	} {
		p := Build(tc.typ, tc.data)
		if !p.IsChecksumValid() {
			t.Fatalf("type %v: checksum should validate for a freshly built packet", tc.typ)
		}
		corrupt := New()
		corrupt.AppendByte(p.Bytes()[0])
		// Tamper with the checksum byte alone and confirm validation fails.
		raw := append([]byte(nil), p.Bytes()...)
		raw[len(raw)-1] ^= 0xFF
		q := New()
		for _, b := range raw {
			q.AppendByte(b)
		}
		if q.IsChecksumValid() {
			t.Fatalf("type %v: tampered checksum should not validate", tc.typ)
		}
	}
}

func TestAckTypes(t *testing.T) {
	pairs := []struct {
		req, ack Type
	}{
		{TypeConnect, TypeConnectAck},
		{TypeExtendedConnect, TypeExtendedConnectAck},
		{TypeUpdate, TypeUpdateAck},
		{TypeInfo, TypeInfoAck},
	}
	for _, pr := range pairs {
		if pr.req.IsAck() {
			t.Fatalf("%v should not be an ack type", pr.req)
		}
		if !pr.ack.IsAck() {
			t.Fatalf("%v should be an ack type", pr.ack)
		}
		if pr.req.Ack() != pr.ack {
			t.Fatalf("%v.Ack() = %v, want %v", pr.req, pr.req.Ack(), pr.ack)
		}
		if pr.ack.Ack() != pr.req {
			t.Fatalf("%v.Ack() = %v, want %v", pr.ack, pr.ack.Ack(), pr.req)
		}
	}
}

func TestSubCommand(t *testing.T) {
	p := Build(TypeInfo, []byte{byte(SubCommandExtendedSettings), 0, 0})
	if p.SubCommand() != SubCommandExtendedSettings {
		t.Fatalf("sub-command = %v, want %v", p.SubCommand(), SubCommandExtendedSettings)
	}
}
