package relay

import (
	"bytes"
	"testing"
)

func TestPacketWireRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	p, err := NewPacket(payload, 0x0102030405060708, 5, TypeReply)
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}

	got, err := parsePacket(p.encode())
	if err != nil {
		t.Fatalf("parsePacket failed: %v", err)
	}

	if got.Timestamp() != 0x0102030405060708 {
		t.Errorf("timestamp = %#x, want %#x", got.Timestamp(), uint64(0x0102030405060708))
	}
	if got.Aid() != 5 {
		t.Errorf("aid = %d, want 5", got.Aid())
	}
	if got.Type() != TypeReply {
		t.Errorf("type = %v, want %v", got.Type(), TypeReply)
	}
	if !bytes.Equal(got.Data(), payload) {
		t.Errorf("payload = %x, want %x", got.Data(), payload)
	}
}

func TestPacketCopiesPayload(t *testing.T) {
	payload := []byte{1, 2, 3}
	p, err := NewPacket(payload, 0, 0, TypeOther)
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}

	payload[0] = 99
	if p.Data()[0] != 1 {
		t.Error("packet shares the caller's payload buffer")
	}
}

func TestNewPacketRejectsOversizedPayload(t *testing.T) {
	if _, err := NewPacket(make([]byte, MaxPayload+1), 0, 0, TypeOther); err == nil {
		t.Error("expected error for payload over MaxPayload")
	}
	if _, err := NewPacket(make([]byte, MaxPayload), 0, 0, TypeOther); err != nil {
		t.Errorf("payload at MaxPayload should be accepted: %v", err)
	}
}

func TestNewPacketRejectsBadAid(t *testing.T) {
	if _, err := NewPacket(nil, 0, 16, TypeReply); err == nil {
		t.Error("expected error for aid 16")
	}
	if _, err := NewPacket(nil, 0, 15, TypeReply); err != nil {
		t.Errorf("aid 15 should be accepted: %v", err)
	}
}

func TestParsePacketTruncatedHeader(t *testing.T) {
	if _, err := parsePacket(make([]byte, headerSize-1)); err == nil {
		t.Error("expected error for truncated header")
	}
}

func TestParsePacketEmptyPayload(t *testing.T) {
	p, err := NewPacket(nil, 7, 1, TypeAck)
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}
	got, err := parsePacket(p.encode())
	if err != nil {
		t.Fatalf("parsePacket failed: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("payload length = %d, want 0", got.Len())
	}
}
