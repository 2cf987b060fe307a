package relay

import (
	"encoding/binary"
	"fmt"
)

// MaxPayload is the largest wireless frame payload, matching the DS
// wireless protocol's fixed slot size.
const MaxPayload = 1024

// headerSize is the wire framing overhead: timestamp (8), aid (1),
// type (1).
const headerSize = 10

// PacketType classifies a wireless frame.
type PacketType uint8

const (
	TypeOther PacketType = iota
	TypeCmd
	TypeReply
	TypeAck
)

// String returns the display name of the packet type.
func (t PacketType) String() string {
	switch t {
	case TypeOther:
		return "Other"
	case TypeCmd:
		return "Cmd"
	case TypeReply:
		return "Reply"
	case TypeAck:
		return "Ack"
	default:
		return "Unknown"
	}
}

// Packet is one wireless datagram: payload, monotonic tick timestamp,
// association ID (0 = host/broadcast, 1-15 = client) and type. Immutable
// once constructed; the constructor copies the payload in.
type Packet struct {
	data      []byte
	timestamp uint64
	aid       uint8
	ptype     PacketType
}

// NewPacket builds a packet, copying data. It rejects payloads over
// MaxPayload and association IDs over 15.
func NewPacket(data []byte, timestamp uint64, aid uint8, ptype PacketType) (Packet, error) {
	if len(data) > MaxPayload {
		return Packet{}, fmt.Errorf("relay: payload is %d bytes, max %d", len(data), MaxPayload)
	}
	if aid > 15 {
		return Packet{}, fmt.Errorf("relay: aid %d out of range", aid)
	}
	return Packet{
		data:      append([]byte(nil), data...),
		timestamp: timestamp,
		aid:       aid,
		ptype:     ptype,
	}, nil
}

// Data returns the payload. Callers must not modify it.
func (p Packet) Data() []byte { return p.data }

// Len returns the payload length.
func (p Packet) Len() int { return len(p.data) }

// Timestamp returns the sender's monotonic tick counter value.
func (p Packet) Timestamp() uint64 { return p.timestamp }

// Aid returns the sender's association ID.
func (p Packet) Aid() uint8 { return p.aid }

// Type returns the packet type.
func (p Packet) Type() PacketType { return p.ptype }

// encode serializes the packet into its wire form: little-endian
// timestamp, aid byte, type byte, payload.
func (p Packet) encode() []byte {
	buf := make([]byte, headerSize+len(p.data))
	binary.LittleEndian.PutUint64(buf, p.timestamp)
	buf[8] = p.aid
	buf[9] = byte(p.ptype)
	copy(buf[headerSize:], p.data)
	return buf
}

// parsePacket decodes a wire-form datagram. It fails on truncated
// headers, oversized payloads and out-of-range association IDs.
func parsePacket(buf []byte) (Packet, error) {
	if len(buf) < headerSize {
		return Packet{}, fmt.Errorf("relay: datagram is %d bytes, need at least %d", len(buf), headerSize)
	}
	return NewPacket(buf[headerSize:], binary.LittleEndian.Uint64(buf), buf[8], PacketType(buf[9]))
}
