package core

import (
	"github.com/duskcore/duskcore/relay"
	"github.com/duskcore/duskcore/savesync"
)

// Core implements engine.Platform. The engine invokes these callbacks
// from inside RunFrame, which executes on the host's foreground
// goroutine, except MPRecvHostPacket and MPRecvReplies which may block
// until the relay deactivates.

// WriteNDSSave records a dirty span of the slot-1 cart save image.
func (c *Core) WriteNDSSave(data []byte, offset, length uint32) {
	c.saves.Write(savesync.KindNDSSave, data, offset, length)
}

// WriteGBASave records a dirty span of the slot-2 cart save image.
func (c *Core) WriteGBASave(data []byte, offset, length uint32) {
	c.saves.Write(savesync.KindGBASave, data, offset, length)
}

// WriteFirmware records a dirty span of the firmware image.
func (c *Core) WriteFirmware(data []byte, offset, length uint32) {
	c.saves.Write(savesync.KindFirmware, data, offset, length)
}

// WriteSDCard records a dirty span of the SD card image.
func (c *Core) WriteSDCard(data []byte, offset, length uint32) {
	c.saves.Write(savesync.KindSDImage, data, offset, length)
}

// MPSendPacket broadcasts a raw wireless frame.
func (c *Core) MPSendPacket(data []byte, timestamp uint64) bool {
	p, err := relay.NewPacket(data, timestamp, 0, relay.TypeOther)
	if err != nil {
		return false
	}
	return c.relay.SendPacket(p)
}

// MPSendCmd broadcasts a host command frame.
func (c *Core) MPSendCmd(data []byte, timestamp uint64) bool {
	return c.relay.SendCmd(data, timestamp)
}

// MPSendReply sends this client's reply frame for aid.
func (c *Core) MPSendReply(data []byte, timestamp uint64, aid uint8) bool {
	return c.relay.SendReply(data, timestamp, aid)
}

// MPSendAck broadcasts an acknowledgment frame.
func (c *Core) MPSendAck(data []byte, timestamp uint64) bool {
	return c.relay.SendAck(data, timestamp)
}

// MPRecvPacket pops the next queued frame without blocking.
func (c *Core) MPRecvPacket(buf []byte) (int, uint64) {
	p, ok := c.relay.NextPacket()
	if !ok {
		return 0, 0
	}
	return copy(buf, p.Data()), p.Timestamp()
}

// MPRecvHostPacket blocks until a frame arrives or the session ends.
func (c *Core) MPRecvHostPacket(buf []byte) (int, uint64) {
	p, ok := c.relay.NextPacketBlock()
	if !ok {
		return 0, 0
	}
	return copy(buf, p.Data()), p.Timestamp()
}

// MPRecvReplies gathers reply frames for every aid in aidMask.
func (c *Core) MPRecvReplies(buf []byte, timestamp uint64, aidMask uint16) uint16 {
	return c.relay.RecvReplies(buf, timestamp, aidMask)
}
