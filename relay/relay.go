// Package relay bridges the emulated DS wireless link layer to the
// host-provided best-effort packet transport. It queues inbound frames,
// classifies them by origin, and implements the blocking receive variants
// the wireless protocol needs, bounded by relay deactivation so a blocked
// waiter can never hang past Stopped.
package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskcore/duskcore/hostif"
)

// hostClientID is the transport client ID the host occupies. Frames from
// it land on the host-origin queue.
const hostClientID = 0

// stalenessWindow is the reply staleness tolerance in ticks. It absorbs
// clock drift between emulated and host timestamps.
const stalenessWindow = 32

// pollInterval bounds how long a blocked receive waits before re-polling
// the host transport for pending datagrams.
const pollInterval = time.Millisecond

// Relay exchanges wireless frames with up to 16 participants (1 host +
// 15 clients) addressed by association ID. Send and receive operations
// are no-ops while the relay is inactive.
type Relay struct {
	mu        sync.Mutex
	active    bool
	sendFn    hostif.SendFn
	pollFn    hostif.PollReceiveFn
	queue     []Packet // general inbound, arrival order
	hostQueue []Packet // host-origin inbound, arrival order
	stopCh    chan struct{}
	wakeCh    chan struct{}

	droppedOversized uint64
	droppedMalformed uint64

	log *zap.Logger
}

// New creates an inactive relay. A nil logger defaults to a no-op logger.
func New(log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{log: log}
}

// Started records the host transport callbacks and activates the relay.
// Must be called before any send or receive operation. Queued packets
// from a previous session are discarded.
func (r *Relay) Started(send hostif.SendFn, poll hostif.PollReceiveFn) {
	r.mu.Lock()
	r.active = true
	r.sendFn = send
	r.pollFn = poll
	r.queue = nil
	r.hostQueue = nil
	r.stopCh = make(chan struct{})
	r.wakeCh = make(chan struct{}, 1)
	r.mu.Unlock()

	r.log.Debug("multiplayer relay started")
}

// Stopped deactivates the relay. Blocked waiters observe the
// deactivation and return empty promptly.
func (r *Relay) Stopped() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.sendFn = nil
	r.pollFn = nil
	r.queue = nil
	r.hostQueue = nil
	close(r.stopCh)
	r.mu.Unlock()

	r.log.Debug("multiplayer relay stopped")
}

// Active reports whether the relay has a live transport.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// PacketReceived ingests one inbound datagram from the host transport.
// Malformed or oversized datagrams are dropped and counted; the
// transport has no failure channel to report them on.
func (r *Relay) PacketReceived(buf []byte, clientID uint16) {
	p, err := parsePacket(buf)
	if err != nil {
		r.mu.Lock()
		if len(buf) >= headerSize {
			r.droppedOversized++
		} else {
			r.droppedMalformed++
		}
		r.mu.Unlock()
		r.log.Debug("dropped inbound datagram",
			zap.Uint16("client", clientID),
			zap.Int("len", len(buf)),
			zap.Error(err))
		return
	}

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	if clientID == hostClientID {
		r.hostQueue = append(r.hostQueue, p)
	} else {
		r.queue = append(r.queue, p)
	}
	wake := r.wakeCh
	r.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// Drops returns the counts of discarded inbound datagrams.
func (r *Relay) Drops() (oversized, malformed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.droppedOversized, r.droppedMalformed
}

// SendPacket forwards one packet to the host transport. A failed or
// inactive send is non-fatal and reported through the return value.
func (r *Relay) SendPacket(p Packet) bool {
	r.mu.Lock()
	send := r.sendFn
	active := r.active
	r.mu.Unlock()

	if !active || send == nil {
		return false
	}
	return send(p.encode())
}

// SendCmd broadcasts a host command frame.
func (r *Relay) SendCmd(data []byte, timestamp uint64) bool {
	p, err := NewPacket(data, timestamp, 0, TypeCmd)
	if err != nil {
		return false
	}
	return r.SendPacket(p)
}

// SendReply sends a client reply frame for the given association ID.
func (r *Relay) SendReply(data []byte, timestamp uint64, aid uint8) bool {
	p, err := NewPacket(data, timestamp, aid, TypeReply)
	if err != nil {
		return false
	}
	return r.SendPacket(p)
}

// SendAck broadcasts an acknowledgment frame. The wire protocol reuses
// Cmd framing for acks.
func (r *Relay) SendAck(data []byte, timestamp uint64) bool {
	p, err := NewPacket(data, timestamp, 0, TypeCmd)
	if err != nil {
		return false
	}
	return r.SendPacket(p)
}

// popLocked removes and returns the oldest queued packet, preferring the
// host-origin queue. Caller holds r.mu.
func (r *Relay) popLocked() (Packet, bool) {
	if len(r.hostQueue) > 0 {
		p := r.hostQueue[0]
		r.hostQueue = r.hostQueue[1:]
		return p, true
	}
	if len(r.queue) > 0 {
		p := r.queue[0]
		r.queue = r.queue[1:]
		return p, true
	}
	return Packet{}, false
}

// NextPacket pops the oldest queued packet without blocking. It first
// drains anything pending on the host transport.
func (r *Relay) NextPacket() (Packet, bool) {
	r.pollTransport()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return Packet{}, false
	}
	return r.popLocked()
}

// NextPacketBlock pops the oldest queued packet, cooperatively waiting
// for one to arrive. It returns empty once the relay deactivates.
func (r *Relay) NextPacketBlock() (Packet, bool) {
	for {
		r.mu.Lock()
		if !r.active {
			r.mu.Unlock()
			return Packet{}, false
		}
		if p, ok := r.popLocked(); ok {
			r.mu.Unlock()
			return p, true
		}
		stop := r.stopCh
		wake := r.wakeCh
		r.mu.Unlock()

		if r.pollTransport() > 0 {
			continue
		}

		select {
		case <-stop:
			return Packet{}, false
		case <-wake:
		case <-time.After(pollInterval):
		}
	}
}

// pollTransport drains pending datagrams from the host transport into
// the queues. Returns the number of datagrams ingested.
func (r *Relay) pollTransport() int {
	r.mu.Lock()
	poll := r.pollFn
	r.mu.Unlock()
	if poll == nil {
		return 0
	}

	n := 0
	for {
		data, clientID, ok := poll()
		if !ok {
			return n
		}
		r.PacketReceived(data, clientID)
		n++
	}
}

// RecvReplies blocks until a fresh Reply frame has been observed for
// every association ID named in aidMask, or until the relay deactivates.
// Each reply payload is copied into its 1024-byte slot of dst (slot
// aid-1) when dst is large enough. The returned mask holds the IDs
// actually heard from; it equals aidMask unless the relay deactivated
// first. Stale and non-Reply frames are discarded without ending the
// loop.
func (r *Relay) RecvReplies(dst []byte, timestamp uint64, aidMask uint16) uint16 {
	if !r.Active() {
		return 0
	}

	var got uint16
	for got&aidMask != aidMask {
		p, ok := r.NextPacketBlock()
		if !ok {
			return got
		}
		if timestamp >= stalenessWindow && p.Timestamp() < timestamp-stalenessWindow {
			continue
		}
		if p.Type() != TypeReply {
			continue
		}
		got |= 1 << p.Aid()
		// Slot layout covers clients only; aid 0 is the host role and
		// has no reply slot.
		if p.Aid() >= 1 {
			slot := int(p.Aid()-1) * MaxPayload
			if dst != nil && slot+MaxPayload <= len(dst) {
				copy(dst[slot:slot+MaxPayload], p.Data())
			}
		}
	}
	return got
}
