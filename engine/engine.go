// Package engine defines the contract between the core adaptation layer
// and the DS emulation engine. The engine itself (CPU, GPU, audio) is an
// external dependency; this package only names the surface the core
// drives and the platform services the engine calls back into.
package engine

import (
	"github.com/duskcore/duskcore/hostif"
)

// Platform is the host-services surface the engine calls into during a
// frame: non-volatile memory write notifications and the local wireless
// link layer. The core implements this and routes the calls to the save
// sync manager and the multiplayer relay.
type Platform interface {
	// WriteNDSSave reports that [offset, offset+length) of the cart save
	// image changed. data is the full current image.
	WriteNDSSave(data []byte, offset, length uint32)

	// WriteGBASave reports a write to the slot-2 GBA cart save image.
	WriteGBASave(data []byte, offset, length uint32)

	// WriteFirmware reports a write to the firmware image.
	WriteFirmware(data []byte, offset, length uint32)

	// WriteSDCard reports a write to the DLDI/DSi SD card image.
	WriteSDCard(data []byte, offset, length uint32)

	// MPSendPacket broadcasts a raw wireless frame to the session.
	MPSendPacket(data []byte, timestamp uint64) bool

	// MPSendCmd broadcasts a host command frame.
	MPSendCmd(data []byte, timestamp uint64) bool

	// MPSendReply sends a client reply frame for the given association ID.
	MPSendReply(data []byte, timestamp uint64, aid uint8) bool

	// MPSendAck broadcasts an acknowledgment frame.
	MPSendAck(data []byte, timestamp uint64) bool

	// MPRecvPacket pops the next queued wireless frame without blocking.
	// It returns the payload length written to buf, or 0 if none.
	MPRecvPacket(buf []byte) (n int, timestamp uint64)

	// MPRecvHostPacket pops the next queued frame, waiting for one to
	// arrive. It returns 0 once the session deactivates.
	MPRecvHostPacket(buf []byte) (n int, timestamp uint64)

	// MPRecvReplies collects reply frames from every client named in
	// aidMask, writing each into its 1024-byte slot of buf. It returns
	// the mask of clients actually heard from before deactivation.
	MPRecvReplies(buf []byte, timestamp uint64, aidMask uint16) uint16
}

// Spec carries everything the engine needs at construction time.
type Spec struct {
	// NDSROM is the slot-1 cart image. Empty for a firmware boot.
	NDSROM []byte

	// GBAROM is the slot-2 cart image, if any.
	GBAROM []byte

	// NDSSave, GBASave, Firmware and SDImage preload the corresponding
	// non-volatile images from disk. Each may be empty. The engine
	// reports changes to them through the Platform write callbacks
	// rather than mutating these slices.
	NDSSave  []byte
	GBASave  []byte
	Firmware []byte
	SDImage  []byte

	// DSi selects DSi mode instead of DS mode.
	DSi bool

	// DirectBoot skips the firmware menu and jumps into the cart.
	DirectBoot bool

	// Options is the core option snapshot at load time.
	Options map[string]string

	// Platform receives the engine's storage and wireless callbacks.
	// Must not be nil.
	Platform Platform
}

// Engine is one live DS emulation engine instance. The core owns exactly
// one at a time and drives it from the foreground context only.
type Engine interface {
	// RunFrame executes one frame of emulation.
	RunFrame() error

	// Reset re-initializes the engine in place, keeping loaded content.
	Reset() error

	// SerializeSize returns the current save-state size in bytes. The
	// size can change across frames; callers re-query before each
	// Serialize call.
	SerializeSize() int

	// Serialize writes the complete engine state into buf, which must be
	// exactly SerializeSize() bytes.
	Serialize(buf []byte) error

	// Unserialize restores engine state from buf.
	Unserialize(buf []byte) error

	// SetOption applies a core option change identified by key.
	SetOption(key, value string)

	// SetCheat applies or disables a cheat program. Disabling stops the
	// cheat on future frames; it does not undo past effects.
	SetCheat(index uint, enabled bool, code string) error

	// CheatReset clears all registered cheats.
	CheatReset()

	// MemoryRegion returns the live region for the given kind, or nil if
	// the engine does not expose it.
	MemoryRegion(kind hostif.MemoryKind) []byte

	// InitRenderer (re)creates GPU-backed renderer resources after the
	// host signals a hardware context reset.
	InitRenderer() error

	// DestroyRenderer releases GPU-backed renderer resources.
	DestroyRenderer()

	// Framebuffer returns the current frame pixels with width and height.
	Framebuffer() (pixels []byte, width, height int)

	// AudioSamples returns the stereo 16-bit PCM samples for the frame.
	AudioSamples() []int16

	// SetControllerPortDevice assigns a host input device to a port.
	SetControllerPortDevice(port, device uint)

	// Close stops the engine and releases its resources.
	Close() error
}

// Factory constructs engine instances from validated content.
type Factory interface {
	New(spec Spec) (Engine, error)
}
