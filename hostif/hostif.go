// Package hostif defines the contract between the core and the frontend
// host: content descriptors, AV metadata, memory region kinds, the local
// multiplayer transport callbacks, and the environment services the host
// provides to the core.
package hostif

// GameType tags a load request. The standard type takes zero or one
// content item; multi-content types take several.
type GameType uint

const (
	// GameTypeNDS is the standard load: one .nds/.ids/.dsi image, or no
	// content at all to boot the firmware menu.
	GameTypeNDS GameType = iota

	// GameTypeSlot1Slot2 boots an NDS cart alongside a GBA cart in
	// slot 2, optionally with a GBA save image as a third item.
	GameTypeSlot1Slot2
)

// String returns the display name of the game type.
func (t GameType) String() string {
	switch t {
	case GameTypeNDS:
		return "NDS"
	case GameTypeSlot1Slot2:
		return "Slot1+Slot2"
	default:
		return "Unknown"
	}
}

// GameInfo describes one content item provided by the host. Data holds
// the full content image when the host loads it into memory; Path is set
// when the host refers to an on-disk file instead (or in addition).
type GameInfo struct {
	Path string
	Data []byte
}

// MemoryKind identifies a host-queryable memory region.
type MemoryKind int

const (
	MemorySaveRAM MemoryKind = iota
	MemoryRTC
	MemorySystemRAM
	MemoryVideoRAM
	MemoryGBASaveRAM
)

// String returns the display name of the memory kind.
func (k MemoryKind) String() string {
	switch k {
	case MemorySaveRAM:
		return "SaveRAM"
	case MemoryRTC:
		return "RTC"
	case MemorySystemRAM:
		return "SystemRAM"
	case MemoryVideoRAM:
		return "VideoRAM"
	case MemoryGBASaveRAM:
		return "GBASaveRAM"
	default:
		return "Unknown"
	}
}

// Region represents a console video region. The DS is region-free and
// always reports NTSC timing to the host.
type Region int

const (
	RegionNTSC Region = iota
	RegionPAL
)

// String returns the display name of the region.
func (r Region) String() string {
	switch r {
	case RegionNTSC:
		return "NTSC"
	case RegionPAL:
		return "PAL"
	default:
		return "Unknown"
	}
}

// Timing holds frame rate and audio sample rate.
type Timing struct {
	FPS        float64
	SampleRate float64
}

// Geometry holds display dimensions reported to the host.
type Geometry struct {
	BaseWidth   int
	BaseHeight  int
	MaxWidth    int
	MaxHeight   int
	AspectRatio float64
}

// AVInfo bundles timing and geometry for the host.
type AVInfo struct {
	Timing   Timing
	Geometry Geometry
}

// SystemInfo describes the core to the host.
type SystemInfo struct {
	LibraryName     string
	LibraryVersion  string
	ValidExtensions []string
	NeedFullPath    bool
	BlockExtract    bool
}

// SendFn is the host-provided multiplayer send callback. It transmits one
// datagram to the session and reports whether the send succeeded.
type SendFn func(data []byte) bool

// PollReceiveFn is the host-provided multiplayer poll callback. It returns
// the next pending inbound datagram and the client ID it originated from,
// or ok=false when nothing is pending.
type PollReceiveFn func() (data []byte, clientID uint16, ok bool)

// Environment is the set of services the host provides to the core.
// All methods are called from the foreground context.
type Environment interface {
	// Variable returns the current value of a core option.
	Variable(key string) (string, bool)

	// VariablesUpdated reports whether any core option changed since the
	// last call. The core polls this once per frame.
	VariablesUpdated() bool

	// SaveDirectory returns the directory for save files, if the host
	// provides one.
	SaveDirectory() (string, bool)

	// SystemDirectory returns the directory for firmware and BIOS
	// images, if the host provides one.
	SystemDirectory() (string, bool)

	// SetErrorMessage sets the user-visible error message. The core sets
	// it at most once per failure episode.
	SetErrorMessage(msg string)

	// RequestShutdown asks the host to shut the core down after an
	// unrecoverable fault.
	RequestShutdown()
}
