// Package core owns the lifecycle of the DS emulation engine behind the
// host plugin surface: initialization, content loading, per-frame
// execution, save states, hardware-context events and teardown. Every
// externally reachable entry point that can fail is wrapped by the fault
// boundary, which converts failures into the host's error-message and
// shutdown contract.
package core

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/duskcore/duskcore/content"
	"github.com/duskcore/duskcore/engine"
	"github.com/duskcore/duskcore/fault"
	"github.com/duskcore/duskcore/hostif"
	"github.com/duskcore/duskcore/relay"
	"github.com/duskcore/duskcore/savesync"
	"github.com/duskcore/duskcore/task"
)

// DS display and audio constants reported to the host. The two 256x192
// screens are stacked into one 256x384 frame.
const (
	dsScreenWidth  = 256
	dsScreenHeight = 384
	dsFPS          = 59.8261
	dsSampleRate   = 32768.0
)

// sweepInterval is how often the background flush task checks the
// debounce timers.
const sweepInterval = 100 * time.Millisecond

// Config carries the injectable pieces of a Core.
type Config struct {
	// Log defaults to a no-op logger.
	Log *zap.Logger

	// Fs is the filesystem save images are flushed through. Defaults to
	// the OS filesystem.
	Fs afero.Fs

	// FlushDelay overrides the default save flush debounce. The
	// OptionFlushDelay core option takes precedence when set.
	FlushDelay time.Duration
}

// Core sequences the emulation engine lifecycle. All methods are driven
// from the host's foreground context; only the multiplayer relay and the
// background task runner are touched from other goroutines.
type Core struct {
	log     *zap.Logger
	fs      afero.Fs
	factory engine.Factory

	state       State
	contextLost bool
	reported    bool // error message already set this failure episode

	env    hostif.Environment
	tasks  *task.Runner
	saves  *savesync.Manager
	relay  *relay.Relay
	engine engine.Engine

	header   content.Header
	gameType hostif.GameType
	opts     map[string]string
	cfg      Config
}

// New creates an uninitialized core that builds engines with factory.
func New(factory engine.Factory, cfg Config) *Core {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return &Core{
		log:     cfg.Log,
		fs:      cfg.Fs,
		factory: factory,
		cfg:     cfg,
		relay:   relay.New(cfg.Log.Named("relay")),
	}
}

// State returns the current lifecycle state.
func (c *Core) State() State { return c.state }

// ContextLost reports whether the GPU-backed renderer resources are
// currently torn down.
func (c *Core) ContextLost() bool { return c.contextLost }

// Relay exposes the multiplayer relay for the host's netpacket hooks.
func (c *Core) Relay() *relay.Relay { return c.relay }

// Init attaches the host environment and starts the background task
// runner. Calling Init twice without an intervening Deinit is a host
// contract violation and fails loudly.
func (c *Core) Init(env hostif.Environment) error {
	if c.state != StateUninitialized {
		err := fault.Contract(fault.PhaseInit, "init called twice without deinit")
		c.log.Error("host contract violation", zap.Error(err))
		return err
	}

	c.env = env
	c.tasks = task.NewRunner(c.log.Named("task"))
	c.saves = savesync.NewManager(c.fs, c.log.Named("savesync"), c.cfg.FlushDelay)
	c.state = StateInitialized
	c.reported = false

	c.log.Info("core initialized")
	return nil
}

// Deinit tears everything down, unloading any loaded game first. Safe to
// call on an uninitialized core.
func (c *Core) Deinit() {
	if c.state == StateUninitialized {
		return
	}
	if c.state.hasEngine() {
		c.UnloadGame()
	}

	c.tasks.Deinit()
	c.relay.Stopped()
	c.tasks = nil
	c.saves = nil
	c.env = nil
	c.state = StateUninitialized

	c.log.Info("core deinitialized")
}

// LoadGame validates the host's content descriptors, constructs the
// engine and wires its platform callbacks. On failure the state is
// unchanged and no partial engine is left alive; the host may retry with
// different content.
func (c *Core) LoadGame(gameType hostif.GameType, contents []hostif.GameInfo) error {
	if c.state != StateInitialized {
		return fault.Contract(fault.PhaseLoad, "load requires an initialized core with no game loaded")
	}

	spec, header, err := c.buildSpec(gameType, contents)
	if err != nil {
		c.log.Warn("content rejected", zap.Stringer("type", gameType), zap.Error(err))
		return err
	}

	eng, err := c.factory.New(spec)
	if err != nil {
		return fault.EngineFault(fault.PhaseLoad, err)
	}

	c.engine = eng
	c.header = header
	c.gameType = gameType
	c.registerSaveRegions(spec)
	if _, ok := c.opts[OptionFlushDelay]; ok {
		c.saves.SetDelay(flushDelay(c.opts))
	}
	c.tasks.Push(task.Spec{
		Name:     "save-sweep",
		Interval: sweepInterval,
		Handler:  func(*task.Task) { _ = c.saves.Sweep() },
		Cleanup: func() {
			if err := c.saves.FlushAll(); err != nil {
				c.log.Error("final save flush failed", zap.Error(err))
			}
		},
	})

	c.state = StateGameLoaded
	c.reported = false
	c.log.Info("game loaded",
		zap.Stringer("type", gameType),
		zap.String("title", header.Title),
		zap.String("code", header.GameCode))
	return nil
}

// buildSpec resolves the content descriptors into an engine spec. The
// descriptor counts are fixed by the host contract: the standard type
// takes zero or one item, the slot-1+2 type takes two or three.
func (c *Core) buildSpec(gameType hostif.GameType, contents []hostif.GameInfo) (engine.Spec, content.Header, error) {
	var spec engine.Spec
	var header content.Header

	switch gameType {
	case hostif.GameTypeNDS:
		if len(contents) > 1 {
			return spec, header, fault.InvalidContent("standard load takes at most one content item", nil)
		}
	case hostif.GameTypeSlot1Slot2:
		if len(contents) < 2 || len(contents) > 3 {
			return spec, header, fault.InvalidContent("slot-1+2 load takes two or three content items", nil)
		}
	default:
		return spec, header, fault.InvalidContent("unknown game type", nil)
	}

	if len(contents) > 0 {
		rom, name, err := content.Load(contents[0], content.NDSExtensions)
		if err != nil {
			return spec, header, fault.InvalidContent("slot-1 image", err)
		}
		header, err = content.CachedHeader(rom)
		if err != nil {
			return spec, header, fault.InvalidContent("slot-1 header", err)
		}
		spec.NDSROM = rom
		c.log.Debug("slot-1 content resolved", zap.String("name", name), zap.Int("size", len(rom)))
	}

	if gameType == hostif.GameTypeSlot1Slot2 {
		gba, name, err := content.Load(contents[1], content.GBAExtensions)
		if err != nil {
			return spec, header, fault.InvalidContent("slot-2 image", err)
		}
		spec.GBAROM = gba
		c.log.Debug("slot-2 content resolved", zap.String("name", name), zap.Int("size", len(gba)))

		if len(contents) == 3 {
			sav, _, err := content.Load(contents[2], []string{".sav", ".srm"})
			if err != nil {
				return spec, header, fault.InvalidContent("slot-2 save image", err)
			}
			spec.GBASave = sav
		}
	}

	c.opts = c.optionSnapshot()
	spec.Options = c.opts
	spec.Platform = c
	spec.DSi = header.DSiExclusive() || c.opts[OptionConsoleMode] == "dsi"
	spec.DirectBoot = c.opts[OptionBootMode] != "native" && len(spec.NDSROM) > 0

	if header.GameCode != "" {
		spec.NDSSave = c.readOptional(c.savePath(header.GameCode + ".sav"))
		if len(spec.GBASave) == 0 && len(spec.GBAROM) > 0 {
			spec.GBASave = c.readOptional(c.savePath(header.GameCode + ".gba.sav"))
		}
	}
	spec.Firmware = c.readOptional(c.systemPath(firmwareName))
	if dldiEnabled(c.opts) {
		spec.SDImage = c.readOptional(c.savePath(dldiName))
	}
	return spec, header, nil
}

// Save file names inside the host's save directory.
const (
	firmwareName = "firmware.bin"
	dldiName     = "dldi_sd_card.bin"
)

// registerSaveRegions sets up dirty tracking for every medium the
// loaded configuration uses, sized from the engine's live regions.
func (c *Core) registerSaveRegions(spec engine.Spec) {
	register := func(kind savesync.Kind, path string, size int) {
		if path == "" || size == 0 {
			return
		}
		if _, err := c.saves.Register(kind, path, size); err != nil {
			c.log.Warn("save region unavailable",
				zap.Stringer("kind", kind), zap.Error(err))
		}
	}

	// A firmware boot has no game code and therefore no cart save files.
	if c.header.GameCode != "" {
		register(savesync.KindNDSSave, c.savePath(c.header.GameCode+".sav"),
			len(c.engine.MemoryRegion(hostif.MemorySaveRAM)))
		register(savesync.KindGBASave, c.savePath(c.header.GameCode+".gba.sav"),
			len(c.engine.MemoryRegion(hostif.MemoryGBASaveRAM)))
	}
	register(savesync.KindFirmware, c.systemPath(firmwareName), len(spec.Firmware))

	if dldiEnabled(c.opts) {
		register(savesync.KindSDImage, c.savePath(dldiName), dldiImageSize(c.opts))
	}
}

// savePath resolves a file name inside the host save directory, or ""
// when the host provides none.
func (c *Core) savePath(name string) string {
	dir, ok := c.env.SaveDirectory()
	if !ok || name == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

// systemPath resolves a file name inside the host system directory.
func (c *Core) systemPath(name string) string {
	dir, ok := c.env.SystemDirectory()
	if !ok {
		return ""
	}
	return filepath.Join(dir, name)
}

// readOptional reads a file that may legitimately be absent.
func (c *Core) readOptional(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil
	}
	return data
}

// Run executes exactly one frame. It polls for option changes at the
// frame boundary and routes engine faults (including panics) through the
// fault boundary.
func (c *Core) Run() {
	if !c.state.hasEngine() {
		c.log.Warn("run called with no game loaded", zap.Stringer("state", c.state))
		return
	}
	c.state = StateRunning

	if c.env.VariablesUpdated() {
		c.applyOptionUpdates()
	}

	c.guarded(fault.PhaseRun, c.engine.RunFrame)
}

// Reset re-initializes the engine in place without leaving the loaded
// state. A reset failure is unrecoverable and goes through the fault
// boundary.
func (c *Core) Reset() {
	if !c.state.hasEngine() {
		return
	}
	c.guarded(fault.PhaseReset, c.engine.Reset)
}

// UnloadGame stops background work, flushes every dirty save region
// synchronously and destroys the engine. Safe to call with nothing
// pending.
func (c *Core) UnloadGame() {
	if !c.state.hasEngine() {
		return
	}

	// The sweep task's cleanup flushes dirty regions; the explicit
	// FlushAll covers writes landing between the cleanup and engine
	// teardown.
	c.tasks.Reset()
	c.tasks.Wait()
	if err := c.saves.FlushAll(); err != nil {
		c.log.Error("unload save flush failed", zap.Error(err))
	}

	c.relay.Stopped()

	if err := c.engine.Close(); err != nil {
		c.log.Warn("engine close failed", zap.Error(err))
	}
	c.engine = nil
	c.saves.Reset()
	c.header = content.Header{}
	c.state = StateInitialized

	c.log.Info("game unloaded")
}

// SerializeSize returns the current save-state size. The size can change
// across frames; the host re-queries before each Serialize.
func (c *Core) SerializeSize() int {
	if !c.state.hasEngine() {
		return 0
	}
	return c.engine.SerializeSize()
}

// Serialize captures the engine state into buf, whose length must equal
// the current SerializeSize.
func (c *Core) Serialize(buf []byte) error {
	if !c.state.hasEngine() {
		return fault.Contract(fault.PhaseSerialize, "no game loaded")
	}
	if want := c.engine.SerializeSize(); len(buf) != want {
		return fault.StateSize(len(buf), want)
	}
	if err := c.engine.Serialize(buf); err != nil {
		return fault.EngineFault(fault.PhaseSerialize, err)
	}
	return nil
}

// Unserialize restores the engine state from buf and marks every save
// region dirty, so restored non-volatile state reaches the disk even if
// the engine never writes again.
func (c *Core) Unserialize(buf []byte) error {
	if !c.state.hasEngine() {
		return fault.Contract(fault.PhaseSerialize, "no game loaded")
	}
	if want := c.engine.SerializeSize(); len(buf) != want {
		return fault.StateSize(len(buf), want)
	}
	if err := c.engine.Unserialize(buf); err != nil {
		return fault.EngineFault(fault.PhaseSerialize, err)
	}
	c.saves.MarkAllDirty()
	return nil
}

// CheatReset clears all cheats.
func (c *Core) CheatReset() {
	if !c.state.hasEngine() {
		return
	}
	c.engine.CheatReset()
}

// CheatSet applies or disables a cheat program. Cheats are small
// programs; disabling stops applying one on future frames rather than
// undoing it.
func (c *Core) CheatSet(index uint, enabled bool, code string) {
	if !c.state.hasEngine() {
		return
	}
	if err := c.engine.SetCheat(index, enabled, code); err != nil {
		c.log.Warn("cheat rejected", zap.Uint("index", index), zap.Error(err))
	}
}

// HardwareContextReset re-creates GPU-backed renderer resources after
// the host re-established its context. Independent of content
// lifecycle. A renderer failure requests a host shutdown instead of
// crashing the process.
func (c *Core) HardwareContextReset() {
	if !c.state.hasEngine() {
		c.contextLost = false
		return
	}
	c.guardedWith(fault.PhaseContext, func() error {
		if err := c.engine.InitRenderer(); err != nil {
			return fault.RendererInit(fault.PhaseContext, err)
		}
		c.contextLost = false
		return nil
	})
}

// HardwareContextDestroyed releases GPU-backed renderer resources.
func (c *Core) HardwareContextDestroyed() {
	if c.state.hasEngine() {
		c.engine.DestroyRenderer()
	}
	c.contextLost = true
}

// MemoryData returns the live memory region for the given kind, or nil.
func (c *Core) MemoryData(kind hostif.MemoryKind) []byte {
	if !c.state.hasEngine() {
		return nil
	}
	return c.engine.MemoryRegion(kind)
}

// MemorySize returns the size of the memory region for the given kind.
func (c *Core) MemorySize(kind hostif.MemoryKind) int {
	return len(c.MemoryData(kind))
}

// Region reports the video region. The DS is region-free.
func (c *Core) Region() hostif.Region {
	return hostif.RegionNTSC
}

// AVInfo reports display and audio parameters to the host.
func (c *Core) AVInfo() hostif.AVInfo {
	return hostif.AVInfo{
		Timing: hostif.Timing{FPS: dsFPS, SampleRate: dsSampleRate},
		Geometry: hostif.Geometry{
			BaseWidth:   dsScreenWidth,
			BaseHeight:  dsScreenHeight,
			MaxWidth:    dsScreenWidth,
			MaxHeight:   dsScreenHeight,
			AspectRatio: float64(dsScreenWidth) / float64(dsScreenHeight),
		},
	}
}

// SetControllerPortDevice assigns a host input device to a port.
func (c *Core) SetControllerPortDevice(port, device uint) {
	if !c.state.hasEngine() {
		return
	}
	c.engine.SetControllerPortDevice(port, device)
}

// NetpacketStarted activates the multiplayer relay with the host's
// transport callbacks.
func (c *Core) NetpacketStarted(clientID uint16, send hostif.SendFn, poll hostif.PollReceiveFn) {
	c.log.Info("multiplayer session started", zap.Uint16("client", clientID))
	c.relay.Started(send, poll)
}

// NetpacketReceived ingests one inbound datagram from the host.
func (c *Core) NetpacketReceived(buf []byte, clientID uint16) {
	c.relay.PacketReceived(buf, clientID)
}

// NetpacketStopped deactivates the relay, releasing any blocked waiter.
func (c *Core) NetpacketStopped() {
	c.relay.Stopped()
}

// guarded runs an entry-point body and routes any error or panic through
// the fault boundary.
func (c *Core) guarded(phase fault.Phase, fn func() error) {
	c.guardedWith(phase, func() error {
		if err := fn(); err != nil {
			return fault.EngineFault(phase, err)
		}
		return nil
	})
}

// guardedWith is guarded for bodies that build their own faults.
func (c *Core) guardedWith(phase fault.Phase, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(fault.Unclassified(phase, r))
		}
	}()
	if err := fn(); err != nil {
		c.fail(err)
	}
}

// fail converts a fault into the host's error contract: one log record,
// at most one user-visible error message per failure episode, and a
// shutdown request. The core never continues half-initialized after a
// mid-transition fault.
func (c *Core) fail(err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		fe = fault.Unclassified(fault.PhaseRun, err)
	}

	c.log.Error("unrecoverable fault",
		zap.String("phase", string(fe.Phase)),
		zap.String("kind", string(fe.Kind)),
		zap.Error(err))

	if !c.reported {
		c.env.SetErrorMessage(fe.UserMessage())
		c.reported = true
	}
	c.env.RequestShutdown()
}
