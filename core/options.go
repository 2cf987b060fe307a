package core

import (
	"strconv"
	"time"
)

// Core option keys, as exposed to the host's option system.
const (
	optionPrefix = "duskcore_"

	// OptionConsoleMode selects "ds", "dsi" or "auto" (header decides).
	OptionConsoleMode = optionPrefix + "console_mode"

	// OptionBootMode selects "direct" (skip firmware menu) or "native".
	OptionBootMode = optionPrefix + "boot_mode"

	// OptionFlushDelay is the save flush debounce in frames.
	OptionFlushDelay = optionPrefix + "flush_delay"

	// OptionDLDIEnable turns the homebrew DLDI SD card image on or off.
	OptionDLDIEnable = optionPrefix + "dldi_enable"

	// OptionDLDIImageSize is the DLDI image size in MiB.
	OptionDLDIImageSize = optionPrefix + "dldi_image_size"
)

// optionKeys lists every option forwarded to the engine on updates.
var optionKeys = []string{
	OptionConsoleMode,
	OptionBootMode,
	OptionFlushDelay,
	OptionDLDIEnable,
	OptionDLDIImageSize,
}

// defaultFlushDelayFrames matches the save flush delay the DS wireless
// era frontends shipped with.
const defaultFlushDelayFrames = 120

// optionSnapshot reads every known option from the host.
func (c *Core) optionSnapshot() map[string]string {
	opts := make(map[string]string, len(optionKeys))
	for _, key := range optionKeys {
		if v, ok := c.env.Variable(key); ok {
			opts[key] = v
		}
	}
	return opts
}

// applyOptionUpdates re-reads options at a frame boundary and forwards
// changes to the engine and the save sync manager.
func (c *Core) applyOptionUpdates() {
	for _, key := range optionKeys {
		v, ok := c.env.Variable(key)
		if !ok {
			continue
		}
		if c.opts[key] == v {
			continue
		}
		c.opts[key] = v
		c.engine.SetOption(key, v)
		if key == OptionFlushDelay {
			c.saves.SetDelay(flushDelay(c.opts))
		}
	}
}

// flushDelay converts the frame-count option into a duration at DS
// frame rate.
func flushDelay(opts map[string]string) time.Duration {
	frames := defaultFlushDelayFrames
	if v, ok := opts[OptionFlushDelay]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			frames = n
		}
	}
	return time.Duration(float64(frames) / dsFPS * float64(time.Second))
}

// dldiEnabled reports whether the homebrew SD card image is requested.
func dldiEnabled(opts map[string]string) bool {
	v := opts[OptionDLDIEnable]
	return v == "enabled" || v == "true"
}

// dldiImageSize returns the DLDI image size in bytes.
func dldiImageSize(opts map[string]string) int {
	mib := 32
	if v, ok := opts[OptionDLDIImageSize]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 4096 {
			mib = n
		}
	}
	return mib << 20
}
