// Package duskcore is a Nintendo DS emulation core built for libretro-
// style host frontends. The host drives the exported Core through its
// plugin entry points; the engine backend is pluggable through
// engine.Factory.
package duskcore

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/duskcore/duskcore/core"
	"github.com/duskcore/duskcore/engine"
	"github.com/duskcore/duskcore/hostif"
)

// Name and Version identify the core to the host.
const (
	Name    = "duskcore"
	Version = "0.9.5"
)

// Option configures a Core at construction time.
type Option func(*core.Config)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(cfg *core.Config) { cfg.Log = log }
}

// WithFilesystem sets the filesystem save images are flushed through.
// Intended for tests; the default is the OS filesystem.
func WithFilesystem(fs afero.Fs) Option {
	return func(cfg *core.Config) { cfg.Fs = fs }
}

// WithFlushDelay sets the default save flush debounce.
func WithFlushDelay(d time.Duration) Option {
	return func(cfg *core.Config) { cfg.FlushDelay = d }
}

// New creates a core that builds engines with factory.
func New(factory engine.Factory, opts ...Option) *core.Core {
	var cfg core.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return core.New(factory, cfg)
}

// SystemInfo describes the core to the host before any game is loaded.
func SystemInfo() hostif.SystemInfo {
	return hostif.SystemInfo{
		LibraryName:     Name,
		LibraryVersion:  Version,
		ValidExtensions: []string{"nds", "ids", "dsi"},
		NeedFullPath:    false,
		BlockExtract:    false,
	}
}
