// Package savesync keeps the emulated non-volatile memory images (cart
// save RAM, GBA slot save RAM, firmware, SD card images) consistent with
// their backing files. Writes from the engine mark byte ranges dirty on
// the frame path without touching the disk; a debounced background sweep
// flushes dirty ranges, and a forced flush runs before the engine is
// destroyed so no write is ever lost at unload.
package savesync

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Kind identifies one non-volatile storage medium.
type Kind int

const (
	KindNDSSave Kind = iota
	KindGBASave
	KindFirmware
	KindSDImage
	KindDLDIImage
)

// String returns the display name of the storage kind.
func (k Kind) String() string {
	switch k {
	case KindNDSSave:
		return "nds-save"
	case KindGBASave:
		return "gba-save"
	case KindFirmware:
		return "firmware"
	case KindSDImage:
		return "sd-image"
	case KindDLDIImage:
		return "dldi-image"
	default:
		return "unknown"
	}
}

// DefaultFlushDelay is how long writes must pause before a dirty region
// is flushed, coalescing bursts into one disk operation.
const DefaultFlushDelay = 2 * time.Second

// region tracks one medium: its shadow image, the coalesced dirty span
// and the backing file. Each region has its own lock so a flush failure
// on one medium never blocks another.
type region struct {
	mu        sync.Mutex
	kind      Kind
	path      string
	data      []byte
	dirty     bool
	lo, hi    int
	lastWrite time.Time
}

// Manager owns the dirty-region state for every registered medium.
type Manager struct {
	fs    afero.Fs
	log   *zap.Logger
	now   func() time.Time
	delay time.Duration

	mu      sync.Mutex
	regions map[Kind]*region
}

// NewManager creates a manager flushing through fs after delay of write
// inactivity. A nil logger defaults to a no-op logger; a non-positive
// delay uses DefaultFlushDelay.
func NewManager(fs afero.Fs, log *zap.Logger, delay time.Duration) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &Manager{
		fs:      fs,
		log:     log,
		now:     time.Now,
		delay:   delay,
		regions: make(map[Kind]*region),
	}
}

// SetDelay changes the debounce delay for subsequent sweeps.
func (m *Manager) SetDelay(delay time.Duration) {
	m.mu.Lock()
	if delay > 0 {
		m.delay = delay
	}
	m.mu.Unlock()
}

// Register adds a medium of the given size backed by path, replacing any
// previous registration of the same kind. If the backing file exists its
// contents preload the shadow image. The returned slice is the shadow
// image, holding the preloaded bytes.
func (m *Manager) Register(kind Kind, path string, size int) ([]byte, error) {
	r := &region{
		kind: kind,
		path: path,
		data: make([]byte, size),
	}

	f, err := m.fs.Open(path)
	if err == nil {
		_, rerr := io.ReadFull(f, r.data)
		f.Close()
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return nil, fmt.Errorf("savesync: preload %s: %w", path, rerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("savesync: preload %s: %w", path, err)
	}

	m.mu.Lock()
	m.regions[kind] = r
	m.mu.Unlock()

	m.log.Debug("registered save region",
		zap.Stringer("kind", kind),
		zap.String("path", path),
		zap.Int("size", size))
	return r.data, nil
}

// Reset drops all registered regions without flushing. Call FlushAll
// first on the unload path.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.regions = make(map[Kind]*region)
	m.mu.Unlock()
}

func (m *Manager) region(kind Kind) *region {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regions[kind]
}

// Write copies [offset, offset+length) of image into the shadow copy for
// kind and marks the range dirty. It never performs disk I/O. Writes to
// unregistered kinds and out-of-range writes are clamped and logged.
func (m *Manager) Write(kind Kind, image []byte, offset, length uint32) {
	r := m.region(kind)
	if r == nil {
		m.log.Debug("write to unregistered save region", zap.Stringer("kind", kind))
		return
	}

	lo := int(offset)
	hi := int(offset) + int(length)
	if lo > len(r.data) {
		lo = len(r.data)
	}
	if hi > len(r.data) {
		hi = len(r.data)
	}
	if hi > len(image) {
		hi = len(image)
	}
	if lo >= hi {
		return
	}

	r.mu.Lock()
	copy(r.data[lo:hi], image[lo:hi])
	if !r.dirty {
		r.lo, r.hi = lo, hi
	} else {
		if lo < r.lo {
			r.lo = lo
		}
		if hi > r.hi {
			r.hi = hi
		}
	}
	r.dirty = true
	r.lastWrite = m.now()
	r.mu.Unlock()
}

// Dirty reports whether the kind has unflushed writes.
func (m *Manager) Dirty(kind Kind) bool {
	r := m.region(kind)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// MarkAllDirty marks every registered region fully dirty. Called after a
// save-state restore so nothing restored is silently lost.
func (m *Manager) MarkAllDirty() {
	m.mu.Lock()
	regions := make([]*region, 0, len(m.regions))
	for _, r := range m.regions {
		regions = append(regions, r)
	}
	m.mu.Unlock()

	now := m.now()
	for _, r := range regions {
		r.mu.Lock()
		if len(r.data) > 0 {
			r.dirty = true
			r.lo, r.hi = 0, len(r.data)
			r.lastWrite = now
		}
		r.mu.Unlock()
	}
}

// Sweep flushes every region whose writes have paused for at least the
// debounce delay. Flush failures keep the dirty state for the next
// sweep. Called from the background task runner.
func (m *Manager) Sweep() error {
	m.mu.Lock()
	delay := m.delay
	regions := make([]*region, 0, len(m.regions))
	for _, r := range m.regions {
		regions = append(regions, r)
	}
	m.mu.Unlock()

	now := m.now()
	var errs error
	for _, r := range regions {
		r.mu.Lock()
		due := r.dirty && now.Sub(r.lastWrite) >= delay
		r.mu.Unlock()
		if !due {
			continue
		}
		if err := m.flushRegion(r); err != nil {
			m.log.Warn("save flush failed, will retry",
				zap.Stringer("kind", r.kind),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Flush synchronously flushes one kind regardless of the debounce timer.
func (m *Manager) Flush(kind Kind) error {
	r := m.region(kind)
	if r == nil {
		return nil
	}
	return m.flushRegion(r)
}

// FlushAll synchronously flushes every dirty region. Failures are
// aggregated; a failing medium does not stop the others.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	regions := make([]*region, 0, len(m.regions))
	for _, r := range m.regions {
		regions = append(regions, r)
	}
	m.mu.Unlock()

	var errs error
	for _, r := range regions {
		if err := m.flushRegion(r); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// flushRegion writes the region's dirty span to its backing file. The
// region lock is held for the whole flush, so flushes of one region are
// totally ordered. Dirty state clears only on success.
func (m *Manager) flushRegion(r *region) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return nil
	}

	if err := m.writeSpan(r); err != nil {
		return fmt.Errorf("savesync: flush %s to %s: %w", r.kind, r.path, err)
	}

	m.log.Debug("flushed save region",
		zap.Stringer("kind", r.kind),
		zap.String("path", r.path),
		zap.Int("lo", r.lo),
		zap.Int("hi", r.hi))
	r.dirty = false
	r.lo, r.hi = 0, 0
	return nil
}

// writeSpan writes the dirty span in place when the backing file already
// matches the image size, and rewrites the whole image otherwise. The
// file handle is scoped to this call and always released.
func (m *Manager) writeSpan(r *region) error {
	info, err := m.fs.Stat(r.path)
	wholeFile := err != nil || info.Size() != int64(len(r.data))

	if wholeFile {
		return afero.WriteFile(m.fs, r.path, r.data, 0644)
	}

	f, err := m.fs.OpenFile(r.path, os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(r.data[r.lo:r.hi], int64(r.lo)); err != nil {
		return err
	}
	return f.Sync()
}
