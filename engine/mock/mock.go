// Package mock provides a scripted engine implementation for tests.
package mock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/duskcore/duskcore/engine"
	"github.com/duskcore/duskcore/hostif"
)

// Engine is a scripted engine. Its serialized state is a frame counter
// followed by the contents of State, so a restored engine replays
// identically from the restored frame.
type Engine struct {
	mu sync.Mutex

	Spec     engine.Spec
	State    []byte
	Frame    uint64
	Closed   bool
	ResetN   int
	Renderer bool

	// RunHook runs inside RunFrame with the engine's platform, letting
	// tests script storage writes and wireless traffic per frame.
	RunHook func(e *Engine, p engine.Platform) error

	// PanicOnRun makes the next RunFrame panic, for boundary tests.
	PanicOnRun any

	// RendererErr is returned by InitRenderer when set.
	RendererErr error

	Memory  map[hostif.MemoryKind][]byte
	Options map[string]string
	Cheats  map[uint]string
}

// Factory builds mock engines. Err, when set, fails construction.
type Factory struct {
	Err  error
	Last *Engine

	// SaveSize sizes the MemorySaveRAM region of constructed engines.
	SaveSize int
}

func (f *Factory) New(spec engine.Spec) (engine.Engine, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if spec.Platform == nil {
		return nil, errors.New("mock: spec has no platform")
	}
	saveSize := f.SaveSize
	if saveSize == 0 {
		saveSize = 512
	}
	save := make([]byte, saveSize)
	copy(save, spec.NDSSave)
	e := &Engine{
		Spec:  spec,
		State: append([]byte(nil), spec.NDSROM...),
		Memory: map[hostif.MemoryKind][]byte{
			hostif.MemorySaveRAM:   save,
			hostif.MemorySystemRAM: make([]byte, 4096),
		},
		Options: map[string]string{},
		Cheats:  map[uint]string{},
	}
	if len(spec.GBAROM) > 0 {
		gbaSave := make([]byte, 64*1024)
		copy(gbaSave, spec.GBASave)
		e.Memory[hostif.MemoryGBASaveRAM] = gbaSave
	}
	for k, v := range spec.Options {
		e.Options[k] = v
	}
	f.Last = e
	return e, nil
}

func (e *Engine) RunFrame() error {
	e.mu.Lock()
	hook := e.RunHook
	panicVal := e.PanicOnRun
	e.PanicOnRun = nil
	e.mu.Unlock()

	if panicVal != nil {
		panic(panicVal)
	}
	if hook != nil {
		if err := hook(e, e.Spec.Platform); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.Frame++
	e.mu.Unlock()
	return nil
}

func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Frame = 0
	e.ResetN++
	return nil
}

func (e *Engine) SerializeSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return 8 + len(e.State)
}

func (e *Engine) Serialize(buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(buf) != 8+len(e.State) {
		return fmt.Errorf("mock: serialize buffer is %d bytes, want %d", len(buf), 8+len(e.State))
	}
	binary.LittleEndian.PutUint64(buf, e.Frame)
	copy(buf[8:], e.State)
	return nil
}

func (e *Engine) Unserialize(buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(buf) != 8+len(e.State) {
		return fmt.Errorf("mock: unserialize buffer is %d bytes, want %d", len(buf), 8+len(e.State))
	}
	e.Frame = binary.LittleEndian.Uint64(buf)
	copy(e.State, buf[8:])
	return nil
}

func (e *Engine) SetOption(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Options[key] = value
}

func (e *Engine) SetCheat(index uint, enabled bool, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled {
		e.Cheats[index] = code
	} else {
		delete(e.Cheats, index)
	}
	return nil
}

func (e *Engine) CheatReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Cheats = map[uint]string{}
}

func (e *Engine) MemoryRegion(kind hostif.MemoryKind) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Memory[kind]
}

func (e *Engine) InitRenderer() error {
	if e.RendererErr != nil {
		return e.RendererErr
	}
	e.mu.Lock()
	e.Renderer = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) DestroyRenderer() {
	e.mu.Lock()
	e.Renderer = false
	e.mu.Unlock()
}

func (e *Engine) Framebuffer() ([]byte, int, int) {
	return make([]byte, 256*384*4), 256, 384
}

func (e *Engine) AudioSamples() []int16 {
	return make([]int16, 1096)
}

func (e *Engine) SetControllerPortDevice(port, device uint) {}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Closed {
		return errors.New("mock: closed twice")
	}
	e.Closed = true
	return nil
}

// SameState reports whether two mock engines would replay identically.
func SameState(a, b *Engine) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	return a.Frame == b.Frame && bytes.Equal(a.State, b.State)
}
