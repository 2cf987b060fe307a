package savesync

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestManager(t *testing.T) (*Manager, afero.Fs, *time.Time) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m := NewManager(fs, nil, 0)

	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }
	return m, fs, &clock
}

func TestRegisterPreloadsBackingFile(t *testing.T) {
	m, fs, _ := newTestManager(t)

	want := []byte{1, 2, 3, 4}
	if err := afero.WriteFile(fs, "saves/game.sav", want, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	data, err := m.Register(KindNDSSave, "saves/game.sav", 4)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("shadow image = %v, want %v", data, want)
	}
	if m.Dirty(KindNDSSave) {
		t.Error("freshly registered region is dirty")
	}
}

func TestRegisterMissingFileZeroFills(t *testing.T) {
	m, _, _ := newTestManager(t)

	data, err := m.Register(KindNDSSave, "saves/none.sav", 8)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("shadow image length = %d, want 8", len(data))
	}
	for _, b := range data {
		if b != 0 {
			t.Fatal("missing backing file should preload zeros")
		}
	}
}

func TestWriteMarksDirtyWithoutDiskIO(t *testing.T) {
	m, fs, _ := newTestManager(t)
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 16); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	image := make([]byte, 16)
	image[4], image[5] = 0xaa, 0xbb
	m.Write(KindNDSSave, image, 4, 2)

	if !m.Dirty(KindNDSSave) {
		t.Error("write did not mark the region dirty")
	}
	if _, err := fs.Stat("saves/game.sav"); !os.IsNotExist(err) {
		t.Error("write touched the disk before a flush")
	}
}

func TestSweepDebounces(t *testing.T) {
	m, fs, clock := newTestManager(t)
	m.SetDelay(2 * time.Second)
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 4); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	image := []byte{9, 9, 9, 9}
	m.Write(KindNDSSave, image, 0, 4)

	// Inside the quiet window: nothing flushes.
	*clock = clock.Add(time.Second)
	if err := m.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := fs.Stat("saves/game.sav"); !os.IsNotExist(err) {
		t.Fatal("sweep flushed before the debounce delay elapsed")
	}

	// A new write restarts the window.
	m.Write(KindNDSSave, image, 0, 1)
	*clock = clock.Add(time.Second)
	if err := m.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := fs.Stat("saves/game.sav"); !os.IsNotExist(err) {
		t.Fatal("sweep ignored the restarted debounce window")
	}

	// Quiet long enough: the region flushes and goes clean.
	*clock = clock.Add(2 * time.Second)
	if err := m.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	got, err := afero.ReadFile(fs, "saves/game.sav")
	if err != nil {
		t.Fatalf("read flushed file: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Errorf("flushed image = %v, want %v", got, image)
	}
	if m.Dirty(KindNDSSave) {
		t.Error("region still dirty after a successful flush")
	}
}

func TestFlushAllIgnoresDebounce(t *testing.T) {
	m, fs, _ := newTestManager(t)
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := m.Register(KindFirmware, "system/firmware.bin", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m.Write(KindNDSSave, []byte{1, 2}, 0, 2)
	m.Write(KindFirmware, []byte{3, 4}, 0, 2)

	if err := m.FlushAll(); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}
	for _, path := range []string{"saves/game.sav", "system/firmware.bin"} {
		if _, err := fs.Stat(path); err != nil {
			t.Errorf("%s was not flushed: %v", path, err)
		}
	}
}

func TestSpanFlushUpdatesOnlyDirtyRange(t *testing.T) {
	m, fs, clock := newTestManager(t)
	m.SetDelay(time.Second)

	seed := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	if err := afero.WriteFile(fs, "saves/game.sav", seed, 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 8); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	image := append([]byte(nil), seed...)
	image[2], image[3] = 7, 7
	m.Write(KindNDSSave, image, 2, 2)

	*clock = clock.Add(2 * time.Second)
	if err := m.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, err := afero.ReadFile(fs, "saves/game.sav")
	if err != nil {
		t.Fatalf("read flushed file: %v", err)
	}
	want := []byte{1, 1, 7, 7, 1, 1, 1, 1}
	if !bytes.Equal(got, want) {
		t.Errorf("file after span flush = %v, want %v", got, want)
	}
}

func TestFlushFailureKeepsDirtyState(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager(afero.NewReadOnlyFs(fs), nil, 0)
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m.Write(KindNDSSave, []byte{5, 6}, 0, 2)
	if err := m.FlushAll(); err == nil {
		t.Fatal("expected flush failure on a read-only filesystem")
	}
	if !m.Dirty(KindNDSSave) {
		t.Error("failed flush cleared the dirty state")
	}
}

func TestWriteClampsOutOfRange(t *testing.T) {
	m, _, _ := newTestManager(t)
	data, err := m.Register(KindNDSSave, "saves/game.sav", 4)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	image := []byte{1, 2, 3, 4}
	m.Write(KindNDSSave, image, 2, 100)
	if data[2] != 3 || data[3] != 4 {
		t.Errorf("clamped write missed in-range bytes: %v", data)
	}

	// Fully out of range: a no-op, not a panic.
	m.Write(KindNDSSave, image, 100, 4)
}

func TestWriteUnregisteredKindIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.Write(KindSDImage, []byte{1}, 0, 1)
	if m.Dirty(KindSDImage) {
		t.Error("unregistered kind became dirty")
	}
}

func TestMarkAllDirtyFlushesEverything(t *testing.T) {
	m, fs, _ := newTestManager(t)
	data, err := m.Register(KindNDSSave, "saves/game.sav", 4)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	copy(data, []byte{4, 3, 2, 1})

	m.MarkAllDirty()
	if !m.Dirty(KindNDSSave) {
		t.Fatal("MarkAllDirty left the region clean")
	}
	if err := m.FlushAll(); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}

	got, err := afero.ReadFile(fs, "saves/game.sav")
	if err != nil {
		t.Fatalf("read flushed file: %v", err)
	}
	if !bytes.Equal(got, []byte{4, 3, 2, 1}) {
		t.Errorf("flushed image = %v, want [4 3 2 1]", got)
	}
}

func TestKindsFlushIndependently(t *testing.T) {
	m, fs, _ := newTestManager(t)
	if _, err := m.Register(KindNDSSave, "saves/game.sav", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := m.Register(KindGBASave, "saves/game.gba.sav", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m.Write(KindGBASave, []byte{8, 8}, 0, 2)
	if err := m.Flush(KindGBASave); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if _, err := fs.Stat("saves/game.gba.sav"); err != nil {
		t.Error("flushed kind missing from disk")
	}
	if _, err := fs.Stat("saves/game.sav"); !os.IsNotExist(err) {
		t.Error("clean kind was flushed")
	}
}
