package statestore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/afero"
)

// fakeMachine is a Serializer whose whole state is one byte slice.
type fakeMachine struct {
	state []byte
}

func (m *fakeMachine) SerializeSize() int { return len(m.state) }

func (m *fakeMachine) Serialize(buf []byte) error {
	if len(buf) != len(m.state) {
		return fmt.Errorf("buffer is %d bytes, want %d", len(buf), len(m.state))
	}
	copy(buf, m.state)
	return nil
}

func (m *fakeMachine) Unserialize(buf []byte) error {
	if len(buf) != len(m.state) {
		return fmt.Errorf("buffer is %d bytes, want %d", len(buf), len(m.state))
	}
	copy(m.state, buf)
	return nil
}

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, nil, "states/ADAE")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, fs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	m := &fakeMachine{state: []byte("frame 300 machine state")}
	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := &fakeMachine{state: make([]byte, len(m.state))}
	if err := s.Load(restored); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(restored.state, m.state) {
		t.Errorf("restored state = %q, want %q", restored.state, m.state)
	}
}

func TestStatesAreCompressed(t *testing.T) {
	s, fs := newTestStore(t)

	m := &fakeMachine{state: bytes.Repeat([]byte{0xAB}, 64*1024)}
	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := fs.Stat("states/ADAE/state-0.state")
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if info.Size() >= int64(len(m.state)) {
		t.Errorf("state file is %d bytes, expected compression below %d", info.Size(), len(m.state))
	}
}

func TestLoadLegacyUncompressedState(t *testing.T) {
	s, fs := newTestStore(t)

	raw := []byte("plain old state data")
	if err := afero.WriteFile(fs, "states/ADAE/state-0.state", raw, 0644); err != nil {
		t.Fatalf("seed state file: %v", err)
	}

	m := &fakeMachine{state: make([]byte, len(raw))}
	if err := s.Load(m); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(m.state, raw) {
		t.Errorf("restored state = %q, want %q", m.state, raw)
	}
}

func TestLoadEmptySlot(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(&fakeMachine{state: make([]byte, 4)}); err == nil {
		t.Error("loading an empty slot should fail")
	}
}

func TestLoadSizeMismatch(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Save(&fakeMachine{state: make([]byte, 16)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Load(&fakeMachine{state: make([]byte, 8)}); err == nil {
		t.Error("size mismatch should fail the load")
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetSlot(0)
	if err := s.Save(&fakeMachine{state: []byte("slot zero")}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.SetSlot(1)
	if err := s.Save(&fakeMachine{state: []byte("slot one.")}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	m := &fakeMachine{state: make([]byte, 9)}
	s.SetSlot(0)
	if err := s.Load(m); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(m.state) != "slot zero" {
		t.Errorf("slot 0 state = %q, want %q", m.state, "slot zero")
	}

	if !s.HasSlot(0) || !s.HasSlot(1) || s.HasSlot(2) {
		t.Error("HasSlot disagrees with saved slots")
	}
}

func TestSlotCycling(t *testing.T) {
	s, _ := newTestStore(t)

	if got := s.PreviousSlot(); got != SlotCount-1 {
		t.Errorf("PreviousSlot from 0 = %d, want %d", got, SlotCount-1)
	}
	if got := s.NextSlot(); got != 0 {
		t.Errorf("NextSlot wraps to %d, want 0", got)
	}

	s.SetSlot(99)
	if got := s.CurrentSlot(); got != SlotCount-1 {
		t.Errorf("SetSlot(99) clamped to %d, want %d", got, SlotCount-1)
	}
}

func TestResumeState(t *testing.T) {
	s, _ := newTestStore(t)

	if s.HasResume() {
		t.Fatal("fresh store reports a resume state")
	}

	m := &fakeMachine{state: []byte("mid-session")}
	if err := s.SaveResume(m); err != nil {
		t.Fatalf("SaveResume failed: %v", err)
	}
	if !s.HasResume() {
		t.Fatal("resume state missing after SaveResume")
	}

	restored := &fakeMachine{state: make([]byte, len(m.state))}
	ok, err := s.LoadResume(restored)
	if err != nil {
		t.Fatalf("LoadResume failed: %v", err)
	}
	if !ok {
		t.Fatal("LoadResume reported no snapshot")
	}
	if !bytes.Equal(restored.state, m.state) {
		t.Errorf("restored state = %q, want %q", restored.state, m.state)
	}
}

func TestLoadResumeMissingIsNotAnError(t *testing.T) {
	s, _ := newTestStore(t)
	ok, err := s.LoadResume(&fakeMachine{state: make([]byte, 4)})
	if err != nil {
		t.Fatalf("LoadResume failed: %v", err)
	}
	if ok {
		t.Error("LoadResume applied a nonexistent snapshot")
	}
}

func TestSaveResumeData(t *testing.T) {
	s, _ := newTestStore(t)

	raw := []byte("precaptured")
	if err := s.SaveResumeData(raw); err != nil {
		t.Fatalf("SaveResumeData failed: %v", err)
	}

	restored := &fakeMachine{state: make([]byte, len(raw))}
	ok, err := s.LoadResume(restored)
	if err != nil || !ok {
		t.Fatalf("LoadResume = (%v, %v)", ok, err)
	}
	if !bytes.Equal(restored.state, raw) {
		t.Errorf("restored state = %q, want %q", restored.state, raw)
	}
}
