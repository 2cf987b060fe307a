// Package statestore keeps numbered save-state files on disk. States
// are zstd-compressed; the store transparently reads both compressed
// and legacy uncompressed files.
package statestore

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// SlotCount is the number of numbered save slots per game.
const SlotCount = 10

// zstd frame magic, little-endian on the wire.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Serializer captures and restores a full machine state.
type Serializer interface {
	SerializeSize() int
	Serialize(buf []byte) error
	Unserialize(buf []byte) error
}

// Store reads and writes save states for one game.
type Store struct {
	fs   afero.Fs
	log  *zap.Logger
	dir  string
	slot int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore creates a store rooted at dir. The directory is created on
// the first save.
func NewStore(fs afero.Fs, log *zap.Logger, dir string) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("statestore: encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("statestore: decoder: %w", err)
	}
	return &Store{fs: fs, log: log, dir: dir, enc: enc, dec: dec}, nil
}

// CurrentSlot returns the active slot index.
func (s *Store) CurrentSlot() int {
	return s.slot
}

// SetSlot selects the active slot. Out-of-range values are clamped into
// [0, SlotCount).
func (s *Store) SetSlot(slot int) {
	if slot < 0 {
		slot = 0
	}
	if slot >= SlotCount {
		slot = SlotCount - 1
	}
	s.slot = slot
}

// NextSlot cycles to the next slot, wrapping after the last.
func (s *Store) NextSlot() int {
	s.slot = (s.slot + 1) % SlotCount
	return s.slot
}

// PreviousSlot cycles to the previous slot, wrapping before the first.
func (s *Store) PreviousSlot() int {
	s.slot--
	if s.slot < 0 {
		s.slot = SlotCount - 1
	}
	return s.slot
}

func (s *Store) slotPath(slot int) string {
	return filepath.Join(s.dir, fmt.Sprintf("state-%d.state", slot))
}

func (s *Store) resumePath() string {
	return filepath.Join(s.dir, "resume.state")
}

// Save captures the serializer's state into the active slot.
func (s *Store) Save(ser Serializer) error {
	return s.writeState(s.slotPath(s.slot), ser)
}

// Load restores the serializer from the active slot.
func (s *Store) Load(ser Serializer) error {
	ok, err := s.readState(s.slotPath(s.slot), ser)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("statestore: no save in slot %d", s.slot)
	}
	return nil
}

// HasSlot reports whether the given slot holds a state.
func (s *Store) HasSlot(slot int) bool {
	if slot < 0 || slot >= SlotCount {
		return false
	}
	ok, _ := afero.Exists(s.fs, s.slotPath(slot))
	return ok
}

// SaveResume captures the serializer's state as the resume snapshot.
func (s *Store) SaveResume(ser Serializer) error {
	return s.writeState(s.resumePath(), ser)
}

// SaveResumeData writes pre-serialized state bytes as the resume
// snapshot.
func (s *Store) SaveResumeData(state []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("statestore: create directory: %w", err)
	}
	return afero.WriteFile(s.fs, s.resumePath(), s.enc.EncodeAll(state, nil), 0644)
}

// LoadResume restores the serializer from the resume snapshot, if one
// exists. It reports whether a snapshot was applied.
func (s *Store) LoadResume(ser Serializer) (bool, error) {
	return s.readState(s.resumePath(), ser)
}

// HasResume reports whether a resume snapshot exists.
func (s *Store) HasResume() bool {
	ok, _ := afero.Exists(s.fs, s.resumePath())
	return ok
}

func (s *Store) writeState(path string, ser Serializer) error {
	size := ser.SerializeSize()
	if size <= 0 {
		return fmt.Errorf("statestore: serializer reports no state")
	}

	state := make([]byte, size)
	if err := ser.Serialize(state); err != nil {
		return fmt.Errorf("statestore: serialize: %w", err)
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("statestore: create directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, s.enc.EncodeAll(state, nil), 0644); err != nil {
		return fmt.Errorf("statestore: write state file: %w", err)
	}

	s.log.Debug("state written",
		zap.String("path", path), zap.Int("size", size))
	return nil
}

func (s *Store) readState(path string, ser Serializer) (bool, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if exists, _ := afero.Exists(s.fs, path); !exists {
			return false, nil
		}
		return false, fmt.Errorf("statestore: read state file: %w", err)
	}

	state := raw
	if bytes.HasPrefix(raw, zstdMagic) {
		state, err = s.dec.DecodeAll(raw, nil)
		if err != nil {
			return false, fmt.Errorf("statestore: decompress: %w", err)
		}
	}

	if want := ser.SerializeSize(); len(state) != want {
		return false, fmt.Errorf("statestore: state is %d bytes, engine expects %d", len(state), want)
	}
	if err := ser.Unserialize(state); err != nil {
		return false, fmt.Errorf("statestore: restore: %w", err)
	}
	return true, nil
}
