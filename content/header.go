package content

import (
	"fmt"
	"hash/crc32"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// headerSize is the mandatory portion of the NDS cart header.
const headerSize = 0x160

// Unit codes from the cart header.
const (
	unitCodeNDS    = 0x00
	unitCodeHybrid = 0x02 // runs on DS and DSi
	unitCodeDSi    = 0x03
)

// Header holds the cart header fields the core cares about: identity for
// save file naming, unit code for console mode selection, and the ROM
// capacity for sanity checks.
type Header struct {
	Title     string
	GameCode  string
	MakerCode string
	UnitCode  byte
	Capacity  int // ROM chip size in bytes
}

// DSi reports whether the cart requests DSi mode.
func (h Header) DSi() bool {
	return h.UnitCode&0x02 != 0
}

// DSiExclusive reports whether the cart runs only on DSi.
func (h Header) DSiExclusive() bool {
	return h.UnitCode == unitCodeDSi
}

// ParseHeader decodes and validates the cart header of a raw NDS image.
func ParseHeader(rom []byte) (Header, error) {
	if len(rom) < headerSize {
		return Header{}, fmt.Errorf("image is %d bytes, NDS header needs %d", len(rom), headerSize)
	}

	unitCode := rom[0x12]
	switch unitCode {
	case unitCodeNDS, unitCodeHybrid, unitCodeDSi:
	default:
		return Header{}, fmt.Errorf("unknown unit code 0x%02X", unitCode)
	}

	// Chip size is 128KB << n; anything past 4GB is garbage.
	capShift := rom[0x14]
	if capShift > 15 {
		return Header{}, fmt.Errorf("device capacity 0x%02X out of range", capShift)
	}

	h := Header{
		Title:     trimASCII(rom[0x00:0x0C]),
		GameCode:  trimASCII(rom[0x0C:0x10]),
		MakerCode: trimASCII(rom[0x10:0x12]),
		UnitCode:  unitCode,
		Capacity:  128 * 1024 << capShift,
	}
	if h.GameCode == "" {
		return Header{}, fmt.Errorf("image has no game code")
	}
	return h, nil
}

// headerCache avoids re-parsing when the host reloads or resets the same
// content repeatedly.
var headerCache, _ = lru.New[uint32, Header](64)

// CachedHeader is ParseHeader with a small cache keyed by the CRC32 of
// the header bytes.
func CachedHeader(rom []byte) (Header, error) {
	if len(rom) < headerSize {
		return ParseHeader(rom)
	}
	key := crc32.ChecksumIEEE(rom[:headerSize])
	if h, ok := headerCache.Get(key); ok {
		return h, nil
	}
	h, err := ParseHeader(rom)
	if err != nil {
		return Header{}, err
	}
	headerCache.Add(key, h)
	return h, nil
}

// trimASCII returns the printable prefix of a fixed-width header field,
// trimming NUL padding and whitespace.
func trimASCII(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	s := string(b[:end])
	for _, c := range s {
		if c < 0x20 || c > 0x7E {
			return ""
		}
	}
	return strings.TrimSpace(s)
}
