// Package content validates and loads DS content: raw .nds/.ids/.dsi
// images, slot-2 GBA images, and compressed archives (ZIP, 7z, gzip,
// tar.gz, RAR) containing one. The host usually hands content over as an
// in-memory image; file paths are also accepted.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/duskcore/duskcore/hostif"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
)

// Maximum content size (512MB, the largest DS cart media)
const maxContentSize = 512 * 1024 * 1024

// NDSExtensions lists the slot-1 image extensions the core accepts.
var NDSExtensions = []string{".nds", ".ids", ".dsi"}

// GBAExtensions lists the slot-2 image extensions the core accepts.
var GBAExtensions = []string{".gba", ".agb"}

// ErrNoContent is returned when no matching file is found in an archive.
var ErrNoContent = errors.New("no content file found in archive")

// ErrUnsupportedFormat is returned for unrecognized file formats.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when content exceeds the size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// ErrEmptyContent is returned for a descriptor with no data and no path.
var ErrEmptyContent = errors.New("content has no data and no path")

// formatType represents the detected file format
type formatType int

const (
	formatUnknown formatType = iota
	formatRaw
	formatZIP
	format7z
	formatGzip
	formatRAR
)

// Load resolves one host content descriptor into a raw image. Archives
// are detected via magic bytes and the first entry matching one of the
// given extensions is extracted. Returns the image, the display name
// (basename) and any error.
func Load(gi hostif.GameInfo, extensions []string) ([]byte, string, error) {
	data := gi.Data
	if len(data) == 0 {
		if gi.Path == "" {
			return nil, "", ErrEmptyContent
		}
		var err error
		data, err = readLimited(gi.Path)
		if err != nil {
			return nil, "", err
		}
	}
	return LoadBytes(data, gi.Path, extensions)
}

// LoadBytes resolves an in-memory content image, extracting from an
// archive when the magic bytes say so. name is used for extension-based
// fallback detection and the returned display name; it may be empty.
func LoadBytes(data []byte, name string, extensions []string) ([]byte, string, error) {
	if len(data) > maxContentSize {
		return nil, "", ErrFileTooLarge
	}

	switch detectFormat(data, name, extensions) {
	case formatRaw:
		return data, filepath.Base(name), nil

	case formatZIP:
		return extractFromZIP(data, extensions)

	case format7z:
		return extractFrom7z(data, extensions)

	case formatGzip:
		return extractFromGzip(data, name, extensions)

	case formatRAR:
		return extractFromRAR(data, extensions)

	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// detectFormat determines the content format based on magic bytes and
// extension. The extensions parameter lists valid image extensions
// (e.g. []string{".nds"}).
func detectFormat(data []byte, name string, extensions []string) formatType {
	ext := strings.ToLower(filepath.Ext(name))

	// Check magic bytes first (more reliable)
	if len(data) >= 4 {
		if bytes.HasPrefix(data, magicZIP) || bytes.HasPrefix(data, magicZIPEnd) {
			return formatZIP
		}
		if bytes.HasPrefix(data, magicRAR) {
			return formatRAR
		}
	}
	if len(data) >= 6 && bytes.HasPrefix(data, magic7z) {
		return format7z
	}
	if len(data) >= 2 && bytes.HasPrefix(data, magicGzip) {
		return formatGzip
	}

	// Fall back to extension for archive formats
	switch ext {
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	}

	if isContentFile(name, extensions) {
		return formatRaw
	}

	// A raw image handed over without a name still counts when it
	// carries a plausible header.
	if name == "" && len(data) >= headerSize {
		return formatRaw
	}

	return formatUnknown
}

// isContentFile checks if a filename has one of the given extensions
// (case-insensitive).
func isContentFile(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// readLimited reads a file, rejecting anything over maxContentSize.
func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if info.Size() > maxContentSize {
		return nil, ErrFileTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// limitedCopy reads from r up to maxContentSize bytes, returning an
// error if exceeded.
func limitedCopy(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, maxContentSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxContentSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}
