package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// extractFromGzip extracts the first matching file from a gzip or tar.gz
// stream.
func extractFromGzip(data []byte, name string, extensions []string) ([]byte, string, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	// Check if this is a tar.gz or just a .gz
	lowerName := strings.ToLower(name)
	if strings.HasSuffix(lowerName, ".tar.gz") || strings.HasSuffix(lowerName, ".tgz") {
		return extractFromTar(gr, extensions)
	}

	// Plain .gz file - assume the decompressed content is the image.
	// Use the base name without the .gz extension.
	out, err := limitedCopy(gr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress gzip: %w", err)
	}

	base := filepath.Base(name)
	if strings.HasSuffix(strings.ToLower(base), ".gz") {
		base = base[:len(base)-3]
	}
	return out, base, nil
}

// extractFromTar extracts the first matching file from a tar archive.
func extractFromTar(r io.Reader, extensions []string) ([]byte, string, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !isContentFile(header.Name, extensions) {
			continue
		}

		out, err := limitedCopy(tr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s from tar: %w", header.Name, err)
		}
		return out, filepath.Base(header.Name), nil
	}

	return nil, "", ErrNoContent
}
