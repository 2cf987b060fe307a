package content

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
)

// extractFromZIP extracts the first matching file from a ZIP archive.
func extractFromZIP(data []byte, extensions []string) ([]byte, string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isContentFile(f.Name, extensions) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()

		out, err := limitedCopy(rc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return out, filepath.Base(f.Name), nil
	}

	return nil, "", ErrNoContent
}
