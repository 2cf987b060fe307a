package content

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nwaples/rardecode/v2"
)

// extractFromRAR extracts the first matching file from a RAR archive.
func extractFromRAR(data []byte, extensions []string) ([]byte, string, error) {
	r, err := rardecode.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rar: %w", err)
	}

	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir {
			continue
		}
		if !isContentFile(header.Name, extensions) {
			continue
		}

		out, err := limitedCopy(r)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		return out, filepath.Base(header.Name), nil
	}

	return nil, "", ErrNoContent
}
