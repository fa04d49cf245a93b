package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Gate is the idempotency primitive shared by both stages: an existence
// check plus an atomic single-file write. It never retries; retry policy
// belongs to the caller.
type Gate struct {
	dir string
}

// NewGate creates the output directory if needed and verifies it is usable.
func NewGate(dir string) (*Gate, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("images directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("images path %s is not a directory", dir)
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create images directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("stat images directory: %w", err)
	}

	return &Gate{dir: dir}, nil
}

// Path returns the output file for a storage key. The extension is always
// .jpg regardless of true content type; downstream consumers key on the
// storage key, not the extension.
func (g *Gate) Path(storageKey string) string {
	return filepath.Join(g.dir, storageKey+".jpg")
}

// Exists reports whether the image for a storage key is already on disk.
func (g *Gate) Exists(storageKey string) bool {
	_, err := os.Stat(g.Path(storageKey))
	return err == nil
}

// Write persists image bytes atomically: a temp file in the same directory
// renamed over the final path, so readers never observe a partial image.
func (g *Gate) Write(storageKey string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("refusing to write empty image for %s", storageKey)
	}

	tmp, err := os.CreateTemp(g.dir, "."+storageKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write image bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, g.Path(storageKey)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("finalize image file: %w", err)
	}
	return nil
}
