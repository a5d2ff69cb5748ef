// Package fsio reads schema documents from and writes generated code to
// the local filesystem.
package fsio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ngAnzar/rpc/ports"
)

// OS is the local filesystem.
type OS struct {
	// FileMode of written files; 0644 when zero.
	FileMode os.FileMode
}

func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path, creating parent directories.
func (o OS) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	mode := o.FileMode
	if mode == 0 {
		mode = 0644
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path is present.
func (OS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

var (
	_ ports.SourceReader = OS{}
	_ ports.OutputWriter = OS{}
)
