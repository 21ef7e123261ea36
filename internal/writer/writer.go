// Package writer persists extracted documents on an afero filesystem.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// FileWriter implements schemas.DocumentWriter.
type FileWriter struct {
	fs     afero.Fs
	logger *zap.Logger
}

// New returns a FileWriter on fs. Use afero.NewOsFs() in production and
// afero.NewMemMapFs() in tests.
func New(fs afero.Fs, logger *zap.Logger) *FileWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWriter{fs: fs, logger: logger.Named("writer")}
}

// WriteText writes content to path, creating parent directories.
func (w *FileWriter) WriteText(path, content string) error {
	return w.WriteBinary(path, []byte(content))
}

// WriteBinary writes data to path, creating parent directories. The file is
// written to a temporary sibling first and renamed into place.
func (w *FileWriter) WriteBinary(path string, data []byte) error {
	if err := w.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.fs.Rename(tmp, path); err != nil {
		_ = w.fs.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	w.logger.Debug("Wrote document.", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// EnsureDirs creates root/dirs... and returns the joined path.
func (w *FileWriter) EnsureDirs(root string, dirs ...string) (string, error) {
	path := filepath.Join(append([]string{root}, dirs...)...)
	if err := w.fs.MkdirAll(path, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// List returns the sorted base names of the regular files in dir. A missing
// directory is empty.
func (w *FileWriter) List(dir string) ([]string, error) {
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the content of path.
func (w *FileWriter) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
