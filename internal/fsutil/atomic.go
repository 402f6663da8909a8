// Package fsutil holds file helpers shared by the seeder, config editor and
// database transfer.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into a temporary file next to path and renames it
// over path once fully written, so readers never observe a partial file.
func WriteAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	tmp, err := CreateTemp(path)
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, perm)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}

// CreateTemp creates a hidden temporary file in the directory of path,
// creating the directory when needed.
func CreateTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	return tmp, nil
}
