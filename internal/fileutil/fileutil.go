// Package fileutil holds small filesystem helpers shared by upload staging
// and output writing.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into dst through a temporary sibling file that is
// renamed into place once fully written. On failure nothing is left at dst.
// It returns the byte count and the SHA-256 of the content.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, "", err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return 0, "", fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return 0, "", err
	}
	if err := tmp.Sync(); err != nil {
		return 0, "", err
	}
	if err := tmp.Close(); err != nil {
		return 0, "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, "", err
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteFileAtomic writes data to dst with WriteAtomic semantics.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) error {
	_, _, err := WriteAtomic(dst, bytes.NewReader(data), mode)
	return err
}
