//go:build windows

package mmapio

import (
	"io"
	"os"
)

// Map falls back to a full read on Windows, where mapping a file read-only
// and keeping it valid after the handle closes needs syscall plumbing this
// repo doesn't carry. The returned slice behaves like a mapping from the
// caller's point of view (immutable, indexable) but is a heap copy.
func Map(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	return io.ReadAll(f)
}

// Unmap is a no-op for the ReadAll-backed fallback.
func Unmap(data []byte) error {
	return nil
}
