//go:build !windows

package mmapio

import (
	"os"

	"golang.org/x/sys/unix"
)

// Map memory-maps the whole of f read-only. The returned slice is valid
// until Unmap is called with it. f itself may be closed immediately after
// Map returns; the mapping keeps the underlying pages alive.
func Map(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		// unix.Mmap rejects a zero-length mapping; callers handle the
		// empty-file case before reaching here, but stay defensive.
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Unmap releases a mapping obtained from Map.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
