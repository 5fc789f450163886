//go:build linux

package buffer

import "golang.org/x/sys/unix"

// readv performs a scatter read across the given buffers via readv(2).
func readv(fd int, iov [][]byte) (int, error) {
	return unix.Readv(fd, iov)
}
