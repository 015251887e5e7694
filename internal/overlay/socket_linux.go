//go:build linux

package overlay

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOpts configures the Overlay Host's UDP sockets: SO_REUSEADDR so a
// restarted daemon can rebind immediately, and a receive buffer sized for
// the overlay's maximum MTU plus headroom.
func setSocketOpts(c syscall.RawConn, rcvBufSize int) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		sockErr = applySockOpts(intFD, rcvBufSize)
	})
	if err != nil {
		return fmt.Errorf("overlay: raw conn control: %w", err)
	}
	return sockErr
}

func applySockOpts(fd, rcvBufSize int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("overlay: set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufSize); err != nil {
		return fmt.Errorf("overlay: set SO_RCVBUF: %w", err)
	}
	return nil
}
