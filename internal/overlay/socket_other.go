//go:build !linux

package overlay

import "syscall"

// setSocketOpts is a no-op on platforms without the Linux socket-option
// surface; net.ListenConfig's portable defaults apply instead.
func setSocketOpts(_ syscall.RawConn, _ int) error {
	return nil
}
