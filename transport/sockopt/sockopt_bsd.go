//go:build !windows && !linux

package sockopt

import (
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
	"golang.org/x/sys/unix"
)

// Available returns how many bytes can be read from conn without blocking.
// For datagram sockets this is the size of the next pending datagram.
func Available(conn syscall.Conn) (int, error) {
	var n int
	err := rawControl(conn, func(fd uintptr) error {
		var err error
		n, err = unix.IoctlGetInt(int(fd), unix.FIONREAD)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}
