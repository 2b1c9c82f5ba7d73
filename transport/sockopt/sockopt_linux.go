package sockopt

import (
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
	"golang.org/x/sys/unix"
)

// Available returns how many bytes can be read from conn without blocking.
// For datagram sockets this is the size of the next pending datagram.
//
// Linux spells FIONREAD as SIOCINQ.
func Available(conn syscall.Conn) (int, error) {
	var n int
	err := rawControl(conn, func(fd uintptr) error {
		var err error
		n, err = unix.IoctlGetInt(int(fd), unix.SIOCINQ)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}
