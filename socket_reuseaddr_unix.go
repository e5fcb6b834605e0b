//go:build linux || darwin

package uvgrtp

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenUDP binds local, optionally setting SO_REUSEADDR before the bind
// completes (FlagReuseAddr, off by default: a single binding per port is
// the safer default for a point-to-point media transport).
func listenUDP(local *net.UDPAddr, reuseAddr bool) (*net.UDPConn, error) {
	if !reuseAddr {
		return net.ListenUDP("udp", local)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", local.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
