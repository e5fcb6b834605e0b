//go:build !linux && !darwin

package uvgrtp

import "net"

// listenUDP binds local. SO_REUSEADDR is a Linux/Darwin-only affordance
// here (golang.org/x/sys/unix); elsewhere FlagReuseAddr is a no-op.
func listenUDP(local *net.UDPAddr, _ bool) (*net.UDPConn, error) {
	return net.ListenUDP("udp", local)
}
