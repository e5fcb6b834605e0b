package uvgrtp

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/stm-space/uvgrtp-go/pkg/liberrors"
)

// readTimeout bounds each blocked recv so the read loop can observe
// cancellation between reads without an OS-level socket kick.
const readTimeout = 100 * time.Millisecond

// socket wraps one UDP endpoint bound to a wildcard address and a
// caller-chosen local port, with a pre-resolved remote address for
// connect-less sends. Send is safe for concurrent callers; recv is meant
// for a single reader goroutine.
type socket struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr

	sendMutex sync.Mutex
}

func newSocket(localPort int, remoteAddr string, remotePort int, reuseAddr bool) (*socket, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remoteAddr, strconv.Itoa(remotePort)))
	if err != nil {
		return nil, &liberrors.InvalidValue{Field: "remoteAddr", Reason: err.Error()}
	}

	local := &net.UDPAddr{IP: net.IPv4zero, Port: localPort}

	conn, err := listenUDP(local, reuseAddr)
	if err != nil {
		return nil, &liberrors.SendFailed{Op: "bind", Err: err}
	}

	return &socket{conn: conn, remoteAddr: remote}, nil
}

// send writes datagram to the pre-resolved remote address.
func (s *socket) send(datagram []byte) error {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	_, err := s.conn.WriteToUDP(datagram, s.remoteAddr)
	if err != nil {
		return &liberrors.SendFailed{Op: "write", Err: err}
	}
	return nil
}

// recv reads one datagram into buf, returning (0, false, nil) on a recv
// timeout so the caller's loop can re-check its own cancellation signal.
func (s *socket) recv(buf []byte) (int, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, false, &liberrors.RecvFailed{Op: "set deadline", Err: err}
	}

	n, err := s.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, false, nil
		}
		return 0, false, &liberrors.RecvFailed{Op: "read", Err: err}
	}
	return n, true, nil
}

func (s *socket) localPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *socket) close() error {
	return s.conn.Close()
}
