package uvgrtp

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
)

// rtcpIO owns the RTCP control-channel socket: conventionally the RTP
// port + 1, per RFC 3550 §11's port-pair convention. It runs its own
// receive loop (separate from the RTP receiver) so a burst of RTCP
// traffic never competes with the media receive loop's read deadline.
type rtcpIO struct {
	sock *socket

	terminate atomic.Bool
	wg        sync.WaitGroup
}

func newRTCPSocket(localPort int, remoteAddr string, remotePort int, reuseAddr bool) (*socket, error) {
	return newSocket(localPort+1, remoteAddr, remotePort+1, reuseAddr)
}

func (ms *MediaStream) startRTCPReceiveLoop() {
	ms.rtcpio.wg.Add(1)
	go func() {
		defer ms.rtcpio.wg.Done()

		buf := make([]byte, recvBufferSize)
		for !ms.rtcpio.terminate.Load() {
			n, ok, err := ms.rtcpio.sock.recv(buf)
			if err != nil {
				ms.logger.Error().Err(err).Msg("rtcp recv failed")
				return
			}
			if !ok {
				continue
			}

			datagram := buf[:n]
			if in := ms.srtpIn.Load(); in != nil {
				var derr error
				datagram, derr = in.DecryptRTCP(nil, datagram, nil)
				if derr != nil {
					ms.logger.Debug().Err(derr).Msg("dropped undecryptable rtcp packet")
					continue
				}
			}

			pkts, err := rtcp.Unmarshal(datagram)
			if err != nil {
				ms.logger.Debug().Err(err).Msg("dropped malformed rtcp packet")
				continue
			}

			if ms.rtcp != nil {
				ms.rtcp.ProcessIncomingRTCP(pkts)
			}
		}
	}()
}

func (ms *MediaStream) closeRTCPIO() {
	ms.rtcpio.terminate.Store(true)
	_ = ms.rtcpio.sock.close()
	ms.rtcpio.wg.Wait()
}
