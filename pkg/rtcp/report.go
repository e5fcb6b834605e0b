package rtcp

import (
	"time"

	"github.com/pion/rtcp"
)

// buildCompound assembles the compound RTCP packet for one reporting
// interval: an SR if this session has sent RTP, otherwise an RR; one
// reception-report block per known remote participant; an SDES CNAME
// chunk; and, when bye is set, a trailing BYE (RFC 3550 §6.1 mandates
// SR/RR first, SDES always present, BYE last).
func (rn *Runner) buildCompound(now time.Time, bye bool) []rtcp.Packet {
	rn.mutex.Lock()
	remotes := make([]*remoteStats, 0, len(rn.remotes))
	for _, rs := range rn.remotes {
		remotes = append(remotes, rs)
	}
	rn.mutex.Unlock()

	reports := make([]rtcp.ReceptionReport, 0, len(remotes))
	for _, rs := range remotes {
		reports = append(reports, rs.receptionReport(now))
	}

	var packets []rtcp.Packet

	if sr := rn.local.senderReport(now); sr != nil {
		sr.Reports = reports
		packets = append(packets, sr)
	} else {
		packets = append(packets, &rtcp.ReceiverReport{
			SSRC:    rn.LocalSSRC,
			Reports: reports,
		})
	}

	packets = append(packets, &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: rn.LocalSSRC,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: rn.cname},
				},
			},
		},
	})

	if bye {
		packets = append(packets, &rtcp.Goodbye{
			Sources: []uint32{rn.LocalSSRC},
		})
	}

	return packets
}
