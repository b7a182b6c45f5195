package reporter

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/flowstat/internal/flow"
)

// Stat columns per side, in output order.
var (
	tcpColumns = []string{
		"packets", "bytes", "data_packets",
		"ack_count", "syn_count", "rst_count", "fin_count", "urg_count", "psh_count",
		"first_seen", "closed_at",
	}
	udpColumns = []string{"packets", "bytes", "data_packets", "first_seen", "closed_at"}
)

const (
	protoTCP = "tcp"
	protoUDP = "udp"
)

func statColumns(proto string) []string {
	if proto == protoTCP {
		return tcpColumns
	}
	return udpColumns
}

// header returns the full header row: endpoints, then the client
// columns, then the server columns.
func header(proto string) []string {
	cols := statColumns(proto)
	h := make([]string, 0, 4+2*len(cols))
	h = append(h, "c_ip", "c_port", "s_ip", "s_port")
	for _, side := range []string{"c_", "s_"} {
		for _, c := range cols {
			h = append(h, side+c)
		}
	}
	return h
}

func statValues(proto string, s *flow.Stats) []uint64 {
	if proto == protoTCP {
		return []uint64{
			s.Packets, s.Bytes, s.DataPackets,
			s.ACK, s.SYN, s.RST, s.FIN, s.URG, s.PSH,
			s.FirstSeen, s.ClosedAt,
		}
	}
	return []uint64{s.Packets, s.Bytes, s.DataPackets, s.FirstSeen, s.ClosedAt}
}

// tableFor returns the table of a protocol from a run.
func tableFor(run *Run, proto string) *flow.Table {
	if proto == protoTCP {
		return run.Result.TCP
	}
	return run.Result.UDP
}

// addrValue maps an IPv4 address to its numeric value.
func addrValue(a netip.Addr) uint32 {
	if !a.Is4() {
		return 0
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}
