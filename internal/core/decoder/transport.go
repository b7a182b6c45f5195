package decoder

import (
	"encoding/binary"

	"firestige.xyz/flowstat/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	// tcpFlagBits keeps URG, ACK, PSH, RST, SYN and FIN of byte 13.
	tcpFlagBits = 0x3f
)

// decodeTransport decodes the TCP or UDP header at the start of data.
// Returns TransportHeader and remaining payload.
func decodeTransport(data []byte, protocol uint8) (core.TransportHeader, []byte, error) {
	switch protocol {
	case core.ProtocolTCP:
		return decodeTCP(data)
	case core.ProtocolUDP:
		return decodeUDP(data)
	default:
		return core.TransportHeader{Protocol: protocol}, nil, core.ErrUnsupportedProto
	}
}

// decodeUDP reads the ports only. The UDP length field is ignored;
// payload size comes from the frame length.
func decodeUDP(data []byte) (core.TransportHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return core.TransportHeader{}, nil, core.ErrPacketTooShort
	}
	return core.TransportHeader{
		SrcPort:   binary.BigEndian.Uint16(data),
		DstPort:   binary.BigEndian.Uint16(data[2:]),
		Protocol:  core.ProtocolUDP,
		HeaderLen: udpHeaderLen,
	}, data[udpHeaderLen:], nil
}

// decodeTCP reads ports, sequence numbers, flags and the data offset.
// Options are skipped, never parsed.
func decodeTCP(data []byte) (core.TransportHeader, []byte, error) {
	if len(data) < tcpHeaderMinLen {
		return core.TransportHeader{}, nil, core.ErrPacketTooShort
	}

	// data offset counts 32-bit words
	hlen := int(data[12]>>4) << 2
	if hlen < tcpHeaderMinLen || hlen > len(data) {
		return core.TransportHeader{}, nil, core.ErrPacketTooShort
	}

	return core.TransportHeader{
		SrcPort:   binary.BigEndian.Uint16(data),
		DstPort:   binary.BigEndian.Uint16(data[2:]),
		Protocol:  core.ProtocolTCP,
		HeaderLen: hlen,
		TCPFlags:  core.TCPFlags(data[13] & tcpFlagBits),
		SeqNum:    binary.BigEndian.Uint32(data[4:]),
		AckNum:    binary.BigEndian.Uint32(data[8:]),
	}, data[hlen:], nil
}
