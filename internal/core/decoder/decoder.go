// Package decoder implements L2-L4 protocol stack decoding.
package decoder

import (
	"fmt"

	"firestige.xyz/flowstat/internal/core"
)

// Decoder decodes raw packets into structured format.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// Config controls optional decoder behaviour.
type Config struct {
	// Ports restricts decoding to TCP/UDP frames whose source or
	// destination port is in the list. Empty means no filtering.
	Ports []uint16
}

// StandardDecoder decodes Ethernet/IPv4/TCP/UDP frames.
// It holds no per-packet state, so Decode is a pure function of its input.
type StandardDecoder struct {
	filter *PortFilter
}

// NewStandardDecoder creates a decoder. It fails only when the port
// filter cannot be assembled.
func NewStandardDecoder(cfg Config) (*StandardDecoder, error) {
	d := &StandardDecoder{}
	if len(cfg.Ports) > 0 {
		f, err := NewPortFilter(cfg.Ports)
		if err != nil {
			return nil, fmt.Errorf("build port filter: %w", err)
		}
		d.filter = f
	}
	return d, nil
}

// Decode validates and dissects one captured frame. Checks run in layer
// order; the first failing check decides the returned error.
func (d *StandardDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	frameLen := raw.FrameLen()
	if frameLen < ethernetHeaderLen {
		return core.DecodedPacket{}, core.ErrPacketTooShort
	}

	eth, rest, err := decodeEthernet(raw.Data)
	if err != nil {
		return core.DecodedPacket{}, err
	}
	if eth.EtherType != core.EtherTypeIPv4 {
		return core.DecodedPacket{}, core.ErrNotIPv4
	}

	ip, rest, err := decodeIPv4(rest)
	if err != nil {
		return core.DecodedPacket{}, err
	}
	if frameLen < ethernetHeaderLen+ip.HeaderLen {
		return core.DecodedPacket{}, core.ErrPacketTooShort
	}

	transport, _, err := decodeTransport(rest, ip.Protocol)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	headers := ethernetHeaderLen + ip.HeaderLen + transport.HeaderLen
	if frameLen < headers {
		return core.DecodedPacket{}, core.ErrPacketTooShort
	}

	// Only frames that decoded cleanly reach the port filter.
	if d.filter != nil && !d.filter.Match(raw.Data) {
		return core.DecodedPacket{}, core.ErrFiltered
	}

	return core.DecodedPacket{
		Timestamp:  raw.Timestamp,
		Frame:      raw.Frame,
		Ethernet:   eth,
		IP:         ip,
		Transport:  transport,
		PayloadLen: max(frameLen-headers, 0),
	}, nil
}
