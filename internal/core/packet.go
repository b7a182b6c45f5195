// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// RawPacket is one record read from a capture source.
type RawPacket struct {
	Data       []byte // Captured bytes
	Timestamp  uint64 // Capture timestamp in microseconds
	CaptureLen uint32 // Number of bytes actually captured
	OrigLen    uint32 // Declared length of the frame on the wire
	Frame      uint64 // 1-based record number within the source
}

// FrameLen returns the declared frame length, falling back to the
// captured length when the source did not record one.
func (r RawPacket) FrameLen() int {
	if r.OrigLen != 0 {
		return int(r.OrigLen)
	}
	if r.CaptureLen != 0 {
		return int(r.CaptureLen)
	}
	return len(r.Data)
}

// DecodedPacket is the result of L2-L4 protocol stack decoding.
type DecodedPacket struct {
	Timestamp  uint64
	Frame      uint64
	Ethernet   EthernetHeader
	IP         IPHeader
	Transport  TransportHeader
	PayloadLen int // Frame length minus all header lengths, never negative
}

// SrcIP is a shorthand for the IPv4 source address.
func (p *DecodedPacket) SrcIP() netip.Addr { return p.IP.SrcIP }

// DstIP is a shorthand for the IPv4 destination address.
func (p *DecodedPacket) DstIP() netip.Addr { return p.IP.DstIP }

// Micros converts a (seconds, microseconds) capture timestamp into the
// microsecond tick count used throughout the engine.
func Micros(sec, usec uint64) uint64 {
	return sec*1_000_000 + usec
}

// MicrosFromTime converts a capture time into microsecond ticks.
// Times before the Unix epoch map to zero.
func MicrosFromTime(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return Micros(uint64(t.Unix()), uint64(t.Nanosecond()/1000))
}
