package flow

import "firestige.xyz/flowstat/internal/core"

// Stats holds the traffic observed in one direction of a flow.
// Timestamps are microsecond ticks; zero FirstSeen or ClosedAt means unset.
type Stats struct {
	Packets     uint64
	Bytes       uint64 // payload bytes only
	DataPackets uint64 // packets carrying payload

	ACK uint64
	SYN uint64
	RST uint64
	FIN uint64
	URG uint64
	PSH uint64

	FirstSeen uint64
	LastSeen  uint64
	ClosedAt  uint64

	started bool
	closed  bool
}

// Observe accounts one packet. Counters only ever grow.
func (s *Stats) Observe(payload int, flags core.TCPFlags, ts uint64) {
	s.Packets++
	if payload > 0 {
		s.DataPackets++
		s.Bytes += uint64(payload)
	}
	if flags.ACK() {
		s.ACK++
	}
	if flags.SYN() {
		s.SYN++
	}
	if flags.RST() {
		s.RST++
	}
	if flags.FIN() {
		s.FIN++
	}
	if flags.URG() {
		s.URG++
	}
	if flags.PSH() {
		s.PSH++
	}
	s.LastSeen = ts
}

// Open records the first timestamp of this direction. Later calls are
// ignored, including when the first timestamp was zero.
func (s *Stats) Open(ts uint64) {
	if s.started {
		return
	}
	s.started = true
	s.FirstSeen = ts
}

// Close marks the direction finished at ts. It is set once and never reset.
func (s *Stats) Close(ts uint64) {
	if s.closed {
		return
	}
	s.closed = true
	s.ClosedAt = ts
}

// Opened reports whether FirstSeen has been set.
func (s *Stats) Opened() bool { return s.started }

// Touched reports whether any packet was attributed to this direction.
func (s *Stats) Touched() bool { return s.Packets > 0 }

// Closed reports whether the direction has been closed.
func (s *Stats) Closed() bool { return s.closed }
