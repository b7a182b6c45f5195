// Package pipeline implements pipeline run counters.
package pipeline

import (
	"sync/atomic"
	"time"
)

// Metrics contains the frame counters of one run.
type Metrics struct {
	// Frame counters (using atomic so progress can be read mid-run)
	Read     atomic.Uint64
	Decoded  atomic.Uint64
	Rejected atomic.Uint64
	Filtered atomic.Uint64
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Read.Store(0)
	m.Decoded.Store(0)
	m.Rejected.Store(0)
	m.Filtered.Store(0)
}

// Stats summarises a finished or interrupted run.
type Stats struct {
	Read     uint64 // records read from the source
	Decoded  uint64 // frames that passed decoding
	Rejected uint64 // frames discarded by the decoder
	Filtered uint64 // frames dropped by the port filter

	TCPPackets uint64 // TCP frames applied to a flow
	UDPPackets uint64 // UDP frames applied to a flow
	Ignored    uint64 // TCP frames that matched no flow and opened none

	TCPFlows   int
	UDPFlows   int
	TCPClosed  uint64 // TCP directions closed by FIN or RST
	UDPExpired uint64 // UDP directions closed by idle timeout
	UDPOpen    int    // UDP directions still open when the trace ended

	Workers  int
	Duration time.Duration
}
