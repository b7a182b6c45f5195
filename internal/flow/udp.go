package flow

import (
	"time"

	"firestige.xyz/flowstat/internal/core"
)

// DefaultUDPIdleTimeout closes a UDP direction after 30s without traffic.
const DefaultUDPIdleTimeout = 30 * time.Second

// UDPTracker infers UDP flow direction from the order packets are seen.
// The sender of the first datagram between two endpoints is the
// initiator; the flow is keyed in that orientation.
type UDPTracker struct {
	table    *Table
	timeout  uint64 // microsecond ticks
	queue    *expiryQueue
	counters Counters
}

// NewUDPTracker creates a tracker writing into table. A non-positive
// timeout selects DefaultUDPIdleTimeout.
func NewUDPTracker(table *Table, idleTimeout time.Duration) *UDPTracker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultUDPIdleTimeout
	}
	return &UDPTracker{
		table:   table,
		timeout: uint64(idleTimeout / time.Microsecond),
		queue:   newExpiryQueue(),
	}
}

func (t *UDPTracker) Track(pkt *core.DecodedPacket) bool {
	k := NewKey(pkt)

	rec, dir, ok := t.table.Lookup(k)
	if !ok {
		var err error
		if rec, err = t.table.Create(k); err != nil {
			t.counters.Ignored++
			return false
		}
		rec.Frame = pkt.Frame
		dir = Forward
		t.counters.Created++
	}

	side := rec.Side(dir)
	side.Open(pkt.Timestamp)
	side.Observe(pkt.PayloadLen, 0, pkt.Timestamp)
	t.queue.touch(side)
	t.counters.Updated++
	return true
}

// Expire closes every open direction that has been idle for at least the
// configured timeout at now, stamping now as its close time. It returns
// the number of directions closed.
func (t *UDPTracker) Expire(now uint64) int {
	n := t.queue.expire(now, t.timeout)
	t.counters.Closed += uint64(n)
	return n
}

// Open returns the number of directions still awaiting idle closure.
func (t *UDPTracker) Open() int {
	return t.queue.len()
}

func (t *UDPTracker) Table() *Table { return t.table }

func (t *UDPTracker) Counters() Counters { return t.counters }
