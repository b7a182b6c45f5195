package flow

import "firestige.xyz/flowstat/internal/core"

// Tracker applies decoded packets of one protocol to a flow table.
type Tracker interface {
	// Track reports whether the packet changed the table.
	Track(pkt *core.DecodedPacket) bool
	Table() *Table
	Counters() Counters
}

// Counters summarises what a tracker did during a run.
type Counters struct {
	Created uint64 // records created
	Updated uint64 // packets attributed to an existing or new record
	Ignored uint64 // packets that matched nothing and opened nothing
	Closed  uint64 // directions closed
}

// TCPTracker infers connection lifecycle from TCP control flags.
//
// A SYN without ACK opens a flow when its source is accepted by the
// initiator classifier. A SYN+ACK travelling against an existing flow
// stamps the responder's first_seen. FIN or RST closes the direction it
// travels in. Every packet of a known flow is then accounted to its side.
type TCPTracker struct {
	table     *Table
	initiator Classifier
	counters  Counters
}

// NewTCPTracker creates a tracker writing into table. A nil classifier
// lets any address open flows.
func NewTCPTracker(table *Table, initiator Classifier) *TCPTracker {
	if initiator == nil {
		initiator = AnyAddress{}
	}
	return &TCPTracker{table: table, initiator: initiator}
}

func (t *TCPTracker) Track(pkt *core.DecodedPacket) bool {
	k := NewKey(pkt)
	flags := pkt.Transport.TCPFlags
	ts := pkt.Timestamp

	rec, dir, ok := t.table.Lookup(k)

	switch {
	case flags.SYN() && !flags.ACK():
		if !ok && t.initiator.IsLocal(k.SrcIP) {
			var err error
			if rec, err = t.table.Create(k); err != nil {
				return false
			}
			rec.Frame = pkt.Frame
			rec.Sender.Open(ts)
			dir, ok = Forward, true
			t.counters.Created++
		}
	case flags.SYN() && flags.ACK():
		if ok && dir == Backward {
			rec.Receiver.Open(ts)
		}
	}

	if !ok {
		t.counters.Ignored++
		return false
	}

	side := rec.Side(dir)
	if (flags.FIN() || flags.RST()) && !side.Closed() {
		side.Close(ts)
		t.counters.Closed++
	}
	side.Observe(pkt.PayloadLen, flags, ts)
	t.counters.Updated++
	return true
}

func (t *TCPTracker) Table() *Table { return t.table }

func (t *TCPTracker) Counters() Counters { return t.counters }
