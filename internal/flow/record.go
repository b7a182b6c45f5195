package flow

import "fmt"

// Direction says which side of a record a packet belongs to.
type Direction int8

const (
	// Forward packets travel in the key's orientation (initiator to responder).
	Forward Direction = 0
	// Backward packets travel against it.
	Backward Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Record is the pair of directional statistics of one flow.
type Record struct {
	Sender   Stats // initiator, the key's source side
	Receiver Stats // responder

	// Frame is the source record number of the packet that created the flow.
	Frame uint64

	seq uint64
}

// Side returns the statistics for dir.
func (r *Record) Side(dir Direction) *Stats {
	if dir == Backward {
		return &r.Receiver
	}
	return &r.Sender
}
