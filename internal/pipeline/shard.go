package pipeline

import (
	"fmt"
	"hash/fnv"

	"firestige.xyz/flowstat/internal/core"
	"firestige.xyz/flowstat/internal/flow"
)

// DispatchStrategy determines which shard owns a packet's flow.
//
// Every shard evaluates the strategy on every packet independently, so
// Dispatch must be a pure function of the packet, and both directions of
// a flow must map to the same shard.
type DispatchStrategy interface {
	// Dispatch returns the shard index (0-based) for the given packet.
	// numShards is guaranteed to be > 0.
	Dispatch(pkt *core.DecodedPacket, numShards int) int

	// Name returns the strategy name for logging.
	Name() string
}

// FlowHashStrategy distributes packets by the symmetric FNV-1a hash of
// their flow key, so both directions of a flow land on the same shard.
type FlowHashStrategy struct{}

func (FlowHashStrategy) Dispatch(pkt *core.DecodedPacket, numShards int) int {
	return int(flow.NewKey(pkt).Hash() % uint32(numShards))
}

func (FlowHashStrategy) Name() string { return "flow-hash" }

// HostPairStrategy distributes packets by the unordered pair of IP
// addresses. All flows between two hosts share a shard.
type HostPairStrategy struct{}

func (HostPairStrategy) Dispatch(pkt *core.DecodedPacket, numShards int) int {
	a, b := pkt.SrcIP(), pkt.DstIP()
	if b.Less(a) {
		a, b = b, a
	}
	h := fnv.New32a()
	for _, addr := range [2][16]byte{a.As16(), b.As16()} {
		h.Write(addr[:])
	}
	return int(h.Sum32() % uint32(numShards))
}

func (HostPairStrategy) Name() string { return "host-pair" }

// NewDispatchStrategy creates a dispatch strategy by name.
// Supported strategies: "flow-hash" (default), "host-pair".
func NewDispatchStrategy(name string) (DispatchStrategy, error) {
	switch name {
	case "", "flow-hash":
		return FlowHashStrategy{}, nil
	case "host-pair":
		return HostPairStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dispatch strategy %q", core.ErrConfigInvalid, name)
	}
}

// shard owns one tracker per protocol for a subset of flows.
type shard struct {
	id       int
	trackers map[uint8]flow.Tracker
	udp      *flow.UDPTracker // also registered in trackers; drives idle expiry
	dispatch DispatchStrategy
}

func (p *Pipeline) newShard(id int) *shard {
	udp := flow.NewUDPTracker(flow.NewTable(), p.idleTimeout)
	return &shard{
		id: id,
		trackers: map[uint8]flow.Tracker{
			core.ProtocolTCP: flow.NewTCPTracker(flow.NewTable(), p.classifier),
			core.ProtocolUDP: udp,
		},
		udp:      udp,
		dispatch: p.dispatch,
	}
}

// tracker returns the tracker of a protocol.
func (s *shard) tracker(proto uint8) flow.Tracker {
	return s.trackers[proto]
}

// apply feeds one accepted packet to its tracker, then runs idle expiry
// at the packet's timestamp.
func (s *shard) apply(pkt *core.DecodedPacket) {
	if t, ok := s.trackers[pkt.Transport.Protocol]; ok {
		t.Track(pkt)
	}
	s.udp.Expire(pkt.Timestamp)
}

// consume walks a broadcast batch. Packets of other shards still advance
// this shard's clock so idle expiry happens at the same frames as in a
// serial run.
func (s *shard) consume(batch []core.DecodedPacket, numShards int) {
	for i := range batch {
		pkt := &batch[i]
		if s.dispatch.Dispatch(pkt, numShards) == s.id {
			s.apply(pkt)
			continue
		}
		s.udp.Expire(pkt.Timestamp)
	}
}
