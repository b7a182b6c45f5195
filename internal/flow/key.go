// Package flow reconstructs bidirectional TCP and UDP flows from decoded
// packets and accumulates per-direction statistics.
package flow

import (
	"fmt"
	"hash/fnv"
	"net/netip"

	"firestige.xyz/flowstat/internal/core"
)

// Key identifies a flow by its oriented endpoint pair. The protocol is
// implied by the table holding the key.
type Key struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
}

// NewKey builds the key in the packet's own orientation.
func NewKey(pkt *core.DecodedPacket) Key {
	return Key{
		SrcIP:   pkt.IP.SrcIP,
		DstIP:   pkt.IP.DstIP,
		SrcPort: pkt.Transport.SrcPort,
		DstPort: pkt.Transport.DstPort,
	}
}

// Reverse swaps the two endpoints.
func (k Key) Reverse() Key {
	return Key{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// Hash returns an FNV-1a hash of the unordered endpoint pair, so a key
// and its reversal always hash to the same value.
func (k Key) Hash() uint32 {
	a := netip.AddrPortFrom(k.SrcIP, k.SrcPort)
	b := netip.AddrPortFrom(k.DstIP, k.DstPort)
	if b.Compare(a) < 0 {
		a, b = b, a
	}

	h := fnv.New32a()
	for _, ep := range [2]netip.AddrPort{a, b} {
		ip := ep.Addr().As16()
		port := ep.Port()
		h.Write(ip[:])
		h.Write([]byte{byte(port >> 8), byte(port)})
	}
	return h.Sum32()
}
