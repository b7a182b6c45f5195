// Package core defines core types with zero external dependencies.
package core

import (
	"net/netip"
	"strings"
)

// EtherType and IP protocol numbers understood by the decoder.
const (
	EtherTypeIPv4 = 0x0800

	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16
}

// IPHeader represents the IPv4 header.
type IPHeader struct {
	Version   uint8
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Protocol  uint8 // TCP=6, UDP=17
	TTL       uint8
	TotalLen  uint16
	HeaderLen int // IHL * 4
}

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8 // Redundant storage for convenience
	HeaderLen int   // 8 for UDP, data offset * 4 for TCP
	// TCP-specific fields (only populated for TCP)
	TCPFlags TCPFlags
	SeqNum   uint32
	AckNum   uint32
}

// TCPFlags holds the six classic TCP control bits as found in byte 13
// of the TCP header.
type TCPFlags uint8

// TCP control bits.
const (
	FlagFIN TCPFlags = 0x01
	FlagSYN TCPFlags = 0x02
	FlagRST TCPFlags = 0x04
	FlagPSH TCPFlags = 0x08
	FlagACK TCPFlags = 0x10
	FlagURG TCPFlags = 0x20
)

func (f TCPFlags) FIN() bool { return f&FlagFIN != 0 }
func (f TCPFlags) SYN() bool { return f&FlagSYN != 0 }
func (f TCPFlags) RST() bool { return f&FlagRST != 0 }
func (f TCPFlags) PSH() bool { return f&FlagPSH != 0 }
func (f TCPFlags) ACK() bool { return f&FlagACK != 0 }
func (f TCPFlags) URG() bool { return f&FlagURG != 0 }

// String renders the set flags tcpdump-style, e.g. "SA" for SYN+ACK.
func (f TCPFlags) String() string {
	var b strings.Builder
	for _, fl := range []struct {
		bit  TCPFlags
		name byte
	}{
		{FlagSYN, 'S'}, {FlagFIN, 'F'}, {FlagRST, 'R'},
		{FlagPSH, 'P'}, {FlagACK, 'A'}, {FlagURG, 'U'},
	} {
		if f&fl.bit != 0 {
			b.WriteByte(fl.name)
		}
	}
	if b.Len() == 0 {
		return "."
	}
	return b.String()
}
