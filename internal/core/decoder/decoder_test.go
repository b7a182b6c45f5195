package decoder

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowstat/internal/core"
)

const testTimestamp uint64 = 1_700_000_000_000_000

// Helper function to create a simple IPv4 UDP packet
func makeSimpleUDPPacket() []byte {
	packet := make([]byte, 42) // Ethernet + IPv4 + UDP headers

	// Ethernet header (14 bytes)
	// Dst MAC: 00:11:22:33:44:55
	packet[0], packet[1], packet[2] = 0x00, 0x11, 0x22
	packet[3], packet[4], packet[5] = 0x33, 0x44, 0x55
	// Src MAC: AA:BB:CC:DD:EE:FF
	packet[6], packet[7], packet[8] = 0xAA, 0xBB, 0xCC
	packet[9], packet[10], packet[11] = 0xDD, 0xEE, 0xFF
	// EtherType: IPv4 (0x0800)
	packet[12], packet[13] = 0x08, 0x00

	// IPv4 header (20 bytes)
	packet[14] = 0x45                   // Version 4, IHL 5
	packet[15] = 0x00                   // DSCP, ECN
	packet[16], packet[17] = 0x00, 0x1C // Total Length: 28 bytes
	packet[18], packet[19] = 0x12, 0x34 // Identification
	packet[20], packet[21] = 0x00, 0x00 // Flags, Fragment Offset
	packet[22] = 0x40                   // TTL: 64
	packet[23] = 0x11                   // Protocol: UDP (17)
	packet[24], packet[25] = 0x00, 0x00 // Checksum (not calculated)
	// Src IP: 192.168.1.1
	packet[26], packet[27], packet[28], packet[29] = 192, 168, 1, 1
	// Dst IP: 192.168.1.2
	packet[30], packet[31], packet[32], packet[33] = 192, 168, 1, 2

	// UDP header (8 bytes)
	packet[34], packet[35] = 0x13, 0x88 // Src Port: 5000
	packet[36], packet[37] = 0x13, 0x89 // Dst Port: 5001
	packet[38], packet[39] = 0x00, 0x08 // Length: 8 bytes
	packet[40], packet[41] = 0x00, 0x00 // Checksum (not calculated)

	return packet
}

func TestStandardDecoderDecode(t *testing.T) {
	decoder, err := NewStandardDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}

	raw := core.RawPacket{
		Data:       makeSimpleUDPPacket(),
		Timestamp:  testTimestamp,
		CaptureLen: 42,
		OrigLen:    42,
	}

	decoded, err := decoder.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Verify Ethernet header
	if decoded.Ethernet.EtherType != 0x0800 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", decoded.Ethernet.EtherType)
	}
	expectedSrcMAC := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if decoded.Ethernet.SrcMAC != expectedSrcMAC {
		t.Errorf("Expected SrcMAC %v, got %v", expectedSrcMAC, decoded.Ethernet.SrcMAC)
	}

	// Verify IP header
	if decoded.IP.Version != 4 {
		t.Errorf("Expected IP version 4, got %d", decoded.IP.Version)
	}
	if decoded.IP.Protocol != 17 {
		t.Errorf("Expected protocol 17 (UDP), got %d", decoded.IP.Protocol)
	}
	expectedSrcIP := netip.MustParseAddr("192.168.1.1")
	if decoded.IP.SrcIP != expectedSrcIP {
		t.Errorf("Expected SrcIP %v, got %v", expectedSrcIP, decoded.IP.SrcIP)
	}
	expectedDstIP := netip.MustParseAddr("192.168.1.2")
	if decoded.IP.DstIP != expectedDstIP {
		t.Errorf("Expected DstIP %v, got %v", expectedDstIP, decoded.IP.DstIP)
	}

	// Verify Transport header
	if decoded.Transport.Protocol != 17 {
		t.Errorf("Expected transport protocol 17 (UDP), got %d", decoded.Transport.Protocol)
	}
	if decoded.Transport.SrcPort != 5000 {
		t.Errorf("Expected SrcPort 5000, got %d", decoded.Transport.SrcPort)
	}
	if decoded.Transport.DstPort != 5001 {
		t.Errorf("Expected DstPort 5001, got %d", decoded.Transport.DstPort)
	}

	if decoded.Timestamp != testTimestamp {
		t.Errorf("Expected timestamp %d, got %d", testTimestamp, decoded.Timestamp)
	}
	if decoded.PayloadLen != 0 {
		t.Errorf("Expected PayloadLen 0, got %d", decoded.PayloadLen)
	}
}

func TestStandardDecoderEmptyPacket(t *testing.T) {
	decoder, err := NewStandardDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}

	raw := core.RawPacket{
		Data:       []byte{},
		Timestamp:  testTimestamp,
		CaptureLen: 0,
		OrigLen:    0,
	}

	_, err = decoder.Decode(raw)
	if !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort for empty packet, got %v", err)
	}
}

func TestStandardDecoderTooShort(t *testing.T) {
	decoder, err := NewStandardDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}

	raw := core.RawPacket{
		Data:       []byte{0x01, 0x02, 0x03}, // Too short
		Timestamp:  testTimestamp,
		CaptureLen: 3,
		OrigLen:    3,
	}

	_, err = decoder.Decode(raw)
	if !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort for too short packet, got %v", err)
	}
}

// serialize builds a frame with gopacket so the hand-written decoder is
// checked against an independent encoder.
func serialize(t *testing.T, payload []byte, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	l = append(l, gopacket.Payload(payload))
	require.NoError(t, gopacket.SerializeLayers(buf, opts, l...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, src, dst string, sport, dport uint16, payload []byte, set func(*layers.TCP)) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		DstMAC:       []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    netip.MustParseAddr(src).AsSlice(),
		DstIP:    netip.MustParseAddr(dst).AsSlice(),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), Window: 65535}
	if set != nil {
		set(tcp)
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, payload, eth, ip, tcp)
}

func TestStandardDecoderGopacketTCP(t *testing.T) {
	d, err := NewStandardDecoder(Config{})
	require.NoError(t, err)

	frame := tcpFrame(t, "10.0.0.5", "93.184.216.34", 40000, 443, make([]byte, 100), func(tcp *layers.TCP) {
		tcp.SYN = true
		tcp.ACK = true
		tcp.Options = []layers.TCPOption{{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}}}
	})

	decoded, err := d.Decode(core.RawPacket{Data: frame, Timestamp: testTimestamp, CaptureLen: uint32(len(frame))})
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), decoded.SrcIP())
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), decoded.DstIP())
	assert.Equal(t, uint16(40000), decoded.Transport.SrcPort)
	assert.Equal(t, uint16(443), decoded.Transport.DstPort)
	assert.Equal(t, uint8(core.ProtocolTCP), decoded.Transport.Protocol)
	assert.True(t, decoded.Transport.TCPFlags.SYN())
	assert.True(t, decoded.Transport.TCPFlags.ACK())
	assert.False(t, decoded.Transport.TCPFlags.FIN())
	assert.Equal(t, 24, decoded.Transport.HeaderLen)
	assert.Equal(t, 100, decoded.PayloadLen)
}

func TestStandardDecoderDeclaredLength(t *testing.T) {
	d, err := NewStandardDecoder(Config{})
	require.NoError(t, err)

	// 42 captured bytes of a frame that was 1042 bytes on the wire.
	frame := makeSimpleUDPPacket()
	decoded, err := d.Decode(core.RawPacket{Data: frame, CaptureLen: 42, OrigLen: 1042})
	require.NoError(t, err)
	assert.Equal(t, 1000, decoded.PayloadLen)
}

func TestStandardDecoderRejects(t *testing.T) {
	arp := makeSimpleUDPPacket()
	arp[12], arp[13] = 0x08, 0x06

	vlan := makeSimpleUDPPacket()
	vlan[12], vlan[13] = 0x81, 0x00

	icmp := makeSimpleUDPPacket()
	icmp[23] = 1

	badIHL := makeSimpleUDPPacket()
	badIHL[14] = 0x44

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"13 bytes", make([]byte, 13), core.ErrPacketTooShort},
		{"arp", arp, core.ErrNotIPv4},
		{"vlan tagged", vlan, core.ErrNotIPv4},
		{"icmp", icmp, core.ErrUnsupportedProto},
		{"ihl below five", badIHL, core.ErrPacketTooShort},
		{"truncated ip", makeSimpleUDPPacket()[:30], core.ErrPacketTooShort},
		{"truncated udp", makeSimpleUDPPacket()[:40], core.ErrPacketTooShort},
		{"truncated tcp", tcpFrame(t, "10.0.0.1", "10.0.0.2", 1, 2, nil, nil)[:50], core.ErrPacketTooShort},
	}
	// A port filter must not change why a frame is rejected.
	for _, cfg := range []Config{{}, {Ports: []uint16{443}}, {Ports: []uint16{5000, 5001}}} {
		d, err := NewStandardDecoder(cfg)
		require.NoError(t, err)
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/ports=%v", tt.name, cfg.Ports), func(t *testing.T) {
				_, err := d.Decode(core.RawPacket{Data: tt.frame, CaptureLen: uint32(len(tt.frame))})
				assert.ErrorIs(t, err, tt.want)
				assert.NotErrorIs(t, err, core.ErrFiltered)
			})
		}
	}
}

func TestStandardDecoderIdempotent(t *testing.T) {
	d, err := NewStandardDecoder(Config{})
	require.NoError(t, err)

	raw := core.RawPacket{Data: makeSimpleUDPPacket(), Timestamp: testTimestamp, OrigLen: 200}
	first, err := d.Decode(raw)
	require.NoError(t, err)
	second, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStandardDecoderPortFilter(t *testing.T) {
	d, err := NewStandardDecoder(Config{Ports: []uint16{443}})
	require.NoError(t, err)

	match := tcpFrame(t, "10.0.0.5", "1.1.1.1", 40000, 443, nil, nil)
	_, err = d.Decode(core.RawPacket{Data: match})
	assert.NoError(t, err)

	_, err = d.Decode(core.RawPacket{Data: makeSimpleUDPPacket()})
	assert.ErrorIs(t, err, core.ErrFiltered)
}

func BenchmarkStandardDecoderDecode(b *testing.B) {
	decoder, err := NewStandardDecoder(Config{})
	if err != nil {
		b.Fatal(err)
	}
	packet := makeSimpleUDPPacket()

	raw := core.RawPacket{
		Data:       packet,
		Timestamp:  testTimestamp,
		CaptureLen: uint32(len(packet)),
		OrigLen:    uint32(len(packet)),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := decoder.Decode(raw); err != nil {
			b.Fatal(err)
		}
	}
}
