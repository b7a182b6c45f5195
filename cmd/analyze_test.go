package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/flowstat/internal/core"
)

type frame struct {
	src, dst     string
	sport, dport uint16
	tcp          *layers.TCP // nil for UDP
	payload      int
}

// writeTrace writes frames to a pcap file, one per millisecond. Records
// are cut to their unpadded length.
func writeTrace(t *testing.T, frames []frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	base := time.Unix(1700000000, 0)
	for i, fr := range frames {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: net.ParseIP(fr.src).To4(), DstIP: net.ParseIP(fr.dst).To4()}

		var l4 gopacket.SerializableLayer
		n := 14 + 20 + fr.payload
		if fr.tcp != nil {
			ip.Protocol = layers.IPProtocolTCP
			fr.tcp.SrcPort, fr.tcp.DstPort = layers.TCPPort(fr.sport), layers.TCPPort(fr.dport)
			require.NoError(t, fr.tcp.SetNetworkLayerForChecksum(ip))
			l4, n = fr.tcp, n+20
		} else {
			ip.Protocol = layers.IPProtocolUDP
			udp := &layers.UDP{SrcPort: layers.UDPPort(fr.sport), DstPort: layers.UDPPort(fr.dport)}
			require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
			l4, n = udp, n+8
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, l4, gopacket.Payload(make([]byte, fr.payload))))
		data := buf.Bytes()[:n]

		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: n,
			Length:        n,
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

var sessionFrames = []frame{
	{"10.0.0.1", "10.0.0.2", 40000, 80, &layers.TCP{SYN: true}, 0},
	{"10.0.0.2", "10.0.0.1", 80, 40000, &layers.TCP{SYN: true, ACK: true}, 0},
	{"10.0.0.1", "10.0.0.2", 40000, 80, &layers.TCP{ACK: true, PSH: true}, 5},
	{"10.0.0.1", "10.0.0.53", 5353, 53, nil, 20},
	{"10.0.0.53", "10.0.0.1", 53, 5353, nil, 60},
	{"10.0.0.2", "10.0.0.1", 80, 40000, &layers.TCP{FIN: true, ACK: true}, 0},
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	old := configFile
	configFile = path
	t.Cleanup(func() { configFile = old })
}

func TestRunAnalyze(t *testing.T) {
	withConfigFile(t, "")
	trace := writeTrace(t, sessionFrames)
	metricsFile := filepath.Join(t.TempDir(), "flowstat.prom")

	var out bytes.Buffer
	err := runAnalyze(context.Background(), analyzeOptions{
		input:       trace,
		reporters:   []string{"csv", "summary"},
		metricsFile: metricsFile,
	}, &out)
	require.NoError(t, err)

	outDir := trace + ".out"
	assert.Contains(t, out.String(), "6 frames (0 rejected, 0 filtered), 1 tcp flows, 1 udp flows -> "+outDir)

	tcp := readRows(t, filepath.Join(outDir, "tcp_flows.csv"))
	require.Len(t, tcp, 2)
	assert.Equal(t, []string{"10.0.0.1", "40000", "10.0.0.2", "80"}, tcp[1][:4])
	assert.Equal(t, "2", tcp[1][4])  // c_packets
	assert.Equal(t, "5", tcp[1][5])  // c_bytes
	assert.Equal(t, "2", tcp[1][15]) // s_packets
	assert.Equal(t, "1", tcp[1][21]) // s_fin_count
	assert.Equal(t, "1700000000005000", tcp[1][25])

	udp := readRows(t, filepath.Join(outDir, "udp_flows.csv"))
	require.Len(t, udp, 2)
	assert.Equal(t, []string{"10.0.0.1", "5353", "10.0.0.53", "53", "1", "20", "1"}, udp[1][:7])
	assert.Equal(t, "60", udp[1][10])

	assert.FileExists(t, filepath.Join(outDir, "summary.yaml"))
	assert.NoFileExists(t, filepath.Join(outDir, "tcp_flows.npy"))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "flowstat_frames_read_total 6")
}

func TestRunAnalyzeFlagOverrides(t *testing.T) {
	withConfigFile(t, "")
	trace := writeTrace(t, sessionFrames)
	outDir := filepath.Join(t.TempDir(), "results")

	var out bytes.Buffer
	err := runAnalyze(context.Background(), analyzeOptions{
		input:     trace,
		local:     "10.0.0.2/32",
		outputDir: outDir,
		workers:   3,
		ports:     []int{53},
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "6 frames (0 rejected, 4 filtered), 0 tcp flows, 1 udp flows")

	tcp := readRows(t, filepath.Join(outDir, "tcp_flows.csv"))
	assert.Len(t, tcp, 1)
}

func TestRunAnalyzeLocalSubnet(t *testing.T) {
	withConfigFile(t, "")
	trace := writeTrace(t, sessionFrames)

	// Only 10.0.0.2 may initiate, so the SYN from 10.0.0.1 opens nothing.
	var out bytes.Buffer
	require.NoError(t, runAnalyze(context.Background(), analyzeOptions{input: trace, local: "10.0.0.2/32"}, &out))
	assert.Contains(t, out.String(), "0 tcp flows, 1 udp flows")
}

func TestRunAnalyzeErrors(t *testing.T) {
	withConfigFile(t, "")
	var out bytes.Buffer

	err := runAnalyze(context.Background(), analyzeOptions{input: filepath.Join(t.TempDir(), "missing.pcap")}, &out)
	assert.ErrorIs(t, err, core.ErrSourceOpen)

	trace := writeTrace(t, sessionFrames)
	err = runAnalyze(context.Background(), analyzeOptions{input: trace, local: "10.0.0.0/40"}, &out)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	err = runAnalyze(context.Background(), analyzeOptions{input: trace, reporters: []string{"parquet"}}, &out)
	assert.ErrorContains(t, err, "unknown reporter")

	err = runAnalyze(context.Background(), analyzeOptions{input: trace, ports: []int{70000}}, &out)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Empty(t, out.String())
}

func TestRunAnalyzeCancelled(t *testing.T) {
	withConfigFile(t, "")
	trace := writeTrace(t, sessionFrames)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runAnalyze(ctx, analyzeOptions{input: trace}, &out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"analyze", "validate"}, names)

	analyze, _, err := root.Find([]string{"analyze"})
	require.NoError(t, err)
	for _, flag := range []string{"input", "subnet", "output", "workers", "port", "reporter", "metrics-file"} {
		assert.NotNil(t, analyze.Flags().Lookup(flag), flag)
	}
	assert.Equal(t, "s", analyze.Flags().Lookup("subnet").Shorthand)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
