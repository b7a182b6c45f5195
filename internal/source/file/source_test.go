package file

import (
	"io"
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

type record struct {
	ts   time.Time
	data []byte
	orig int
}

var testRecords = []record{
	{time.Unix(1700000000, 250_000), make([]byte, 60), 60},
	{time.Unix(1700000001, 999_999_000), make([]byte, 64), 1514},
}

func writePcap(t *testing.T, link layers.LinkType, recs []record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, link))
	for _, r := range recs {
		ci := gopacket.CaptureInfo{Timestamp: r.ts, CaptureLength: len(r.data), Length: r.orig}
		require.NoError(t, w.WritePacket(ci, r.data))
	}
	return path
}

func writePcapNG(t *testing.T, recs []record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for _, r := range recs {
		ci := gopacket.CaptureInfo{Timestamp: r.ts, CaptureLength: len(r.data), Length: r.orig}
		require.NoError(t, w.WritePacket(ci, r.data))
	}
	require.NoError(t, w.Flush())
	return path
}

func readAll(t *testing.T, s *Source) []core.RawPacket {
	t.Helper()
	var out []core.RawPacket
	for {
		raw, err := s.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, raw)
	}
}

func assertRecords(t *testing.T, got []core.RawPacket) {
	t.Helper()
	require.Len(t, got, 2)

	assert.Equal(t, uint64(1700000000_000250), got[0].Timestamp)
	assert.Equal(t, uint32(60), got[0].CaptureLen)
	assert.Equal(t, uint32(60), got[0].OrigLen)
	assert.Equal(t, uint64(1), got[0].Frame)

	assert.Equal(t, uint64(1700000001_999999), got[1].Timestamp)
	assert.Equal(t, uint32(64), got[1].CaptureLen)
	assert.Equal(t, uint32(1514), got[1].OrigLen)
	assert.Equal(t, 1514, got[1].FrameLen())
	assert.Equal(t, uint64(2), got[1].Frame)
}

func TestOpenPcap(t *testing.T) {
	s, err := Open(writePcap(t, layers.LinkTypeEthernet, testRecords))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, FormatPcap, s.Format())
	assertRecords(t, readAll(t, s))
	assert.Equal(t, uint64(2), s.Frames())

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenPcapNG(t *testing.T) {
	s, err := Open(writePcapNG(t, testRecords))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, FormatPcapNG, s.Format())
	assertRecords(t, readAll(t, s))
}

func TestOpenEmptyTrace(t *testing.T) {
	s, err := Open(writePcap(t, layers.LinkTypeEthernet, nil))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, readAll(t, s))
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.pcap"))
	assert.ErrorIs(t, err, core.ErrSourceOpen)

	garbage := filepath.Join(dir, "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a capture file"), 0o644))
	_, err = Open(garbage)
	assert.ErrorIs(t, err, core.ErrSourceOpen)

	empty := filepath.Join(dir, "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.ErrorIs(t, err, core.ErrSourceOpen)

	_, err = Open(writePcap(t, layers.LinkTypeRaw, testRecords))
	assert.ErrorIs(t, err, core.ErrUnsupportedLinkType)
}

func TestTruncatedRecordIsTerminal(t *testing.T) {
	path := writePcap(t, layers.LinkTypeEthernet, testRecords)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-10))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := Open(writePcap(t, layers.LinkTypeEthernet, testRecords))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
