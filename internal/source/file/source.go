// Package file reads captured frames from pcap and pcapng trace files.
package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/flowstat/internal/core"
)

// Format names the container format of an opened trace.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNG Format = "pcapng"
)

const pcapngMagic = 0x0a0d0d0a

var pcapMagics = map[uint32]bool{
	0xa1b2c3d4: true, // microsecond resolution
	0xa1b23c4d: true, // nanosecond resolution
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source reads an Ethernet trace file record by record.
type Source struct {
	path   string
	f      *os.File
	reader packetReader
	format Format
	frame  uint64
}

// Open opens path and sniffs its container format. Traces whose link
// type is not Ethernet are refused.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceOpen, err)
	}

	s, err := newSource(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newSource(path string, f *os.File) (*Source, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read magic: %v", core.ErrSourceOpen, path, err)
	}

	s := &Source{path: path, f: f}
	switch {
	case binary.LittleEndian.Uint32(magic) == pcapngMagic:
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceOpen, path, err)
		}
		s.reader, s.format = r, FormatPcapNG
	case pcapMagics[binary.LittleEndian.Uint32(magic)] || pcapMagics[binary.BigEndian.Uint32(magic)]:
		r, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceOpen, path, err)
		}
		s.reader, s.format = r, FormatPcap
	default:
		return nil, fmt.Errorf("%w: %s: unknown capture format (magic % x)", core.ErrSourceOpen, path, magic)
	}

	if lt := s.reader.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%w: %s: %s", core.ErrUnsupportedLinkType, path, lt)
	}
	return s, nil
}

// Next returns the next record. The returned data is owned by the caller.
func (s *Source) Next() (core.RawPacket, error) {
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.RawPacket{}, io.EOF
		}
		return core.RawPacket{}, fmt.Errorf("read %s record %d: %w", s.path, s.frame+1, err)
	}
	s.frame++

	return core.RawPacket{
		Data:       data,
		Timestamp:  core.MicrosFromTime(ci.Timestamp),
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		Frame:      s.frame,
	}, nil
}

// Format reports the detected container format.
func (s *Source) Format() Format { return s.format }

// Path returns the opened file path.
func (s *Source) Path() string { return s.path }

// Frames returns the number of records read so far.
func (s *Source) Frames() uint64 { return s.frame }

func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
