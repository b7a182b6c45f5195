package decoder

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// maxFilterPorts keeps every jump offset of the assembled program
// within the 8-bit skip field of a BPF conditional jump.
const maxFilterPorts = 64

// PortFilter is a classic BPF program accepting IPv4 TCP/UDP frames
// whose source or destination port is in a fixed set. Non-first IP
// fragments carry no transport header and are rejected.
type PortFilter struct {
	ports []uint16
	prog  []bpf.Instruction
	vm    *bpf.VM
}

// NewPortFilter assembles and verifies the filter program.
func NewPortFilter(ports []uint16) (*PortFilter, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("port filter needs at least one port")
	}
	if len(ports) > maxFilterPorts {
		return nil, fmt.Errorf("port filter supports at most %d ports, got %d", maxFilterPorts, len(ports))
	}

	prog := assemblePortFilter(ports)
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("invalid bpf program: %w", err)
	}
	return &PortFilter{ports: ports, prog: prog, vm: vm}, nil
}

// Match runs the program against a captured frame.
func (f *PortFilter) Match(frame []byte) bool {
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

// assemblePortFilter builds the equivalent of
// "ip and (tcp or udp) and not ip[6:2] & 0x1fff != 0 and (src or dst port in ports)".
//
// Layout:
//
//	0  ldh [12]                 ; EtherType
//	1  jne #0x0800, drop
//	2  ldb [23]                 ; IP protocol
//	3  jeq #6, 5
//	4  jne #17, drop
//	5  ldh [20]                 ; flags + fragment offset
//	6  jset #0x1fff, drop
//	7  ldxb 4*([14]&0xf)        ; X = IP header length
//	8  ldh [x+14]               ; source port
//	   jeq #port, accept        ; one per port
//	   ldh [x+16]               ; destination port
//	   jeq #port, accept        ; one per port
//	   drop: ret #0
//	   accept: ret #262144
func assemblePortFilter(ports []uint16) []bpf.Instruction {
	n := len(ports)
	drop := 10 + 2*n
	accept := drop + 1

	skip := func(from, to int) uint8 { return uint8(to - from - 1) }

	prog := make([]bpf.Instruction, 0, accept+1)
	prog = append(prog,
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x0800, SkipTrue: skip(1, drop)},
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 6, SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 17, SkipTrue: skip(4, drop)},
		bpf.LoadAbsolute{Off: 20, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: skip(6, drop)},
		bpf.LoadMemShift{Off: 14},
		bpf.LoadIndirect{Off: 14, Size: 2},
	)
	for _, p := range ports {
		prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(p), SkipTrue: skip(len(prog), accept)})
	}
	prog = append(prog, bpf.LoadIndirect{Off: 16, Size: 2})
	for _, p := range ports {
		prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(p), SkipTrue: skip(len(prog), accept)})
	}
	prog = append(prog,
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 262144},
	)
	return prog
}
