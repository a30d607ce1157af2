package decoder

import (
	"fmt"

	"mspcore/internal/isa"
	"mspcore/internal/symbols"
)

// Line is one disassembled instruction, mirroring the shape of the
// teacher's DisassembledLine (debug_interface.go) generalized to this
// ISA's variable instruction length.
type Line struct {
	Address  uint32
	HexBytes string
	Text     string
	Len      int
}

// ReadMem is the callback a caller supplies to fetch bytes for
// disassembly, matching the teacher's readMem-callback shape in
// disassemble6502.
type ReadMem func(addr uint32, size int) []byte

// Disassemble decodes count instructions starting at addr, recovering
// from decode errors the way spec §7 requires: on a DecodeError it
// emits a "???" line and advances by 2 bytes so scanning continues. This
// is the one place besides Decode itself where an error is handled
// locally instead of propagated.
func Disassemble(read ReadMem, syms symbols.Table, core isa.Core, addr uint32, count int, colorEnabled bool) []Line {
	lines := make([]Line, 0, count)
	for i := 0; i < count; i++ {
		buf := read(addr, 6)
		insn, err := Decode(buf, addr, len(buf), core)
		if err != nil {
			lines = append(lines, Line{
				Address:  addr,
				HexBytes: hexBytes(buf, 2),
				Text:     "???",
				Len:      2,
			})
			addr += 2
			continue
		}
		lines = append(lines, Line{
			Address:  addr,
			HexBytes: hexBytes(buf, insn.Len),
			Text:     Format(insn, syms, colorEnabled),
			Len:      insn.Len,
		})
		addr += uint32(insn.Len)
	}
	return lines
}

func hexBytes(buf []byte, n int) string {
	if n > len(buf) {
		n = len(buf)
	}
	s := ""
	for i := 0; i < n; i++ {
		s += fmt.Sprintf("%02x ", buf[i])
	}
	return s
}
