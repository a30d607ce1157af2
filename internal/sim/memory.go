// Package sim implements the functional simulator (spec §4.5), whose
// cycle counts come from the approximate Cycles model in execute.go
// rather than per-core cycle tables, and its peripheral bus (spec
// §4.6): a second, independent
// implementation of the target ISA that executes decoded instructions
// against a 128 KiB memory image, used both as a Device back-end and as
// the disassembler's correctness oracle.
//
// Grounded on original_source/drivers/sim.c for the memory layout and
// bounds-checked accessors, and on the teacher's memory_bus.go
// (IORegion, page-masked dispatch, first-claim-wins) for the Go bus
// idiom — generalized here from memory_bus.go's 32-bit page scheme to
// the target's 128 KiB image and its fixed low IO window.
package sim

import (
	"mspcore/internal/errs"
	"mspcore/internal/isa"
)

// MemSize is the simulator's total memory image size: 128 KiB, matching
// MEM_SIZE (1<<17) in original_source/drivers/sim.c.
const MemSize = 1 << 17

// Memory is the 128 KiB RAM image plus the peripheral Bus it defers to
// for addresses below ioEnd.
type Memory struct {
	ram    [MemSize]byte
	bus    *Bus
	ioEnd  uint32
	mask   uint32
}

// NewMemory returns a Memory whose IO window and address mask are set
// per the core variant (spec §4.5: Base is [0,0x200)/16-bit, Extended
// is [0,0x1000)/20-bit).
func NewMemory(core isa.Core, bus *Bus) *Memory {
	return &Memory{bus: bus, ioEnd: core.IOEnd(), mask: core.Mask()}
}

// ReadByte reads one byte, dispatching to the peripheral bus below
// ioEnd and to the RAM image otherwise.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	addr &= m.mask
	if addr < m.ioEnd {
		return m.bus.ReadByte(addr)
	}
	if int(addr) >= len(m.ram) {
		return 0, errs.NewUsage("sim.ReadByte", "address out of range")
	}
	return m.ram[addr], nil
}

// WriteByte writes one byte, dispatching the same way as ReadByte.
func (m *Memory) WriteByte(addr uint32, v byte) error {
	addr &= m.mask
	if addr < m.ioEnd {
		return m.bus.WriteByte(addr, v)
	}
	if int(addr) >= len(m.ram) {
		return errs.NewUsage("sim.WriteByte", "address out of range")
	}
	m.ram[addr] = v
	return nil
}

// ReadWord reads a little-endian word. A word access straddling ioEnd
// is routed entirely to whichever side its low byte falls in — matching
// the original's byte-routing of the matching peripheral for IO-region
// word reads.
func (m *Memory) ReadWord(addr uint32) (uint16, error) {
	addr &= m.mask
	if addr < m.ioEnd {
		return m.bus.ReadWord(addr)
	}
	if int(addr)+1 >= len(m.ram) {
		return 0, errs.NewUsage("sim.ReadWord", "address out of range")
	}
	return uint16(m.ram[addr]) | uint16(m.ram[addr+1])<<8, nil
}

// WriteWord writes a little-endian word, always exactly 2 bytes. No
// code in this package warns about a byte-width write to an IO
// register; such a write goes through WriteByte without comment.
func (m *Memory) WriteWord(addr uint32, v uint16) error {
	addr &= m.mask
	if addr < m.ioEnd {
		return m.bus.WriteWord(addr, v)
	}
	if int(addr)+1 >= len(m.ram) {
		return errs.NewUsage("sim.WriteWord", "address out of range")
	}
	m.ram[addr] = byte(v)
	m.ram[addr+1] = byte(v >> 8)
	return nil
}

// ReadBytes reads a run of bytes for disassembly/read_mem, clamped to
// the image bounds.
func (m *Memory) ReadBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := m.ReadByte(addr + uint32(i))
		if err != nil {
			break
		}
		out[i] = b
	}
	return out
}
