package jtag

// IR opcodes, named from original_source/drivers/jtdev.h's documented
// constants used by the sequence layer on top of jtdev_func (the exact
// values match the MSP430 JTAG instruction register encoding the
// mspdebug drivers share across all physical transports).
const (
	irCntrlSigHigh = 0x34
	irCntrlSigLow  = 0x24
	irCntrlSig16   = 0x13
	irDataToAddr   = 0x35
	irData16       = 0x41
	irAddr16       = 0x83
	irShiftOut0    = 0x42
	irIDCode       = 0x91
	irEemDataExch  = 0x52
)

// Sequences implements the debug-protocol operations spec §4.7 names,
// built only out of Tap.IRShift/DRShift. Grounded on the structure of
// original_source's fet.c / drivers/jtag*.c halt/read/write/step
// sequences — reproduced here as the single canonical path every
// physical TapDriver shares, rather than duplicated per transport.
type Sequences struct {
	tap *Tap
}

func NewSequences(tap *Tap) *Sequences { return &Sequences{tap: tap} }

// IDCode reads the target's JTAG identification code, the first
// sanity check any connect sequence performs.
func (s *Sequences) IDCode() uint32 {
	s.tap.IRShift(irIDCode)
	return s.tap.DRShift(0, 32)
}

// Halt puts the CPU under JTAG control and stops it, the prerequisite
// for every other sequence in this file.
func (s *Sequences) Halt() {
	s.tap.IRShift(irCntrlSigHigh)
	s.tap.DRShift(0x2401, 16) // JTAG control bit + CPU halt
}

// Release takes the CPU back out of JTAG control and lets it run free.
func (s *Sequences) Release() {
	s.tap.IRShift(irCntrlSigLow)
	s.tap.DRShift(0, 16)
}

// ReadWord reads one word of target memory via the address/data
// register pair, pulsing TCLK to step the bus the way a real MSP430
// JTAG read does after the address is latched.
func (s *Sequences) ReadWord(addr uint16) uint16 {
	s.tap.IRShift(irAddr16)
	s.tap.DRShift(uint32(addr), 16)
	s.tap.IRShift(irData16)
	s.tap.drv.TCLKStrobe(1)
	return uint16(s.tap.DRShift(0, 16))
}

// WriteWord writes one word of target memory, mirroring ReadWord's
// address-then-data shift order but asserting the control signal's
// write bit first.
func (s *Sequences) WriteWord(addr uint16, value uint16) {
	s.tap.IRShift(irCntrlSigHigh)
	s.tap.DRShift(0x2408, 16) // write-enable bit
	s.tap.IRShift(irAddr16)
	s.tap.DRShift(uint32(addr), 16)
	s.tap.IRShift(irData16)
	s.tap.DRShift(uint32(value), 16)
	s.tap.drv.TCLKStrobe(1)
	s.tap.IRShift(irCntrlSigHigh)
	s.tap.DRShift(0x2401, 16)
}

// ReadRegs shifts out all 16 CPU registers through the data-to-address
// register IR (irDataToAddr captures a register into the shift path).
func (s *Sequences) ReadRegs() [16]uint32 {
	var regs [16]uint32
	for i := 0; i < 16; i++ {
		s.tap.IRShift(irDataToAddr)
		s.tap.DRShift(uint32(i), 4)
		s.tap.IRShift(irShiftOut0)
		regs[i] = s.tap.DRShift(0, 20)
	}
	return regs
}

// WriteRegs writes all 16 CPU registers back, the mirror of ReadRegs.
func (s *Sequences) WriteRegs(regs [16]uint32) {
	for i := 0; i < 16; i++ {
		s.tap.IRShift(irDataToAddr)
		s.tap.DRShift(uint32(i), 4)
		s.tap.IRShift(irShiftOut0)
		s.tap.DRShift(regs[i], 20)
	}
}

// SingleStep pulses TCLK once with the CPU held, executing exactly one
// instruction, matching jtdev_tclk_strobe's single-step usage.
func (s *Sequences) SingleStep() {
	s.tap.drv.TCLKStrobe(1)
}

// PSA computes the pseudo-signature over a memory range, XOR-folding
// each word through the polynomial 0x0805 the way the real PSA
// verification hardware does, used to confirm a flash write without
// reading the data back word-by-word (spec §4.7's PSA verify
// operation).
func PSA(words []uint16, startPC uint16) uint16 {
	const poly = 0x0805
	psa := startPC
	for _, w := range words {
		for b := 0; b < 16; b++ {
			bit := uint16(0)
			if psa&0x8000 != 0 {
				bit = poly
			}
			psa = (psa << 1) ^ bit
		}
		psa ^= w
	}
	return psa
}

// EraseMain erases a 4-segment "main" region or the full device,
// mirroring the original's erase sequence of selecting an erase mode
// via the control register then pulsing TCLK long enough for the
// operation to complete (modeled as one strobe of many cycles; actual
// timing is a transport concern, not a TAP-sequence one).
func (s *Sequences) EraseMain(mode int) {
	s.tap.IRShift(irCntrlSigHigh)
	s.tap.DRShift(uint32(0x2408|mode<<8), 16)
	s.tap.drv.TCLKStrobe(200)
}

// FuseBlown reports whether the JTAG security fuse has been blown,
// detected the way the original does: after releasing from reset, an
// IDCode read of exactly zero indicates the fuse is blown and the
// part can no longer be debugged (spec §4.7's fuse-blow detection
// edge case).
func (s *Sequences) FuseBlown() bool {
	return s.IDCode() == 0
}
