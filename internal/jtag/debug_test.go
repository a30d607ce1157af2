package jtag

import "testing"

func TestPSAComputesOverWordStream(t *testing.T) {
	// Hand-folded reference: start at PC=0, fold a single word 0x0001
	// through the 0x0805 polynomial 16 times, then XOR the word itself.
	const poly = 0x0805
	var want uint16
	for b := 0; b < 16; b++ {
		bit := uint16(0)
		if want&0x8000 != 0 {
			bit = poly
		}
		want = (want << 1) ^ bit
	}
	want ^= 0x0001

	got := PSA([]uint16{0x0001}, 0)
	if got != want {
		t.Fatalf("PSA = %#x, want %#x", got, want)
	}
}

func TestPSAIsDeterministicAndOrderSensitive(t *testing.T) {
	a := PSA([]uint16{0x1111, 0x2222}, 0)
	b := PSA([]uint16{0x2222, 0x1111}, 0)
	if a == b {
		t.Fatalf("PSA should depend on word order, got equal signatures %#x", a)
	}
	if a != PSA([]uint16{0x1111, 0x2222}, 0) {
		t.Fatalf("PSA must be deterministic for the same input")
	}
}

func TestIDCodeShiftsIRThenReadsDR(t *testing.T) {
	drv := &fakeDriver{tdoQueue: make([]bool, 40)}
	// The IR shift consumes the first 8 TDO bits; index 8 is bit 0 of
	// the 32-bit DR shift.
	drv.tdoQueue[8] = true
	seq := NewSequences(NewTap(drv))

	got := seq.IDCode()
	if got != 1 {
		t.Fatalf("IDCode = %#x, want 1", got)
	}
}

func TestHaltAssertsControlThenCpuHaltBit(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	seq.Halt()

	// IRShift(irCntrlSigHigh) shifts 8 TDI bits, then DRShift(0x2401,16)
	// shifts 16 more: 24 TDI pulses total for Halt.
	if len(drv.tdiTrace) != 24 {
		t.Fatalf("tdi trace length = %d, want 24", len(drv.tdiTrace))
	}
	var ir, dr uint32
	for i, bit := range drv.tdiTrace[:8] {
		if bit {
			ir |= 1 << i
		}
	}
	for i, bit := range drv.tdiTrace[8:] {
		if bit {
			dr |= 1 << i
		}
	}
	if ir != irCntrlSigHigh || dr != 0x2401 {
		t.Fatalf("shifted IR %#x then DR %#x, want %#x then 0x2401", ir, dr, irCntrlSigHigh)
	}
}

func TestReleaseClearsJtagControl(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	seq.Release()

	if len(drv.tdiTrace) != 24 {
		t.Fatalf("tdi trace length = %d, want 24 (8-bit IR + 16-bit DR)", len(drv.tdiTrace))
	}
}

func TestReadWordStrobesTclkBetweenAddressAndData(t *testing.T) {
	drv := &fakeDriver{tdoQueue: make([]bool, 64)}
	// Shift order: IRShift(irAddr16)=8 + DRShift(addr,16)=16 +
	// IRShift(irData16)=8, then the data DRShift(0,16) starts at index 32.
	drv.tdoQueue[32] = true
	seq := NewSequences(NewTap(drv))

	got := seq.ReadWord(0x0200)
	if got != 1 {
		t.Fatalf("ReadWord = %#x, want 1", got)
	}
	if drv.tclkPulses != 1 {
		t.Fatalf("tclkPulses = %d, want exactly 1 strobe between address and data", drv.tclkPulses)
	}
}

func TestWriteWordStrobesTclkOnceAndRestoresRunBit(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	seq.WriteWord(0x0200, 0xbeef)

	if drv.tclkPulses != 1 {
		t.Fatalf("tclkPulses = %d, want 1", drv.tclkPulses)
	}
	// The final 16-bit DR shift writes 0x2401 back to the control register.
	var ctl uint32
	for i, bit := range drv.tdiTrace[len(drv.tdiTrace)-16:] {
		if bit {
			ctl |= 1 << i
		}
	}
	if ctl != 0x2401 {
		t.Fatalf("final control-register write = %#x, want 0x2401", ctl)
	}
}

func TestReadRegsShiftsAllSixteenRegisters(t *testing.T) {
	drv := &fakeDriver{tdoQueue: make([]bool, 16*20)}
	seq := NewSequences(NewTap(drv))
	regs := seq.ReadRegs()

	if len(regs) != 16 {
		t.Fatalf("ReadRegs returned %d entries, want 16", len(regs))
	}
}

func TestWriteRegsShiftsFortyBitsPerRegister(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	var regs [16]uint32
	for i := range regs {
		regs[i] = uint32(i) * 17
	}
	seq.WriteRegs(regs)
	// Each register issues IRShift(irDataToAddr)+DRShift(4 bits) then
	// IRShift(irShiftOut0)+DRShift(20 bits): 16*(8+4+8+20) = 640 TDI bits.
	want := 16 * (8 + 4 + 8 + 20)
	if len(drv.tdiTrace) != want {
		t.Fatalf("tdi trace length = %d, want %d", len(drv.tdiTrace), want)
	}
}

func TestSingleStepStrobesTclkOnce(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	seq.SingleStep()
	if drv.tclkPulses != 1 {
		t.Fatalf("tclkPulses = %d, want 1", drv.tclkPulses)
	}
}

func TestEraseMainStrobesLongTclkBurst(t *testing.T) {
	drv := &fakeDriver{}
	seq := NewSequences(NewTap(drv))
	seq.EraseMain(0)
	if drv.tclkPulses != 200 {
		t.Fatalf("tclkPulses = %d, want 200 for an erase burst", drv.tclkPulses)
	}
}

func TestFuseBlownTrueWhenIDCodeZero(t *testing.T) {
	drv := &fakeDriver{tdoQueue: make([]bool, 32)} // all zero bits
	seq := NewSequences(NewTap(drv))
	if !seq.FuseBlown() {
		t.Fatalf("expected FuseBlown true when IDCode reads zero")
	}
}

func TestFuseBlownFalseWhenIDCodeNonzero(t *testing.T) {
	drv := &fakeDriver{tdoQueue: make([]bool, 40)}
	drv.tdoQueue[8] = true // bit 0 of the DR shift, after the 8-bit IR shift
	seq := NewSequences(NewTap(drv))
	if seq.FuseBlown() {
		t.Fatalf("expected FuseBlown false when IDCode is nonzero")
	}
}
