// device.go wires the JTAG sequence layer into the device.Device
// contract, the same role sim/device.go plays for the simulator,
// grounded on original_source/fet.c's fet_readmem/fet_writemem/
// fet_getregs family implementing device_t for the FET/JTAG back-end.
package jtag

import (
	"mspcore/internal/device"
	"mspcore/internal/errs"
	"mspcore/internal/isa"
)

func init() {
	device.RegisterFactory(device.JTAG, func(args any) (device.Device, error) {
		drv, ok := args.(TapDriver)
		if !ok {
			return nil, errs.NewUsage("jtag.Open", "args must be a TapDriver")
		}
		return New(drv), nil
	})
}

// maxBreakpoints matches the real EEM hardware's limit on MSP430F2xx/
// 4xx parts (spec §4.7).
const maxBreakpoints = 8

// Device adapts a Sequences to device.Device. Every method other than
// Poll assumes the CPU is halted, enforced by the command layer above
// this package per spec §4.4's state-machine contract.
type Device struct {
	seq   *Sequences
	core  isa.Core
	bps   [maxBreakpoints]device.Breakpoint
}

// New creates a JTAG Device driving drv. It resets and halts the
// target immediately, matching the original's connect sequence.
func New(drv TapDriver) *Device {
	tap := NewTap(drv)
	tap.Reset()
	seq := NewSequences(tap)
	seq.Halt()
	return &Device{seq: seq, core: isa.Base}
}

func (d *Device) ReadMem(addr uint32, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	a := uint16(addr)
	for len(out) < length {
		w := d.seq.ReadWord(a)
		out = append(out, byte(w), byte(w>>8))
		a += 2
	}
	return out[:length], nil
}

func (d *Device) WriteMem(addr uint32, data []byte) error {
	a := uint16(addr)
	for i := 0; i+1 < len(data); i += 2 {
		d.seq.WriteWord(a, uint16(data[i])|uint16(data[i+1])<<8)
		a += 2
	}
	if len(data)%2 == 1 {
		last := d.seq.ReadWord(a)
		v := uint16(data[len(data)-1]) | (last & 0xff00)
		d.seq.WriteWord(a, v)
	}
	return nil
}

func (d *Device) GetRegs() (isa.Registers, error) {
	raw := d.seq.ReadRegs()
	var regs isa.Registers
	for i, v := range raw {
		regs[i] = v
	}
	return regs, nil
}

func (d *Device) SetRegs(regs isa.Registers) error {
	var raw [16]uint32
	for i, v := range regs {
		raw[i] = v
	}
	d.seq.WriteRegs(raw)
	return nil
}

func (d *Device) Ctl(op device.Ctl) error {
	switch op {
	case device.CtlReset:
		d.seq.tap.Reset()
		d.seq.Halt()
	case device.CtlRun:
		// spec §4.4: if PC is already sitting on an enabled code
		// breakpoint, step silently past it before releasing the
		// target, so a second Run after a halt makes forward progress
		// instead of the target immediately trapping back to the same
		// instruction it never actually executed.
		regs, err := d.GetRegs()
		if err != nil {
			return err
		}
		if d.checkCodeBreak(regs[isa.PC]) {
			d.seq.SingleStep()
		}
		d.seq.Release()
	case device.CtlHalt:
		d.seq.Halt()
	case device.CtlStep:
		d.seq.SingleStep()
	}
	return nil
}

func (d *Device) checkCodeBreak(pc uint32) bool {
	for _, bp := range d.bps {
		if bp.Enabled && bp.Type == device.BreakCode && bp.Addr == pc {
			return true
		}
	}
	return false
}

// Poll is legal only while Running (spec §4.4). Since Release() hands
// the CPU back to free-running silicon, the only thing JTAG itself can
// observe without re-halting is the target's IDCode going to zero,
// i.e. FuseBlown — anything finer-grained (breakpoint hit) requires
// halting and reading PC against the configured breakpoint table,
// which is what this does each Poll call rather than blocking for an
// EEM-triggered halt signal the TAP-level sequences don't expose.
func (d *Device) Poll(cancel *device.Cancel) (device.PollStatus, error) {
	if cancel != nil && cancel.IsRaised() {
		return device.Interrupted, nil
	}
	if d.seq.FuseBlown() {
		return device.ErrorStatus, errs.NewDevice("jtag.Poll", "security fuse blown; target cannot be debugged")
	}

	d.seq.Halt()
	regs, err := d.GetRegs()
	if err != nil {
		return device.ErrorStatus, err
	}
	if d.checkCodeBreak(regs[isa.PC]) {
		return device.Halted, nil
	}
	d.seq.Release()
	return device.Running, nil
}

func (d *Device) Erase(kind device.EraseKind, addr uint32) error {
	mode := 0
	switch kind {
	case device.EraseAll:
		mode = 2
	case device.EraseMain:
		mode = 1
	case device.EraseSegment:
		mode = 0
		d.seq.WriteWord(0x0128, 0xa502)  // FCTL1 ERASE bit, matching the segment-erase sequence
		d.seq.WriteWord(uint16(addr), 0) // dummy write to the segment starts the erase
	}
	d.seq.EraseMain(mode)
	return nil
}

func (d *Device) SetBreakpoint(slot int, bp device.Breakpoint) error {
	if slot < 0 || slot >= maxBreakpoints {
		return errs.NewUsage("jtag.SetBreakpoint", "slot out of range")
	}
	d.bps[slot] = bp
	return nil
}

// GetConfigFuses reports the high byte of the 32-bit IDCode value as
// the fuse byte.
func (d *Device) GetConfigFuses() (uint8, error) {
	id := d.seq.IDCode()
	return uint8(id >> 24), nil
}

func (d *Device) MaxBreakpoints() int { return maxBreakpoints }
func (d *Device) Core() isa.Core      { return d.core }
func (d *Device) Close() error        { return d.seq.tap.drv.Close() }
