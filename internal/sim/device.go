// Package sim's device.go wires the functional simulator into the
// device.Device contract (spec §4.4), the way original_source/sim.c's
// sim_readmem/sim_writemem/sim_getregs/sim_setregs/sim_ctl/sim_erase
// implement device_t for the "sim" back-end.
package sim

import (
	"mspcore/internal/device"
	"mspcore/internal/errs"
	"mspcore/internal/isa"
)

func init() {
	device.RegisterFactory(device.Simulator, func(args any) (device.Device, error) {
		core := isa.Base
		if c, ok := args.(isa.Core); ok {
			core = c
		}
		return New(core), nil
	})
}

// maxBreakpoints is a generous software limit; the simulator isn't
// hardware-constrained the way a real JTAG EEM unit is (spec §4.7's
// 8-breakpoint FET limit does not apply here).
const maxBreakpoints = 32

// Device is the simulator's device.Device implementation: an owned
// Memory image, register file, peripheral bus, and breakpoint table,
// always "running" logically between Poll calls that execute batches
// of instructions until a code breakpoint or cancellation. Watchpoint
// entries (BreakWatch/BreakReadWatch/BreakWriteWatch) are stored but never
// checked.
type Device struct {
	cpu   *CPU
	bus   *Bus
	clock ClockAccumulator
	bps   [maxBreakpoints]device.Breakpoint
	core  isa.Core
	fuses uint8
}

// New creates a simulator Device for the given core variant, wired
// with a default peripheral set (hardware multiplier, two Timer_A
// instances, a watchdog, one GPIO port, and a console at 0x1b0), the
// same fixed-set approach original_source/sim.c takes when no
// additional simio devices are configured.
func New(core isa.Core) *Device {
	bus := NewBus()
	bus.Attach(NewWatchdog())
	bus.Attach(NewHWMult())
	bus.Attach(NewTimerA(0x160, 9))
	bus.Attach(NewTimerA(0x180, 8))
	bus.Attach(NewGPIO(0x20))
	bus.Attach(NewConsole(0x1b0, discardWriter{}))

	mem := NewMemory(core, bus)
	return &Device{cpu: NewCPU(mem, core), bus: bus, core: core, fuses: 0x3}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Bus exposes the peripheral bus so a caller (e.g. cmd/mspcore) can
// redirect the console to stdout or attach a Tracer.
func (d *Device) Bus() *Bus { return d.bus }

func (d *Device) ReadMem(addr uint32, length int) ([]byte, error) {
	return d.cpu.Mem.ReadBytes(addr, length), nil
}

func (d *Device) WriteMem(addr uint32, data []byte) error {
	for i, b := range data {
		if err := d.cpu.Mem.WriteByte(addr+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) GetRegs() (isa.Registers, error) { return d.cpu.Regs, nil }

func (d *Device) SetRegs(regs isa.Registers) error {
	d.cpu.Regs = regs
	return nil
}

func (d *Device) Ctl(op device.Ctl) error {
	switch op {
	case device.CtlReset:
		d.cpu.Regs = isa.Registers{}
		d.bus.Reset()
	case device.CtlRun:
		// spec §4.4: if PC already sits on an enabled code breakpoint,
		// step silently past it before the run actually starts, so a
		// second Run after a halt makes forward progress instead of
		// re-halting at the same instruction without ever executing it.
		if d.checkCodeBreak(d.cpu.Regs[isa.PC]) {
			if _, err := d.cpu.Step(); err != nil {
				return err
			}
		}
	case device.CtlHalt:
		// state is implicit in whether Poll is being called; nothing to do
	case device.CtlStep:
		_, err := d.cpu.Step()
		return err
	}
	return nil
}

// Poll runs up to 4096 instructions, stopping early when PC reaches an
// enabled code breakpoint (Halted), cancel is raised (Interrupted), or
// an execution error occurs, and returns Running once the batch is
// done, mirroring sim_ctl(RUN)'s run-to-breakpoint loop in the
// original. Watchpoint entries are not checked.
func (d *Device) Poll(cancel *device.Cancel) (device.PollStatus, error) {
	const batch = 4096
	for i := 0; i < batch; i++ {
		if cancel != nil && cancel.IsRaised() {
			return device.Interrupted, nil
		}
		pc := d.cpu.Regs[isa.PC]
		if hit := d.checkCodeBreak(pc); hit {
			return device.Halted, nil
		}

		if irq, src, ok := d.bus.PendingInterrupt(); ok && d.cpu.Regs[isa.SR]&isa.SRGIE != 0 {
			d.dispatchInterrupt(irq)
			src.AckInterrupt(irq)
		}

		cycles, err := d.cpu.Step()
		if err != nil {
			return device.ErrorStatus, err
		}
		clocks := d.clock.Advance(cycles, uint16(d.cpu.Regs[isa.SR]))
		for _, dev := range d.bus.Devices() {
			dev.Step(uint16(d.cpu.Regs[isa.SR]), clocks)
		}
	}
	return device.Running, nil
}

func (d *Device) checkCodeBreak(pc uint32) bool {
	for _, bp := range d.bps {
		if bp.Enabled && bp.Type == device.BreakCode && bp.Addr == pc {
			return true
		}
	}
	return false
}

// dispatchInterrupt pushes PC and SR and jumps to the vector table
// entry, mirroring the real ISA's interrupt-entry sequence (step_cpu's
// IRQ handling in the original).
func (d *Device) dispatchInterrupt(irq int) {
	sp := (d.cpu.Regs[isa.SP] - 2) & d.core.Mask()
	d.cpu.Mem.WriteWord(sp, uint16(d.cpu.Regs[isa.PC]))
	sp = (sp - 2) & d.core.Mask()
	d.cpu.Mem.WriteWord(sp, uint16(d.cpu.Regs[isa.SR]))
	d.cpu.Regs[isa.SP] = sp
	d.cpu.Regs[isa.SR] &^= isa.SRGIE

	vecAddr := uint32(0xffe0) + uint32(irq)*2
	target, err := d.cpu.Mem.ReadWord(vecAddr & d.core.Mask())
	if err == nil {
		d.cpu.Regs[isa.PC] = uint32(target) & d.core.Mask()
	}
}

func (d *Device) Erase(kind device.EraseKind, addr uint32) error {
	switch kind {
	case device.EraseAll:
		for i := range d.cpu.Mem.ram {
			d.cpu.Mem.ram[i] = 0xff
		}
	case device.EraseSegment:
		const segSize = 512
		base := addr &^ (segSize - 1)
		for i := uint32(0); i < segSize; i++ {
			if int(base+i) < len(d.cpu.Mem.ram) {
				d.cpu.Mem.ram[base+i] = 0xff
			}
		}
	case device.EraseMain:
		for i := uint32(0x1100); int(i) < len(d.cpu.Mem.ram); i++ {
			d.cpu.Mem.ram[i] = 0xff
		}
	}
	return nil
}

func (d *Device) SetBreakpoint(slot int, bp device.Breakpoint) error {
	if slot < 0 || slot >= maxBreakpoints {
		return errs.NewUsage("sim.SetBreakpoint", "slot out of range")
	}
	d.bps[slot] = bp
	return nil
}

func (d *Device) GetConfigFuses() (uint8, error) { return d.fuses, nil }
func (d *Device) MaxBreakpoints() int            { return maxBreakpoints }
func (d *Device) Core() isa.Core                 { return d.core }
func (d *Device) Close() error                   { return nil }
