package sim

import "mspcore/internal/errs"

// Clock identifies one of the three source clocks peripherals are
// stepped against (spec §4.6), matching simio_clock_t in
// original_source/simio_device.h.
type Clock int

const (
	MCLK Clock = iota
	SMCLK
	ACLK
	NumClocks
)

// Peripheral is the uniform capability set devices on the bus
// implement (spec §4.6). Grounded on simio_device.h's simio_class:
// any method may be a no-op; the bus dispatcher treats an unclaimed
// address as "unhandled" and falls through to the next device.
type Peripheral interface {
	Name() string
	Reset()
	// ReadWord/WriteWord/ReadByte/WriteByte return (handled, value,
	// error); handled=false means this device does not claim addr.
	ReadWord(addr uint32) (bool, uint16, error)
	WriteWord(addr uint32, v uint16) (bool, error)
	ReadByte(addr uint32) (bool, byte, error)
	WriteByte(addr uint32, v byte) (bool, error)
	// CheckInterrupt returns the pending IRQ number, or -1 if none.
	CheckInterrupt() int
	AckInterrupt(irq int)
	// Step advances this device's internal state by the given number
	// of edges on each clock, as measured since the last Step call.
	Step(sr uint16, clocks [NumClocks]int)
}

// Bus dispatches memory-mapped IO to whichever Peripheral claims an
// address first, matching the teacher's machine_bus.go composition of
// independent peripherals behind one bus with per-range routing, and
// original_source/simio_device.h's "first device that claims an
// address wins" rule.
type Bus struct {
	devices []Peripheral
}

// NewBus returns an empty bus; peripherals are added with Attach.
func NewBus() *Bus { return &Bus{} }

// Attach adds a peripheral to the bus. Order determines claim priority
// — the first attached device that claims an address wins.
func (b *Bus) Attach(p Peripheral) { b.devices = append(b.devices, p) }

func (b *Bus) Devices() []Peripheral { return b.devices }

func (b *Bus) ReadWord(addr uint32) (uint16, error) {
	for _, d := range b.devices {
		if ok, v, err := d.ReadWord(addr); ok {
			return v, err
		}
	}
	return 0, errs.NewUsage("bus.ReadWord", "no device claims this address")
}

func (b *Bus) WriteWord(addr uint32, v uint16) error {
	for _, d := range b.devices {
		if ok, err := d.WriteWord(addr, v); ok {
			return err
		}
	}
	return errs.NewUsage("bus.WriteWord", "no device claims this address")
}

func (b *Bus) ReadByte(addr uint32) (byte, error) {
	for _, d := range b.devices {
		if ok, v, err := d.ReadByte(addr); ok {
			return v, err
		}
	}
	return 0, errs.NewUsage("bus.ReadByte", "no device claims this address")
}

func (b *Bus) WriteByte(addr uint32, v byte) error {
	for _, d := range b.devices {
		if ok, err := d.WriteByte(addr, v); ok {
			return err
		}
	}
	return errs.NewUsage("bus.WriteByte", "no device claims this address")
}

// Reset resets every attached peripheral.
func (b *Bus) Reset() {
	for _, d := range b.devices {
		d.Reset()
	}
}

// PendingInterrupt scans devices in attach order and returns the first
// pending IRQ and the device that raised it, or ok=false if none.
func (b *Bus) PendingInterrupt() (irq int, dev Peripheral, ok bool) {
	for _, d := range b.devices {
		if n := d.CheckInterrupt(); n >= 0 {
			return n, d, true
		}
	}
	return 0, nil, false
}

// ClockAccumulator computes the clock edges delivered to every attached
// peripheral on each step, per spec §4.6: mclk=cycles*1, smclk=cycles*1, aclk=cycles/256 with fractional
// accumulation across calls, each masked by the corresponding SR bit.
type ClockAccumulator struct {
	aclkFrac float64
}

// Advance computes the edge counts for one step call given the elapsed
// cycles and the status register, accumulating ACLK's fractional
// remainder across calls.
func (c *ClockAccumulator) Advance(cycles int, sr uint16) [NumClocks]int {
	var out [NumClocks]int
	if sr&srCPUOff == 0 {
		out[MCLK] = cycles
	}
	if sr&srSCG1 == 0 {
		out[SMCLK] = cycles
	}
	if sr&srOscOff == 0 {
		c.aclkFrac += float64(cycles) / 256
		whole := int(c.aclkFrac)
		out[ACLK] = whole
		c.aclkFrac -= float64(whole)
	}
	return out
}

const (
	srCPUOff = 1 << 4
	srOscOff = 1 << 5
	srSCG1   = 1 << 7
)
