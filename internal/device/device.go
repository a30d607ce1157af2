// Package device defines the polymorphic Device contract (spec §4.4)
// shared by the simulator and JTAG back-ends, and a Manager that
// dispatches to whichever back-end is open.
//
// Grounded on original_source/device.h's device_ctl_t/device_status_t
// function-pointer table and the teacher's DebuggableCPU interface
// (debug_interface.go) for the Go idiom of a capability-set interface
// implemented polymorphically by multiple concrete back-ends, selected
// at creation the way coprocessor_manager.go's createWorker dispatches
// on cpuType.
package device

import (
	"sync/atomic"

	"mspcore/internal/isa"
)

// Ctl is one of the control operations in the device state machine
// (spec §3).
type Ctl int

const (
	CtlReset Ctl = iota
	CtlRun
	CtlHalt
	CtlStep
)

// PollStatus is the result of Poll, the only legal call while Running.
type PollStatus int

const (
	Running PollStatus = iota
	Halted
	Interrupted
	ErrorStatus
)

// EraseKind selects the granularity of a flash erase.
type EraseKind int

const (
	EraseAll EraseKind = iota
	EraseMain
	EraseSegment
)

// BreakpointType is one of the four kinds spec §3 names.
type BreakpointType int

const (
	BreakCode BreakpointType = iota
	BreakWatch
	BreakReadWatch
	BreakWriteWatch
)

// Breakpoint mirrors spec §3's Breakpoint value.
type Breakpoint struct {
	Addr    uint32
	Type    BreakpointType
	Enabled bool
	Dirty   bool // changed since the last Run; back-end's cue to reprogram hardware
}

// Device is the stable ABI between the core and the command layer
// (spec §4.4, §6). Every method not named Poll is only legal while
// Halted; a back-end receiving one while Running must either halt
// transparently (the simulator) or fail.
type Device interface {
	ReadMem(addr uint32, length int) ([]byte, error)
	WriteMem(addr uint32, data []byte) error
	GetRegs() (isa.Registers, error)
	SetRegs(regs isa.Registers) error
	Ctl(op Ctl) error
	Poll(cancel *Cancel) (PollStatus, error)
	Erase(kind EraseKind, addr uint32) error
	SetBreakpoint(slot int, bp Breakpoint) error
	GetConfigFuses() (uint8, error)

	MaxBreakpoints() int
	Core() isa.Core
	Close() error
}

// Cancel is the asynchronous cancellation flag spec §5 describes: set
// by an external signal handler to interrupt a long-running Poll.
// Grounded on the teacher's trapRunning atomic.Bool / trapStop pattern
// in debug_cpu_6502.go.
type Cancel struct {
	flag atomic.Bool
}

func NewCancel() *Cancel { return &Cancel{} }

func (c *Cancel) Raise()         { c.flag.Store(true) }
func (c *Cancel) Clear()         { c.flag.Store(false) }
func (c *Cancel) IsRaised() bool { return c.flag.Load() }
