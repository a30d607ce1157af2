package device

import (
	"context"
	"testing"

	"mspcore/internal/isa"
)

// fakeDevice is a minimal Device stub for exercising Manager's wiring
// without pulling in a real back-end.
type fakeDevice struct {
	closed   bool
	lastOp   Ctl
	readData []byte
}

func (f *fakeDevice) ReadMem(addr uint32, length int) ([]byte, error) { return f.readData, nil }
func (f *fakeDevice) WriteMem(addr uint32, data []byte) error         { return nil }
func (f *fakeDevice) GetRegs() (isa.Registers, error)                 { return isa.Registers{}, nil }
func (f *fakeDevice) SetRegs(regs isa.Registers) error                { return nil }
func (f *fakeDevice) Ctl(op Ctl) error                                { f.lastOp = op; return nil }
func (f *fakeDevice) Poll(cancel *Cancel) (PollStatus, error)         { return Halted, nil }
func (f *fakeDevice) Erase(kind EraseKind, addr uint32) error         { return nil }
func (f *fakeDevice) SetBreakpoint(slot int, bp Breakpoint) error     { return nil }
func (f *fakeDevice) GetConfigFuses() (uint8, error)                  { return 0xff, nil }
func (f *fakeDevice) MaxBreakpoints() int                             { return 8 }
func (f *fakeDevice) Core() isa.Core                                  { return isa.Base }
func (f *fakeDevice) Close() error                                    { f.closed = true; return nil }

func TestManagerOpenFailsWithoutRegisteredFactory(t *testing.T) {
	m := NewManager()
	err := m.Open(context.Background(), Kind(999), nil)
	if err == nil {
		t.Fatalf("expected error opening an unregistered device kind")
	}
}

func TestManagerOpenInstallsDeviceFromFactory(t *testing.T) {
	fd := &fakeDevice{}
	kind := Kind(1000)
	RegisterFactory(kind, func(args any) (Device, error) { return fd, nil })

	m := NewManager()
	if err := m.Open(context.Background(), kind, nil); err != nil {
		t.Fatal(err)
	}
	if m.dev != fd {
		t.Fatalf("Manager did not install the device returned by the factory")
	}
}

func TestManagerOpenClosesPreviousDevice(t *testing.T) {
	first := &fakeDevice{}
	second := &fakeDevice{}
	kind := Kind(1001)
	calls := 0
	RegisterFactory(kind, func(args any) (Device, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	})

	m := NewManager()
	if err := m.Open(context.Background(), kind, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Open(context.Background(), kind, nil); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Fatalf("opening a new device must close the previously open one")
	}
	if second.closed {
		t.Fatalf("the newly opened device must not be closed")
	}
}

func TestManagerDoRoutesToOpenDevice(t *testing.T) {
	fd := &fakeDevice{}
	kind := Kind(1002)
	RegisterFactory(kind, func(args any) (Device, error) { return fd, nil })

	m := NewManager()
	if err := m.Open(context.Background(), kind, nil); err != nil {
		t.Fatal(err)
	}
	err := m.Do(context.Background(), func(d Device) error {
		return d.Ctl(CtlRun)
	})
	if err != nil {
		t.Fatal(err)
	}
	if fd.lastOp != CtlRun {
		t.Fatalf("Do did not route the call to the open device")
	}
}

func TestManagerDoFailsWithNoDeviceOpen(t *testing.T) {
	m := NewManager()
	err := m.Do(context.Background(), func(d Device) error { return nil })
	if err == nil {
		t.Fatalf("expected error calling Do with no device open")
	}
}

func TestManagerCloseReleasesDevice(t *testing.T) {
	fd := &fakeDevice{}
	kind := Kind(1003)
	RegisterFactory(kind, func(args any) (Device, error) { return fd, nil })

	m := NewManager()
	if err := m.Open(context.Background(), kind, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !fd.closed {
		t.Fatalf("Close must close the underlying device")
	}
	if err := m.Do(context.Background(), func(d Device) error { return nil }); err == nil {
		t.Fatalf("Do should fail after Close")
	}
}
