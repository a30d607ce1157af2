package device

import (
	"context"

	"golang.org/x/sync/semaphore"

	"mspcore/internal/errs"
)

// Kind selects which back-end Open creates, mirroring the original's
// device_class selection at startup (spec §9's "function-pointer
// polymorphism maps to trait-like capability sets" note).
type Kind int

const (
	Simulator Kind = iota
	JTAG
)

// Factory creates a back-end of a given kind. Concrete back-ends
// register themselves via RegisterFactory at package init time, the
// same deferred-registration shape as the teacher's coprocessor
// factories in coprocessor_manager.go's createWorker switch — except
// here the switch is a map, since back-ends are data, not a fixed
// closed set of CPU cores.
type Factory func(args any) (Device, error)

var factories = map[Kind]Factory{}

// RegisterFactory installs the constructor for a back-end kind. Called
// from each back-end package's init().
func RegisterFactory(kind Kind, f Factory) { factories[kind] = f }

// Manager owns at most one open Device at a time (spec §5: "the core
// holds one device at a time") and serializes concurrent callers onto
// it with a single-permit semaphore, so a background breakpoint poller
// (modeled on the teacher's trapLoop goroutine) can safely interleave
// with foreground command dispatch without corrupting back-end state.
// golang.org/x/sync is a direct dependency carried over from the
// teacher's go.mod.
type Manager struct {
	dev  Device
	kind Kind
	sem  *semaphore.Weighted
}

// NewManager returns a Manager with no device open.
func NewManager() *Manager {
	return &Manager{sem: semaphore.NewWeighted(1)}
}

// Open creates and installs a back-end of the given kind, closing any
// previously open device first.
func (m *Manager) Open(ctx context.Context, kind Kind, args any) error {
	f, ok := factories[kind]
	if !ok {
		return errs.NewUsage("device.Open", "no factory registered for this kind")
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	if m.dev != nil {
		_ = m.dev.Close()
	}
	dev, err := f(args)
	if err != nil {
		return err
	}
	m.dev = dev
	m.kind = kind
	return nil
}

// Do runs fn with exclusive access to the currently open device. Every
// device.Device method call in this module must be routed through Do
// so the semaphore actually serializes access.
func (m *Manager) Do(ctx context.Context, fn func(Device) error) error {
	if m.dev == nil {
		return errs.NewUsage("device.Do", "no device open")
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)
	return fn(m.dev)
}

// Close releases the current device, if any.
func (m *Manager) Close() error {
	if m.dev == nil {
		return nil
	}
	err := m.dev.Close()
	m.dev = nil
	return err
}
