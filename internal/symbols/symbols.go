// Package symbols defines the Symbols collaborator (spec §6) and a
// default in-memory table. The core only ever depends on the Table
// interface; command-layer code may substitute its own implementation
// (e.g. one backed by a persistent symbol database).
//
// Grounded on original_source/stab.h and sym.c: symbols are a flat
// name->value map with nearest-address lookup returning a non-negative
// offset, exactly mirroring stab_set/stab_nearest.
package symbols

import "sort"

// Table is the external Symbols contract (spec §6): define, resolve,
// enumerate, clear, lookup, delete.
type Table interface {
	Define(name string, value uint32)
	Resolve(addr uint32) (name string, offset uint32, ok bool)
	Enumerate(fn func(name string, value uint32))
	Clear()
	Lookup(name string) (uint32, bool)
	Delete(name string)
}

// Memory is the default Table: an in-memory name<->value table with an
// address index kept sorted for nearest-symbol lookup, matching
// stab_nearest's "nearest symbol at or below addr" semantics.
type Memory struct {
	byName map[string]uint32
	sorted []entry // kept sorted by value; rebuilt lazily
	dirty  bool
}

type entry struct {
	name  string
	value uint32
}

// NewMemory returns an empty symbol table.
func NewMemory() *Memory {
	return &Memory{byName: make(map[string]uint32)}
}

func (m *Memory) Define(name string, value uint32) {
	m.byName[name] = value
	m.dirty = true
}

func (m *Memory) Lookup(name string) (uint32, bool) {
	v, ok := m.byName[name]
	return v, ok
}

func (m *Memory) Delete(name string) {
	delete(m.byName, name)
	m.dirty = true
}

func (m *Memory) Clear() {
	m.byName = make(map[string]uint32)
	m.sorted = nil
	m.dirty = false
}

func (m *Memory) Enumerate(fn func(name string, value uint32)) {
	for n, v := range m.byName {
		fn(n, v)
	}
}

func (m *Memory) rebuild() {
	m.sorted = m.sorted[:0]
	for n, v := range m.byName {
		m.sorted = append(m.sorted, entry{n, v})
	}
	sort.Slice(m.sorted, func(i, j int) bool { return m.sorted[i].value < m.sorted[j].value })
	m.dirty = false
}

// Resolve finds the nearest symbol at or below addr and returns its name
// and the non-negative offset from it, matching stab_nearest. ok is
// false if the table is empty or every symbol lies above addr.
func (m *Memory) Resolve(addr uint32) (string, uint32, bool) {
	if m.dirty || m.sorted == nil {
		m.rebuild()
	}
	if len(m.sorted) == 0 {
		return "", 0, false
	}
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i].value > addr })
	if i == 0 {
		return "", 0, false
	}
	best := m.sorted[i-1]
	return best.name, addr - best.value, true
}

var _ Table = (*Memory)(nil)
