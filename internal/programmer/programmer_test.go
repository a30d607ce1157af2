package programmer

import (
	"bytes"
	"testing"

	"mspcore/internal/binfile"
	"mspcore/internal/device"
	"mspcore/internal/logging"
)

type fakeDevice struct {
	mem        map[uint32][]byte
	eraseCalls int
	writeCalls int
	resetCalls int
}

func newFakeDevice() *fakeDevice { return &fakeDevice{mem: map[uint32][]byte{}} }

func (f *fakeDevice) Erase(device.EraseKind, uint32) error { f.eraseCalls++; return nil }

func (f *fakeDevice) WriteMem(addr uint32, data []byte) error {
	f.writeCalls++
	buf := make([]byte, len(data))
	copy(buf, data)
	f.mem[addr] = buf
	return nil
}

func (f *fakeDevice) ReadMem(addr uint32, length int) ([]byte, error) {
	return f.mem[addr][:length], nil
}

func (f *fakeDevice) Ctl(op device.Ctl) error {
	if op == device.CtlReset {
		f.resetCalls++
	}
	return nil
}

// TestProgrammerScenarioS3 covers spec scenario S3: two adjacent
// 2-byte chunks coalesce into one 4-byte write and one erase.
func TestProgrammerScenarioS3(t *testing.T) {
	dev := newFakeDevice()
	sess := NewSession(dev, Flags{Erase: true}, logging.Nop{})

	if err := sess.Feed(binfile.Chunk{Addr: 0x8000, Data: []byte{0x11, 0x22}}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Feed(binfile.Chunk{Addr: 0x8002, Data: []byte{0x33, 0x44}}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Finish(); err != nil {
		t.Fatal(err)
	}

	if dev.eraseCalls != 1 {
		t.Errorf("eraseCalls = %d, want 1", dev.eraseCalls)
	}
	if dev.writeCalls != 1 {
		t.Errorf("writeCalls = %d, want 1", dev.writeCalls)
	}
	got := dev.mem[0x8000]
	want := []byte{0x11, 0x22, 0x33, 0x44}
	if !bytes.Equal(got, want) {
		t.Errorf("mem[0x8000] = %x, want %x", got, want)
	}
	if dev.resetCalls != 1 {
		t.Errorf("resetCalls = %d, want 1", dev.resetCalls)
	}
}

// TestProgrammerCoalescing covers property 6: a contiguous N-byte
// region split across many small chunks issues exactly
// ceil(N/BufSize) write_mem calls and exactly one erase.
func TestProgrammerCoalescing(t *testing.T) {
	dev := newFakeDevice()
	sess := NewSession(dev, Flags{Erase: true}, logging.Nop{})

	const n = BufSize*2 + 37
	addr := uint32(0x1000)
	chunkSize := 7
	for off := 0; off < n; off += chunkSize {
		sz := chunkSize
		if off+sz > n {
			sz = n - off
		}
		data := bytes.Repeat([]byte{0xAA}, sz)
		if err := sess.Feed(binfile.Chunk{Addr: addr + uint32(off), Data: data}); err != nil {
			t.Fatal(err)
		}
	}
	if err := sess.Finish(); err != nil {
		t.Fatal(err)
	}

	wantWrites := (n + BufSize - 1) / BufSize
	if dev.writeCalls != wantWrites {
		t.Errorf("writeCalls = %d, want %d", dev.writeCalls, wantWrites)
	}
	if dev.eraseCalls != 1 {
		t.Errorf("eraseCalls = %d, want 1", dev.eraseCalls)
	}
	if sess.TotalWritten() != uint32(n) {
		t.Errorf("TotalWritten = %d, want %d", sess.TotalWritten(), n)
	}
}

// TestProgrammerDiscontiguousFlush covers the flush-on-discontiguity
// rule directly: a gap between chunks forces two separate writes.
func TestProgrammerDiscontiguousFlush(t *testing.T) {
	dev := newFakeDevice()
	sess := NewSession(dev, Flags{}, logging.Nop{})

	if err := sess.Feed(binfile.Chunk{Addr: 0x8000, Data: []byte{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Feed(binfile.Chunk{Addr: 0x9000, Data: []byte{3, 4}}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Finish(); err != nil {
		t.Fatal(err)
	}
	if dev.writeCalls != 2 {
		t.Errorf("writeCalls = %d, want 2", dev.writeCalls)
	}
	if dev.eraseCalls != 0 {
		t.Errorf("eraseCalls = %d, want 0 (erase flag not set)", dev.eraseCalls)
	}
}
