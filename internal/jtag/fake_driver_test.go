package jtag

// fakeDriver is a TapDriver test double that records every pin write and
// replays a queue of TDO bits, one per clock pulse, so test code can
// assert exactly what bit pattern Tap shifted out and reconstruct what
// it shifted in from the TDI trace.
type fakeDriver struct {
	tdiTrace   []bool
	tmsTrace   []bool
	tdoQueue   []bool
	tckPulses  int
	tclkPulses int
	closed     bool
}

func (f *fakeDriver) SetTCK(level bool) {
	if level {
		f.tckPulses++
	}
}
func (f *fakeDriver) SetTMS(level bool) { f.tmsTrace = append(f.tmsTrace, level) }
func (f *fakeDriver) SetTDI(level bool) { f.tdiTrace = append(f.tdiTrace, level) }
func (f *fakeDriver) SetRST(level bool) {}
func (f *fakeDriver) SetTST(level bool) {}
func (f *fakeDriver) SetTCLK(level bool) {}
func (f *fakeDriver) TCLKStrobe(count int) { f.tclkPulses += count }
func (f *fakeDriver) Close() error         { f.closed = true; return nil }

func (f *fakeDriver) TDO() bool {
	if len(f.tdoQueue) == 0 {
		return false
	}
	v := f.tdoQueue[0]
	f.tdoQueue = f.tdoQueue[1:]
	return v
}
