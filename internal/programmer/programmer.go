// Package programmer implements the flash programmer (spec §4.3): it
// buffers an arbitrary-order Chunk stream, coalesces contiguous runs,
// erases main memory once before the first write, and flushes in
// device-sized blocks.
//
// Grounded directly on original_source/util/prog.c/prog.h: the
// PROG_BUFSIZE constant, the flush-on-discontiguity-or-section-change
// rule (prog_feed), and the erase-once/flush-per-call sequencing
// (prog_flush) are ported line-for-line into idiomatic Go.
package programmer

import (
	"bytes"
	"fmt"

	"mspcore/internal/binfile"
	"mspcore/internal/device"
	"mspcore/internal/errs"
	"mspcore/internal/logging"
)

// BufSize matches PROG_BUFSIZE in the original: writes are split into
// at most this many bytes per device.WriteMem call.
const BufSize = 4096

// Flags select the programmer's erase/verify behavior.
type Flags struct {
	Erase  bool
	Verify bool
}

// Session is the programmer session state (spec §3): pending_buf,
// pending_addr, pending_section, have_erased, flags. The invariant
// "pending_buf non-empty implies it holds a contiguous run starting at
// pending_addr" is maintained by Feed/Flush together.
type Session struct {
	pendingAddr    uint32
	pendingSection string
	pendingBuf     []byte
	haveErased     bool
	flags          Flags

	totalWritten uint32
	writeCalls   int
	eraseCalls   int

	dev Device
	log logging.Logger
}

// Device is the subset of device.Device the programmer drives.
type Device interface {
	Erase(kind device.EraseKind, addr uint32) error
	WriteMem(addr uint32, data []byte) error
	ReadMem(addr uint32, length int) ([]byte, error)
	Ctl(op device.Ctl) error
}

// NewSession returns a fresh programmer session bound to dev.
func NewSession(dev Device, flags Flags, log logging.Logger) *Session {
	if log == nil {
		log = logging.Nop{}
	}
	return &Session{dev: dev, flags: flags, log: log}
}

// Feed accepts one chunk, per prog_feed: flush on discontiguity or
// section change, then append to the pending buffer, splitting at
// BufSize by flushing when full.
func (s *Session) Feed(c binfile.Chunk) error {
	if len(s.pendingBuf) > 0 &&
		(s.pendingAddr+uint32(len(s.pendingBuf)) != c.Addr || s.pendingSection != c.Section) {
		if err := s.Flush(); err != nil {
			return err
		}
	}

	if len(s.pendingBuf) == 0 {
		s.pendingAddr = c.Addr
		s.pendingSection = c.Section
	}

	data := c.Data
	for len(data) > 0 {
		room := BufSize - len(s.pendingBuf)
		if room == 0 {
			if err := s.Flush(); err != nil {
				return err
			}
			room = BufSize
		}
		n := room
		if n > len(data) {
			n = len(data)
		}
		s.pendingBuf = append(s.pendingBuf, data[:n]...)
		data = data[n:]
	}
	return nil
}

// Flush mirrors prog_flush: erase once (if requested), write the
// pending buffer, optionally verify, then advance and clear state.
func (s *Session) Flush() error {
	if len(s.pendingBuf) == 0 {
		return nil
	}

	if s.flags.Erase && !s.haveErased {
		s.log.Infof("erasing...")
		if err := s.dev.Erase(device.EraseMain, 0); err != nil {
			return err
		}
		s.haveErased = true
		s.eraseCalls++
	}

	s.log.Infof("writing %d bytes to 0x%04x [section: %s]", len(s.pendingBuf), s.pendingAddr, s.pendingSection)
	if err := s.dev.WriteMem(s.pendingAddr, s.pendingBuf); err != nil {
		return err
	}
	s.writeCalls++

	if s.flags.Verify {
		back, err := s.dev.ReadMem(s.pendingAddr, len(s.pendingBuf))
		if err != nil {
			return err
		}
		if !bytes.Equal(back, s.pendingBuf) {
			return verifyMismatch(s.pendingAddr)
		}
	}

	s.totalWritten += uint32(len(s.pendingBuf))
	s.pendingAddr += uint32(len(s.pendingBuf))
	s.pendingBuf = s.pendingBuf[:0]
	return nil
}

// Finish issues the final flush and resets the device, per spec §4.3's
// end-of-stream sequence.
func (s *Session) Finish() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.dev.Ctl(device.CtlReset)
}

// TotalWritten, WriteCalls and EraseCalls expose counters used by
// property 6 (programmer coalescing) in tests and diagnostics.
func (s *Session) TotalWritten() uint32 { return s.totalWritten }
func (s *Session) WriteCalls() int      { return s.writeCalls }
func (s *Session) EraseCalls() int      { return s.eraseCalls }

func verifyMismatch(addr uint32) error {
	return errs.NewDevice("verify", fmt.Sprintf("readback mismatch at 0x%04x", addr))
}
