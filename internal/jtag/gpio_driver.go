//go:build linux

package jtag

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GPIOPins names which Linux GPIO character-device line each TAP
// signal is wired to (spec §4.7's "JTAG-over-GPIO" transport,
// grounded on original_source/util/gpio.c's bit-banging idiom,
// reimplemented here against the gpiochip character-device ioctl ABI
// rather than the original's /sys/class/gpio writes, which the kernel
// has since deprecated in favor of /dev/gpiochipN).
type GPIOPins struct {
	TCK, TMS, TDI, TDO, RST, TST, TCLK int
}

// Linux GPIO character-device ioctl numbers and request layout
// (include/uapi/linux/gpio.h), reproduced by hand here rather than
// through golang.org/x/sys/unix's higher-level bindings, to keep this
// file's correctness dependent only on the stable raw ioctl ABI and
// the package's well-established Syscall/IoctlSetInt primitives.
const (
	gpioGetLineHandleIoctl = 0xc16cb403 // _IOWR(0xb4, 3, struct gpiohandle_request)
	gpioHandleGetLineValuesIoctl = 0xc040b408 // _IOWR(0xb4, 8, struct gpiohandle_data)
	gpioHandleSetLineValuesIoctl = 0xc040b409 // _IOWR(0xb4, 9, struct gpiohandle_data)

	gpiohandleRequestOutput = 1 << 1
	gpiohandleRequestInput  = 1 << 0
)

type gpioHandleRequest struct {
	lineOffsets   [64]uint32
	flags         uint32
	defaultValues [64]uint8
	consumerLabel [32]byte
	lines         uint32
	fd            int32
}

type gpioHandleData struct {
	values [64]uint8
}

// GPIODriver bit-bangs a TAP over a Linux gpiochip device: one
// request-scoped line handle per signal, output lines latched with
// SetLineValues, TDO read with GetLineValues.
type GPIODriver struct {
	chip *os.File
	pins GPIOPins
	out  map[int]int32 // pin offset -> open line-handle fd
	tdoFd int32
}

// OpenGPIODriver opens chipPath (e.g. "/dev/gpiochip0") and requests
// an output handle for every TAP signal except TDO, which is requested
// as an input.
func OpenGPIODriver(chipPath string, pins GPIOPins) (*GPIODriver, error) {
	chip, err := os.OpenFile(chipPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("jtag: open %s: %w", chipPath, err)
	}
	d := &GPIODriver{chip: chip, pins: pins, out: map[int]int32{}}

	outputs := []int{pins.TCK, pins.TMS, pins.TDI, pins.RST, pins.TST, pins.TCLK}
	for _, off := range outputs {
		fd, err := requestLine(chip.Fd(), off, gpiohandleRequestOutput)
		if err != nil {
			return nil, err
		}
		d.out[off] = fd
	}
	fd, err := requestLine(chip.Fd(), pins.TDO, gpiohandleRequestInput)
	if err != nil {
		return nil, err
	}
	d.tdoFd = fd
	return d, nil
}

func requestLine(chipFd uintptr, offset int, flags uint32) (int32, error) {
	req := gpioHandleRequest{flags: flags, lines: 1}
	req.lineOffsets[0] = uint32(offset)
	copy(req.consumerLabel[:], "mspcore-jtag")
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, chipFd, gpioGetLineHandleIoctl, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return -1, fmt.Errorf("jtag: request line %d: %w", offset, errno)
	}
	return req.fd, nil
}

func (d *GPIODriver) setLine(fd int32, level bool) {
	var data gpioHandleData
	if level {
		data.values[0] = 1
	}
	unix.Syscall(unix.SYS_IOCTL, uintptr(fd), gpioHandleSetLineValuesIoctl, uintptr(unsafe.Pointer(&data)))
}

func (d *GPIODriver) SetTCK(level bool)  { d.setLine(d.out[d.pins.TCK], level) }
func (d *GPIODriver) SetTMS(level bool)  { d.setLine(d.out[d.pins.TMS], level) }
func (d *GPIODriver) SetTDI(level bool)  { d.setLine(d.out[d.pins.TDI], level) }
func (d *GPIODriver) SetRST(level bool)  { d.setLine(d.out[d.pins.RST], level) }
func (d *GPIODriver) SetTST(level bool)  { d.setLine(d.out[d.pins.TST], level) }
func (d *GPIODriver) SetTCLK(level bool) { d.setLine(d.out[d.pins.TCLK], level) }

func (d *GPIODriver) TDO() bool {
	var data gpioHandleData
	unix.Syscall(unix.SYS_IOCTL, uintptr(d.tdoFd), gpioHandleGetLineValuesIoctl, uintptr(unsafe.Pointer(&data)))
	return data.values[0] != 0
}

func (d *GPIODriver) TCLKStrobe(count int) {
	for i := 0; i < count; i++ {
		d.SetTCLK(false)
		d.SetTCLK(true)
	}
}

func (d *GPIODriver) Close() error {
	for _, fd := range d.out {
		unix.Close(int(fd))
	}
	unix.Close(int(d.tdoFd))
	return d.chip.Close()
}
