// Command mspcore is the minimal example binary wiring the decoder,
// binfile readers, device manager, and programmer together (spec §2's
// "the debugging core exposes a small set of operations a command
// layer drives"), in the same flag-driven single-binary shape as
// cmd/ie32to64.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"mspcore/internal/binfile"
	"mspcore/internal/decoder"
	"mspcore/internal/device"
	_ "mspcore/internal/jtag" // registers the JTAG device.Factory
	"mspcore/internal/isa"
	"mspcore/internal/logging"
	"mspcore/internal/programmer"
	_ "mspcore/internal/sim" // registers the Simulator device.Factory
	"mspcore/internal/symbols"
)

func main() {
	extended := flag.Bool("extended", false, "target the 20-bit extended core instead of the 16-bit base core")
	noColor := flag.Bool("no-color", false, "disable ANSI disassembly coloring")
	progFile := flag.String("prog", "", "program this file (ELF32/Intel HEX/TI-TXT/S-record) to the simulator at startup")
	erase := flag.Bool("erase", false, "erase main memory before programming")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mspcore [options]\n\nInteractive MSP430 debugging shell over the built-in simulator.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	core := isa.Base
	if *extended {
		core = isa.Extended
	}

	log := logging.NewStd(false)
	mgr := device.NewManager()
	if err := mgr.Open(context.Background(), device.Simulator, core); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	syms := symbols.NewMemory()

	if *progFile != "" {
		if err := loadAndProgram(mgr, *progFile, *erase, syms, log); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	shell := &shell{mgr: mgr, syms: syms, core: core, colorOn: !*noColor, log: log}
	shell.run()
}

func loadAndProgram(mgr *device.Manager, path string, erase bool, syms symbols.Table, log logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	format := binfile.Sniff(data)
	var chunks []binfile.Chunk
	sink := func(c binfile.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}

	switch format {
	case binfile.ELF32:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if err := binfile.ExtractELF32(f, info.Size(), sink); err != nil {
			return err
		}
		_ = binfile.ExtractELF32Symbols(f, info.Size(), syms)
	case binfile.IntelHEX:
		err = binfile.ExtractIHEX(strings.NewReader(string(data)), func(w string) { log.Warnf("%s", w) }, sink)
	case binfile.TIText:
		err = binfile.ExtractTIText(strings.NewReader(string(data)), sink)
	case binfile.SRecord:
		err = binfile.ExtractSRecord(strings.NewReader(string(data)), sink)
	default:
		return fmt.Errorf("unrecognized binary format: %s", path)
	}
	if err != nil {
		return err
	}

	return mgr.Do(context.Background(), func(dev device.Device) error {
		sess := programmer.NewSession(progDevice{dev}, programmer.Flags{Erase: erase}, log)
		for _, c := range chunks {
			if err := sess.Feed(c); err != nil {
				return err
			}
		}
		return sess.Finish()
	})
}

// progDevice adapts device.Device down to the programmer's narrower
// Device interface.
type progDevice struct{ device.Device }

// shell is a minimal line-oriented command loop exercising the core
// operations spec §6 names: disassemble, read memory, registers,
// run/halt/step, breakpoints.
type shell struct {
	mgr     *device.Manager
	syms    symbols.Table
	core    isa.Core
	colorOn bool
	log     logging.Logger
}

func (s *shell) run() {
	fmt.Println("mspcore interactive shell. Type 'help' for commands, 'quit' to exit.")
	scan := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("(mspcore) ")
		if !scan.Scan() {
			return
		}
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		if err := s.dispatch(line); err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (s *shell) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		os.Exit(0)
	case "help":
		s.printHelp()
	case "regs":
		return s.cmdRegs()
	case "md":
		return s.cmdMemDump(args)
	case "dis":
		return s.cmdDisassemble(args)
	case "run":
		return s.cmdCtl(device.CtlRun)
	case "halt":
		return s.cmdCtl(device.CtlHalt)
	case "step":
		return s.cmdCtl(device.CtlStep)
	case "reset":
		return s.cmdCtl(device.CtlReset)
	case "break":
		return s.cmdBreak(args)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

func (s *shell) printHelp() {
	fmt.Println(`commands:
  regs                    print all registers
  md <addr> <len>         dump memory
  dis <addr> <len>        disassemble memory
  run / halt / step       control execution
  reset                   reset the device
  break <slot> <addr>     set a code breakpoint
  quit                    exit`)
}

func (s *shell) cmdRegs() error {
	return s.mgr.Do(context.Background(), func(dev device.Device) error {
		regs, err := dev.GetRegs()
		if err != nil {
			return err
		}
		for i, v := range regs {
			fmt.Printf("%-4s = 0x%04x  ", isa.RegName(i), v)
			if i%4 == 3 {
				fmt.Println()
			}
		}
		fmt.Println()
		return nil
	})
}

func (s *shell) cmdMemDump(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: md <addr> <len>")
	}
	addr, err := parseHex(args[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	return s.mgr.Do(context.Background(), func(dev device.Device) error {
		data, err := dev.ReadMem(addr, length)
		if err != nil {
			return err
		}
		for i := 0; i < len(data); i += 16 {
			end := i + 16
			if end > len(data) {
				end = len(data)
			}
			fmt.Printf("%04x: % x\n", addr+uint32(i), data[i:end])
		}
		return nil
	})
}

func (s *shell) cmdDisassemble(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: dis <addr> <len>")
	}
	addr, err := parseHex(args[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	return s.mgr.Do(context.Background(), func(dev device.Device) error {
		read := func(a uint32, n int) []byte {
			b, _ := dev.ReadMem(a, n)
			return b
		}
		// length is a byte budget; no instruction is shorter than 2
		// bytes, so request up to length/2+1 lines and print only those
		// that start inside the budget.
		lines := decoder.Disassemble(read, s.syms, s.core, addr, length/2+1, s.colorOn)
		for _, l := range lines {
			if l.Address >= addr+uint32(length) {
				break
			}
			fmt.Printf("%04x: %-18s %s\n", l.Address, l.HexBytes, l.Text)
		}
		return nil
	})
}

func (s *shell) cmdCtl(op device.Ctl) error {
	return s.mgr.Do(context.Background(), func(dev device.Device) error {
		return dev.Ctl(op)
	})
}

func (s *shell) cmdBreak(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: break <slot> <addr>")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	addr, err := parseHex(args[1])
	if err != nil {
		return err
	}
	return s.mgr.Do(context.Background(), func(dev device.Device) error {
		return dev.SetBreakpoint(slot, device.Breakpoint{Addr: addr, Type: device.BreakCode, Enabled: true})
	})
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}
