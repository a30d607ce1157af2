package binfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"mspcore/internal/errs"
	"mspcore/internal/symbols"
)

// emMSP430 is the vendor's non-standard e_machine value (spec §4.2
// table), which is why this parses ELF32 by hand instead of using the
// standard library's debug/elf — that package validates e_machine
// against its own known-good set and errors out before handing back
// anything usable for an unrecognized machine type. See DESIGN.md.
const emMSP430 = 0x69

const (
	shtProgbits = 1
	shtSymtab   = 2
	shfAlloc    = 0x2
)

type elf32Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf32Phdr struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type elf32Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type elf32Sym struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

// CheckELF32 reports whether data begins with the ELF32 magic+class
// byte spec §4.2's sniff table requires.
func CheckELF32(data []byte) bool {
	return len(data) >= 5 && bytes.Equal(data[:4], []byte{0x7F, 'E', 'L', 'F'}) && data[4] == 0x01
}

// ExtractELF32 reads ehdr/phdrs/shdrs by hand (see emMSP430 doc above)
// and feeds every PROGBITS+ALLOC section's bytes to emit, translating
// file offsets to physical addresses via the program headers exactly
// as original_source/elf32.c's file_to_phys does.
func ExtractELF32(r io.ReaderAt, size int64, emit Sink) error {
	ehdr, err := readEhdr(r)
	if err != nil {
		return err
	}
	if ehdr.Machine != emMSP430 {
		return errs.NewBinfile("elf32", 0, "not an MSP430 ELF32 file")
	}

	phdrs, err := readPhdrs(r, ehdr)
	if err != nil {
		return err
	}
	shdrs, err := readShdrs(r, ehdr)
	if err != nil {
		return err
	}
	var shstr []byte
	if int(ehdr.Shstrndx) < len(shdrs) && shdrs[ehdr.Shstrndx].Size > 0 {
		st := shdrs[ehdr.Shstrndx]
		shstr = make([]byte, st.Size)
		if _, err := r.ReadAt(shstr, int64(st.Offset)); err != nil {
			return errs.NewBinfile("elf32", 0, "can't read section names")
		}
	}

	for _, s := range shdrs {
		if s.Type == shtProgbits && s.Flags&shfAlloc != 0 {
			if s.Size == 0 {
				continue // zero-length section: skippable (spec §4.2)
			}
			addr := fileToPhys(phdrs, s.Offset)
			buf := make([]byte, s.Size)
			if _, err := r.ReadAt(buf, int64(s.Offset)); err != nil {
				return errs.NewBinfile("elf32", 0, "can't read section")
			}
			name := ""
			if int(s.Name) < len(shstr) {
				name = cString(shstr[s.Name:])
			}
			if err := emit(Chunk{Addr: addr, Data: buf, Section: name}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExtractELF32Symbols loads SYMTAB/STRTAB and feeds each name/value pair
// to syms.Define, mirroring elf32_syms.
func ExtractELF32Symbols(r io.ReaderAt, size int64, syms symbols.Table) error {
	ehdr, err := readEhdr(r)
	if err != nil {
		return err
	}
	shdrs, err := readShdrs(r, ehdr)
	if err != nil {
		return err
	}

	var symtab *elf32Shdr
	for i := range shdrs {
		if shdrs[i].Type == shtSymtab {
			symtab = &shdrs[i]
			break
		}
	}
	if symtab == nil {
		return errs.NewBinfile("elf32", 0, "no symbol table")
	}
	if symtab.Link == 0 || int(symtab.Link) >= len(shdrs) {
		return errs.NewBinfile("elf32", 0, "no string table")
	}
	strtab := shdrs[symtab.Link]

	strs := make([]byte, strtab.Size)
	if strtab.Size > 0 {
		if _, err := r.ReadAt(strs, int64(strtab.Offset)); err != nil {
			return errs.NewBinfile("elf32", 0, "can't read strings")
		}
	}

	const symSize = 16
	n := int(symtab.Size) / symSize
	buf := make([]byte, symtab.Size)
	if _, err := r.ReadAt(buf, int64(symtab.Offset)); err != nil {
		return errs.NewBinfile("elf32", 0, "can't read symbols")
	}
	for i := 0; i < n; i++ {
		var sym elf32Sym
		off := i * symSize
		sym.Name = binary.LittleEndian.Uint32(buf[off:])
		sym.Value = binary.LittleEndian.Uint32(buf[off+4:])
		if int(sym.Name) > len(strs) {
			return errs.NewBinfile("elf32", 0, "symbol name overflowing string table")
		}
		name := cString(strs[sym.Name:])
		if name != "" {
			syms.Define(name, sym.Value)
		}
	}
	return nil
}

func fileToPhys(phdrs []elf32Phdr, offset uint32) uint32 {
	for _, p := range phdrs {
		if offset >= p.Offset && offset-p.Offset < p.Filesz {
			return offset - p.Offset + p.Paddr
		}
	}
	return offset
}

func readEhdr(r io.ReaderAt) (elf32Ehdr, error) {
	var ehdr elf32Ehdr
	buf := make([]byte, 52)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return ehdr, errs.NewBinfile("elf32", 0, "couldn't read ELF header")
	}
	if !CheckELF32(buf) {
		return ehdr, errs.NewBinfile("elf32", 0, "not an ELF32 file")
	}
	copy(ehdr.Ident[:], buf[:16])
	ehdr.Type = binary.LittleEndian.Uint16(buf[16:])
	ehdr.Machine = binary.LittleEndian.Uint16(buf[18:])
	ehdr.Version = binary.LittleEndian.Uint32(buf[20:])
	ehdr.Entry = binary.LittleEndian.Uint32(buf[24:])
	ehdr.Phoff = binary.LittleEndian.Uint32(buf[28:])
	ehdr.Shoff = binary.LittleEndian.Uint32(buf[32:])
	ehdr.Flags = binary.LittleEndian.Uint32(buf[36:])
	ehdr.Ehsize = binary.LittleEndian.Uint16(buf[40:])
	ehdr.Phentsize = binary.LittleEndian.Uint16(buf[42:])
	ehdr.Phnum = binary.LittleEndian.Uint16(buf[44:])
	ehdr.Shentsize = binary.LittleEndian.Uint16(buf[46:])
	ehdr.Shnum = binary.LittleEndian.Uint16(buf[48:])
	ehdr.Shstrndx = binary.LittleEndian.Uint16(buf[50:])
	return ehdr, nil
}

const maxPhdrs = 32
const maxShdrs = 32

func readPhdrs(r io.ReaderAt, ehdr elf32Ehdr) ([]elf32Phdr, error) {
	if int(ehdr.Phnum) > maxPhdrs {
		return nil, errs.NewBinfile("elf32", 0, "too many program headers")
	}
	out := make([]elf32Phdr, ehdr.Phnum)
	for i := range out {
		off := int64(ehdr.Phoff) + int64(i)*int64(ehdr.Phentsize)
		buf := make([]byte, 32)
		if _, err := r.ReadAt(buf, off); err != nil {
			return nil, errs.NewBinfile("elf32", 0, "can't read phdr")
		}
		out[i] = elf32Phdr{
			Type:   binary.LittleEndian.Uint32(buf[0:]),
			Offset: binary.LittleEndian.Uint32(buf[4:]),
			Vaddr:  binary.LittleEndian.Uint32(buf[8:]),
			Paddr:  binary.LittleEndian.Uint32(buf[12:]),
			Filesz: binary.LittleEndian.Uint32(buf[16:]),
			Memsz:  binary.LittleEndian.Uint32(buf[20:]),
			Flags:  binary.LittleEndian.Uint32(buf[24:]),
			Align:  binary.LittleEndian.Uint32(buf[28:]),
		}
	}
	return out, nil
}

func readShdrs(r io.ReaderAt, ehdr elf32Ehdr) ([]elf32Shdr, error) {
	if int(ehdr.Shnum) > maxShdrs {
		return nil, errs.NewBinfile("elf32", 0, "too many section headers")
	}
	out := make([]elf32Shdr, ehdr.Shnum)
	for i := range out {
		off := int64(ehdr.Shoff) + int64(i)*int64(ehdr.Shentsize)
		buf := make([]byte, 40)
		if _, err := r.ReadAt(buf, off); err != nil {
			return nil, errs.NewBinfile("elf32", 0, "can't read shdr")
		}
		out[i] = elf32Shdr{
			Name:      binary.LittleEndian.Uint32(buf[0:]),
			Type:      binary.LittleEndian.Uint32(buf[4:]),
			Flags:     binary.LittleEndian.Uint32(buf[8:]),
			Addr:      binary.LittleEndian.Uint32(buf[12:]),
			Offset:    binary.LittleEndian.Uint32(buf[16:]),
			Size:      binary.LittleEndian.Uint32(buf[20:]),
			Link:      binary.LittleEndian.Uint32(buf[24:]),
			Info:      binary.LittleEndian.Uint32(buf[28:]),
			Addralign: binary.LittleEndian.Uint32(buf[32:]),
			Entsize:   binary.LittleEndian.Uint32(buf[36:]),
		}
	}
	return out, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
