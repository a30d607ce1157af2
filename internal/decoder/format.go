// Formatting: decoded instructions to the text form spec §4.1 describes.
// Grounded on original_source/dis.c's format_operand/dis_format (the
// address-heuristic and column layout) and on the teacher's choice of a
// real ANSI library (github.com/fatih/color, named in the pack's
// rxid09672-sliver-plus and doismellburning-samoyed manifests as the
// ecosystem's default for CLI styling) rather than hand-rolled escapes.
package decoder

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"mspcore/internal/isa"
	"mspcore/internal/symbols"
)

var (
	mnemonicColor = color.New(color.FgCyan)
	registerColor = color.New(color.FgYellow)
	addressColor  = color.New(color.Bold)
)

// Format renders insn as text, in the style `MNEM   src, dst`. When
// enabled is false no ANSI escapes are emitted — the core still does the
// formatting, but the output collaborator never needs a second pass to
// strip color, matching the contract in spec §4.1.
func Format(insn Instruction, syms symbols.Table, enabled bool) string {
	mnem := insn.Opcode.Mnemonic()
	if insn.Width == isa.Byte {
		mnem += ".B"
	} else if insn.Width == isa.AWord {
		mnem += ".A"
	}

	paint := func(c *color.Color, s string) string {
		if !enabled {
			return s
		}
		return c.Sprint(s)
	}

	var b strings.Builder
	b.WriteString(paint(mnemonicColor, mnem))

	var operands []string
	if insn.HasSrc {
		operands = append(operands, formatOperand(insn.Src, syms, enabled))
	}
	if insn.HasDst {
		operands = append(operands, formatOperand(insn.Dst, syms, enabled))
	}
	if len(operands) > 0 {
		pad := 8 - b.Len()
		if pad < 1 {
			pad = 1
		}
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(strings.Join(operands, ", "))
	}
	return b.String()
}

func formatOperand(op isa.Operand, syms symbols.Table, enabled bool) string {
	paint := func(c *color.Color, s string) string {
		if !enabled {
			return s
		}
		return c.Sprint(s)
	}

	switch op.Kind {
	case isa.KindRegister:
		return paint(registerColor, isa.RegName(op.Reg))
	case isa.KindIndexed:
		return fmt.Sprintf("0x%x(%s)", op.Addr, paint(registerColor, isa.RegName(op.Reg)))
	case isa.KindIndirect:
		return "@" + paint(registerColor, isa.RegName(op.Reg))
	case isa.KindIndirectInc:
		return "@" + paint(registerColor, isa.RegName(op.Reg)) + "+"
	case isa.KindImmediate:
		return "#" + paint(addressColor, fmt.Sprintf("0x%x", op.Imm))
	case isa.KindSymbolic, isa.KindAbsolute:
		return "&" + formatAddress(op.Addr, syms, enabled)
	}
	return "?"
}

// formatAddress implements spec §4.1's address heuristic: ask the
// symbol collaborator for the nearest symbol at a zero offset, and only
// if that fails fall back to a bare hex literal. "Looks like an
// address" restricts the heuristic to the [0x200, 0xfff0) window so
// small immediates don't get misresolved against stray symbols.
func formatAddress(addr uint32, syms symbols.Table, enabled bool) string {
	if syms != nil && addr >= 0x200 && addr < 0xfff0 {
		if name, offset, ok := syms.Resolve(addr); ok && offset == 0 {
			if enabled {
				return addressColor.Sprint(name)
			}
			return name
		}
	}
	s := fmt.Sprintf("0x%04x", addr)
	if enabled {
		return addressColor.Sprint(s)
	}
	return s
}
