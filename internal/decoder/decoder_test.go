package decoder

import (
	"testing"

	"mspcore/internal/isa"
)

// TestDecodeS1 covers scenario S1: MOV #0x1234, &0x5678 at offset 0x8000.
func TestDecodeS1(t *testing.T) {
	code := []byte{0xB2, 0x40, 0x34, 0x12, 0x78, 0x56}
	insn, err := Decode(code, 0x8000, len(code), isa.Base)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpMOV {
		t.Fatalf("expected MOV, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Len != 6 {
		t.Fatalf("expected len=6, got %d", insn.Len)
	}
	if insn.Src.Kind != isa.KindImmediate || insn.Src.Imm != 0x1234 {
		t.Fatalf("expected src immediate 0x1234, got %+v", insn.Src)
	}
	if insn.Dst.Kind != isa.KindAbsolute || insn.Dst.Addr != 0x5678 {
		t.Fatalf("expected dst absolute 0x5678, got %+v", insn.Dst)
	}
}

// TestDecodeS2 covers scenario S2: BR #0x9000, recognized as the
// emulated form of MOV #0x9000, PC.
func TestDecodeS2(t *testing.T) {
	code := []byte{0x30, 0x40, 0x00, 0x90}
	insn, err := Decode(code, 0x8000, len(code), isa.Base)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpBR {
		t.Fatalf("expected BR, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Len != 4 {
		t.Fatalf("expected len=4, got %d", insn.Len)
	}
	if insn.Dst.Kind != isa.KindImmediate || insn.Dst.Imm != 0x9000 {
		t.Fatalf("expected dst immediate 0x9000, got %+v", insn.Dst)
	}
}

// TestConstantGeneratorFolding checks the exact table from spec §4.1
// rule 1 / §8 property 3: every constant-generator addressing
// combination folds to the documented immediate.
func TestConstantGeneratorFolding(t *testing.T) {
	// ADD src, R4 with src = R3 in each addressing mode, and SR in
	// indirect modes. Double-operand word MOV(well ADD)  = 0x5000 |
	// srcReg<<8 | Ad<<7 | As<<4 | dstReg.
	cases := []struct {
		name   string
		srcReg int
		srcAs  int
		want   uint32
	}{
		{"R3 register", isa.CG, 0, 0},
		{"R3 indexed", isa.CG, 1, 1},
		{"R3 indirect", isa.CG, 2, 2},
		{"R3 indirect-inc", isa.CG, 3, 0xffff},
		{"SR indirect", isa.SR, 2, 4},
		{"SR indirect-inc", isa.SR, 3, 8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			word := uint16(0x5000) | uint16(c.srcReg)<<8 | uint16(c.srcAs)<<4 | 4
			code := []byte{byte(word), byte(word >> 8)}
			insn, err := Decode(code, 0x8000, len(code), isa.Base)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if insn.Src.Kind != isa.KindImmediate || insn.Src.Imm != c.want {
				t.Fatalf("expected Immediate(%#x), got %+v", c.want, insn.Src)
			}
		})
	}
}

// TestEmulatedInstructions spot-checks a representative subset of the
// canonical real->emulated table (spec §8 property 4).
func TestEmulatedInstructions(t *testing.T) {
	cases := []struct {
		name string
		code []byte
		want isa.Opcode
	}{
		{"RET = MOV @SP+,PC", []byte{0x30, 0x41}, isa.OpRET},
		{"POP R5 = MOV @SP+,R5", []byte{0x35, 0x41}, isa.OpPOP},
		{"CLRC = BIC #1,SR", []byte{0x12, 0xC3}, isa.OpCLRC},
		{"EINT = BIS #8,SR", []byte{0x32, 0xD2}, isa.OpEINT},
		{"TST R5 = CMP #0,R5", []byte{0x05, 0x93}, isa.OpTST},
		{"INV R5 = XOR #-1,R5", []byte{0x35, 0xE3}, isa.OpINV},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			insn, err := Decode(c.code, 0x8000, len(c.code), isa.Base)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if insn.Opcode != c.want {
				t.Fatalf("expected %s, got %s", c.want.Mnemonic(), insn.Opcode.Mnemonic())
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	code := []byte{0xB2, 0x40}
	_, err := Decode(code, 0x8000, len(code), isa.Base)
	if err == nil {
		t.Fatalf("expected a truncation error")
	}
}

// TestDecodeAddressExtRegisterForm covers the MOVA Rsrc, Rdst register
// form of the 20-bit address-extension opcode space (spec §4.1's
// extended-core instruction set).
func TestDecodeAddressExtRegisterForm(t *testing.T) {
	// op=0x0 (MOVA reg-form), src=R5, dst=R6.
	word := uint16(0x0056)
	code := []byte{byte(word), byte(word >> 8)}
	insn, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Class != isa.AddressExt {
		t.Fatalf("expected AddressExt class, got %v", insn.Class)
	}
	if insn.Opcode != isa.OpMOVA {
		t.Fatalf("expected MOVA, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Len != 2 {
		t.Fatalf("expected len=2, got %d", insn.Len)
	}
	if insn.Src.Kind != isa.KindRegister || insn.Src.Reg != 5 {
		t.Fatalf("expected src R5, got %+v", insn.Src)
	}
	if insn.Dst.Kind != isa.KindRegister || insn.Dst.Reg != 6 {
		t.Fatalf("expected dst R6, got %+v", insn.Dst)
	}
}

// TestDecodeAddressExtImmediateForm covers MOVA #imm20, Rdst: the
// 4-bit high nibble of the immediate rides in the opcode word's src
// field, the low 16 bits in a trailing extension word.
func TestDecodeAddressExtImmediateForm(t *testing.T) {
	// op=0x1 (MOVA imm-form), srcField=0x3 (imm bits 19:16), dst=R7.
	word := uint16(0x0137)
	code := []byte{byte(word), byte(word >> 8), 0x34, 0x12}
	insn, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpMOVA {
		t.Fatalf("expected MOVA, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Len != 4 {
		t.Fatalf("expected len=4, got %d", insn.Len)
	}
	want := uint32(0x31234)
	if insn.Src.Kind != isa.KindImmediate || insn.Src.Imm != want {
		t.Fatalf("expected src immediate 0x%x, got %+v", want, insn.Src)
	}
}

// TestDecodeAddressExtCALLA covers the register-indirect call form.
func TestDecodeAddressExtCALLA(t *testing.T) {
	word := uint16(0x0800) | uint16(9)<<4 // op=0x8 (CALLA), src=R9
	code := []byte{byte(word), byte(word >> 8)}
	insn, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpCALLA {
		t.Fatalf("expected CALLA, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Src.Kind != isa.KindRegister || insn.Src.Reg != 9 {
		t.Fatalf("expected src R9, got %+v", insn.Src)
	}
	if insn.HasDst {
		t.Fatalf("CALLA should have no destination operand")
	}
}

// TestDecodeAddressExtRepeatForm covers PUSHM #n, Rdst: the repeat
// count is encoded as srcField+1, and Rdst names the highest register
// in the pushed range.
func TestDecodeAddressExtRepeatForm(t *testing.T) {
	// op=0x9 (PUSHM), srcField=3 (repeat count = 4), dst=R10.
	word := uint16(0x0900) | uint16(3)<<4 | 10
	code := []byte{byte(word), byte(word >> 8)}
	insn, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpPUSHM {
		t.Fatalf("expected PUSHM, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Src.Kind != isa.KindImmediate || insn.Src.Imm != 4 {
		t.Fatalf("expected repeat count 4, got %+v", insn.Src)
	}
	if insn.Dst.Kind != isa.KindRegister || insn.Dst.Reg != 10 {
		t.Fatalf("expected dst R10, got %+v", insn.Dst)
	}
}

// TestDecodeRepeatExtExtendsAbsoluteAddress covers scenario from spec
// §4.1: an extension word (0x1800-0x1fff) preceding an ordinary MOV
// widens its absolute destination address beyond 16 bits.
func TestDecodeRepeatExtExtendsAbsoluteAddress(t *testing.T) {
	// Extension word: dstHi nibble = 0x5 (bits 19:16 of the dst address).
	ext := uint16(0x1800) | 0x5
	// MOV #0x1234, &0x6789 (SR-indexed absolute dst form).
	inner := []byte{0xB2, 0x40, 0x34, 0x12, 0x89, 0x67}
	code := append([]byte{byte(ext), byte(ext >> 8)}, inner...)

	insn, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if insn.Opcode != isa.OpMOV {
		t.Fatalf("expected MOV, got %s", insn.Opcode.Mnemonic())
	}
	if insn.Len != 8 {
		t.Fatalf("expected len=8 (2 extension + 6 inner), got %d", insn.Len)
	}
	wantAddr := uint32(0x56789)
	if insn.Dst.Kind != isa.KindAbsolute || insn.Dst.Addr != wantAddr {
		t.Fatalf("expected dst absolute 0x%x, got %+v", wantAddr, insn.Dst)
	}
}

func TestDecodeAddressExtTruncatedImmediate(t *testing.T) {
	word := uint16(0x0137)
	code := []byte{byte(word), byte(word >> 8)}
	_, err := Decode(code, 0x8000, len(code), isa.Extended)
	if err == nil {
		t.Fatalf("expected a truncation error for a missing extension word")
	}
}
