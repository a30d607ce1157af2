// Package isa holds the data model for the target's instruction set:
// opcodes, addressing modes, registers, and the name tables the decoder
// and simulator both consume. It defines types only — no decoding logic.
//
// Grounded on original_source/dis.h and dis.c (the opcode/mnemonic
// tables and the msp430_reg_names array), expressed in the teacher's
// disassembler-table idiom (debug_disasm_6502.go's opInfo6502 array).
package isa

// Width is an operation's data width.
type Width int

const (
	Byte Width = iota
	Word
	AWord // 20-bit "address word", used by extended-core MOVA/CMPA/etc.
)

func (w Width) String() string {
	switch w {
	case Byte:
		return "B"
	case AWord:
		return "A"
	default:
		return "W"
	}
}

// Class is the instruction's structural class.
type Class int

const (
	NoArg Class = iota
	Jump
	Single
	Double
	AddressExt
	RepeatExt
)

// Register indices. Index 0 is PC, 1 is SP, 2 is SR, 3 is the second
// constant-generator register CG2; 4..15 are general purpose.
const (
	PC = 0
	SP = 1
	SR = 2
	CG = 3
)

// RegName returns the canonical register name: PC, SP, SR, or R3..R15.
func RegName(r int) string {
	switch r {
	case PC:
		return "PC"
	case SP:
		return "SP"
	case SR:
		return "SR"
	default:
		return regNames[r]
	}
}

var regNames = [16]string{
	"PC", "SP", "SR", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

// AddrMode is the raw (pre-fold) addressing mode encoded in an
// instruction word's As/Ad field.
type AddrMode int

const (
	ModeRegister AddrMode = iota
	ModeIndexed
	ModeIndirect
	ModeIndirectInc
)

// OperandKind tags the decoded operand variant a caller observes. The
// decoder never emits KindIndexed with r==PC or KindIndirect/KindIndirectInc
// with r==SR/CG — those are folded into Symbolic/Absolute/Immediate before
// the instruction is returned (spec §3).
type OperandKind int

const (
	KindRegister OperandKind = iota
	KindIndexed
	KindIndirect
	KindIndirectInc
	KindImmediate
	KindSymbolic
	KindAbsolute
)

// Operand is a tagged variant over the operand forms named in spec §3.
type Operand struct {
	Kind OperandKind
	Reg  int    // valid for Register/Indexed/Indirect/IndirectInc
	Disp int32  // not set by the decoder; Indexed carries its displacement in Addr
	Imm  uint32 // valid for Immediate
	Addr uint32 // valid for Symbolic/Absolute, and the displacement for Indexed
}

// Opcode is a closed enumeration of real and emulated mnemonics.
type Opcode int

const (
	OpInvalid Opcode = iota

	// Single-operand (format II)
	OpRRC
	OpSWPB
	OpRRA
	OpSXT
	OpPUSH
	OpCALL
	OpRETI

	// Jump (format III)
	OpJNE
	OpJEQ
	OpJNC
	OpJC
	OpJN
	OpJGE
	OpJL
	OpJMP

	// Double-operand (format I)
	OpMOV
	OpADD
	OpADDC
	OpSUBC
	OpSUB
	OpCMP
	OpDADD
	OpBIT
	OpBIC
	OpBIS
	OpXOR
	OpAND

	// Address-extension instructions (20-bit core)
	OpMOVA
	OpCMPA
	OpADDA
	OpSUBA
	OpCALLA
	OpPUSHM
	OpPOPM
	OpRRCM
	OpRRAM
	OpRRUM
	OpRLAM

	// Emulated mnemonics (spec §4.1 rule 3; table is canonical)
	OpADC
	OpBR
	OpCLR
	OpCLRC
	OpCLRN
	OpCLRZ
	OpDADC
	OpDEC
	OpDECD
	OpDINT
	OpEINT
	OpINC
	OpINCD
	OpINV
	OpNOP
	OpPOP
	OpRET
	OpRLA
	OpRLC
	OpSBC
	OpSETC
	OpSETN
	OpSETZ
	OpTST
)

// Mnemonic returns the canonical lowercase-free text mnemonic, matching
// original_source/dis.c's msp_op_name table.
func (o Opcode) Mnemonic() string {
	if m, ok := mnemonics[o]; ok {
		return m
	}
	return "???"
}

var mnemonics = map[Opcode]string{
	OpRRC: "RRC", OpSWPB: "SWPB", OpRRA: "RRA", OpSXT: "SXT",
	OpPUSH: "PUSH", OpCALL: "CALL", OpRETI: "RETI",
	OpJNE: "JNE", OpJEQ: "JEQ", OpJNC: "JNC", OpJC: "JC",
	OpJN: "JN", OpJGE: "JGE", OpJL: "JL", OpJMP: "JMP",
	OpMOV: "MOV", OpADD: "ADD", OpADDC: "ADDC", OpSUBC: "SUBC",
	OpSUB: "SUB", OpCMP: "CMP", OpDADD: "DADD", OpBIT: "BIT",
	OpBIC: "BIC", OpBIS: "BIS", OpXOR: "XOR", OpAND: "AND",
	OpMOVA: "MOVA", OpCMPA: "CMPA", OpADDA: "ADDA", OpSUBA: "SUBA",
	OpCALLA: "CALLA", OpPUSHM: "PUSHM", OpPOPM: "POPM",
	OpRRCM: "RRCM", OpRRAM: "RRAM", OpRRUM: "RRUM", OpRLAM: "RLAM",
	OpADC: "ADC", OpBR: "BR", OpCLR: "CLR", OpCLRC: "CLRC",
	OpCLRN: "CLRN", OpCLRZ: "CLRZ", OpDADC: "DADC", OpDEC: "DEC",
	OpDECD: "DECD", OpDINT: "DINT", OpEINT: "EINT", OpINC: "INC",
	OpINCD: "INCD", OpINV: "INV", OpNOP: "NOP", OpPOP: "POP",
	OpRET: "RET", OpRLA: "RLA", OpRLC: "RLC", OpSBC: "SBC",
	OpSETC: "SETC", OpSETN: "SETN", OpSETZ: "SETZ", OpTST: "TST",
}

// Core selects which instruction set variant a decoder/simulator
// targets: Base is the 16-bit-address classic core, Extended adds the
// 20-bit address-extension instructions and a 20-bit register file.
type Core int

const (
	Base Core = iota
	Extended
)

// SR status bits (Registers[SR]).
const (
	SRCarry    = 1 << 0
	SRZero     = 1 << 1
	SRNegative = 1 << 2
	SRCPUOff   = 1 << 4
	SROscOff   = 1 << 5
	SRSCG0     = 1 << 6
	SRSCG1     = 1 << 7
	SRGIE      = 1 << 3
	SROverflow = 1 << 8
)

// Registers is the 16-entry register file. Values are stored as 32-bit
// but only the low 20 bits are meaningful (16 on a Base core).
type Registers [16]uint32

// Mask returns the address mask for the given core: 0xfffff for
// Extended, 0xffff for Base.
func (c Core) Mask() uint32 {
	if c == Extended {
		return 0xfffff
	}
	return 0xffff
}

// IOEnd is the end of the memory-mapped IO region (spec §3): 0x200 for
// Base, 0x1000 for Extended.
func (c Core) IOEnd() uint32 {
	if c == Extended {
		return 0x1000
	}
	return 0x200
}
