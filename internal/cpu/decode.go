package cpu

// Instruction is the tagged union produced by Decode. Exec dispatches on
// its concrete type, then on the Op field within it, replacing the
// original interpreter's opcode/funct3/funct7 switch tower with two levels
// of Go switch (spec.md §9's tagged-union design note).
type Instruction interface{ isInstruction() }

// RType covers register-register ALU ops (opcode 0110011/0111011) and the
// R-encoded floating point/atomic instructions, which reuse the same
// 32-bit layout with different opcode/funct7/funct3 combinations.
type RType struct {
	Op         ROp
	Rd, Rs1, Rs2, Rs3 uint32
	Funct3     uint32
	RM         uint32 // rounding mode, aliases Funct3 for FP ops
}

func (RType) isInstruction() {}

type IType struct {
	Op       IOp
	Rd, Rs1  uint32
	Imm      int32
	Funct3   uint32
}

func (IType) isInstruction() {}

type SType struct {
	Op       SOp
	Rs1, Rs2 uint32
	Imm      int32
}

func (SType) isInstruction() {}

type BType struct {
	Op       BOp
	Rs1, Rs2 uint32
	Imm      int32
}

func (BType) isInstruction() {}

type UType struct {
	Op  UOp
	Rd  uint32
	Imm int64
}

func (UType) isInstruction() {}

type JType struct {
	Rd  uint32
	Imm int32
}

func (JType) isInstruction() {}

type CSRType struct {
	Op     CSROp
	CSR    uint16
	Rd, Rs uint32
	Imm    bool   // true when the source operand is the 5-bit rs field itself (CSRRxI)
	Raw    uint32 // the encoded instruction word, for mtval/stval on an illegal-CSR trap
}

func (CSRType) isInstruction() {}

// SystemType covers ECALL/EBREAK/xRET/WFI/SFENCE.VMA, all encoded with
// rd=rs1=0 in the SYSTEM major opcode.
type SystemType struct{ Op SystemOp }

func (SystemType) isInstruction() {}

// AMOType covers LR/SC/AMO*, all R-encoded with aq/rl bits ignored (single
// hart, spec.md §5).
type AMOType struct {
	Op       AMOOp
	Rd, Rs1, Rs2 uint32
}

func (AMOType) isInstruction() {}

// FRType covers the OP-FP major opcode (arithmetic, compare, convert,
// class, move).
type FRType struct {
	Op           FROp
	Rd, Rs1, Rs2 uint32
	RM           uint32
	Double       bool
}

func (FRType) isInstruction() {}

// FMAType covers FMADD/FMSUB/FNMSUB/FNMADD.
type FMAType struct {
	Neg          bool
	Sub          bool
	Rd, Rs1, Rs2, Rs3 uint32
	RM           uint32
	Double       bool
}

func (FMAType) isInstruction() {}

type ROp int

const (
	OpADD ROp = iota
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW
)

type IOp int

const (
	OpLB IOp = iota
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpLD
	OpLWU
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpJALR
	OpFLW
	OpFLD
)

type SOp int

const (
	OpSB SOp = iota
	OpSH
	OpSW
	OpSD
	OpFSW
	OpFSD
)

type BOp int

const (
	OpBEQ BOp = iota
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
)

type UOp int

const (
	OpLUI UOp = iota
	OpAUIPC
)

type CSROp int

const (
	OpCSRRW CSROp = iota
	OpCSRRS
	OpCSRRC
)

type SystemOp int

const (
	OpECALL SystemOp = iota
	OpEBREAK
	OpMRET
	OpSRET
	OpWFI
	OpSFENCEVMA
	OpFENCE
)

type AMOOp int

const (
	OpLRW AMOOp = iota
	OpLRD
	OpSCW
	OpSCD
	OpAMOSWAPW
	OpAMOSWAPD
	OpAMOADDW
	OpAMOADDD
	OpAMOXORW
	OpAMOXORD
	OpAMOANDW
	OpAMOANDD
	OpAMOORW
	OpAMOORD
	OpAMOMINW
	OpAMOMIND
	OpAMOMAXW
	OpAMOMAXD
	OpAMOMINUW
	OpAMOMINUD
	OpAMOMAXUW
	OpAMOMAXUD
)

type FROp int

const (
	OpFADD FROp = iota
	OpFSUB
	OpFMUL
	OpFDIV
	OpFSQRT
	OpFSGNJ
	OpFSGNJN
	OpFSGNJX
	OpFMIN
	OpFMAX
	OpFCVTWS  // FCVT.W.{S,D}
	OpFCVTWUS // FCVT.WU.{S,D}
	OpFCVTLS  // FCVT.L.{S,D}
	OpFCVTLUS // FCVT.LU.{S,D}
	OpFCVTSW  // FCVT.{S,D}.W
	OpFCVTSWU
	OpFCVTSL
	OpFCVTSLU
	OpFCVTSD // FCVT.S.D / FCVT.D.S
	OpFMVXW  // FMV.X.W / FMV.X.D
	OpFMVWX  // FMV.W.X / FMV.D.X
	OpFEQ
	OpFLT
	OpFLE
	OpFCLASS
)

// parse* mirror the teacher's field extraction exactly (main.go
// parseI/S/B/U/J/CSR/R); Decode wraps them with an opcode/funct dispatch
// that produces a tagged Instruction instead of executing inline.

func signExtend(v, bits uint32) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func parseR32(instr uint32) (funct7, rs2, rs1, funct3, rd uint32) {
	return (instr >> 25) & 0x7f, (instr >> 20) & 0x1f, (instr >> 15) & 0x1f, (instr >> 12) & 0x7, (instr >> 7) & 0x1f
}

func parseI32(instr uint32) (imm int32, rs1, funct3, rd uint32) {
	imm = signExtend(instr>>20, 12)
	return imm, (instr >> 15) & 0x1f, (instr >> 12) & 0x7, (instr >> 7) & 0x1f
}

func parseS32(instr uint32) (imm int32, rs1, rs2, funct3 uint32) {
	raw := ((instr >> 25) & 0x7f << 5) | (instr>>7)&0x1f
	return signExtend(raw, 12), (instr >> 15) & 0x1f, (instr >> 20) & 0x1f, (instr >> 12) & 0x7
}

func parseB32(instr uint32) (imm int32, rs1, rs2, funct3 uint32) {
	raw := (instr>>7)&0x1e | (instr>>25)&0x3f<<5 | (instr>>7)&0x1<<11 | (instr>>31)&0x1<<12
	return signExtend(raw, 13), (instr >> 15) & 0x1f, (instr >> 20) & 0x1f, (instr >> 12) & 0x7
}

func parseU32(instr uint32) (imm int64, rd uint32) {
	v := int64(int32(instr & 0xfffff000))
	return v, (instr >> 7) & 0x1f
}

func parseJ32(instr uint32) (imm int32, rd uint32) {
	raw := (instr>>21)&0x3ff<<1 | (instr>>20)&0x1<<11 | (instr>>12)&0xff<<12 | (instr>>31)&0x1<<20
	return signExtend(raw, 21), (instr >> 7) & 0x1f
}

func parseCSR32(instr uint32) (csr uint16, rs, funct3, rd uint32) {
	return uint16((instr >> 20) & 0xfff), (instr >> 15) & 0x1f, (instr >> 12) & 0x7, (instr >> 7) & 0x1f
}

// Decode translates one 32-bit instruction word into a tagged
// Instruction. ok is false for reserved/unimplemented encodings, which the
// caller turns into an illegal-instruction trap.
func Decode(instr uint32) (Instruction, bool) {
	opcode := instr & 0x7f
	switch opcode {
	case 0b0110111:
		imm, rd := parseU32(instr)
		return UType{Op: OpLUI, Rd: rd, Imm: imm}, true
	case 0b0010111:
		imm, rd := parseU32(instr)
		return UType{Op: OpAUIPC, Rd: rd, Imm: imm}, true
	case 0b1101111:
		imm, rd := parseJ32(instr)
		return JType{Rd: rd, Imm: imm}, true
	case 0b1100111:
		imm, rs1, funct3, rd := parseI32(instr)
		if funct3 != 0 {
			return nil, false
		}
		return IType{Op: OpJALR, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b1100011:
		imm, rs1, rs2, funct3 := parseB32(instr)
		var op BOp
		switch funct3 {
		case 0b000:
			op = OpBEQ
		case 0b001:
			op = OpBNE
		case 0b100:
			op = OpBLT
		case 0b101:
			op = OpBGE
		case 0b110:
			op = OpBLTU
		case 0b111:
			op = OpBGEU
		default:
			return nil, false
		}
		return BType{Op: op, Rs1: rs1, Rs2: rs2, Imm: imm}, true
	case 0b0000011:
		imm, rs1, funct3, rd := parseI32(instr)
		var op IOp
		switch funct3 {
		case 0b000:
			op = OpLB
		case 0b001:
			op = OpLH
		case 0b010:
			op = OpLW
		case 0b100:
			op = OpLBU
		case 0b101:
			op = OpLHU
		case 0b011:
			op = OpLD
		case 0b110:
			op = OpLWU
		default:
			return nil, false
		}
		return IType{Op: op, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b0100011:
		imm, rs1, rs2, funct3 := parseS32(instr)
		var op SOp
		switch funct3 {
		case 0b000:
			op = OpSB
		case 0b001:
			op = OpSH
		case 0b010:
			op = OpSW
		case 0b011:
			op = OpSD
		default:
			return nil, false
		}
		return SType{Op: op, Rs1: rs1, Rs2: rs2, Imm: imm}, true
	case 0b0010011:
		return decodeOpImm(instr, false)
	case 0b0011011:
		return decodeOpImm(instr, true)
	case 0b0110011:
		return decodeOp(instr, false)
	case 0b0111011:
		return decodeOp(instr, true)
	case 0b0001111:
		return SystemType{Op: OpFENCE}, true
	case 0b1110011:
		return decodeSystem(instr)
	case 0b0101111:
		return decodeAMO(instr)
	case 0b0000111:
		imm, rs1, funct3, rd := parseI32(instr)
		switch funct3 {
		case 0b010:
			return IType{Op: OpFLW, Rd: rd, Rs1: rs1, Imm: imm}, true
		case 0b011:
			return IType{Op: OpFLD, Rd: rd, Rs1: rs1, Imm: imm}, true
		}
		return nil, false
	case 0b0100111:
		imm, rs1, rs2, funct3 := parseS32(instr)
		switch funct3 {
		case 0b010:
			return SType{Op: OpFSW, Rs1: rs1, Rs2: rs2, Imm: imm}, true
		case 0b011:
			return SType{Op: OpFSD, Rs1: rs1, Rs2: rs2, Imm: imm}, true
		}
		return nil, false
	case 0b1000011, 0b1000111, 0b1001011, 0b1001111:
		return decodeFMA(instr, opcode)
	case 0b1010011:
		return decodeOpFP(instr)
	default:
		return nil, false
	}
}

func decodeOpImm(instr uint32, wide bool) (Instruction, bool) {
	imm, rs1, funct3, rd := parseI32(instr)
	shamtBits := uint32(6)
	if wide {
		shamtBits = 5
	}
	switch funct3 {
	case 0b000:
		op := OpADDI
		if wide {
			op = OpADDIW
		}
		return IType{Op: op, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b010:
		if wide {
			return nil, false
		}
		return IType{Op: OpSLTI, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b011:
		if wide {
			return nil, false
		}
		return IType{Op: OpSLTIU, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b100:
		if wide {
			return nil, false
		}
		return IType{Op: OpXORI, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b110:
		if wide {
			return nil, false
		}
		return IType{Op: OpORI, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b111:
		if wide {
			return nil, false
		}
		return IType{Op: OpANDI, Rd: rd, Rs1: rs1, Imm: imm}, true
	case 0b001:
		if uint32(imm)>>shamtBits != 0 {
			return nil, false
		}
		op := OpSLLI
		if wide {
			op = OpSLLIW
		}
		return IType{Op: op, Rd: rd, Rs1: rs1, Imm: imm & int32(1<<shamtBits-1)}, true
	case 0b101:
		shamt := uint32(imm) & (1<<shamtBits - 1)
		switch uint32(imm) >> shamtBits {
		case 0:
			op := OpSRLI
			if wide {
				op = OpSRLIW
			}
			return IType{Op: op, Rd: rd, Rs1: rs1, Imm: int32(shamt)}, true
		case 0b010000 << (6 - shamtBits): // srai funct6 010000, sraiw funct7 0100000
			op := OpSRAI
			if wide {
				op = OpSRAIW
			}
			return IType{Op: op, Rd: rd, Rs1: rs1, Imm: int32(shamt)}, true
		}
		return nil, false
	}
	return nil, false
}

func decodeOp(instr uint32, wide bool) (Instruction, bool) {
	funct7, rs2, rs1, funct3, rd := parseR32(instr)
	type key struct {
		f3, f7 uint32
	}
	var table map[key]ROp
	if !wide {
		table = map[key]ROp{
			{0b000, 0}: OpADD, {0b000, 0b0100000}: OpSUB, {0b000, 1}: OpMUL,
			{0b001, 0}: OpSLL, {0b001, 1}: OpMULH,
			{0b010, 0}: OpSLT, {0b010, 1}: OpMULHSU,
			{0b011, 0}: OpSLTU, {0b011, 1}: OpMULHU,
			{0b100, 0}: OpXOR, {0b100, 1}: OpDIV,
			{0b101, 0}: OpSRL, {0b101, 0b0100000}: OpSRA, {0b101, 1}: OpDIVU,
			{0b110, 0}: OpOR, {0b110, 1}: OpREM,
			{0b111, 0}: OpAND, {0b111, 1}: OpREMU,
		}
	} else {
		table = map[key]ROp{
			{0b000, 0}: OpADDW, {0b000, 0b0100000}: OpSUBW, {0b000, 1}: OpMULW,
			{0b001, 0}: OpSLLW,
			{0b100, 1}: OpDIVW,
			{0b101, 0}: OpSRLW, {0b101, 0b0100000}: OpSRAW, {0b101, 1}: OpDIVUW,
			{0b110, 1}: OpREMW,
			{0b111, 1}: OpREMUW,
		}
	}
	op, ok := table[key{funct3, funct7}]
	if !ok {
		return nil, false
	}
	return RType{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2, Funct3: funct3}, true
}

func decodeSystem(instr uint32) (Instruction, bool) {
	csr, rs, funct3, rd := parseCSR32(instr)
	switch funct3 {
	case 0b000:
		if rd != 0 {
			return nil, false
		}
		switch csr {
		case 0:
			if rs != 0 {
				return nil, false
			}
			return SystemType{Op: OpECALL}, true
		case 1:
			return SystemType{Op: OpEBREAK}, true
		case 0b000100000010:
			return SystemType{Op: OpSRET}, true
		case 0b001100000010:
			return SystemType{Op: OpMRET}, true
		case 0b000100000101:
			return SystemType{Op: OpWFI}, true
		default:
			if csr>>5 == 0b0001001 {
				return SystemType{Op: OpSFENCEVMA}, true
			}
			return nil, false
		}
	case 0b001:
		return CSRType{Op: OpCSRRW, CSR: csr, Rd: rd, Rs: rs, Raw: instr}, true
	case 0b010:
		return CSRType{Op: OpCSRRS, CSR: csr, Rd: rd, Rs: rs, Raw: instr}, true
	case 0b011:
		return CSRType{Op: OpCSRRC, CSR: csr, Rd: rd, Rs: rs, Raw: instr}, true
	case 0b101:
		return CSRType{Op: OpCSRRW, CSR: csr, Rd: rd, Rs: rs, Imm: true, Raw: instr}, true
	case 0b110:
		return CSRType{Op: OpCSRRS, CSR: csr, Rd: rd, Rs: rs, Imm: true, Raw: instr}, true
	case 0b111:
		return CSRType{Op: OpCSRRC, CSR: csr, Rd: rd, Rs: rs, Imm: true, Raw: instr}, true
	}
	return nil, false
}

func decodeAMO(instr uint32) (Instruction, bool) {
	funct7, rs2, rs1, funct3, rd := parseR32(instr)
	width := funct3 // 0b010 = W, 0b011 = D
	if width != 0b010 && width != 0b011 {
		return nil, false
	}
	isD := width == 0b011
	pick := func(w, d AMOOp) AMOOp {
		if isD {
			return d
		}
		return w
	}
	switch funct7 >> 2 {
	case 0b00010:
		return AMOType{Op: pick(OpLRW, OpLRD), Rd: rd, Rs1: rs1}, true
	case 0b00011:
		return AMOType{Op: pick(OpSCW, OpSCD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b00001:
		return AMOType{Op: pick(OpAMOSWAPW, OpAMOSWAPD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b00000:
		return AMOType{Op: pick(OpAMOADDW, OpAMOADDD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b00100:
		return AMOType{Op: pick(OpAMOXORW, OpAMOXORD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b01100:
		return AMOType{Op: pick(OpAMOANDW, OpAMOANDD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b01000:
		return AMOType{Op: pick(OpAMOORW, OpAMOORD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b10000:
		return AMOType{Op: pick(OpAMOMINW, OpAMOMIND), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b10100:
		return AMOType{Op: pick(OpAMOMAXW, OpAMOMAXD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b11000:
		return AMOType{Op: pick(OpAMOMINUW, OpAMOMINUD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	case 0b11100:
		return AMOType{Op: pick(OpAMOMAXUW, OpAMOMAXUD), Rd: rd, Rs1: rs1, Rs2: rs2}, true
	}
	return nil, false
}

func decodeFMA(instr uint32, opcode uint32) (Instruction, bool) {
	funct7, rs2, rs1, funct3, rd := parseR32(instr)
	rs3 := (instr >> 27) & 0x1f
	double := funct7&0x3 == 1
	var neg, sub bool
	switch opcode {
	case 0b1000011: // FMADD
	case 0b1000111: // FMSUB
		sub = true
	case 0b1001011: // FNMSUB
		neg = true
		sub = true
	case 0b1001111: // FNMADD
		neg = true
	}
	return FMAType{Neg: neg, Sub: sub, Rd: rd, Rs1: rs1, Rs2: rs2, Rs3: rs3, RM: funct3, Double: double}, true
}

func decodeOpFP(instr uint32) (Instruction, bool) {
	funct7, rs2, rs1, funct3, rd := parseR32(instr)
	double := funct7&1 == 1
	base := funct7 &^ 1
	switch base {
	case 0b0000000:
		return FRType{Op: OpFADD, Rd: rd, Rs1: rs1, Rs2: rs2, RM: funct3, Double: double}, true
	case 0b0000100:
		return FRType{Op: OpFSUB, Rd: rd, Rs1: rs1, Rs2: rs2, RM: funct3, Double: double}, true
	case 0b0001000:
		return FRType{Op: OpFMUL, Rd: rd, Rs1: rs1, Rs2: rs2, RM: funct3, Double: double}, true
	case 0b0001100:
		return FRType{Op: OpFDIV, Rd: rd, Rs1: rs1, Rs2: rs2, RM: funct3, Double: double}, true
	case 0b0101100:
		return FRType{Op: OpFSQRT, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
	case 0b0010000:
		switch funct3 {
		case 0b000:
			return FRType{Op: OpFSGNJ, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		case 0b001:
			return FRType{Op: OpFSGNJN, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		case 0b010:
			return FRType{Op: OpFSGNJX, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		}
		return nil, false
	case 0b0010100:
		switch funct3 {
		case 0b000:
			return FRType{Op: OpFMIN, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		case 0b001:
			return FRType{Op: OpFMAX, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		}
		return nil, false
	case 0b1100000: // FCVT.{W,WU,L,LU}.{S,D}
		switch rs2 {
		case 0:
			return FRType{Op: OpFCVTWS, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 1:
			return FRType{Op: OpFCVTWUS, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 2:
			return FRType{Op: OpFCVTLS, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 3:
			return FRType{Op: OpFCVTLUS, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		}
		return nil, false
	case 0b1101000: // FCVT.{S,D}.{W,WU,L,LU}
		switch rs2 {
		case 0:
			return FRType{Op: OpFCVTSW, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 1:
			return FRType{Op: OpFCVTSWU, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 2:
			return FRType{Op: OpFCVTSL, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		case 3:
			return FRType{Op: OpFCVTSLU, Rd: rd, Rs1: rs1, RM: funct3, Double: double}, true
		}
		return nil, false
	case 0b0100000, 0b0100001: // FCVT.S.D / FCVT.D.S; rs2 (0 or 1) tags direction
		return FRType{Op: OpFCVTSD, Rd: rd, Rs1: rs1, Rs2: rs2, RM: funct3, Double: double}, true
	case 0b1110000: // FMV.X.W / FMV.X.D, FCLASS
		if funct3 == 0b001 {
			return FRType{Op: OpFCLASS, Rd: rd, Rs1: rs1, Double: double}, true
		}
		return FRType{Op: OpFMVXW, Rd: rd, Rs1: rs1, Double: double}, true
	case 0b1111000: // FMV.W.X / FMV.D.X
		return FRType{Op: OpFMVWX, Rd: rd, Rs1: rs1, Double: double}, true
	case 0b1010000:
		switch funct3 {
		case 0b010:
			return FRType{Op: OpFEQ, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		case 0b001:
			return FRType{Op: OpFLT, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		case 0b000:
			return FRType{Op: OpFLE, Rd: rd, Rs1: rs1, Rs2: rs2, Double: double}, true
		}
		return nil, false
	}
	return nil, false
}
