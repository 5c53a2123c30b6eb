package cpu

import "math"

// Exec executes one already-decoded instruction. pc is the address the
// instruction was fetched from; s.PC must already point past it (the
// caller advances by 2 or 4 depending on compressed/uncompressed encoding,
// mirroring the teacher's stepInner). Exec overwrites s.PC for control
// flow and may redirect it again via Exception/RaiseInterrupt on a trap,
// in which case it returns immediately without committing further effects.
func (s *State) Exec(inst Instruction, pc uint64) {
	switch op := inst.(type) {
	case UType:
		switch op.Op {
		case OpLUI:
			s.SetX(int(op.Rd), op.Imm)
		case OpAUIPC:
			s.SetX(int(op.Rd), int64(pc)+op.Imm)
		}
	case JType:
		s.SetX(int(op.Rd), int64(s.PC))
		s.PC = pc + uint64(int64(op.Imm))
		s.emitCTF(CTFInfo{Kind: CTFJAL, PC: pc, Target: s.PC})
	case IType:
		s.execIType(op, pc)
	case SType:
		s.execSType(op, pc)
	case BType:
		s.execBType(op, pc)
	case RType:
		s.execRType(op)
	case CSRType:
		s.execCSRType(op)
	case SystemType:
		s.execSystemType(op)
	case AMOType:
		s.execAMOType(op, pc)
	case FRType:
		s.execFRType(op)
	case FMAType:
		s.execFMAType(op)
	default:
		s.Exception(CauseIllegalInstr, 0, pc)
	}
}

func (s *State) execIType(op IType, pc uint64) {
	base := s.X[op.Rs1]
	switch op.Op {
	case OpLB:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 8, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(int8(v)))
	case OpLH:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 16, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(int16(v)))
	case OpLW:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 32, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(int32(v)))
	case OpLBU:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 8, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(v))
	case OpLHU:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 16, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(v))
	case OpLD:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 64, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(v))
	case OpLWU:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 32, pc)
		if !ok {
			return
		}
		s.SetX(int(op.Rd), int64(v))
	case OpFLW:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 32, pc)
		if !ok {
			return
		}
		s.SetF(int(op.Rd), nanBoxF32(uint32(v)))
	case OpFLD:
		v, ok := s.LoadU(uint64(base+int64(op.Imm)), 64, pc)
		if !ok {
			return
		}
		s.SetF(int(op.Rd), v)
	case OpADDI:
		s.SetX(int(op.Rd), base+int64(op.Imm))
	case OpSLTI:
		s.SetX(int(op.Rd), boolInt(base < int64(op.Imm)))
	case OpSLTIU:
		s.SetX(int(op.Rd), boolInt(uint64(base) < uint64(int64(op.Imm))))
	case OpXORI:
		s.SetX(int(op.Rd), base^int64(op.Imm))
	case OpORI:
		s.SetX(int(op.Rd), base|int64(op.Imm))
	case OpANDI:
		s.SetX(int(op.Rd), base&int64(op.Imm))
	case OpSLLI:
		s.SetX(int(op.Rd), base<<uint(op.Imm))
	case OpSRLI:
		s.SetX(int(op.Rd), int64(uint64(base)>>uint(op.Imm)))
	case OpSRAI:
		s.SetX(int(op.Rd), base>>uint(op.Imm))
	case OpADDIW:
		s.SetX(int(op.Rd), int64(int32(base)+op.Imm))
	case OpSLLIW:
		s.SetX(int(op.Rd), int64(int32(base)<<uint(op.Imm)))
	case OpSRLIW:
		s.SetX(int(op.Rd), int64(int32(uint32(base)>>uint(op.Imm))))
	case OpSRAIW:
		s.SetX(int(op.Rd), int64(int32(base)>>uint(op.Imm)))
	case OpJALR:
		t := int64(s.PC)
		s.PC = (uint64(base+int64(op.Imm)) >> 1) << 1
		s.SetX(int(op.Rd), t)
		s.emitJALRCTF(op, pc)
	}
}

func (s *State) execSType(op SType, pc uint64) {
	base := uint64(s.X[op.Rs1] + int64(op.Imm))
	switch op.Op {
	case OpSB:
		s.StoreU(base, 8, uint64(s.X[op.Rs2]), pc)
	case OpSH:
		s.StoreU(base, 16, uint64(s.X[op.Rs2]), pc)
	case OpSW:
		s.StoreU(base, 32, uint64(s.X[op.Rs2]), pc)
	case OpSD:
		s.StoreU(base, 64, uint64(s.X[op.Rs2]), pc)
	case OpFSW:
		s.StoreU(base, 32, uint64(uint32(s.F[op.Rs2])), pc)
	case OpFSD:
		s.StoreU(base, 64, s.F[op.Rs2], pc)
	}
}

func (s *State) execBType(op BType, pc uint64) {
	a, b := s.X[op.Rs1], s.X[op.Rs2]
	var taken bool
	switch op.Op {
	case OpBEQ:
		taken = a == b
	case OpBNE:
		taken = a != b
	case OpBLT:
		taken = a < b
	case OpBGE:
		taken = a >= b
	case OpBLTU:
		taken = uint64(a) < uint64(b)
	case OpBGEU:
		taken = uint64(a) >= uint64(b)
	}
	target := pc + uint64(int64(op.Imm))
	if taken {
		s.PC = target
	}
	s.emitBranchCTF(taken, pc, target)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (s *State) execRType(op RType) {
	a, b := s.X[op.Rs1], s.X[op.Rs2]
	switch op.Op {
	case OpADD:
		s.SetX(int(op.Rd), a+b)
	case OpSUB:
		s.SetX(int(op.Rd), a-b)
	case OpSLL:
		s.SetX(int(op.Rd), a<<(uint64(b)&0x3f))
	case OpSLT:
		s.SetX(int(op.Rd), boolInt(a < b))
	case OpSLTU:
		s.SetX(int(op.Rd), boolInt(uint64(a) < uint64(b)))
	case OpXOR:
		s.SetX(int(op.Rd), a^b)
	case OpSRL:
		s.SetX(int(op.Rd), int64(uint64(a)>>(uint64(b)&0x3f)))
	case OpSRA:
		s.SetX(int(op.Rd), a>>(uint64(b)&0x3f))
	case OpOR:
		s.SetX(int(op.Rd), a|b)
	case OpAND:
		s.SetX(int(op.Rd), a&b)
	case OpMUL:
		s.SetX(int(op.Rd), a*b)
	case OpMULH:
		s.SetX(int(op.Rd), mulh(a, b))
	case OpMULHSU:
		s.SetX(int(op.Rd), mulhsu(a, uint64(b)))
	case OpMULHU:
		s.SetX(int(op.Rd), int64(mulhu(uint64(a), uint64(b))))
	case OpDIV:
		s.SetX(int(op.Rd), divS64(a, b))
	case OpDIVU:
		s.SetX(int(op.Rd), divU64(a, b))
	case OpREM:
		s.SetX(int(op.Rd), remS64(a, b))
	case OpREMU:
		s.SetX(int(op.Rd), remU64(a, b))
	case OpADDW:
		s.SetX(int(op.Rd), int64(int32(a)+int32(b)))
	case OpSUBW:
		s.SetX(int(op.Rd), int64(int32(a)-int32(b)))
	case OpSLLW:
		s.SetX(int(op.Rd), int64(int32(a)<<(uint64(b)&0x1f)))
	case OpSRLW:
		s.SetX(int(op.Rd), int64(int32(uint32(a)>>(uint64(b)&0x1f))))
	case OpSRAW:
		s.SetX(int(op.Rd), int64(int32(a)>>(uint64(b)&0x1f)))
	case OpMULW:
		s.SetX(int(op.Rd), int64(int32(a)*int32(b)))
	case OpDIVW:
		s.SetX(int(op.Rd), divS32(int32(a), int32(b)))
	case OpDIVUW:
		s.SetX(int(op.Rd), divU32(uint32(a), uint32(b)))
	case OpREMW:
		s.SetX(int(op.Rd), remS32(int32(a), int32(b)))
	case OpREMUW:
		s.SetX(int(op.Rd), remU32(uint32(a), uint32(b)))
	}
}

// mulh/mulhsu/mulhu port the 128-bit-via-32x32 decomposition the teacher
// uses for MULHU (main.go's unsigned split-multiply), generalized to the
// signed variants it left unimplemented.
func mulh(a, b int64) int64 {
	hi, _ := bits64MulSigned(a, b)
	return hi
}

func mulhsu(a int64, b uint64) int64 {
	neg := a < 0
	ua := uint64(a)
	if neg {
		ua = -ua
	}
	hi, lo := bits64Mul(ua, b)
	if neg {
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}
	return int64(hi)
}

func mulhu(a, b uint64) uint64 {
	hi, _ := bits64Mul(a, b)
	return hi
}

func bits64Mul(a, b uint64) (hi, lo uint64) {
	const mask = 0xffffffff
	aLo, aHi := a&mask, a>>32
	bLo, bHi := b&mask, b>>32
	t := aLo * bLo
	lo = t & mask
	carry := t >> 32
	t = aHi*bLo + carry
	mid := t & mask
	carry = t >> 32
	t = aLo*bHi + mid
	lo |= (t & mask) << 32
	carry2 := t >> 32
	hi = aHi*bHi + carry + carry2
	return hi, lo
}

func bits64MulSigned(a, b int64) (hi, lo int64) {
	neg := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = -ua
	}
	if b < 0 {
		ub = -ub
	}
	uhi, ulo := bits64Mul(ua, ub)
	if neg {
		uhi = ^uhi
		ulo = ^ulo + 1
		if ulo == 0 {
			uhi++
		}
	}
	return int64(uhi), int64(ulo)
}

func divS64(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	if a == math.MinInt64 && b == -1 {
		return a
	}
	return a / b
}

func divU64(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	return int64(uint64(a) / uint64(b))
}

func remS64(a, b int64) int64 {
	if b == 0 {
		return a
	}
	if a == math.MinInt64 && b == -1 {
		return 0
	}
	return a % b
}

func remU64(a, b int64) int64 {
	if b == 0 {
		return a
	}
	return int64(uint64(a) % uint64(b))
}

func divS32(a, b int32) int64 {
	if b == 0 {
		return -1
	}
	if a == math.MinInt32 && b == -1 {
		return int64(a)
	}
	return int64(a / b)
}

func divU32(a, b uint32) int64 {
	if b == 0 {
		return -1
	}
	return int64(int32(a / b))
}

func remS32(a, b int32) int64 {
	if b == 0 {
		return int64(a)
	}
	if a == math.MinInt32 && b == -1 {
		return 0
	}
	return int64(a % b)
}

func remU32(a, b uint32) int64 {
	if b == 0 {
		return int64(int32(a))
	}
	return int64(int32(a % b))
}

func (s *State) execCSRType(op CSRType) {
	old, res := s.ReadCSR(op.CSR)
	if res == CSRFailIllegal {
		s.Exception(CauseIllegalInstr, uint64(op.Raw), s.PC-4)
		return
	}
	var src uint64
	if op.Imm {
		src = uint64(op.Rs)
	} else {
		src = uint64(s.X[op.Rs])
	}
	var next uint64
	switch op.Op {
	case OpCSRRW:
		next = src
	case OpCSRRS:
		next = old | src
	case OpCSRRC:
		next = old &^ src
	}
	// CSRRS/CSRRC with rs==x0 reads only; CSRRW always writes (spec.md
	// §4.3 mirrors the RISC-V privileged spec here).
	skipWrite := op.Op != OpCSRRW && op.Rs == 0
	if !skipWrite {
		if _, res := s.WriteCSR(op.CSR, next); res == CSRFailIllegal {
			s.Exception(CauseIllegalInstr, uint64(op.Raw), s.PC-4)
			return
		}
	}
	s.SetX(int(op.Rd), int64(old))
}

func (s *State) execSystemType(op SystemType) {
	switch op.Op {
	case OpECALL:
		switch s.Priv {
		case PrivUser:
			s.Exception(CauseECallU, 0, s.PC-4)
		case PrivSupervisor:
			s.Exception(CauseECallS, 0, s.PC-4)
		case PrivMachine:
			s.Exception(CauseECallM, 0, s.PC-4)
		}
	case OpEBREAK:
		s.Exception(CauseBreakpoint, s.PC-4, s.PC-4)
	case OpMRET:
		s.MRet()
	case OpSRET:
		s.SRet()
	case OpWFI:
		s.PowerDown = true
	case OpSFENCEVMA:
		s.TLB.FlushAll()
	case OpFENCE:
		// no-op: single hart, no store buffering to drain.
	}
}

func (s *State) execAMOType(op AMOType, pc uint64) {
	addr := uint64(s.X[op.Rs1])
	switch op.Op {
	case OpLRW:
		v, ok := s.LoadU(addr, 32, pc)
		if !ok {
			return
		}
		s.LoadRes, s.LoadResValid = addr, true
		s.SetX(int(op.Rd), int64(int32(v)))
	case OpLRD:
		v, ok := s.LoadU(addr, 64, pc)
		if !ok {
			return
		}
		s.LoadRes, s.LoadResValid = addr, true
		s.SetX(int(op.Rd), int64(v))
	case OpSCW:
		if s.LoadResValid && s.LoadRes == addr {
			if !s.StoreU(addr, 32, uint64(uint32(s.X[op.Rs2])), pc) {
				return
			}
			s.SetX(int(op.Rd), 0)
		} else {
			s.SetX(int(op.Rd), 1)
		}
	case OpSCD:
		if s.LoadResValid && s.LoadRes == addr {
			if !s.StoreU(addr, 64, uint64(s.X[op.Rs2]), pc) {
				return
			}
			s.SetX(int(op.Rd), 0)
		} else {
			s.SetX(int(op.Rd), 1)
		}
	default:
		s.execAMORMW(op, addr, pc)
	}
}

func (s *State) execAMORMW(op AMOType, addr uint64, pc uint64) {
	is64 := false
	switch op.Op {
	case OpAMOSWAPD, OpAMOADDD, OpAMOXORD, OpAMOANDD, OpAMOORD, OpAMOMIND, OpAMOMAXD, OpAMOMINUD, OpAMOMAXUD:
		is64 = true
	}
	width := 32
	if is64 {
		width = 64
	}
	old, ok := s.LoadU(addr, width, pc)
	if !ok {
		return
	}
	rs2 := uint64(s.X[op.Rs2])
	var result uint64
	oldS32, rs2S32 := int32(old), int32(rs2)
	switch op.Op {
	case OpAMOSWAPW, OpAMOSWAPD:
		result = rs2
	case OpAMOADDW:
		result = uint64(uint32(old) + uint32(rs2))
	case OpAMOADDD:
		result = old + rs2
	case OpAMOXORW:
		result = uint64(uint32(old) ^ uint32(rs2))
	case OpAMOXORD:
		result = old ^ rs2
	case OpAMOANDW:
		result = uint64(uint32(old) & uint32(rs2))
	case OpAMOANDD:
		result = old & rs2
	case OpAMOORW:
		result = uint64(uint32(old) | uint32(rs2))
	case OpAMOORD:
		result = old | rs2
	case OpAMOMINW:
		result = uint64(uint32(minI32(oldS32, rs2S32)))
	case OpAMOMIND:
		result = uint64(minI64(int64(old), int64(rs2)))
	case OpAMOMAXW:
		result = uint64(uint32(maxI32(oldS32, rs2S32)))
	case OpAMOMAXD:
		result = uint64(maxI64(int64(old), int64(rs2)))
	case OpAMOMINUW:
		result = uint64(minU32(uint32(old), uint32(rs2)))
	case OpAMOMINUD:
		result = minU64(old, rs2)
	case OpAMOMAXUW:
		result = uint64(maxU32(uint32(old), uint32(rs2)))
	case OpAMOMAXUD:
		result = maxU64(old, rs2)
	}
	if !s.StoreU(addr, width, result, pc) {
		return
	}
	if is64 {
		s.SetX(int(op.Rd), int64(old))
	} else {
		s.SetX(int(op.Rd), int64(int32(old)))
	}
}

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func nanBoxF32(v uint32) uint64 { return 0xffffffff00000000 | uint64(v) }
