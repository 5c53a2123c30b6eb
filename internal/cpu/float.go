package cpu

import (
	"math"

	"github.com/esperanto-sim/rvsim/internal/softfloat"
)

// f32/f64 unpack/repack NaN-boxed register contents, per spec.md §4.5: a
// single-precision value stored in a 64-bit FP register is NaN-boxed
// (upper 32 bits all-ones); a write of a non-boxed 32-bit result rewrites
// those upper bits before landing in F.
func f32(bits uint64) float32 { return math.Float32frombits(uint32(bits)) }
func f64(bits uint64) float64 { return math.Float64frombits(bits) }

func (s *State) setF32(i int, v float32) { s.SetF(i, nanBoxF32(math.Float32bits(v))) }
func (s *State) setF64(i int, v float64) { s.SetF(i, math.Float64bits(v)) }

// effectiveRM resolves a 3-bit encoded rounding mode, reading frm when the
// dynamic encoding (7) is used. frm>=5 is illegal (spec.md §4.3).
func (s *State) effectiveRM(encoded uint32) (softfloat.RoundingMode, bool) {
	rm := encoded
	if rm == 7 {
		rm = uint32(s.FRM)
	}
	if rm >= 5 {
		return 0, false
	}
	return softfloat.RoundingMode(rm), true
}

func (s *State) setFFlags(f softfloat.Flags) {
	if f == 0 {
		return
	}
	s.FFlags |= uint8(f)
	s.markFSDirty()
}

func (s *State) execFRType(op FRType) {
	rm, rmOK := s.effectiveRM(op.RM)
	if !rmOK && needsRM(op.Op) {
		s.Exception(CauseIllegalInstr, 0, s.PC-4)
		return
	}
	if op.Op == OpFCVTSD {
		// rs2==1 selects FCVT.S.D (shrink double->single); rs2==0
		// selects FCVT.D.S (widen single->double).
		if op.Rs2 == 1 {
			s.setF32(int(op.Rd), float32(f64(s.F[op.Rs1])))
		} else {
			s.setF64(int(op.Rd), float64(f32(s.F[op.Rs1])))
		}
		return
	}
	if op.Double {
		s.execFRType64(op, rm)
		return
	}
	s.execFRType32(op, rm)
}

func needsRM(op FROp) bool {
	switch op {
	case OpFADD, OpFSUB, OpFMUL, OpFDIV, OpFSQRT, OpFCVTWS, OpFCVTWUS, OpFCVTLS, OpFCVTLUS, OpFCVTSW, OpFCVTSWU, OpFCVTSL, OpFCVTSLU, OpFCVTSD:
		return true
	}
	return false
}

func (s *State) execFRType32(op FRType, rm softfloat.RoundingMode) {
	a, b := f32(s.F[op.Rs1]), f32(s.F[op.Rs2])
	switch op.Op {
	case OpFADD:
		r := softfloat.Add32(a, b, rm)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSUB:
		r := softfloat.Sub32(a, b, rm)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFMUL:
		r := softfloat.Mul32(a, b, rm)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFDIV:
		r := softfloat.Div32(a, b, rm)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSQRT:
		r := softfloat.Sqrt32(a)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSGNJ:
		s.setF32(int(op.Rd), signInject32(a, b, false, false))
	case OpFSGNJN:
		s.setF32(int(op.Rd), signInject32(a, b, true, false))
	case OpFSGNJX:
		s.setF32(int(op.Rd), signInject32(a, b, false, true))
	case OpFMIN:
		r := softfloat.Min32(a, b)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFMAX:
		r := softfloat.Max32(a, b)
		s.setF32(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFCVTWS:
		v, f := softfloat.ToInt32(float64(a), rm)
		s.SetX(int(op.Rd), int64(v))
		s.setFFlags(f)
	case OpFCVTWUS:
		v, f := softfloat.ToUint32(float64(a), rm)
		s.SetX(int(op.Rd), int64(int32(v)))
		s.setFFlags(f)
	case OpFCVTLS:
		v, f := softfloat.ToInt64(float64(a), rm)
		s.SetX(int(op.Rd), v)
		s.setFFlags(f)
	case OpFCVTLUS:
		v, f := softfloat.ToUint64(float64(a), rm)
		s.SetX(int(op.Rd), int64(v))
		s.setFFlags(f)
	case OpFCVTSW:
		s.setF32(int(op.Rd), float32(int32(s.X[op.Rs1])))
	case OpFCVTSWU:
		s.setF32(int(op.Rd), float32(uint32(s.X[op.Rs1])))
	case OpFCVTSL:
		s.setF32(int(op.Rd), float32(s.X[op.Rs1]))
	case OpFCVTSLU:
		s.setF32(int(op.Rd), float32(uint64(s.X[op.Rs1])))
	case OpFMVXW:
		s.SetX(int(op.Rd), int64(int32(s.F[op.Rs1])))
	case OpFMVWX:
		s.SetF(int(op.Rd), nanBoxF32(uint32(s.X[op.Rs1])))
	case OpFEQ:
		eq, f := softfloat.Eq32(a, b)
		s.SetX(int(op.Rd), boolInt(eq))
		s.setFFlags(f)
	case OpFLT:
		lt, f := softfloat.Lt32(a, b)
		s.SetX(int(op.Rd), boolInt(lt))
		s.setFFlags(f)
	case OpFLE:
		le, f := softfloat.Le32(a, b)
		s.SetX(int(op.Rd), boolInt(le))
		s.setFFlags(f)
	case OpFCLASS:
		s.SetX(int(op.Rd), int64(softfloat.ClassMask32(a)))
	}
}

func (s *State) execFRType64(op FRType, rm softfloat.RoundingMode) {
	a, b := f64(s.F[op.Rs1]), f64(s.F[op.Rs2])
	switch op.Op {
	case OpFADD:
		r := softfloat.Add64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSUB:
		r := softfloat.Sub64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFMUL:
		r := softfloat.Mul64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFDIV:
		r := softfloat.Div64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSQRT:
		r := softfloat.Sqrt64(a)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFSGNJ:
		s.setF64(int(op.Rd), signInject64(a, b, false, false))
	case OpFSGNJN:
		s.setF64(int(op.Rd), signInject64(a, b, true, false))
	case OpFSGNJX:
		s.setF64(int(op.Rd), signInject64(a, b, false, true))
	case OpFMIN:
		r := softfloat.Min64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFMAX:
		r := softfloat.Max64(a, b)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
	case OpFCVTWS:
		v, f := softfloat.ToInt32(a, rm)
		s.SetX(int(op.Rd), int64(v))
		s.setFFlags(f)
	case OpFCVTWUS:
		v, f := softfloat.ToUint32(a, rm)
		s.SetX(int(op.Rd), int64(int32(v)))
		s.setFFlags(f)
	case OpFCVTLS:
		v, f := softfloat.ToInt64(a, rm)
		s.SetX(int(op.Rd), v)
		s.setFFlags(f)
	case OpFCVTLUS:
		v, f := softfloat.ToUint64(a, rm)
		s.SetX(int(op.Rd), int64(v))
		s.setFFlags(f)
	case OpFCVTSW:
		s.setF64(int(op.Rd), float64(int32(s.X[op.Rs1])))
	case OpFCVTSWU:
		s.setF64(int(op.Rd), float64(uint32(s.X[op.Rs1])))
	case OpFCVTSL:
		s.setF64(int(op.Rd), float64(s.X[op.Rs1]))
	case OpFCVTSLU:
		s.setF64(int(op.Rd), float64(uint64(s.X[op.Rs1])))
	case OpFMVXW:
		s.SetX(int(op.Rd), int64(s.F[op.Rs1]))
	case OpFMVWX:
		s.SetF(int(op.Rd), uint64(s.X[op.Rs1]))
	case OpFEQ:
		eq, f := softfloat.Eq64(a, b)
		s.SetX(int(op.Rd), boolInt(eq))
		s.setFFlags(f)
	case OpFLT:
		lt, f := softfloat.Lt64(a, b)
		s.SetX(int(op.Rd), boolInt(lt))
		s.setFFlags(f)
	case OpFLE:
		le, f := softfloat.Le64(a, b)
		s.SetX(int(op.Rd), boolInt(le))
		s.setFFlags(f)
	case OpFCLASS:
		s.SetX(int(op.Rd), int64(softfloat.ClassMask64(a)))
	}
}

func signInject32(a, b float32, negate, xor bool) float32 {
	abits := math.Float32bits(a) &^ (1 << 31)
	bsign := math.Float32bits(b) & (1 << 31)
	switch {
	case xor:
		return math.Float32frombits(abits | ((math.Float32bits(a) ^ bsign) & (1 << 31)))
	case negate:
		return math.Float32frombits(abits | (bsign ^ (1 << 31)))
	default:
		return math.Float32frombits(abits | bsign)
	}
}

func signInject64(a, b float64, negate, xor bool) float64 {
	abits := math.Float64bits(a) &^ (1 << 63)
	bsign := math.Float64bits(b) & (1 << 63)
	switch {
	case xor:
		return math.Float64frombits(abits | ((math.Float64bits(a) ^ bsign) & (1 << 63)))
	case negate:
		return math.Float64frombits(abits | (bsign ^ (1 << 63)))
	default:
		return math.Float64frombits(abits | bsign)
	}
}

func (s *State) execFMAType(op FMAType) {
	rm, ok := s.effectiveRM(op.RM)
	if !ok {
		s.Exception(CauseIllegalInstr, 0, s.PC-4)
		return
	}
	_ = rm
	if op.Double {
		a, b, c := f64(s.F[op.Rs1]), f64(s.F[op.Rs2]), f64(s.F[op.Rs3])
		if op.Sub {
			c = -c
		}
		if op.Neg {
			a, c = -a, -c
		}
		r := softfloat.FMA64(a, b, c)
		s.setF64(int(op.Rd), r.V)
		s.setFFlags(r.Flags)
		return
	}
	a, b, c := f32(s.F[op.Rs1]), f32(s.F[op.Rs2]), f32(s.F[op.Rs3])
	if op.Sub {
		c = -c
	}
	if op.Neg {
		a, c = -a, -c
	}
	r := softfloat.FMA32(a, b, c)
	s.setF32(int(op.Rd), r.V)
	s.setFFlags(r.Flags)
}
