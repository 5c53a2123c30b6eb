package cpu

import "github.com/esperanto-sim/rvsim/internal/mmu"

// CSR masks preserved verbatim from the reference implementation
// (_examples/original_source/riscv_cpu.c), per spec.md §9's instruction not
// to "fix" them even though the privilege spec would allow more.
const (
	maskMIDELEG = 0x666
	maskMEDELEG = 0xb109
	maskSSTATUS = 0x80000003000de162
	maskSIE     = 0x222
	maskSIP     = 0x222
)

// mstatus bit positions used by side-effecting writes.
const (
	mstatusSIEBit  = 1
	mstatusMIEBit  = 3
	mstatusSPIEBit = 5
	mstatusMPIEBit = 7
	mstatusSPPBit  = 8
	mstatusMPPLo   = 11
	mstatusFSLo    = 13
	mstatusMPRVBit = 17
	mstatusSUMBit  = 18
	mstatusMXRBit  = 19
	mstatusTVMBit  = 20
	mstatusUXLLo   = 32
	mstatusSXLLo   = 34
	mstatusSDBit   = 63
)

// csrMinPriv returns the minimum privilege required to access csr, per the
// csr[9:8] encoding spec.md §4.3 describes.
func csrMinPriv(csr uint16) Privilege {
	return Privilege((csr >> 8) & 0x3)
}

func csrIsReadOnly(csr uint16) bool {
	return (csr>>10)&0x3 == 0x3
}

// CSRResult reports the outcome of a CSR access for the caller (the
// decoder) to translate into an illegal-instruction trap.
type CSRResult int

const (
	CSROK CSRResult = iota
	CSRFailIllegal
	CSRFailSilent // time/timeh: silenced per spec.md §7
)

// ReadCSR implements the getters of spec.md §4.3, including the
// side-effect-free masking reads (sstatus/sie/sip views, counter gating).
func (s *State) ReadCSR(csr uint16) (uint64, CSRResult) {
	if csrMinPriv(csr) > s.Priv {
		return 0, CSRFailIllegal
	}
	if !s.counterReadable(csr) {
		return 0, CSRFailIllegal
	}

	switch csr {
	case csrSSTATUS:
		return s.getMstatus() & maskSSTATUS, CSROK
	case csrSIE:
		return s.CSR[csrMIE] & maskSIE, CSROK
	case csrSIP:
		return s.CSR[csrMIP] & maskSIP, CSROK
	case csrMSTATUS:
		return s.getMstatus(), CSROK
	case csrTIME, 0xc81:
		return 0, CSRFailSilent // emulated by the runtime, per spec.md §7
	case csrSATP:
		if s.Priv == PrivSupervisor && s.mstatusBit(mstatusTVMBit) {
			return 0, CSRFailIllegal
		}
		return s.CSR[csrSATP], CSROK
	case csrFFLAGS:
		return uint64(s.FFlags), CSROK
	case csrFRM:
		return uint64(s.FRM), CSROK
	case csrFCSR:
		return uint64(s.FFlags) | uint64(s.FRM)<<5, CSROK
	case csrTSELECT:
		return 0, CSROK
	case csrTDATA1:
		return s.Trigger.Data1, CSROK
	case csrTDATA2:
		return s.Trigger.Data2, CSROK
	case csrTDATA3:
		return s.Trigger.Data3, CSROK
	}

	if csr >= csrMHPMEVENT3 && csr < csrMHPMEVENT3+29 {
		return s.MHPMEvent[csr-csrMHPMEVENT3], CSROK
	}
	if csr >= csrMHPMCOUNTER3 && csr < csrMHPMCOUNTER3+29 {
		return 0, CSROK
	}

	if csr < uint16(len(s.CSR)) {
		return s.CSR[csr], CSROK
	}
	return 0, CSRFailIllegal
}

// counterReadable implements the two-level counter enable chain of spec.md
// §4.3: U needs mcounteren&scounteren, S needs mcounteren, M unrestricted.
func (s *State) counterReadable(csr uint16) bool {
	isCounter := (csr >= csrCYCLE && csr <= 0xc1f) || (csr >= csrMHPMCOUNTER3 && csr <= 0xb1f)
	if !isCounter {
		return true
	}
	bitIdx := csr & 0x1f
	if s.Priv == PrivMachine {
		return true
	}
	if s.CSR[csrMCOUNTEREN]&(1<<bitIdx) == 0 {
		return false
	}
	if s.Priv == PrivUser {
		return s.CSR[csrSCOUNTEREN]&(1<<bitIdx) != 0
	}
	return true
}

// CSREffects reports the side effects of a WriteCSR (the setters of
// spec.md §4.3) that the caller (the decoder/step loop) must react to:
// FlushTLB and XLENChanged.
type CSREffects struct {
	FlushTLB     bool
	XLENChanged  bool
}

func (s *State) WriteCSR(csr uint16, v uint64) (CSREffects, CSRResult) {
	var eff CSREffects
	if csrMinPriv(csr) > s.Priv {
		return eff, CSRFailIllegal
	}
	if csrIsReadOnly(csr) {
		return eff, CSRFailIllegal
	}

	switch csr {
	case csrSSTATUS:
		old := s.getMstatus()
		merged := (old &^ maskSSTATUS) | (v & maskSSTATUS)
		eff = s.setMstatus(merged)
		return eff, CSROK
	case csrMSTATUS:
		eff = s.setMstatus(v)
		return eff, CSROK
	case csrMISA:
		return s.writeMisa(v), CSROK
	case csrSATP:
		if s.Priv == PrivSupervisor && s.mstatusBit(mstatusTVMBit) {
			return eff, CSRFailIllegal
		}
		mode := mmu.SATPMode(v >> 60)
		if mode != mmu.Bare && mode != mmu.Sv39 && mode != mmu.Sv48 {
			return eff, CSRFailIllegal
		}
		s.SATPMode = mode
		s.CSR[csrSATP] = v
		s.TLB.FlushAll()
		eff.FlushTLB = true
		return eff, CSROK
	case csrSIE:
		s.CSR[csrMIE] = (s.CSR[csrMIE] &^ maskSIE) | (v & maskSIE)
		return eff, CSROK
	case csrSIP:
		s.CSR[csrMIP] = (s.CSR[csrMIP] &^ maskSIP) | (v & maskSIP)
		return eff, CSROK
	case csrMIDELEG:
		s.CSR[csrMIDELEG] = v & maskMIDELEG
		return eff, CSROK
	case csrMEDELEG:
		s.CSR[csrMEDELEG] = v & maskMEDELEG
		return eff, CSROK
	case csrMIE, csrMIP:
		const implemented = 0xaaa // MEIP/MTIP/MSIP/SEIP/STIP/SSIP
		s.CSR[csr] = v & implemented
		return eff, CSROK
	case csrMTVEC, csrSTVEC:
		s.CSR[csr] = writeTvec(v)
		return eff, CSROK
	case csrDCSR:
		s.writeDCSR(v)
		return eff, CSROK
	case csrFFLAGS:
		s.FFlags = uint8(v) & 0x1f
		s.FS = FSDirty
		return eff, CSROK
	case csrFRM:
		if v >= 5 {
			return eff, CSRFailIllegal
		}
		s.FRM = uint8(v) & 0x7
		s.FS = FSDirty
		return eff, CSROK
	case csrFCSR:
		if (v>>5)&0x7 >= 5 {
			return eff, CSRFailIllegal
		}
		s.FFlags = uint8(v) & 0x1f
		s.FRM = uint8(v>>5) & 0x7
		s.FS = FSDirty
		return eff, CSROK
	case csrTSELECT:
		return eff, CSROK // single trigger: always index 0
	case csrTDATA1:
		typ := uint8(v >> 28)
		if typ != 2 { // only MControl accepted, per spec.md §4.3
			return eff, CSROK
		}
		s.Trigger.Type = typ
		s.Trigger.Data1 = v
		s.Trigger.Execute = v&(1<<2) != 0
		return eff, CSROK
	case csrTDATA2:
		s.Trigger.Data2 = v
		return eff, CSROK
	case csrTDATA3:
		// spec.md §9 REDESIGN FLAG: the reference implementation falls
		// through from tdata3 into the mhpmevent case range; this is a
		// conformant re-implementation, so it breaks here instead.
		s.Trigger.Data3 = v
		return eff, CSROK
	case csrFlushAll:
		s.TLB.FlushAll()
		eff.FlushTLB = true
		return eff, CSROK
	case csrValidate0:
		s.writeValidate0(v)
		return eff, CSROK
	case csrValidate1:
		s.writeValidate1(v)
		return eff, CSROK
	case csrTIME:
		return eff, CSRFailSilent
	}

	if csr >= csrMHPMEVENT3 && csr < csrMHPMEVENT3+29 {
		s.MHPMEvent[csr-csrMHPMEVENT3] = v
		return eff, CSROK
	}
	if csr >= csrMHPMCOUNTER3 && csr < csrMHPMCOUNTER3+29 {
		return eff, CSROK // writable, but unobserved: no side effect
	}

	if csr < uint16(len(s.CSR)) {
		s.CSR[csr] = v
		return eff, CSROK
	}
	return eff, CSRFailIllegal
}

// getMstatus derives mstatus.SD on read from FS==Dirty (XS is always Off in
// this design, per spec.md §3's invariant).
func (s *State) getMstatus() uint64 {
	v := s.CSR[csrMSTATUS]
	v &^= uint64(3) << mstatusFSLo
	v |= uint64(s.FS) << mstatusFSLo
	if s.FS == FSDirty {
		v |= uint64(1) << mstatusSDBit
	} else {
		v &^= uint64(1) << mstatusSDBit
	}
	return v
}

func (s *State) mstatusBit(bit int) bool {
	return s.CSR[csrMSTATUS]&(1<<uint(bit)) != 0
}

// setMstatus masks to the permitted bits, flushes all TLBs when MPRV/SUM/MXR
// or MPP-while-MPRV=1 changes, and re-pins UXL/SXL, per spec.md §4.3.
func (s *State) setMstatus(v uint64) CSREffects {
	const permitted = 0x8000000f001e79aa // SIE,MIE,SPIE,MPIE,SPP,MPP,FS,SUM,MXR,TVM,MPRV,SD,UXL,SXL (superset; masked further below)
	old := s.CSR[csrMSTATUS]

	oldMPRV := old&(1<<mstatusMPRVBit) != 0
	oldSUM := old&(1<<mstatusSUMBit) != 0
	oldMXR := old&(1<<mstatusMXRBit) != 0
	oldMPP := (old >> mstatusMPPLo) & 0x3

	newV := (old &^ permitted) | (v & permitted)
	// FS comes from mstatus.FS writes too, but this design tracks FS
	// separately and derives SD on read, so strip those bits out of the
	// stored value to avoid divergence.
	newV &^= uint64(3) << mstatusFSLo
	newV &^= uint64(1) << mstatusSDBit
	s.CSR[csrMSTATUS] = newV
	if (v>>mstatusFSLo)&0x3 != 0 {
		s.FS = FPDirty((v >> mstatusFSLo) & 0x3)
	}
	s.setMstatusXLPinned()

	newMPRV := newV&(1<<mstatusMPRVBit) != 0
	newSUM := newV&(1<<mstatusSUMBit) != 0
	newMXR := newV&(1<<mstatusMXRBit) != 0
	newMPP := (newV >> mstatusMPPLo) & 0x3

	changed := oldMPRV != newMPRV || oldSUM != newSUM || oldMXR != newMXR
	if newMPRV && oldMPP != newMPP {
		changed = true
	}
	var eff CSREffects
	if changed {
		s.TLB.FlushAll()
		eff.FlushTLB = true
	}
	return eff
}

// writeMisa allows only toggling MXL between 1 (RV32) and 2 (RV64); this
// target only supports 64, so a change just re-signals a restart per
// spec.md §4.3 (the decoder ignores it since XLEn is pinned at 64).
func (s *State) writeMisa(v uint64) CSREffects {
	mxl := v >> 62
	old := s.CSR[csrMISA] >> 62
	s.CSR[csrMISA] = (s.CSR[csrMISA] &^ (uint64(3) << 62)) | (mxl << 62)
	if mxl != old {
		return CSREffects{XLENChanged: true}
	}
	return CSREffects{}
}

// writeTvec enforces the 64-byte alignment spec.md §4.3 calls an
// "implementation-specific quirk" for vectored mode (mode bit 0 set).
func writeTvec(v uint64) uint64 {
	if v&1 != 0 {
		return (v &^ 0x3f) | 1
	}
	return v &^ 0x3
}

func (s *State) writeDCSR(v uint64) {
	const stopcountBit = 1 << 10
	const stoptimeBit = 1 << 9
	stopcount := v&stopcountBit != 0
	stoptime := v&stoptimeBit != 0
	cur := s.CSR[csrDCSR]
	cur &^= stopcountBit | stoptimeBit | 0x3
	cur |= v & (stopcountBit | stoptimeBit | 0x3)
	s.CSR[csrDCSR] = cur
	s.StopTheCounter = stopcount || stoptime
}
