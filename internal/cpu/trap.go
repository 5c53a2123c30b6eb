package cpu

import "math/bits"

// Cause numbers, matching the RISC-V privileged spec (spec.md §8's
// boundary scenarios reference these directly, e.g. mcause=11 for ECALL-M).
const (
	CauseInstrMisaligned = 0
	CauseInstrAccess     = 1
	CauseIllegalInstr    = 2
	CauseBreakpoint      = 3
	CauseLoadMisaligned  = 4
	CauseLoadAccess      = 5
	CauseStoreMisaligned = 6
	CauseStoreAccess     = 7
	CauseECallU          = 8
	CauseECallS          = 9
	CauseECallM          = 11
	CauseInstrPageFault  = 12
	CauseLoadPageFault   = 13
	CauseStorePageFault  = 15

	interruptBit = uint64(1) << 63

	IRQ_SSIP = 1
	IRQ_MSIP = 3
	IRQ_STIP = 5
	IRQ_MTIP = 7
	IRQ_SEIP = 9
	IRQ_MEIP = 11
)

// PendingInterrupts implements riscv_cpu.c's get_pending_irq_mask: mip&mie,
// gated by per-privilege IE bits and mideleg routing, per spec.md §4.4.
func (s *State) PendingInterrupts() uint32 {
	pending := uint32(s.CSR[csrMIP] & s.CSR[csrMIE])
	if pending == 0 {
		return 0
	}
	mideleg := uint32(s.CSR[csrMIDELEG])
	var enabled uint32
	switch s.Priv {
	case PrivMachine:
		if s.mstatusBit(mstatusMIEBit) {
			enabled = ^mideleg
		}
	case PrivSupervisor:
		enabled = ^mideleg
		if s.mstatusBit(mstatusSIEBit) {
			enabled |= mideleg
		}
	default: // User
		enabled = ^uint32(0)
	}
	return pending & enabled
}

// setPriv changes the current privilege level and flushes all TLBs, matching
// riscv_cpu.c's set_priv (called on every privilege change, not just S/U):
// the TLB tag is a bare VPN with no privilege or SUM bit folded in, so a
// page cached under one privilege must not be reused under another.
func (s *State) setPriv(p Privilege) {
	s.Priv = p
	s.TLB.FlushAll()
}

// RaiseInterrupt delivers the lowest-numbered pending interrupt, if any,
// returning true if a trap was taken.
func (s *State) RaiseInterrupt() bool {
	mask := s.PendingInterrupts()
	if mask == 0 {
		return false
	}
	irq := bits.TrailingZeros32(mask)
	s.raise(uint64(irq)|interruptBit, 0, s.PC, true)
	return true
}

// Exception delivers a synchronous trap for the instruction at addr with
// the given cause and tval.
func (s *State) Exception(cause, tval, addr uint64) {
	s.raise(cause, tval, addr, false)
}

// raise implements spec.md §4.4's delivery sequence: delegation lookup,
// epc/tval/cause save, IE/PIE transfer, privilege switch, and the new PC
// computation (direct, or base+4*cause when vectored for an interrupt).
func (s *State) raise(cause, tval, addr uint64, isInterrupt bool) {
	s.LoadResValid = false

	pos := cause &^ interruptBit
	var deleg uint64
	if isInterrupt {
		deleg = s.CSR[csrMIDELEG]
	} else {
		deleg = s.CSR[csrMEDELEG]
	}

	fromPriv := s.Priv
	target := PrivMachine
	if fromPriv <= PrivSupervisor && (deleg>>pos)&1 != 0 {
		target = PrivSupervisor
	}
	s.setPriv(target)

	switch target {
	case PrivMachine:
		s.CSR[csrMEPC] = addr
		s.CSR[csrMCAUSE] = cause
		s.CSR[csrMTVAL] = tval
		s.PC = s.vectoredPC(s.CSR[csrMTVEC], pos, isInterrupt)

		mie := s.mstatusBit(mstatusMIEBit)
		v := s.CSR[csrMSTATUS]
		v &^= uint64(1) << mstatusMPIEBit
		if mie {
			v |= uint64(1) << mstatusMPIEBit
		}
		v &^= uint64(1) << mstatusMIEBit
		v &^= uint64(3) << mstatusMPPLo
		v |= uint64(fromPriv) << mstatusMPPLo
		s.CSR[csrMSTATUS] = v
	case PrivSupervisor:
		s.CSR[csrSEPC] = addr
		s.CSR[csrSCAUSE] = cause
		s.CSR[csrSTVAL] = tval
		s.PC = s.vectoredPC(s.CSR[csrSTVEC], pos, isInterrupt)

		sie := s.mstatusBit(mstatusSIEBit)
		v := s.CSR[csrMSTATUS]
		v &^= uint64(1) << mstatusSPIEBit
		if sie {
			v |= uint64(1) << mstatusSPIEBit
		}
		v &^= uint64(1) << mstatusSIEBit
		v &^= uint64(1) << mstatusSPPBit
		v |= uint64(fromPriv&1) << mstatusSPPBit
		s.CSR[csrMSTATUS] = v
	}
}

// vectoredPC computes tvec.base in direct mode, or tvec.base + 4*cause for
// an interrupt when mode is vectored, per spec.md §4.4.
func (s *State) vectoredPC(tvec, cause uint64, isInterrupt bool) uint64 {
	mode := tvec & 0x3
	base := tvec &^ 0x3
	if mode == 1 && isInterrupt {
		return base + 4*cause
	}
	return base
}

// MRet implements the mret instruction: restore MIE from MPIE, set MPIE=1,
// restore priv from MPP (clearing it to U per the privilege spec), jump to
// mepc.
func (s *State) MRet() {
	v := s.CSR[csrMSTATUS]
	mpie := v&(1<<mstatusMPIEBit) != 0
	mpp := Privilege((v >> mstatusMPPLo) & 0x3)

	v &^= uint64(1) << mstatusMIEBit
	if mpie {
		v |= uint64(1) << mstatusMIEBit
	}
	v |= uint64(1) << mstatusMPIEBit
	v &^= uint64(3) << mstatusMPPLo
	s.CSR[csrMSTATUS] = v

	s.setPriv(mpp)
	s.PC = s.CSR[csrMEPC]
	s.LoadResValid = false
}

// SRet implements the sret instruction, symmetric to MRet.
func (s *State) SRet() {
	v := s.CSR[csrMSTATUS]
	spie := v&(1<<mstatusSPIEBit) != 0
	spp := Privilege((v >> mstatusSPPBit) & 0x1)

	v &^= uint64(1) << mstatusSIEBit
	if spie {
		v |= uint64(1) << mstatusSIEBit
	}
	v |= uint64(1) << mstatusSPIEBit
	v &^= uint64(1) << mstatusSPPBit
	s.CSR[csrMSTATUS] = v

	s.setPriv(spp)
	s.PC = s.CSR[csrSEPC]
	s.LoadResValid = false
}

// DRet implements dret: resume at dpc with the privilege saved in dcsr.prv,
// used only by the snapshot boot ROM (spec.md §4.10).
func (s *State) DRet() {
	prv := s.CSR[csrDCSR] & 0x3
	switch prv {
	case 0:
		s.setPriv(PrivUser)
	case 1:
		s.setPriv(PrivSupervisor)
	default:
		s.setPriv(PrivMachine)
	}
	s.PC = s.CSR[csrDPC]
}
