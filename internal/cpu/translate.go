package cpu

import "github.com/esperanto-sim/rvsim/internal/mmu"

func (s *State) mmuPriv() mmu.Privilege { return mmu.Privilege(s.Priv) }

func (s *State) mmuStatus() mmu.Status {
	return mmu.Status{
		MPRV: s.mstatusBit(mstatusMPRVBit),
		MPP:  mmu.Privilege((s.CSR[csrMSTATUS] >> mstatusMPPLo) & 0x3),
		SUM:  s.mstatusBit(mstatusSUMBit),
		MXR:  s.mstatusBit(mstatusMXRBit),
	}
}

// Translate resolves a virtual address for the given access kind, per
// spec.md §4.2. Faults are converted to the concrete cause numbers for the
// access kind by the caller (exec.go / fetch.go).
func (s *State) Translate(vaddr uint64, access mmu.Access) (uint64, *mmu.Fault) {
	satpPPN := s.CSR[csrSATP] & 0xfffffffffff
	return s.TLB.Translate(s.Mem, vaddr, access, s.mmuPriv(), s.mmuStatus(), s.SATPMode, satpPPN)
}
