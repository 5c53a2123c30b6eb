package cpu

import "github.com/esperanto-sim/rvsim/internal/mmu"

// fetch reads one instruction at s.PC through the code TLB, combining two
// independently-walked 16-bit halves when a 32-bit instruction straddles a
// page boundary (spec.md §4.5); the second half's fault reports the
// instruction's start address as tval, matching hardware behavior.
func (s *State) fetch() (uint32, bool) {
	if s.PC&1 != 0 {
		s.Exception(CauseInstrMisaligned, s.PC, s.PC)
		return 0, false
	}
	lo, ok := s.loadHalf(s.PC)
	if !ok {
		return 0, false
	}
	if lo&0b11 != 0b11 {
		return lo, true
	}
	hi, ok := s.loadHalfAt(s.PC+2, s.PC)
	if !ok {
		return 0, false
	}
	return lo | hi<<16, true
}

func (s *State) loadHalf(vaddr uint64) (uint32, bool) {
	return s.loadHalfAt(vaddr, vaddr)
}

// loadHalfAt walks vaddr for a 16-bit code fetch but reports tval as
// origPC, used for the second half of a straddling 32-bit instruction.
func (s *State) loadHalfAt(vaddr, origPC uint64) (uint32, bool) {
	paddr, fault := s.Translate(vaddr, mmu.Code)
	if fault != nil {
		s.Exception(faultCause(mmu.Code, fault), origPC, origPC)
		return 0, false
	}
	return uint32(s.Mem.Read(paddr, 2)), true
}

// Step runs up to budget instructions (or until WFI/termination), checking
// for pending interrupts between each, per spec.md §5.
func (s *State) Step(budget uint64) {
	for i := uint64(0); i < budget; i++ {
		if s.TerminateSimulation {
			return
		}
		if s.PowerDown {
			if s.RaiseInterrupt() {
				s.PowerDown = false
			} else {
				return
			}
			continue
		}

		pc := s.PC
		raw, ok := s.fetch()
		if !ok {
			continue
		}

		var word uint32
		if raw&0b11 == 0b11 {
			s.PC += 4
			word = raw
		} else {
			s.PC += 2
			var dok bool
			word, dok = Decompress(raw & 0xffff)
			if !dok {
				s.Exception(CauseIllegalInstr, uint64(raw&0xffff), pc)
				continue
			}
		}

		inst, decOK := Decode(word)
		if !decOK {
			s.Exception(CauseIllegalInstr, uint64(word), pc)
			continue
		}

		s.Exec(inst, pc)
		s.X[0] = 0

		s.InsnCounter++
		if !s.StopTheCounter {
			s.MInstret++
			s.MCycle++
		}

		if !s.PowerDown {
			s.RaiseInterrupt()
		}
	}
}
