package cpu

// CTFKind taxonomizes a control-flow event for a cosimulation checker,
// per spec.md §4.5.
type CTFKind uint8

const (
	CTFBranchTaken CTFKind = iota
	CTFBranchNotTaken
	CTFJAL
	CTFJALRPush
	CTFJALRPop
	CTFJALRPushPop
)

// CTFInfo describes one control-flow event.
type CTFInfo struct {
	Kind   CTFKind
	PC     uint64
	Target uint64
}

func (s *State) emitCTF(info CTFInfo) {
	if s.ctfSink != nil {
		s.ctfSink(info)
	}
}

func (s *State) emitBranchCTF(taken bool, pc, target uint64) {
	kind := CTFBranchNotTaken
	if taken {
		kind = CTFBranchTaken
	}
	s.emitCTF(CTFInfo{Kind: kind, PC: pc, Target: target})
}

// emitJALRCTF classifies JALR using the link-register heuristic of
// spec.md §4.5: rd in {1,5} is a push, rs1 in {1,5} is a pop, and rs1==rd
// with both link registers collapses to a push-only (a call through the
// same register that will receive the new link).
func (s *State) emitJALRCTF(op IType, pc uint64) {
	isLink := func(r uint32) bool { return r == 1 || r == 5 }
	push, pop := isLink(op.Rd), isLink(op.Rs1)
	var kind CTFKind
	switch {
	case push && pop && op.Rs1 != op.Rd:
		kind = CTFJALRPushPop
	case push:
		kind = CTFJALRPush
	case pop:
		kind = CTFJALRPop
	default:
		kind = CTFJAL
	}
	s.emitCTF(CTFInfo{Kind: kind, PC: pc, Target: s.PC})
}
