// Package plic implements a platform-level interrupt controller driving
// the machine- and supervisor-external interrupt lines (spec.md §4.7).
// It generalizes lukehoban-rvgo's Plic struct — which wired a single
// UART line by hand — into a full 31-line claim/complete aggregator, as
// the supplemented-features section of the expanded specification calls
// for.
package plic

import "github.com/esperanto-sim/rvsim/internal/pmm"

const (
	numIRQs = 31

	priorityBase = 0x000000
	pendingBase  = 0x001000
	enableBase   = 0x002000
	contextBase  = 0x200000
	contextSize  = 0x1000

	// MEIPBit/SEIPBit are the mip bits this device drives for the one
	// hart context it models (M-mode context 0, S-mode context 1).
	MEIPBit = uint64(1) << 11
	SEIPBit = uint64(1) << 9
)

// Plic aggregates up to 31 external interrupt lines and presents a
// claim/complete register pair per privileged context, matching the
// SiFive PLIC layout the teacher's firmware images expect.
type Plic struct {
	priority [numIRQs + 1]uint32
	pending  uint32
	enableM  uint32
	enableS  uint32
	claimedM uint32
	claimedS uint32

	threshM uint32
	threshS uint32

	// MIP is the CPU's mip CSR storage; updateLevels ORs/clears
	// MEIPBit/SEIPBit into it as pending-vs-enabled state changes.
	MIP *uint64
}

func New() *Plic { return &Plic{} }

func (p *Plic) WidthMask() uint8 { return pmm.Width32 }

// SetLevel sets or clears the level-triggered input of irq (1..31), per
// spec.md §4.7's plic_set_irq semantics.
func (p *Plic) SetLevel(irq int, level bool) {
	if irq < 1 || irq > numIRQs {
		return
	}
	bit := uint32(1) << uint(irq-1)
	if level {
		p.pending |= bit
	} else {
		p.pending &^= bit
	}
	p.updateLevels()
}

func (p *Plic) updateLevels() {
	if p.MIP == nil {
		return
	}
	if p.pending&p.enableM&^p.claimedM != 0 {
		*p.MIP |= MEIPBit
	} else {
		*p.MIP &^= MEIPBit
	}
	if p.pending&p.enableS&^p.claimedS != 0 {
		*p.MIP |= SEIPBit
	} else {
		*p.MIP &^= SEIPBit
	}
}

func (p *Plic) ReadMMIO(addr uint64, data []byte) {
	var v uint32
	switch {
	case addr >= priorityBase && addr < priorityBase+4*(numIRQs+1):
		v = p.priority[(addr-priorityBase)/4]
	case addr == pendingBase:
		v = p.pending
	case addr == enableBase:
		v = p.enableM
	case addr == enableBase+0x80:
		v = p.enableS
	case addr == contextBase+4:
		v = p.threshM
	case addr == contextBase+8:
		v = p.claim(false)
	case addr == contextBase+contextSize+4:
		v = p.threshS
	case addr == contextBase+contextSize+8:
		v = p.claim(true)
	}
	for i := range data {
		data[i] = byte(v >> (8 * i))
	}
}

func (p *Plic) WriteMMIO(addr uint64, data []byte) {
	var v uint32
	for i, b := range data {
		v |= uint32(b) << (8 * i)
	}
	switch {
	case addr >= priorityBase && addr < priorityBase+4*(numIRQs+1):
		p.priority[(addr-priorityBase)/4] = v
	case addr == enableBase:
		p.enableM = v
		p.updateLevels()
	case addr == enableBase+0x80:
		p.enableS = v
		p.updateLevels()
	case addr == contextBase+4:
		p.threshM = v
	case addr == contextBase+8:
		p.complete(false, v)
	case addr == contextBase+contextSize+4:
		p.threshS = v
	case addr == contextBase+contextSize+8:
		p.complete(true, v)
	}
}

// claim returns the highest-priority pending-and-enabled IRQ for the
// given context (the lowest-numbered one among equal priorities) and
// marks it claimed (masked from further delivery until complete), per
// the standard PLIC claim protocol.
func (p *Plic) claim(supervisor bool) uint32 {
	enable, claimed := p.enableM, &p.claimedM
	if supervisor {
		enable, claimed = p.enableS, &p.claimedS
	}
	avail := p.pending & enable &^ *claimed
	best, bestPrio := uint32(0), uint32(0)
	for irq := 1; irq <= numIRQs; irq++ {
		bit := uint32(1) << uint(irq-1)
		if avail&bit == 0 {
			continue
		}
		if best == 0 || p.priority[irq] > bestPrio {
			bestPrio, best = p.priority[irq], uint32(irq)
		}
	}
	if best != 0 {
		*claimed |= uint32(1) << (best - 1)
		p.updateLevels()
	}
	return best
}

func (p *Plic) complete(supervisor bool, irq uint32) {
	if irq < 1 || irq > numIRQs {
		return
	}
	claimed := &p.claimedM
	if supervisor {
		claimed = &p.claimedS
	}
	*claimed &^= uint32(1) << (irq - 1)
	p.updateLevels()
}
