// Package mmu implements the Sv39/Sv48 page-table walker and the software
// TLB that caches its results, per spec.md §4.2.
package mmu

import "github.com/esperanto-sim/rvsim/internal/pmm"

// Access distinguishes the three independently-cached translation kinds.
type Access int

const (
	Read Access = iota
	Write
	Code
)

// Privilege mirrors cpu.Privilege without importing it (avoids an import
// cycle: cpu imports mmu, not the reverse).
type Privilege uint8

const (
	User       Privilege = 0
	Supervisor Privilege = 1
	Machine    Privilege = 3
)

// FaultKind enumerates the two trap causes the walker can raise; the caller
// maps these to the concrete RISC-V cause numbers for the access kind.
type FaultKind int

const (
	NoFault FaultKind = iota
	PageFault
	AccessFault
)

type Fault struct {
	Kind FaultKind
	Addr uint64 // tval: the faulting virtual address
}

const tlbSize = 256
const invalidTag = ^uint64(0)

type entry struct {
	tag    uint64 // virtual page number, or invalidTag
	addend uint64 // host-independent: paddr - vaddr for the tagged page
}

// TLB is a direct-mapped, 256-entry cache keyed by virtual page number. The
// read and write caches are kept separate so a write fault on a read-hit
// line still walks, per spec.md §3.
type TLB struct {
	read, write, code [tlbSize]entry
}

func NewTLB() *TLB {
	t := &TLB{}
	t.FlushAll()
	return t
}

func (t *TLB) FlushAll() {
	for i := range t.read {
		t.read[i].tag = invalidTag
		t.write[i].tag = invalidTag
		t.code[i].tag = invalidTag
	}
}

// FlushWriteRange invalidates write-TLB entries whose page overlaps
// [base, base+size), used when RAM is mutated behind the CPU's back.
func (t *TLB) FlushWriteRange(base, size uint64) {
	firstPage := base >> 12
	lastPage := (base + size - 1) >> 12
	for i := range t.write {
		if t.write[i].tag == invalidTag {
			continue
		}
		if t.write[i].tag >= firstPage && t.write[i].tag <= lastPage {
			t.write[i].tag = invalidTag
		}
	}
}

func (t *TLB) lookup(which Access, vpn uint64) (uint64, bool) {
	slot := &t.slot(which)[vpn%tlbSize]
	if slot.tag == vpn {
		return slot.addend, true
	}
	return 0, false
}

func (t *TLB) slot(which Access) *[tlbSize]entry {
	switch which {
	case Write:
		return &t.write
	case Code:
		return &t.code
	default:
		return &t.read
	}
}

func (t *TLB) insert(which Access, vpn, addend uint64) {
	slot := &t.slot(which)[vpn%tlbSize]
	slot.tag = vpn
	slot.addend = addend
}

// Status carries the subset of mstatus bits the walker needs, decoupled
// from internal/cpu to avoid an import cycle.
type Status struct {
	MPRV bool
	MPP  Privilege
	SUM  bool
	MXR  bool
}

// SATPMode mirrors the satp.mode field.
type SATPMode uint8

const (
	Bare SATPMode = 0
	Sv39 SATPMode = 8
	Sv48 SATPMode = 9
)

const pteSize = 8

// pteFlags bit positions.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

// Translate resolves vaddr to a physical address under the given privilege,
// mstatus overrides, and satp configuration, populating the TLB on a walk
// and raising page/access faults per spec.md §4.2.
func (t *TLB) Translate(mem *pmm.Map, vaddr uint64, access Access, priv Privilege, status Status, satpMode SATPMode, satpPPN uint64) (uint64, *Fault) {
	effPriv := priv
	if status.MPRV && access != Code {
		effPriv = status.MPP
	}

	if effPriv == Machine {
		if vaddr&0xff00000000000000 != 0 {
			return 0, &Fault{Kind: AccessFault, Addr: vaddr}
		}
		return vaddr, nil
	}

	if satpMode == Bare {
		return vaddr, nil
	}

	vpn := vaddr >> 12
	if addend, ok := t.lookup(access, vpn); ok {
		return addend + vaddr, nil
	}

	levels := 3
	if satpMode == Sv48 {
		levels = 4
	}
	paddr, fault := walk(mem, vaddr, levels, satpPPN, effPriv, access, status)
	if fault != nil {
		return 0, fault
	}
	addend := paddr - vaddr
	t.insert(access, vpn, addend)
	return paddr, nil
}

func walk(mem *pmm.Map, vaddr uint64, levels int, rootPPN uint64, priv Privilege, access Access, status Status) (uint64, *Fault) {
	vpnBits := 9
	idxShift := 12 + vpnBits*(levels-1)
	ppn := rootPPN

	for level := levels - 1; ; level-- {
		vpn := (vaddr >> idxShift) & 0x1ff
		pteAddr := ppn*4096 + vpn*pteSize
		pte := mem.Read(pteAddr, 8)

		v := pte&pteV != 0
		r := pte&pteR != 0
		w := pte&pteW != 0
		x := pte&pteX != 0
		u := pte&pteU != 0
		a := pte&pteA != 0
		d := pte&pteD != 0

		if !v || (!r && w) {
			return 0, &Fault{Kind: PageFault, Addr: vaddr}
		}

		if !r && !x {
			// Pointer to the next-level page table.
			if level == 0 {
				return 0, &Fault{Kind: PageFault, Addr: vaddr}
			}
			ppn = (pte >> 10) & 0xfffffffffff
			idxShift -= vpnBits
			continue
		}

		// xwr == 2 or 6 (write-only, or write+execute without read) is
		// reserved per spec.md §4.2 step 1, already caught above by !r && w.

		if u && priv == Supervisor && !status.SUM {
			return 0, &Fault{Kind: PageFault, Addr: vaddr}
		}
		if !u && priv == User {
			return 0, &Fault{Kind: PageFault, Addr: vaddr}
		}

		effR := r
		if status.MXR {
			effR = r || x
		}

		var granted bool
		switch access {
		case Read:
			granted = effR
		case Write:
			granted = w
		case Code:
			granted = x
		}
		if !granted {
			return 0, &Fault{Kind: PageFault, Addr: vaddr}
		}

		// Misaligned superpage: low-order PPN bits below this level must
		// be zero.
		ppnField := (pte >> 10) & 0xfffffffffff
		if level > 0 {
			lowMask := uint64(1)<<(vpnBits*level) - 1
			if ppnField&lowMask != 0 {
				return 0, &Fault{Kind: PageFault, Addr: vaddr}
			}
		}

		if !a || (access == Write && !d) {
			return 0, &Fault{Kind: PageFault, Addr: vaddr}
		}

		// idxShift is this level's page size in address bits (12 for a
		// 4KiB leaf, 21/30/39 for a super/giga/tera-page). The physical
		// address is the PTE's PPN field combined with the low idxShift
		// bits of the virtual address (the in-superpage offset).
		pageMask := uint64(1)<<idxShift - 1
		paddr := (ppnField << 12) | (vaddr & pageMask)
		return paddr, nil
	}
}
