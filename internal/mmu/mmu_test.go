package mmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esperanto-sim/rvsim/internal/pmm"
)

func newMemWithPage(t *testing.T, rootPPN, vaddr, paddr uint64, flags uint64) *pmm.Map {
	t.Helper()
	mem := pmm.New()
	_, err := mem.RegisterRAM(0, 0x100000)
	require.NoError(t, err)

	vpn2 := (vaddr >> 30) & 0x1ff
	vpn1 := (vaddr >> 21) & 0x1ff
	vpn0 := (vaddr >> 12) & 0x1ff

	l2PPN := rootPPN
	l1PPN := rootPPN + 1
	l0PPN := rootPPN + 2

	mem.Write(l2PPN*4096+vpn2*8, 8, ((l1PPN<<10)&^uint64(0x3ff))|pteV)
	mem.Write(l1PPN*4096+vpn1*8, 8, ((l0PPN<<10)&^uint64(0x3ff))|pteV)
	mem.Write(l0PPN*4096+vpn0*8, 8, (((paddr>>12)<<10)&^uint64(0x3ff))|flags)

	return mem
}

func TestMachineModeBypassesTranslation(t *testing.T) {
	tlb := NewTLB()
	mem := pmm.New()
	paddr, fault := tlb.Translate(mem, 0x1000, Read, Machine, Status{}, Bare, 0)
	assert.Nil(t, fault)
	assert.Equal(t, uint64(0x1000), paddr)
}

func TestBareModeIsIdentity(t *testing.T) {
	tlb := NewTLB()
	mem := pmm.New()
	paddr, fault := tlb.Translate(mem, 0x80001234, Read, Supervisor, Status{}, Bare, 0)
	assert.Nil(t, fault)
	assert.Equal(t, uint64(0x80001234), paddr)
}

func TestSv39WalkResolvesLeaf(t *testing.T) {
	const vaddr = 0x1000
	const paddr = 0x90000000
	mem := newMemWithPage(t, 0x10, vaddr, paddr, pteV|pteR|pteW|pteX|pteA|pteD)

	tlb := NewTLB()
	got, fault := tlb.Translate(mem, vaddr, Read, Supervisor, Status{}, Sv39, 0x10)
	require.Nil(t, fault)
	assert.Equal(t, uint64(paddr), got)
}

func TestSv39WalkCachesInTLB(t *testing.T) {
	const vaddr = 0x2000
	const paddr = 0x91000000
	mem := newMemWithPage(t, 0x20, vaddr, paddr, pteV|pteR|pteW|pteX|pteA|pteD)

	tlb := NewTLB()
	_, fault := tlb.Translate(mem, vaddr, Read, Supervisor, Status{}, Sv39, 0x20)
	require.Nil(t, fault)

	_, ok := tlb.lookup(Read, vaddr>>12)
	assert.True(t, ok)
}

func TestSv39WalkRejectsUserAccessToSupervisorPage(t *testing.T) {
	const vaddr = 0x3000
	const paddr = 0x92000000
	mem := newMemWithPage(t, 0x30, vaddr, paddr, pteV|pteR|pteA)

	tlb := NewTLB()
	_, fault := tlb.Translate(mem, vaddr, Read, User, Status{}, Sv39, 0x30)
	require.NotNil(t, fault)
	assert.Equal(t, PageFault, fault.Kind)
}

func TestSv39WalkRejectsMissingAccessedBit(t *testing.T) {
	const vaddr = 0x4000
	const paddr = 0x93000000
	mem := newMemWithPage(t, 0x40, vaddr, paddr, pteV|pteR)

	tlb := NewTLB()
	_, fault := tlb.Translate(mem, vaddr, Read, Supervisor, Status{}, Sv39, 0x40)
	require.NotNil(t, fault)
	assert.Equal(t, PageFault, fault.Kind)
}

func TestFlushWriteRangeInvalidatesOnlyOverlappingEntries(t *testing.T) {
	t.Helper()
	tlb := &TLB{}
	tlb.FlushAll()
	tlb.insert(Write, 0x1, 0x1000)
	tlb.insert(Write, 0x5, 0x5000)

	tlb.FlushWriteRange(0x1000, 0x1000)

	_, ok := tlb.lookup(Write, 0x1)
	assert.False(t, ok)
	_, ok = tlb.lookup(Write, 0x5)
	assert.True(t, ok)
}

func TestMPRVUsesEffectivePrivilege(t *testing.T) {
	const vaddr = 0x5000
	const paddr = 0x94000000
	mem := newMemWithPage(t, 0x50, vaddr, paddr, pteV|pteR|pteA)

	tlb := NewTLB()
	_, fault := tlb.Translate(mem, vaddr, Read, Machine, Status{MPRV: true, MPP: User}, Sv39, 0x50)
	require.NotNil(t, fault)
	assert.Equal(t, PageFault, fault.Kind)
}
