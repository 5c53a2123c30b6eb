package plic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeWord(p *Plic, addr uint64, v uint32) {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	p.WriteMMIO(addr, buf)
}

func readWord(p *Plic, addr uint64) uint32 {
	buf := make([]byte, 4)
	p.ReadMMIO(addr, buf)
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func TestClaimHighestPriorityAndComplete(t *testing.T) {
	var mip uint64
	p := New()
	p.MIP = &mip

	writeWord(p, priorityBase+4*3, 5)
	writeWord(p, priorityBase+4*7, 9)
	writeWord(p, enableBase, (1<<2)|(1<<6))

	p.SetLevel(3, true)
	p.SetLevel(7, true)

	assert.NotZero(t, mip&MEIPBit)

	claimed := readWord(p, contextBase+8)
	assert.Equal(t, uint32(7), claimed)

	p.SetLevel(7, false) // the serviced device drops its line
	writeWord(p, contextBase+8, 7)
	assert.NotZero(t, mip&MEIPBit, "irq 3 is still pending")

	claimed = readWord(p, contextBase+8)
	assert.Equal(t, uint32(3), claimed)
	p.SetLevel(3, false)
	writeWord(p, contextBase+8, 3)
	assert.Zero(t, mip&MEIPBit)
}

func TestSupervisorContextIndependentOfMachine(t *testing.T) {
	var mip uint64
	p := New()
	p.MIP = &mip

	writeWord(p, priorityBase+4*1, 1)
	writeWord(p, enableBase+0x80, 1<<0)
	p.SetLevel(1, true)

	assert.Zero(t, mip&MEIPBit)
	assert.NotZero(t, mip&SEIPBit)

	claimed := readWord(p, contextBase+contextSize+8)
	assert.Equal(t, uint32(1), claimed)
	assert.Zero(t, mip&SEIPBit)
}

func TestSetLevelOutOfRangeIgnored(t *testing.T) {
	p := New()
	p.SetLevel(0, true)
	p.SetLevel(32, true)
	assert.Equal(t, uint32(0), readWord(p, pendingBase))
}

func TestCompleteOutOfRangeIgnored(t *testing.T) {
	p := New()
	p.complete(false, 0)
	p.complete(false, 32)
}
