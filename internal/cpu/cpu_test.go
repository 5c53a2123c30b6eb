package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esperanto-sim/rvsim/internal/pmm"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	mem := pmm.New()
	_, err := mem.RegisterRAM(0, 0x10000)
	require.NoError(t, err)
	return New(mem)
}

func encodeI(opcode, funct3 uint32, rd, rs1 int, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | uint32(rs1&0x1f)<<15 | funct3<<12 | uint32(rd&0x1f)<<7 | opcode
}

func writeInstr(s *State, addr uint64, word uint32) {
	s.Mem.Write(addr, 4, uint64(word))
}

func TestStepExecutesAddiChain(t *testing.T) {
	s := newTestState(t)

	writeInstr(s, BootBaseAddr, encodeI(0x13, 0, 1, 0, 5))      // addi x1, x0, 5
	writeInstr(s, BootBaseAddr+4, encodeI(0x13, 0, 2, 1, 10))   // addi x2, x1, 10

	s.Step(2)

	assert.Equal(t, int64(5), s.X[1])
	assert.Equal(t, int64(15), s.X[2])
	assert.Equal(t, uint64(2), s.InsnCounter)
}

func TestX0AlwaysZeroAfterExec(t *testing.T) {
	s := newTestState(t)
	writeInstr(s, BootBaseAddr, encodeI(0x13, 0, 0, 0, 5)) // addi x0, x0, 5
	s.Step(1)
	assert.Equal(t, int64(0), s.X[0])
}

func TestIllegalInstructionTraps(t *testing.T) {
	s := newTestState(t)
	writeInstr(s, BootBaseAddr, 0xffffffff) // not a valid encoding
	s.Step(1)
	assert.Equal(t, uint64(CauseIllegalInstr), s.CSR[csrMCAUSE])
	assert.Equal(t, s.CSR[csrMTVEC], s.PC)
}

func TestMisalignedFetchTraps(t *testing.T) {
	s := newTestState(t)
	s.PC = BootBaseAddr + 1
	s.Step(1)
	assert.Equal(t, uint64(CauseInstrMisaligned), s.CSR[csrMCAUSE])
}

func TestWriteAndReadCSR(t *testing.T) {
	s := newTestState(t)
	_, res := s.WriteCSR(csrMSCRATCH, 0xdeadbeef)
	assert.Equal(t, CSROK, res)

	v, res := s.ReadCSR(csrMSCRATCH)
	assert.Equal(t, CSROK, res)
	assert.Equal(t, uint64(0xdeadbeef), v)
}

func TestCSRAccessBelowMinPrivilegeFails(t *testing.T) {
	s := newTestState(t)
	s.Priv = PrivUser
	_, res := s.ReadCSR(csrMSCRATCH)
	assert.Equal(t, CSRFailIllegal, res)
}

func TestExceptionDelegatesToSupervisorTrapVector(t *testing.T) {
	s := newTestState(t)
	s.Priv = PrivSupervisor
	s.CSR[csrMEDELEG] = 1 << CauseIllegalInstr
	s.CSR[csrSTVEC] = 0x2000

	s.Exception(CauseIllegalInstr, 0, BootBaseAddr)

	assert.Equal(t, uint64(0x2000), s.PC)
	assert.Equal(t, PrivSupervisor, s.Priv)
}

func TestDecompressCNop(t *testing.T) {
	word, ok := Decompress(0x0001) // c.nop
	require.True(t, ok)
	assert.Equal(t, encodeI(0x13, 0, 0, 0, 0), word)
}
