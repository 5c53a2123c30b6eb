package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esperanto-sim/rvsim/internal/cpu"
	"github.com/esperanto-sim/rvsim/internal/pmm"
)

// buildMinimalELF hand-assembles the smallest valid ELF64 executable with
// one PT_LOAD segment carrying code at vaddr/paddr, matching what
// debug/elf's reader expects: 64-byte file header, one 56-byte program
// header immediately after, then the segment bytes.
func buildMinimalELF(entry, vaddr uint64, code []byte) []byte {
	const ehSize, phSize = 64, 56
	buf := make([]byte, ehSize+phSize+len(code))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:], 2)   // e_type = ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:], 243) // e_machine = EM_RISCV
	binary.LittleEndian.PutUint32(buf[20:], 1)   // e_version
	binary.LittleEndian.PutUint64(buf[24:], entry)
	binary.LittleEndian.PutUint64(buf[32:], ehSize) // e_phoff
	binary.LittleEndian.PutUint16(buf[52:], ehSize)
	binary.LittleEndian.PutUint16(buf[54:], phSize)
	binary.LittleEndian.PutUint16(buf[56:], 1) // e_phnum

	ph := buf[ehSize:]
	binary.LittleEndian.PutUint32(ph[0:], 1) // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], 5) // p_flags = R+X
	binary.LittleEndian.PutUint64(ph[8:], ehSize+phSize)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], vaddr)
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[48:], 0x1000)

	copy(buf[ehSize+phSize:], code)
	return buf
}

func newTestMem(t *testing.T) *pmm.Map {
	t.Helper()
	mem := pmm.New()
	_, err := mem.RegisterRAM(lowRAMBase, lowRAMSize)
	require.NoError(t, err)
	_, err = mem.RegisterRAM(mainRAMBase, 0x10000)
	require.NoError(t, err)
	return mem
}

func TestInstallTrampolineJumpsToEntry(t *testing.T) {
	mem := newTestMem(t)
	const entry = uint64(0x80001000)

	installTrampoline(mem, entry)

	lo := mem.Read(cpu.BootBaseAddr+24, 4)
	hi := mem.Read(cpu.BootBaseAddr+28, 4)
	got := lo | hi<<32
	assert.Equal(t, entry, got)
}

func TestInstallDTBPlacedAfterTrampoline(t *testing.T) {
	mem := newTestMem(t)
	dtb := []byte{0xd0, 0x0d, 0xfe, 0xed}

	installDTB(mem, dtb)

	base := uint64(cpu.BootBaseAddr) + 32
	for i, b := range dtb {
		assert.Equal(t, uint64(b), mem.Read(base+uint64(i), 1))
	}
}

func writeTempELF(t *testing.T, entry, vaddr uint64, code []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.elf")
	require.NoError(t, os.WriteFile(path, buildMinimalELF(entry, vaddr, code), 0o644))
	return path
}

func TestLoadElfCopiesSegmentAndReturnsEntry(t *testing.T) {
	mem := newTestMem(t)
	code := []byte{0x93, 0x00, 0x50, 0x00} // addi x1, x0, 5
	path := writeTempELF(t, mainRAMBase+8, mainRAMBase, code)

	entry, err := loadElf(path, mem)
	require.NoError(t, err)
	assert.Equal(t, mainRAMBase+8, entry)
	assert.Equal(t, uint64(0x93), mem.Read(mainRAMBase, 1))
}

func TestLoadElfRejectsSegmentBelowMainRAM(t *testing.T) {
	mem := newTestMem(t)
	path := writeTempELF(t, 0x100, 0x100, []byte{0, 0, 0, 0})

	_, err := loadElf(path, mem)
	assert.Error(t, err)
}

func TestLoadImageDirectEntrySetsPC(t *testing.T) {
	mem := newTestMem(t)
	s := cpu.New(mem)

	code := []byte{0x93, 0x00, 0x50, 0x00}
	path := writeTempELF(t, mainRAMBase+0x20, mainRAMBase, code)

	require.NoError(t, loadImage(path, mem, s, false, ""))
	assert.Equal(t, mainRAMBase+0x20, s.PC)
}

func TestLoadImageBootModeInstallsTrampoline(t *testing.T) {
	mem := newTestMem(t)
	s := cpu.New(mem)

	code := []byte{0x93, 0x00, 0x50, 0x00}
	path := writeTempELF(t, mainRAMBase+0x40, mainRAMBase, code)

	require.NoError(t, loadImage(path, mem, s, true, ""))

	lo := mem.Read(cpu.BootBaseAddr+24, 4)
	hi := mem.Read(cpu.BootBaseAddr+28, 4)
	assert.Equal(t, mainRAMBase+0x40, lo|hi<<32)
}
