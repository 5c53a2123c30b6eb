package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esperanto-sim/rvsim/internal/cpu"
	"github.com/esperanto-sim/rvsim/internal/pmm"
)

type fakeClint struct{ timeCmp, time uint64 }

func (f *fakeClint) TimeCmp() uint64 { return f.timeCmp }
func (f *fakeClint) Time() uint64    { return f.time }

func newTestMachine(t *testing.T) (*cpu.State, *pmm.Map) {
	t.Helper()
	mem := pmm.New()
	_, err := mem.RegisterRAM(0x0, 0x10000)
	require.NoError(t, err)
	_, err = mem.RegisterRAM(0x80000000, 0x10000)
	require.NoError(t, err)
	return cpu.New(mem), mem
}

func TestSerializeWritesThreeFiles(t *testing.T) {
	s, mem := newTestMachine(t)
	s.PC = 0x80000100
	s.X[5] = 0x1234

	sn := &Snapshotter{CPU: s, Mem: mem, Clint: &fakeClint{timeCmp: 100, time: 7}}

	dump := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, sn.Serialize(dump))

	for _, suffix := range []string{".mainram", ".bootram", ".re_regs"} {
		_, err := os.Stat(dump + suffix)
		assert.NoError(t, err, "expected %s to exist", suffix)
	}
}

func TestSerializeRejectsPCInsideROM(t *testing.T) {
	s, mem := newTestMachine(t)
	s.PC = romBaseAddr + 4

	sn := &Snapshotter{CPU: s, Mem: mem}
	err := sn.Serialize(filepath.Join(t.TempDir(), "dump"))
	assert.ErrorIs(t, err, ErrCheckpointInROM)
}

func TestRestoreRoundTripsMainRAMAndResetsPC(t *testing.T) {
	s, mem := newTestMachine(t)
	s.PC = 0x80000100

	mainRange := mem.RangeFor(0x80000000)
	mainRange.Bytes[4] = 0xAB

	sn := &Snapshotter{CPU: s, Mem: mem, Clint: &fakeClint{}}
	dump := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, sn.Serialize(dump))

	mainRange.Bytes[4] = 0x00
	s.PC = 0x80000999

	require.NoError(t, sn.Restore(dump))

	assert.Equal(t, byte(0xAB), mainRange.Bytes[4])
	assert.Equal(t, uint64(cpu.BootBaseAddr), s.PC)
}

func TestRestoreFailsOnSizeMismatch(t *testing.T) {
	s, mem := newTestMachine(t)
	s.PC = 0x80000100
	sn := &Snapshotter{CPU: s, Mem: mem, Clint: &fakeClint{}}
	dump := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, sn.Serialize(dump))

	require.NoError(t, os.WriteFile(dump+".mainram", []byte{1, 2, 3}, 0o644))

	err := sn.Restore(dump)
	assert.ErrorIs(t, err, ErrSerializeIO)
}

func TestROMBuilderOverflowDetected(t *testing.T) {
	b := newROMBuilder()
	b.codePos = b.dataPosStart + 1
	_, err := b.build()
	assert.ErrorIs(t, err, ErrROMOverflow)
}

func TestSynthesizeROMProducesFullSizeImage(t *testing.T) {
	s, mem := newTestMachine(t)
	sn := &Snapshotter{CPU: s, Mem: mem, Clint: &fakeClint{timeCmp: 1, time: 2}}

	rom, err := sn.synthesizeROM()
	require.NoError(t, err)
	assert.Len(t, rom, romSizeWords)
}
