package pmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRAMRoundTrip(t *testing.T) {
	m := New()
	_, err := m.RegisterRAM(0x1000, 0x1000)
	require.NoError(t, err)

	m.Write(0x1008, 8, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), m.Read(0x1008, 8))
}

func TestRegisterOverlapRejected(t *testing.T) {
	m := New()
	_, err := m.RegisterRAM(0x1000, 0x1000)
	require.NoError(t, err)

	_, err = m.RegisterRAM(0x1800, 0x100)
	assert.Error(t, err)
}

func TestUnmappedReadReturnsZero(t *testing.T) {
	m := New()
	assert.Equal(t, uint64(0), m.Read(0x5000, 4))
}

type fakeDevice struct {
	mask uint8
	last []byte
}

func (d *fakeDevice) WidthMask() uint8 { return d.mask }
func (d *fakeDevice) ReadMMIO(addr uint64, data []byte) {
	for i := range data {
		data[i] = byte(addr) + byte(i)
	}
}
func (d *fakeDevice) WriteMMIO(addr uint64, data []byte) { d.last = append([]byte{}, data...) }

func TestDeviceWidthSplitting(t *testing.T) {
	m := New()
	dev := &fakeDevice{mask: Width32}
	_, err := m.RegisterDevice(0x2000, 0x10, dev)
	require.NoError(t, err)

	v := m.Read(0x2000, 8)
	assert.NotZero(t, v)

	m.Write(0x2000, 8, 0xdeadbeefcafebabe)
	assert.Len(t, dev.last, 4)
}

func TestDeviceUnsupportedWidthDropsWrite(t *testing.T) {
	m := New()
	dev := &fakeDevice{mask: Width32}
	_, err := m.RegisterDevice(0x3000, 0x10, dev)
	require.NoError(t, err)

	m.Write(0x3000, 1, 0xff)
	assert.Nil(t, dev.last)
}

func TestDirtyBitmap(t *testing.T) {
	r, err := New().RegisterRAM(0x0, 0x2000)
	require.NoError(t, err)

	assert.False(t, r.IsDirty(0))
	r.SetDirty(0)
	assert.True(t, r.IsDirty(0))
	assert.False(t, r.IsDirty(4096))
}

func TestFlushTLBWriteRangeCallback(t *testing.T) {
	m := New()
	_, err := m.RegisterRAM(0x0, 0x1000)
	require.NoError(t, err)

	var gotBase, gotSize uint64
	m.OnRAMWrite(func(base, size uint64) { gotBase, gotSize = base, size })

	m.Write(0x10, 4, 0x42)
	assert.Equal(t, uint64(0x10), gotBase)
	assert.Equal(t, uint64(4), gotSize)

	m.FlushTLBWriteRange(0x100, 0x200)
	assert.Equal(t, uint64(0x100), gotBase)
	assert.Equal(t, uint64(0x200), gotSize)
}

func TestRangesAndRangeFor(t *testing.T) {
	m := New()
	ram, err := m.RegisterRAM(0x80000000, 0x1000)
	require.NoError(t, err)

	dev := &fakeDevice{mask: Width32}
	_, err = m.RegisterDevice(0x2000000, 0x1000, dev)
	require.NoError(t, err)

	assert.Len(t, m.Ranges(), 2)
	assert.Same(t, ram, m.RangeFor(0x80000010))
	assert.Nil(t, m.RangeFor(0x90000000))
}
