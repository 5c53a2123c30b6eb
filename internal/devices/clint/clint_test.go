package clint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMtimeCmpReadWrite(t *testing.T) {
	c := New(WallClock)

	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(i + 1)
	}
	c.WriteMMIO(mtimecmpOffset, buf)

	got := make([]byte, 8)
	c.ReadMMIO(mtimecmpOffset, got)
	assert.Equal(t, buf, got)
}

func TestTimerFiresAndClearsOnRewrite(t *testing.T) {
	var mip uint64
	c := New(WallClock)
	c.MIP = &mip
	c.MTimeCmp = 10

	c.TickWallClock(10)
	assert.NotZero(t, mip&MTIPBit)

	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte((uint64(100) >> (8 * i)) & 0xff)
	}
	c.WriteMMIO(mtimecmpOffset, buf)
	assert.Zero(t, mip&MTIPBit)
}

func TestTickCyclesDividesByCycleDivisor(t *testing.T) {
	c := New(CycleDiv16)
	c.TickCycles(16)
	assert.Equal(t, uint64(1), c.Time())

	c.TickCycles(8)
	assert.Equal(t, uint64(1), c.Time())
	c.TickCycles(8)
	assert.Equal(t, uint64(2), c.Time())
}

func TestNewDisarmsTimer(t *testing.T) {
	c := New(WallClock)
	assert.Equal(t, ^uint64(0), c.TimeCmp())
	assert.Equal(t, uint64(0), c.Time())
}

func TestWidthMaskIs32Bit(t *testing.T) {
	c := New(WallClock)
	assert.Equal(t, uint8(0x4), c.WidthMask())
}
