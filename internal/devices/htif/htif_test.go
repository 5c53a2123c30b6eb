package htif

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeU64(h *Htif, offset uint64, v uint64) {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	h.WriteMMIO(offset, buf)
}

func TestSyscallExitProtocol(t *testing.T) {
	h := New()
	var gotCode int
	exited := false
	h.Exit = func(code int) { gotCode, exited = code, true }

	writeU64(h, tohostOffset, (42<<1)|1)

	assert.True(t, exited)
	assert.Equal(t, 42, gotCode)
	assert.Equal(t, uint64(0), h.ToHost)
}

func TestConsolePutchar(t *testing.T) {
	h := New()
	var out bytes.Buffer
	h.Console = &out

	cmd := uint64(devConsole)<<56 | uint64(cmdPutchar)<<48 | uint64('A')
	writeU64(h, tohostOffset, cmd)

	assert.Equal(t, "A", out.String())
	assert.NotZero(t, h.FromHost)
}

func TestZeroToHostIsIgnored(t *testing.T) {
	h := New()
	exited := false
	h.Exit = func(int) { exited = true }

	writeU64(h, tohostOffset, 0)
	assert.False(t, exited)
}

func TestFromHostReadBack(t *testing.T) {
	h := New()
	h.FromHost = 0x1122334455667788

	buf := make([]byte, 8)
	h.ReadMMIO(fromhostOffset, buf)
	var got uint64
	for i, b := range buf {
		got |= uint64(b) << (8 * i)
	}
	assert.Equal(t, h.FromHost, got)
}

func TestWidthMaskAllows32And64(t *testing.T) {
	h := New()
	assert.NotZero(t, h.WidthMask()&0x4)
	assert.NotZero(t, h.WidthMask()&0x8)
}
