package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRegsParsesKeyHexLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.re_regs")
	content := "pc:8000abcd\nreg_x1:5\npriv:M\ninsn_counter:2a\ncsr_300:8\nmrange0:0 10000 ram\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	regs, err := readRegs(path)
	require.NoError(t, err)

	assert.Equal(t, "8000abcd", regs["pc"])
	assert.Equal(t, "5", regs["reg_x1"])
	assert.Equal(t, "M", regs["priv"])
	assert.Equal(t, "8", regs["csr_300"])
	assert.Equal(t, "0 10000 ram", regs["mrange0"])
}

func TestReadRegsMissingFile(t *testing.T) {
	_, err := readRegs(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestParseHex64(t *testing.T) {
	v, err := parseHex64("0x2a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	v, err = parseHex64("2a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestReadRegsSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.re_regs")
	require.NoError(t, os.WriteFile(path, []byte("pc:100\n\n\nreg_x0:0\n"), 0o644))

	regs, err := readRegs(path)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}
