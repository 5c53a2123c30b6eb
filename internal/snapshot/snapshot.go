// Package snapshot serializes a hart's architectural state plus RAM to a
// trio of sibling files and restores it by synthesizing a tiny
// self-replaying boot ROM, exactly as spec.md §4.10 describes. It is
// grounded line-for-line on riscv_cpu.c's create_boot_rom and the
// create_csr12_recovery/create_csr64_recovery/create_reg_recovery/
// create_io64_recovery helper family.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/esperanto-sim/rvsim/internal/cpu"
	"github.com/esperanto-sim/rvsim/internal/pmm"
)

// Errors map to the runner exit codes of spec.md §6.
var (
	ErrSerializeIO     = fmt.Errorf("snapshot: serialization I/O error")
	ErrCheckpointInROM = fmt.Errorf("snapshot: checkpoint requested while pc is inside the boot rom")
	ErrROMOverflow     = fmt.Errorf("snapshot: boot rom synthesis overflowed its region")
)

// CSR addresses needed by the recovery sequence, matching spec.md §6's
// table. Kept local to this package rather than imported from
// internal/cpu, whose CSR address constants are unexported.
const (
	csrFFLAGS = 0x001
	csrFRM    = 0x002
	csrFCSR   = 0x003

	csrSTVEC      = 0x105
	csrSCOUNTEREN = 0x106
	csrSSCRATCH   = 0x140
	csrSEPC       = 0x141
	csrSCAUSE     = 0x142
	csrSTVAL      = 0x143
	csrSATP       = 0x180

	csrMSTATUS    = 0x300
	csrMISA       = 0x301
	csrMEDELEG    = 0x302
	csrMIDELEG    = 0x303
	csrMIE        = 0x304
	csrMTVEC      = 0x305
	csrMCOUNTEREN = 0x306
	csrMSCRATCH   = 0x340
	csrMEPC       = 0x341
	csrMCAUSE     = 0x342
	csrMTVAL      = 0x343
	csrMIP        = 0x344

	csrTSELECT = 0x7a0

	csrDCSR     = 0x7b0
	csrDPC      = 0x7b1
	csrDSCRATCH = 0x7b2

	csrMCYCLE       = 0xb00
	csrMINSTRET     = 0xb02
	csrMHPMCOUNTER3 = 0xb03
	csrMHPMEVENT3   = 0x323

	// clintBase/clintTimeCmpOffset/clintMTimeOffset mirror
	// internal/devices/clint's MMIO window.
	clintBase           = 0x02000000
	clintTimeCmpOffset  = 0x4000
	clintMTimeOffset    = 0xbff8
)

// Snapshotter binds a hart and its physical memory map for serialize/
// restore, plus the CLINT instance whose timer state round-trips through
// the boot ROM alongside the CPU CSRs (spec.md §4.10: "restores ... CLINT
// timecmp").
type Snapshotter struct {
	CPU   *cpu.State
	Mem   *pmm.Map
	Clint ClintView
}

// ClintView is the minimal CLINT surface the synthesizer needs; satisfied
// by *clint.Clint without this package importing the clint package
// directly (it only needs two uint64 fields, not the MMIO dispatch).
type ClintView interface {
	TimeCmp() uint64
	Time() uint64
}

// Serialize writes <dump>.mainram, <dump>.bootram, and <dump>.re_regs.
// It fails with ErrCheckpointInROM if the hart's PC currently sits inside
// the boot-ROM region (spec.md §6 exit code -4), and wraps any I/O
// failure or ROM-overflow condition from the synthesizer.
func (sn *Snapshotter) Serialize(dump string) error {
	if sn.CPU.PC >= romBaseAddr && sn.CPU.PC < romBaseAddr+romSize {
		return ErrCheckpointInROM
	}

	bootRange, mainRange := sn.splitRanges()
	if bootRange == nil || mainRange == nil {
		return fmt.Errorf("snapshot: expected a boot ram range and a main ram range")
	}

	if err := writeFile(dump+".mainram", mainRange.Bytes); err != nil {
		return err
	}

	rom, err := sn.synthesizeROM()
	if err != nil {
		return err
	}
	boot := append([]byte(nil), bootRange.Bytes...)
	copy(boot[romBaseAddr-bootRange.Base:], romToBytes(rom))
	if err := writeFile(dump+".bootram", boot); err != nil {
		return err
	}

	return sn.writeRegs(dump + ".re_regs")
}

// Restore reads <dump>.mainram and <dump>.bootram back into their RAM
// ranges and resets PC to the ROM's reset vector; execution of the
// synthesized ROM performs the actual CSR/register recovery.
func (sn *Snapshotter) Restore(dump string) error {
	bootRange, mainRange := sn.splitRanges()
	if bootRange == nil || mainRange == nil {
		return fmt.Errorf("snapshot: expected a boot ram range and a main ram range")
	}

	if err := readFile(dump+".mainram", mainRange.Bytes); err != nil {
		return err
	}
	if err := readFile(dump+".bootram", bootRange.Bytes); err != nil {
		return err
	}

	sn.Mem.FlushTLBWriteRange(mainRange.Base, mainRange.Size)
	sn.Mem.FlushTLBWriteRange(bootRange.Base, bootRange.Size)

	sn.CPU.PC = cpu.BootBaseAddr
	return nil
}

func (sn *Snapshotter) splitRanges() (boot, main *pmm.Range) {
	for _, r := range sn.Mem.Ranges() {
		if !r.RAM {
			continue
		}
		if r.Base <= cpu.BootBaseAddr && cpu.BootBaseAddr < r.Base+r.Size {
			boot = r
			continue
		}
		if main == nil {
			main = r
		}
	}
	return boot, main
}

func romToBytes(rom []uint32) []byte {
	buf := make([]byte, len(rom)*4)
	for i, w := range rom {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeIO, err)
	}
	return nil
}

func readFile(path string, into []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeIO, err)
	}
	if len(data) != len(into) {
		return fmt.Errorf("%w: %s size %d does not match range size %d", ErrSerializeIO, path, len(data), len(into))
	}
	copy(into, data)
	return nil
}

// writeRegs emits the text sidecar of spec.md §6: pc:, reg_xN:, reg_fN:,
// priv:, insn_counter:, every CSR, and mrangeN:<base> <size> ram|io.
func (sn *Snapshotter) writeRegs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeIO, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	line := func(key string, v uint64) { fmt.Fprintf(w, "%s:%x\n", key, v) }

	line("pc", sn.CPU.PC)
	for i := 0; i < 32; i++ {
		line(fmt.Sprintf("reg_x%d", i), uint64(sn.CPU.X[i]))
	}
	for i := 0; i < 32; i++ {
		line(fmt.Sprintf("reg_f%d", i), sn.CPU.F[i])
	}
	fmt.Fprintf(w, "priv:%s\n", privLetter(sn.CPU.Priv))
	line("insn_counter", sn.CPU.InsnCounter)

	for _, csr := range []uint32{
		csrFFLAGS, csrFRM, csrFCSR, csrSTVEC, csrSCOUNTEREN, csrSSCRATCH, csrSEPC,
		csrSCAUSE, csrSTVAL, csrSATP, csrMSTATUS, csrMISA, csrMEDELEG, csrMIDELEG,
		csrMIE, csrMTVEC, csrMCOUNTEREN, csrMSCRATCH, csrMEPC, csrMCAUSE, csrMTVAL,
		csrMIP, csrTSELECT, csrDCSR, csrDPC, csrDSCRATCH, csrMCYCLE, csrMINSTRET,
	} {
		fmt.Fprintf(w, "csr_%03x:%x\n", csr, sn.CPU.CSR[csr])
	}
	for i := 0; i < len(sn.CPU.MHPMEvent); i++ {
		fmt.Fprintf(w, "csr_%03x:%x\n", csrMHPMEVENT3+i, sn.CPU.MHPMEvent[i])
	}

	for i, r := range sn.Mem.Ranges() {
		kind := "io"
		if r.RAM {
			kind = "ram"
		}
		fmt.Fprintf(w, "mrange%d:%x %x %s\n", i, r.Base, r.Size, kind)
	}

	return w.Flush()
}

func privLetter(p cpu.Privilege) string {
	switch p {
	case cpu.PrivUser:
		return "U"
	case cpu.PrivSupervisor:
		return "S"
	case cpu.PrivHypervisor:
		return "H"
	default:
		return "M"
	}
}

// synthesizeROM replays create_boot_rom's sequencing: dpc/dcsr first, then
// mstatus/misa (the teacher's comment notes these must land before the
// split-out fflags/frm so mstatus.FS doesn't clobber them), then FP
// registers (only if fs is non-Off), the rest of the CSR set, x3..x31,
// CLINT timecmp/mtime, x1/x2 last (they were used as scratch), and
// finally satp through dscratch and dret.
func (sn *Snapshotter) synthesizeROM() ([]uint32, error) {
	s := sn.CPU
	b := newROMBuilder()

	b.csr64(csrDPC, s.PC)

	prv := uint16(3)
	switch s.Priv {
	case cpu.PrivUser:
		prv = 0
	case cpu.PrivSupervisor:
		prv = 1
	case cpu.PrivMachine:
		prv = 3
	}
	b.csr12(csrDCSR, 0x600|prv)

	b.csr64(csrMSTATUS, s.CSR[csrMSTATUS])
	b.csr64(csrMISA, s.CSR[csrMISA])

	if s.FS != cpu.FSOff {
		b.csr12(csrFFLAGS, uint16(s.FFlags))
		b.csr12(csrFRM, uint16(s.FRM))
		b.csr12(csrFCSR, uint16(s.FFlags)|uint16(s.FRM)<<5)
		for i := 0; i < 32; i++ {
			b.freg(i, s.F[i])
		}
	}

	for i := range s.MHPMEvent {
		b.csr12(uint32(csrMHPMCOUNTER3+i), 0)
		b.csr64(uint32(csrMHPMEVENT3+i), s.MHPMEvent[i])
	}
	b.csr64(csrTSELECT, s.CSR[csrTSELECT])

	b.csr64(csrMEDELEG, s.CSR[csrMEDELEG])
	b.csr64(csrMIDELEG, s.CSR[csrMIDELEG])
	b.csr64(csrMIE, s.CSR[csrMIE])
	b.csr64(csrMTVEC, s.CSR[csrMTVEC])
	b.csr64(csrSTVEC, s.CSR[csrSTVEC])
	b.csr12(csrMCOUNTEREN, uint16(s.CSR[csrMCOUNTEREN]))
	b.csr12(csrSCOUNTEREN, uint16(s.CSR[csrSCOUNTEREN]))

	b.csr64(csrMSCRATCH, s.CSR[csrMSCRATCH])
	b.csr64(csrMEPC, s.CSR[csrMEPC])
	b.csr64(csrMCAUSE, s.CSR[csrMCAUSE])
	b.csr64(csrMTVAL, s.CSR[csrMTVAL])

	b.csr64(csrSSCRATCH, s.CSR[csrSSCRATCH])
	b.csr64(csrSEPC, s.CSR[csrSEPC])
	b.csr64(csrSCAUSE, s.CSR[csrSCAUSE])
	b.csr64(csrSTVAL, s.CSR[csrSTVAL])

	b.csr64(csrMIP, s.CSR[csrMIP])

	for i := 3; i < 32; i++ {
		b.reg(i, uint64(s.X[i]))
	}

	if sn.Clint != nil {
		b.io64(clintBase+clintTimeCmpOffset, sn.Clint.TimeCmp())
	}

	b.csr64(csrMINSTRET, s.MInstret)
	b.csr64(csrMCYCLE, s.MCycle)

	if sn.Clint != nil {
		b.io64(clintBase+clintMTimeOffset, sn.Clint.Time())
	}

	for i := 1; i < 3; i++ {
		b.reg(i, uint64(s.X[i]))
	}

	b.csrrw(1, csrDSCRATCH)
	b.csr64(csrSATP, s.CSR[csrSATP])
	b.csrrs(1, csrDSCRATCH)

	b.dret()

	return b.build()
}
