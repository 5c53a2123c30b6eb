// Command rvsim is the reference host driver: it wires the physical memory
// map of spec.md §6, loads a RISC-V ELF image via debug/elf exactly as the
// teacher's loadElf did, and runs the interpreter to completion or to a
// cycle budget. Flags replace the teacher's hard-coded "rv64ui-p-add" path.
package main

import (
	"debug/elf"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/esperanto-sim/rvsim/internal/cpu"
	"github.com/esperanto-sim/rvsim/internal/devices/clint"
	"github.com/esperanto-sim/rvsim/internal/devices/htif"
	"github.com/esperanto-sim/rvsim/internal/devices/plic"
	"github.com/esperanto-sim/rvsim/internal/pmm"
	"github.com/esperanto-sim/rvsim/internal/snapshot"
)

// csrMIP is the CSR address the devices OR their interrupt lines into;
// kept here rather than imported since internal/cpu's CSR address table is
// unexported (spec.md §6 publishes the number directly).
const csrMIP = 0x344

const (
	lowRAMBase  = 0x00000000
	lowRAMSize  = 0x00010000
	clintBase   = 0x02000000
	clintSize   = 0x000c0000
	htifBase    = 0x40008000
	htifSize    = 0x00000010
	plicBase    = 0x40100000
	plicSize    = 0x00400000
)

const mainRAMBase uint64 = 0x80000000

func main() {
	elfPath := flag.String("elf", "", "path to the RISC-V ELF image to load")
	ramSize := flag.Uint64("ram", 256<<20, "main RAM size in bytes")
	budget := flag.Uint64("cycles", 0, "instruction budget (0 = run until termination)")
	boot := flag.Bool("boot", false, "start from the low-memory reset-vector trampoline instead of the ELF entry point")
	dtbPath := flag.String("dtb", "", "path to an externally-supplied FDT blob, installed after the reset-vector trampoline")
	restorePath := flag.String("restore", "", "dump name prefix to restore a snapshot from before running")
	dumpPath := flag.String("dump", "", "dump name prefix to snapshot to on termination")

	flag.Parse()

	if *elfPath == "" && *restorePath == "" {
		log.Fatal("rvsim: -elf or -restore is required")
	}

	mem := pmm.New()
	mustRegisterRAM(mem, lowRAMBase, lowRAMSize)
	mustRegisterRAM(mem, mainRAMBase, *ramSize)

	s := cpu.New(mem)

	cl := clint.New(clint.CycleDiv16)
	cl.MIP = &s.CSR[csrMIP]
	mustRegisterDevice(mem, clintBase, clintSize, cl)

	pl := plic.New()
	pl.MIP = &s.CSR[csrMIP]
	mustRegisterDevice(mem, plicBase, plicSize, pl)

	ht := htif.New()
	ht.Console = os.Stdout
	ht.Exit = func(code int) {
		s.TerminateSimulation = true
		s.ExitCode = int32(code)
	}
	mustRegisterDevice(mem, htifBase, htifSize, ht)

	if *restorePath != "" {
		sn := &snapshot.Snapshotter{CPU: s, Mem: mem, Clint: cl}
		if err := sn.Restore(*restorePath); err != nil {
			log.Fatalf("rvsim: restore: %v", err)
		}
	} else if err := loadImage(*elfPath, mem, s, *boot, *dtbPath); err != nil {
		log.Fatalf("rvsim: %v", err)
	}

	const stepChunk = 100000
	remaining := *budget
	unlimited := *budget == 0
	for unlimited || remaining > 0 {
		n := uint64(stepChunk)
		if !unlimited && remaining < n {
			n = remaining
		}
		before := s.InsnCounter
		s.Step(n)
		cl.TickCycles(s.InsnCounter - before)
		if !unlimited {
			remaining -= n
		}
		if s.TerminateSimulation {
			break
		}
	}

	if *dumpPath != "" {
		sn := &snapshot.Snapshotter{CPU: s, Mem: mem, Clint: cl}
		if err := sn.Serialize(*dumpPath); err != nil {
			log.Fatalf("rvsim: snapshot: %v", err)
		}
	}

	log.Printf("rvsim: halted after %d instructions, exit code %d", s.InsnCounter, s.ExitCode)
	os.Exit(int(s.ExitCode))
}

func mustRegisterRAM(mem *pmm.Map, base, size uint64) {
	if _, err := mem.RegisterRAM(base, size); err != nil {
		log.Fatalf("rvsim: %v", err)
	}
}

func mustRegisterDevice(mem *pmm.Map, base, size uint64, dev pmm.Device) {
	if _, err := mem.RegisterDevice(base, size, dev); err != nil {
		log.Fatalf("rvsim: %v", err)
	}
}

// loadImage loads the ELF, then either points PC directly at its entry
// point (the teacher's original behavior, and the conformance-suite
// default where each test is its own tiny standalone image) or installs
// the reset-vector trampoline of spec.md §6 and leaves PC at
// cpu.BootBaseAddr, for booting a real kernel payload.
func loadImage(path string, mem *pmm.Map, s *cpu.State, boot bool, dtbPath string) error {
	entry, err := loadElf(path, mem)
	if err != nil {
		return err
	}

	if !boot {
		s.PC = entry
		return nil
	}

	installTrampoline(mem, entry)
	if dtbPath != "" {
		dtb, err := os.ReadFile(dtbPath)
		if err != nil {
			return fmt.Errorf("rvsim: reading dtb: %w", err)
		}
		installDTB(mem, dtb)
	}
	return nil
}

// loadElf mirrors the teacher's loadElf: a program header whose physical
// address lies below main RAM is rejected, and only the filesz bytes of
// each segment are copied; the tail of memsz beyond filesz is not
// written, so it holds whatever the RAM held (zero in freshly-registered
// RAM).
func loadElf(path string, mem *pmm.Map) (uint64, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Paddr < mainRAMBase {
			return 0, fmt.Errorf("rvsim: ELF segment at %#x maps below main RAM base %#x", prog.Paddr, uint64(mainRAMBase))
		}
		buf := make([]byte, prog.Filesz)
		n, err := prog.ReadAt(buf, 0)
		if err != nil {
			return 0, err
		}
		if uint64(n) != prog.Filesz {
			return 0, fmt.Errorf("rvsim: short read loading ELF segment at %#x", prog.Paddr)
		}
		for i, b := range buf {
			mem.Write(prog.Paddr+uint64(i), 1, uint64(b))
		}
	}
	mem.FlushTLBWriteRange(mainRAMBase, uint64(^uint32(0)))
	return f.Entry, nil
}

// installTrampoline writes the reset-vector sequence of spec.md §6 at
// cpu.BootBaseAddr: auipc t0,0; addi a1,t0,32; csrrs a0,mhartid,x0;
// ld t0,24(t0); jr t0; padding; entry (two data words).
func installTrampoline(mem *pmm.Map, entry uint64) {
	words := []uint32{
		0x00000297, // auipc t0, 0
		0x02028593, // addi a1, t0, 32
		0xf1402573, // csrrs a0, mhartid, x0
		0x0182b283, // ld t0, 24(t0)
		0x00028067, // jr t0
		0x00000000, // padding
	}
	base := uint64(cpu.BootBaseAddr)
	for i, w := range words {
		writeWord(mem, base+uint64(i*4), w)
	}
	writeWord(mem, base+24, uint32(entry))
	writeWord(mem, base+28, uint32(entry>>32))
	mem.FlushTLBWriteRange(base, 32)
}

func writeWord(mem *pmm.Map, addr uint64, w uint32) {
	mem.Write(addr, 4, uint64(w))
}

// installDTB writes the FDT blob immediately after the trampoline, per
// spec.md §6 ("followed by the FDT blob"). FDT *generation* is out of
// scope (spec.md §1); this only places an externally-supplied blob.
func installDTB(mem *pmm.Map, dtb []byte) {
	base := uint64(cpu.BootBaseAddr) + 32
	for i, b := range dtb {
		mem.Write(base+uint64(i), 1, uint64(b))
	}
	mem.FlushTLBWriteRange(base, uint64(len(dtb)))
}
