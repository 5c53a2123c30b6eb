// Package pmm implements the physical memory map: an ordered collection of
// non-overlapping address ranges, each either RAM (a byte buffer with a
// dirty-page bitmap) or a device (opaque read/write callbacks gated by a
// width-capability mask).
package pmm

import "fmt"

const pageSize = 4096

// Device is implemented by anything mapped into the physical address space
// that isn't plain RAM: CLINT, PLIC, HTIF, VirtIO MMIO windows (opaque to this package), the framebuffer, and so on.
type Device interface {
	// WidthMask reports which access widths are natively supported: bit 0
	// is 8-bit, bit 1 is 16-bit, bit 2 is 32-bit, bit 3 is 64-bit.
	WidthMask() uint8
	// ReadMMIO fills data (len 1/2/4/8) from the device at addr.
	ReadMMIO(addr uint64, data []byte)
	// WriteMMIO writes data (len 1/2/4/8) into the device at addr.
	WriteMMIO(addr uint64, data []byte)
}

const (
	Width8  = 1 << 0
	Width16 = 1 << 1
	Width32 = 1 << 2
	Width64 = 1 << 3
)

// Range is one entry of the physical memory map.
type Range struct {
	Base uint64
	Size uint64
	RAM  bool

	// RAM-backed fields.
	Bytes []byte
	dirty []uint64 // one bit per page

	// Device-backed fields.
	Dev Device
}

func (r *Range) contains(addr uint64) bool {
	return addr >= r.Base && addr < r.Base+r.Size
}

// SetDirty marks the page containing offset (relative to the range base) as
// modified.
func (r *Range) SetDirty(offset uint64) {
	page := offset / pageSize
	word, bit := page/64, page%64
	if int(word) >= len(r.dirty) {
		return
	}
	r.dirty[word] |= 1 << bit
}

// IsDirty reports whether the page containing offset has been written.
func (r *Range) IsDirty(offset uint64) bool {
	page := offset / pageSize
	word, bit := page/64, page%64
	if int(word) >= len(r.dirty) {
		return false
	}
	return r.dirty[word]&(1<<bit) != 0
}

// Map is the physical memory map. Ranges are kept in base-address order and
// resolved by linear scan, matching spec.md §4.1 ("range count is small").
type Map struct {
	ranges []*Range
	// onRAMWrite is invoked whenever RAM is written so the CPU can purge
	// aliasing write-TLB entries (spec.md §4.1 flush_tlb_write_range).
	onRAMWrite func(base, size uint64)
}

func New() *Map {
	return &Map{}
}

// OnRAMWrite installs the callback used to notify the owning CPU that a RAM
// region has been mutated, so it can invalidate stale write-TLB addends.
func (m *Map) OnRAMWrite(fn func(base, size uint64)) {
	m.onRAMWrite = fn
}

func (m *Map) insert(r *Range) error {
	for _, existing := range m.ranges {
		if r.Base < existing.Base+existing.Size && existing.Base < r.Base+r.Size {
			return fmt.Errorf("pmm: range [%#x,%#x) overlaps existing [%#x,%#x)",
				r.Base, r.Base+r.Size, existing.Base, existing.Base+existing.Size)
		}
	}
	i := len(m.ranges)
	for i > 0 && m.ranges[i-1].Base > r.Base {
		i--
	}
	m.ranges = append(m.ranges, nil)
	copy(m.ranges[i+1:], m.ranges[i:])
	m.ranges[i] = r
	return nil
}

// RegisterRAM installs a RAM-backed range and returns it so the caller can
// load an image directly into Bytes before first execution.
func (m *Map) RegisterRAM(base, size uint64) (*Range, error) {
	r := &Range{
		Base:  base,
		Size:  size,
		RAM:   true,
		Bytes: make([]byte, size),
		dirty: make([]uint64, (size/pageSize+63)/64+1),
	}
	if err := m.insert(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterDevice installs a device-backed range.
func (m *Map) RegisterDevice(base, size uint64, dev Device) (*Range, error) {
	r := &Range{Base: base, Size: size, Dev: dev}
	if err := m.insert(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Ranges returns the map's ranges in base-address order, for callers that
// need to walk the whole map (e.g. snapshot serialization).
func (m *Map) Ranges() []*Range { return m.ranges }

// RangeFor returns the range containing paddr, or nil if unmapped.
func (m *Map) RangeFor(paddr uint64) *Range {
	for _, r := range m.ranges {
		if r.contains(paddr) {
			return r
		}
	}
	return nil
}

// FlushTLBWriteRange notifies the owning CPU that a host-side mutation of
// RAM (e.g. loading a boot image) has happened outside the normal
// read/write path, so it must invalidate any write-TLB entries whose addend
// aliases this range.
func (m *Map) FlushTLBWriteRange(base, size uint64) {
	if m.onRAMWrite != nil {
		m.onRAMWrite(base, size)
	}
}

// Read reads width bytes (1, 2, 4, or 8) at paddr into a little-endian
// uint64. Unmapped addresses return 0 silently per spec.md §7.
func (m *Map) Read(paddr uint64, width int) uint64 {
	r := m.RangeFor(paddr)
	if r == nil {
		return 0
	}
	off := paddr - r.Base
	if r.RAM {
		return readLE(r.Bytes, off, width)
	}
	return m.readDevice(r, paddr, width)
}

// Write writes the low width bytes of val at paddr. Unmapped addresses and
// unsupported device widths drop the write silently per spec.md §7.
func (m *Map) Write(paddr uint64, width int, val uint64) {
	r := m.RangeFor(paddr)
	if r == nil {
		return
	}
	off := paddr - r.Base
	if r.RAM {
		writeLE(r.Bytes, off, width, val)
		r.SetDirty(off)
		if m.onRAMWrite != nil {
			m.onRAMWrite(r.Base+off, uint64(width))
		}
		return
	}
	m.writeDevice(r, paddr, width, val)
}

func widthBit(width int) uint8 {
	switch width {
	case 1:
		return Width8
	case 2:
		return Width16
	case 4:
		return Width32
	case 8:
		return Width64
	}
	return 0
}

// readDevice implements spec.md §4.1's width-splitting rule: a 64-bit access
// against a device that only advertises 32-bit support is split into two
// 32-bit transactions, low half first.
func (m *Map) readDevice(r *Range, paddr uint64, width int) uint64 {
	mask := r.Dev.WidthMask()
	if mask&widthBit(width) != 0 {
		buf := make([]byte, width)
		r.Dev.ReadMMIO(paddr, buf)
		return readLE(buf, 0, width)
	}
	if width == 8 && mask&Width32 != 0 {
		lo := m.readDevice(r, paddr, 4)
		hi := m.readDevice(r, paddr+4, 4)
		return lo | hi<<32
	}
	return 0
}

func (m *Map) writeDevice(r *Range, paddr uint64, width int, val uint64) {
	mask := r.Dev.WidthMask()
	if mask&widthBit(width) != 0 {
		buf := make([]byte, width)
		writeLE(buf, 0, width, val)
		r.Dev.WriteMMIO(paddr, buf)
		return
	}
	if width == 8 && mask&Width32 != 0 {
		m.writeDevice(r, paddr, 4, val&0xffffffff)
		m.writeDevice(r, paddr+4, 4, val>>32)
		return
	}
	// Unsupported width on this device: drop, per spec.md §7.
}

func readLE(b []byte, off uint64, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		idx := off + uint64(i)
		if int(idx) >= len(b) {
			break
		}
		v |= uint64(b[idx]) << (8 * i)
	}
	return v
}

func writeLE(b []byte, off uint64, width int, val uint64) {
	for i := 0; i < width; i++ {
		idx := off + uint64(i)
		if int(idx) >= len(b) {
			break
		}
		b[idx] = byte(val >> (8 * i))
	}
}
