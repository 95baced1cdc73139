// guestmemory.go - flat guest RAM/port backing for standalone runs
//
// The teacher's machine_bus.go/memory_bus.go wired together an entire
// multi-chip system bus (video, sound, PCI); none of that survives here
// (spec §1 Non-goals: device emulation, GUI). What a dynarec demo still
// needs is *something* implementing X86Bus so CPU_X86 and the decoder
// have guest memory to read code and data from - this is that something,
// sized to cpu_x86.go's existing x86MemorySize/x86AddressMask constants.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// FlatMemory is a single contiguous byte slice addressed directly by
// physical address (no segmentation beyond what CPU_X86's *Base fields
// already fold in before calling Read/Write), matching cpu_x86.go's own
// "Flat memory model (simplified segmentation)" header comment. Port I/O
// is a flat byte array too, since no peripheral is wired up for this
// demo path.
type FlatMemory struct {
	ram   []byte
	ports [0x10000]byte
}

func NewFlatMemory() *FlatMemory {
	return &FlatMemory{ram: make([]byte, x86MemorySize)}
}

func (m *FlatMemory) Read(addr uint32) byte {
	return m.ram[addr&x86AddressMask]
}

func (m *FlatMemory) Write(addr uint32, value byte) {
	m.ram[addr&x86AddressMask] = value
}

func (m *FlatMemory) In(port uint16) byte { return m.ports[port] }

func (m *FlatMemory) Out(port uint16, value byte) { m.ports[port] = value }

func (m *FlatMemory) Tick(cycles int) {}

// LoadImage copies a flat binary into guest RAM starting at addr, for
// loading a raw-binary guest program (no executable-format parsing - ROM
// image loading is a named Non-goal).
func (m *FlatMemory) LoadImage(addr uint32, data []byte) {
	copy(m.ram[addr&x86AddressMask:], data)
}
