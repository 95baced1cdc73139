// arena.go - the host-code memory arena (§3 "head_mem_block")
//
// Grounded on original_source/src/codegen_new/codegen_block.c's
// codegen_allocator_allocate/_free/codeblock_allocator_get_ptr: a single
// large region, carved up per block and returned to a free-list on
// eviction rather than returned to the OS. original_source backs this
// with a PROT_EXEC mmap because it writes machine code into it; this
// backend's "host code" is a HostProgram (a slice of Go closures, which
// the runtime already places in GC-managed memory and which Go gives no
// portable way to mmap over), so the arena here holds each block's
// METADATA footprint instead - its uop count, cell count and a small
// fixed header - while still being a real mmap'd region with the same
// allocate/free/coalesce discipline the source uses, preserving the
// capacity-pressure signal (§4.6 eviction) a literal code arena would
// produce.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// blockHeaderSize is the per-block footprint charged against the arena:
// enough for a fixed metadata record (uop count, cell count, instruction
// count) regardless of the block's actual closure-chain size, so
// capacity pressure scales with block count the way a fixed-size
// machine-code budget would.
const blockHeaderSize = 64

// MemBlock is the handle codeblock.go's CodeBlock.head_mem_block
// equivalent holds: an offset/size pair into the arena.
type MemBlock struct {
	off, size int
}

type freeSpan struct{ off, size int }

// Arena is a bump-and-freelist allocator over one mmap'd region, mirroring
// codegen_block.c's allocator: allocate first-fits from the free list or
// bumps the high-water mark; free coalesces adjacent spans back in.
type Arena struct {
	mu     sync.Mutex
	region []byte
	bump   int
	free   []freeSpan
}

// NewArena mmaps size bytes of anonymous, read/write memory (no PROT_EXEC:
// this backend never writes machine code, only block metadata, into the
// region - see file header) and returns an Arena over it.
func NewArena(size int) (*Arena, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	return &Arena{region: region}, nil
}

// Close unmaps the arena's backing region. Not safe to call while any
// MemBlock issued by this arena is still in use.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.region == nil {
		return nil
	}
	err := unix.Munmap(a.region)
	a.region = nil
	return err
}

// Allocate reserves size bytes, first-fit from the free list, falling
// back to bumping the high-water mark; it reports false if the arena is
// exhausted (§4.6's eviction cascade exists exactly to make room here).
func (a *Arena) Allocate(size int) (MemBlock, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, sp := range a.free {
		if sp.size >= size {
			mb := MemBlock{off: sp.off, size: size}
			if sp.size == size {
				a.free = append(a.free[:i], a.free[i+1:]...)
			} else {
				a.free[i] = freeSpan{off: sp.off + size, size: sp.size - size}
			}
			return mb, true
		}
	}

	if a.bump+size > len(a.region) {
		return MemBlock{}, false
	}
	mb := MemBlock{off: a.bump, size: size}
	a.bump += size
	return mb, true
}

// Free returns mb's span to the free list, coalescing with immediate
// neighbours so repeated allocate/evict cycles do not fragment the arena
// into slivers (codegen_allocator_free's role).
func (a *Arena) Free(mb MemBlock) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = append(a.free, freeSpan{mb.off, mb.size})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].off < a.free[j].off })

	merged := a.free[:0]
	for _, sp := range a.free {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.off+last.size == sp.off {
				last.size += sp.size
				continue
			}
		}
		merged = append(merged, sp)
	}
	a.free = merged
}

// GetPtr returns the byte slice backing mb, for writing/reading the
// block's fixed metadata header (codeblock_allocator_get_ptr).
func (a *Arena) GetPtr(mb MemBlock) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.region[mb.off : mb.off+mb.size]
}

// AllocateBlock reserves one block's fixed header footprint; a thin
// wrapper so codeblock.go call sites don't need to know blockHeaderSize.
func (a *Arena) AllocateBlock() (MemBlock, bool) { return a.Allocate(blockHeaderSize) }

// BytesInUse reports the arena's current high-water mark minus whatever
// has been freed and coalesced back to the front, for the dispatcher's
// capacity-pressure queries (§4.6 "when the arena nears exhaustion").
func (a *Arena) BytesInUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	free := 0
	for _, sp := range a.free {
		free += sp.size
	}
	return a.bump - free
}

func (a *Arena) Capacity() int { return len(a.region) }
