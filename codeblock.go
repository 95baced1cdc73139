// codeblock.go - the code-block pool entry and its lifecycle (§3, §4.6)
//
// Grounded on original_source/src/codegen_new/codegen_block.c's
// codeblock_t and the free-list/dirty-list/eviction cascade it
// implements. Per spec §9 ("Cyclic structure in block lists"), the page
// block lists are index-based intrusive doubly-linked lists into
// BlockPool.blocks, not shared ownership - blocks never outlive the pool.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// BlockIndexInvalid is the "no block"/"no slot" sentinel, the Go
// equivalent of the source's 16-bit zero-means-invalid convention
// (spec §9): we use -1 instead of 0 so slot 0 is a usable block.
const BlockIndexInvalid = -1

// BlockPCInvalid marks a free slot's pc field (spec §3 "BLOCK_PC_INVALID").
const BlockPCInvalid = ^uint32(0)

// CodeBlockFlag is the bitset of per-block flags from spec §3.
type CodeBlockFlag uint16

const (
	FlagByteMask CodeBlockFlag = 1 << iota // page_mask is byte-granularity, not 64-byte-granularity
	FlagHasFPU
	FlagStaticTop    // TOP was a compile-time constant
	FlagWasRecompiled
	FlagInFreeList
	FlagInDirtyList
	FlagHasSecondPage
	FlagNoImmediatesFromCode // suppress inlining constants read from writable guest RAM
)

// CPUStatus mirrors the subset of cpu_cur_status bits a block's cached
// validity depends on (spec §3 "status"; §4.8 dispatcher match test).
type CPUStatus uint32

const (
	StatusFlatDS CPUStatus = 1 << iota
	StatusFlatSS
	StatusUse32
	StatusStack32
)

// CodeBlock is one pool-resident compiled-block entry (spec §3
// "Code block (codeblock)"). Host code itself is a HostProgram (see
// backend.go), held in Program.
type CodeBlock struct {
	index int // this block's own slot number, for self-reference in lists

	PC    uint32 // guest linear CS:EIP at entry
	Phys  uint32 // guest physical address of entry
	Phys2 uint32 // second page's physical base, if straddling

	PageMask  uint64
	PageMask2 uint64

	pageOf  int // 0 once linked into Phys's page list, -1 otherwise
	pageOf2 int // 0 once linked into Phys2's second-page list, -1 otherwise

	Flags CodeBlockFlag

	Ins    int // guest instructions compiled
	Status CPUStatus
	TOP    int // FPU top at compile time, valid iff FlagStaticTop

	Program *HostProgram // compiled host code, nil until end_recompile
	HeadMem MemBlock     // arena-backed metadata footprint, the head_mem_block equivalent

	// Page-list links: this block participates in up to two of a page's
	// doubly-linked lists (first-page list, second-page list).
	next, prev     int
	next2, prev2   int

	// free-list link (singly-linked). The dirty-list reuses next/prev
	// above, which are free once the block has left its page lists.
	poolNext int
}

func (b *CodeBlock) reset(index int) {
	*b = CodeBlock{
		index:   index,
		PC:      BlockPCInvalid,
		pageOf:  -1,
		pageOf2: -1,
		next:    BlockIndexInvalid, prev: BlockIndexInvalid,
		next2: BlockIndexInvalid, prev2: BlockIndexInvalid,
		poolNext: BlockIndexInvalid,
	}
}

// StaticTopValue returns the compile-time FPU top if FlagStaticTop is
// set, for the backend's FPU-stack spill addressing (spec §4.3).
func (b *CodeBlock) StaticTopValue() (int, bool) {
	return b.TOP, b.Flags&FlagStaticTop != 0
}
