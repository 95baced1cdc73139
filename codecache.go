// codecache.go - block pool, hash index, PC tree, and page lists (§4.6)
//
// Grounded on original_source/src/codegen_new/codegen_block.c (block_init,
// the free-list/dirty-list/purgable-page/random eviction cascade) and
// codegen.c (the hash table and PC-indexed lookup). The "auxiliary tree
// keyed on guest PC" (spec §3) is realized here as a map: the pack carries
// no ordered-tree library, and the dispatcher only ever needs point
// lookup by PC, never range queries, so a hash map serves the same
// contract at the same asymptotic cost.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math/rand"

const (
	HashBits = 16
	HashSize = 1 << HashBits
	HashMask = HashSize - 1

	PageSlots   = 64 // 64-byte sub-ranges per 4 KiB page
	DirtyListCap = 64
)

// Hash implements spec §4.6: HASH(phys) = (phys >> 2) & HASH_MASK.
func Hash(phys uint32) int { return int((phys >> 2) & HashMask) }

// Page is the per-4KiB-physical-page metadata (spec §3 "Page metadata").
type Page struct {
	CodePresentMask uint64
	DirtyMask       uint64

	// Byte-granularity mirrors, used only by blocks with FlagByteMask.
	ByteCodePresent [PageSlots]byte
	ByteDirty       [PageSlots]byte

	blockHead  int // head of the "this is my first page" list
	blockHead2 int // head of the "this is my second page" list

	onPurgeList bool
	purgeNext   int
	purgePrev   int
}

// BlockPool owns every CodeBlock slot plus the indices over them. One
// instance per dynarec session (spec §9: encapsulated, not global).
type BlockPool struct {
	blocks []CodeBlock

	freeHead int
	freeLen  int

	dirtyHead, dirtyTail int
	dirtyLen             int

	hash [HashSize]int // -> block index, or BlockIndexInvalid

	pcTree map[uint32]int // guest PC -> block index

	pages    map[uint32]*Page // physical page base -> metadata
	purgeHead int

	rng   *rand.Rand
	arena *Arena // head_mem_block backing store, nil if the pool was built without one
}

// NewBlockPool builds a pool of the given fixed capacity (spec §8
// "Block-slot bound": free+dirty+live == BLOCK_SIZE always). arena may be
// nil, in which case blocks carry a zero-value HeadMem and no metadata
// footprint is ever charged (useful for tests that only exercise the
// index/lookup machinery).
func NewBlockPool(size int, seed int64, arena *Arena) *BlockPool {
	p := &BlockPool{
		blocks:    make([]CodeBlock, size),
		pcTree:    make(map[uint32]int),
		pages:     make(map[uint32]*Page),
		purgeHead: BlockIndexInvalid,
		rng:       rand.New(rand.NewSource(seed)),
		arena:     arena,
	}
	for i := range p.hash {
		p.hash[i] = BlockIndexInvalid
	}
	for i := range p.blocks {
		p.blocks[i].reset(i)
		p.blocks[i].poolNext = i + 1
	}
	if size > 0 {
		p.blocks[size-1].poolNext = BlockIndexInvalid
	}
	p.freeHead = 0
	p.freeLen = size
	p.dirtyHead, p.dirtyTail = BlockIndexInvalid, BlockIndexInvalid
	return p
}

func pageBase(phys uint32) uint32 { return phys &^ 0xFFF }

func (p *BlockPool) pageFor(base uint32) *Page {
	pg, ok := p.pages[base]
	if !ok {
		pg = &Page{blockHead: BlockIndexInvalid, blockHead2: BlockIndexInvalid, purgeNext: BlockIndexInvalid, purgePrev: BlockIndexInvalid}
		p.pages[base] = pg
	}
	return pg
}

// popFree pops the free-list head, or -1 if empty.
func (p *BlockPool) popFree() int {
	if p.freeLen == 0 {
		return BlockIndexInvalid
	}
	idx := p.freeHead
	p.freeHead = p.blocks[idx].poolNext
	p.freeLen--
	return idx
}

func (p *BlockPool) pushFree(idx int) {
	p.blocks[idx].reset(idx)
	p.blocks[idx].Flags |= FlagInFreeList
	p.blocks[idx].poolNext = p.freeHead
	p.freeHead = idx
	p.freeLen++
}

// popDirtyTail evicts the oldest (tail) dirty-list entry for reuse.
func (p *BlockPool) popDirtyTail() int {
	if p.dirtyLen == 0 {
		return BlockIndexInvalid
	}
	idx := p.dirtyTail
	p.unlinkDirty(idx)
	return idx
}

func (p *BlockPool) pushDirty(idx int) {
	b := &p.blocks[idx]
	b.Flags |= FlagInDirtyList
	b.prev = BlockIndexInvalid
	b.next = p.dirtyHead
	if p.dirtyHead != BlockIndexInvalid {
		p.blocks[p.dirtyHead].prev = idx
	}
	p.dirtyHead = idx
	if p.dirtyTail == BlockIndexInvalid {
		p.dirtyTail = idx
	}
	p.dirtyLen++
	if p.dirtyLen > DirtyListCap {
		tail := p.dirtyTail
		p.unlinkDirty(tail)
		p.pushFree(tail)
	}
}

func (p *BlockPool) unlinkDirty(idx int) {
	b := &p.blocks[idx]
	if b.prev != BlockIndexInvalid {
		p.blocks[b.prev].next = b.next
	} else {
		p.dirtyHead = b.next
	}
	if b.next != BlockIndexInvalid {
		p.blocks[b.next].prev = b.prev
	} else {
		p.dirtyTail = b.prev
	}
	b.Flags &^= FlagInDirtyList
	b.next, b.prev = BlockIndexInvalid, BlockIndexInvalid
	p.dirtyLen--
}

// evict implements the four-step cascade of spec §4.6 "Eviction selection".
func (p *BlockPool) evict() int {
	if idx := p.popFree(); idx != BlockIndexInvalid {
		return idx
	}
	if idx := p.popDirtyTail(); idx != BlockIndexInvalid {
		p.blocks[idx].reset(idx)
		return idx
	}
	if idx := p.purgePurgablePage(); idx != BlockIndexInvalid {
		return idx
	}
	return p.evictRandom()
}

// purgePurgablePage flushes purge-eligible pages (on the purge list with
// code-present ∩ dirty != 0), which unlinks and frees every block
// registered against each, retrying a free-list pop after each flush.
func (p *BlockPool) purgePurgablePage() int {
	base := p.purgeHead
	if base == BlockIndexInvalid {
		return BlockIndexInvalid
	}
	// purgeHead is only a presence flag (set to 0 by smc.go's
	// addPurgeList); the flagged pages are found by walking the pages
	// map, in map order, until a flush frees a slot.
	for physBase, pg := range p.pages {
		if pg.onPurgeList && pg.CodePresentMask&pg.DirtyMask != 0 {
			p.flushPage(physBase, pg)
			if idx := p.popFree(); idx != BlockIndexInvalid {
				return idx
			}
		}
	}
	return BlockIndexInvalid
}

// evictRandom walks linearly from a uniformly chosen start until a
// non-free, valid slot is found (spec §4.6 step 4).
func (p *BlockPool) evictRandom() int {
	if len(p.blocks) == 0 {
		return BlockIndexInvalid
	}
	start := p.rng.Intn(len(p.blocks))
	for i := 0; i < len(p.blocks); i++ {
		idx := (start + i) % len(p.blocks)
		b := &p.blocks[idx]
		if b.Flags&FlagInFreeList == 0 && b.PC != BlockPCInvalid {
			p.DeleteBlock(idx)
			return p.popFree()
		}
	}
	panic("codecache: no evictable block found in non-empty pool")
}

// addToPageList links block idx into page base's first- or second-page
// list, per spec §4.6 "Page lists".
func (p *BlockPool) addToPageList(base uint32, idx int, second bool) {
	pg := p.pageFor(base)
	b := &p.blocks[idx]
	if second {
		b.pageOf2 = 0
		b.next2, b.prev2 = pg.blockHead2, BlockIndexInvalid
		if pg.blockHead2 != BlockIndexInvalid {
			p.blocks[pg.blockHead2].prev2 = idx
		}
		pg.blockHead2 = idx
	} else {
		b.pageOf = 0
		b.next, b.prev = pg.blockHead, BlockIndexInvalid
		if pg.blockHead != BlockIndexInvalid {
			p.blocks[pg.blockHead].prev = idx
		}
		pg.blockHead = idx
	}
}

func (p *BlockPool) removeFromPageList(base uint32, idx int, second bool) {
	pg, ok := p.pages[base]
	if !ok {
		return
	}
	b := &p.blocks[idx]
	if second {
		if b.prev2 != BlockIndexInvalid {
			p.blocks[b.prev2].next2 = b.next2
		} else {
			pg.blockHead2 = b.next2
		}
		if b.next2 != BlockIndexInvalid {
			p.blocks[b.next2].prev2 = b.prev2
		}
		b.next2, b.prev2 = BlockIndexInvalid, BlockIndexInvalid
	} else {
		if b.prev != BlockIndexInvalid {
			p.blocks[b.prev].next = b.next
		} else {
			pg.blockHead = b.next
		}
		if b.next != BlockIndexInvalid {
			p.blocks[b.next].prev = b.prev
		}
		b.next, b.prev = BlockIndexInvalid, BlockIndexInvalid
	}
}

// BlockInit begins a new block at phys (spec §4.6 "Allocation"). If an
// arena is attached, it also reserves that block's head_mem_block
// footprint, evicting one further slot to make arena room if the first
// attempt is exhausted (mirrors codegen_block.c's allocate-or-flush
// retry around codegen_allocator_allocate).
func (p *BlockPool) BlockInit(pc, phys uint32, status CPUStatus) *CodeBlock {
	idx := p.evict()
	b := &p.blocks[idx]
	b.reset(idx)
	b.PC = pc
	b.Phys = phys
	b.Status = status
	p.hash[Hash(phys)] = idx
	p.pcTree[pc] = idx
	p.addToPageList(pageBase(phys), idx, false)

	if p.arena != nil {
		mb, ok := p.arena.AllocateBlock()
		if !ok {
			p.freeOneArenaSlot(idx)
			mb, ok = p.arena.AllocateBlock()
		}
		if ok {
			b.HeadMem = mb
		}
	}
	return b
}

// freeOneArenaSlot invalidates one other live block to return its
// head_mem_block footprint to the arena, without touching the pool
// free-list bookkeeping BlockInit's caller is mid-way through (keep is
// the slot currently being initialized, never picked as the victim).
func (p *BlockPool) freeOneArenaSlot(keep int) {
	for i := range p.blocks {
		if i == keep {
			continue
		}
		b := &p.blocks[i]
		if b.Flags&FlagInFreeList == 0 && b.PC != BlockPCInvalid {
			p.invalidateBlock(i)
			return
		}
	}
}

// LookupHash resolves HASH(phys) to a block, or nil.
func (p *BlockPool) LookupHash(phys uint32) *CodeBlock {
	idx := p.hash[Hash(phys)]
	if idx == BlockIndexInvalid {
		return nil
	}
	return &p.blocks[idx]
}

// LookupPC resolves the PC tree, or nil (spec §4.8 dispatcher fallback).
func (p *BlockPool) LookupPC(pc uint32) *CodeBlock {
	idx, ok := p.pcTree[pc]
	if !ok {
		return nil
	}
	return &p.blocks[idx]
}

// DeleteBlock implements spec §4.6 "On explicit delete".
func (p *BlockPool) DeleteBlock(idx int) {
	b := &p.blocks[idx]
	if p.hash[Hash(b.Phys)] == idx {
		p.hash[Hash(b.Phys)] = BlockIndexInvalid
	}
	delete(p.pcTree, b.PC)
	p.removeFromPageList(pageBase(b.Phys), idx, false)
	if b.Flags&FlagHasSecondPage != 0 {
		p.removeFromPageList(pageBase(b.Phys2), idx, true)
	}
	b.Program = nil
	if p.arena != nil && b.HeadMem.size != 0 {
		p.arena.Free(b.HeadMem)
		b.HeadMem = MemBlock{}
	}
	p.pushFree(idx)
}

// invalidateBlock implements spec §4.6/§4.7 "On SMC hit": unlink from
// page lists, release host code, move to dirty-list.
func (p *BlockPool) invalidateBlock(idx int) {
	b := &p.blocks[idx]
	if p.hash[Hash(b.Phys)] == idx {
		p.hash[Hash(b.Phys)] = BlockIndexInvalid
	}
	p.removeFromPageList(pageBase(b.Phys), idx, false)
	if b.Flags&FlagHasSecondPage != 0 {
		p.removeFromPageList(pageBase(b.Phys2), idx, true)
	}
	b.Program = nil
	if p.arena != nil && b.HeadMem.size != 0 {
		p.arena.Free(b.HeadMem)
		b.HeadMem = MemBlock{}
	}
	p.pushDirty(idx)
}

// LiveCount is (free + dirty + live) == len(blocks) check support for
// the §8 "Block-slot bound" property: returns the count of slots neither
// free nor dirty.
func (p *BlockPool) LiveCount() int {
	return len(p.blocks) - p.freeLen - p.dirtyLen
}
